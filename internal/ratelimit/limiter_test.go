package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClampsNonPositiveRate(t *testing.T) {
	l := New("overdrive", 0)
	assert.True(t, l.Allow())
	assert.Equal(t, "overdrive", l.Name())
}

func TestWaitHonoursCancelledContext(t *testing.T) {
	l := New("oneclick", 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneclick")
}

func TestRegistrySharesLimiters(t *testing.T) {
	r := NewRegistry()

	a := r.For("overdrive", 5)
	b := r.For("overdrive", 50)
	c := r.For("oneclick", 5)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

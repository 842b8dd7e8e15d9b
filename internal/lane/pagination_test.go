package lane

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationNavigation(t *testing.T) {
	p := NewPagination(0, 10)
	assert.Nil(t, p.PreviousPage())
	assert.True(t, p.HasNextPage(), "nothing known yet")
	assert.Equal(t, "after=0&size=10", p.QueryString())

	next := p.NextPage()
	require.NotNil(t, next)
	assert.Equal(t, 10, next.Offset)

	prev := NewPagination(5, 10).PreviousPage()
	require.NotNil(t, prev)
	assert.Equal(t, 0, prev.Offset)
}

func TestPaginationHasNextPage(t *testing.T) {
	p := NewPagination(0, 10)
	p.SetTotalSize(10)
	assert.False(t, p.HasNextPage())
	assert.Nil(t, p.NextPage())

	p = NewPagination(0, 10)
	p.SetTotalSize(11)
	assert.True(t, p.HasNextPage())

	p = NewPagination(20, 10)
	p.PageLoaded(0)
	assert.True(t, p.IsLoaded())
	assert.False(t, p.HasNextPage())
}

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(-3, 0)
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, DefaultPageSize, p.Size)
	assert.Equal(t, 0, p.FirstPage().Offset)
}

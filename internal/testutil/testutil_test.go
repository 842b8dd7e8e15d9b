package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestEnvPath(t *testing.T) {
	env := NewTestEnv(t)
	assert.Equal(t, filepath.Join(env.RootDir(), "a", "b.txt"), env.Path("a", "b.txt"))
	assert.Equal(t, env.RootDir(), env.Path("x", ".."))
}

func TestTestEnvFiles(t *testing.T) {
	env := NewTestEnv(t)
	env.WriteFileString("nested/dir/file.txt", "hello")
	assert.True(t, env.FileExists("nested/dir/file.txt"))
	assert.False(t, env.FileExists("nested/other.txt"))
	assert.Equal(t, "hello", string(env.ReadFile("nested/dir/file.txt")))

	env.MkdirAll("nested/empty")
	assert.Equal(t, []string{"dir", "empty"}, env.ListFiles("nested"))
}

func TestTestEnvChdir(t *testing.T) {
	env := NewTestEnv(t)
	env.MkdirAll("work")
	orig, err := os.Getwd()
	require.NoError(t, err)

	t.Run("inside", func(t *testing.T) {
		env.Chdir("work")
		wd, err := os.Getwd()
		require.NoError(t, err)
		resolved, err := filepath.EvalSymlinks(env.Path("work"))
		require.NoError(t, err)
		wdResolved, err := filepath.EvalSymlinks(wd)
		require.NoError(t, err)
		assert.Equal(t, resolved, wdResolved)
	})

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, orig, wd)
}

func TestTestEnvSetEnv(t *testing.T) {
	const key = "FOLIO_TESTUTIL_ENV"
	t.Run("set", func(t *testing.T) {
		env := NewTestEnv(t)
		env.SetEnv(key, "value")
		assert.Equal(t, "value", os.Getenv(key))
	})
	_, ok := os.LookupEnv(key)
	assert.False(t, ok)
}

func TestResetConfig(t *testing.T) {
	viper.Set("coverage.batch_size", 7)
	t.Run("reset", func(t *testing.T) {
		ResetConfig(t)
		assert.False(t, viper.IsSet("coverage.batch_size"))
		viper.Set("coverage.batch_size", 9)
	})
	assert.False(t, viper.IsSet("coverage.batch_size"))
}

func TestSetupTestCache(t *testing.T) {
	ResetConfig(t)
	env := NewTestEnv(t)
	path := SetupTestCache(t, env)
	assert.Equal(t, path, viper.GetString("cache.dbfile"))
	assert.Equal(t, "24h", viper.GetString("cache.ttl"))
	assert.True(t, env.FileExists("cache"))

	catalog := SetupTestCatalog(t, env)
	assert.Equal(t, catalog, viper.GetString("catalog.dbfile"))
}

package testutil

import (
	"testing"

	"github.com/spf13/viper"
)

// ResetConfig clears viper now and again when the test completes.
func ResetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

// SetViperValue sets a viper key for the duration of the test. viper cannot
// unset a key, so a key that was unset before keeps the test's value until
// the next reset.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()
	old, had := viper.Get(key), viper.IsSet(key)
	viper.Set(key, value)
	t.Cleanup(func() {
		if had {
			viper.Set(key, old)
		}
	})
}

// SetupTestCache points the vendor response cache at the sandbox and
// returns the database path.
func SetupTestCache(t *testing.T, env *TestEnv) string {
	t.Helper()
	env.MkdirAll("cache")
	path := env.Path("cache", "test-cache.db")
	SetViperValue(t, "cache.dbfile", path)
	SetViperValue(t, "cache.ttl", "24h")
	return path
}

// SetupTestCatalog points the catalog database at the sandbox and returns
// its path.
func SetupTestCatalog(t *testing.T, env *TestEnv) string {
	t.Helper()
	path := env.Path("catalog.db")
	SetViperValue(t, "catalog.dbfile", path)
	return path
}

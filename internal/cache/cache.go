// Package cache keeps vendor API responses in sqlite so repeated coverage
// sweeps do not hit the vendors for data they already returned.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"
)

const (
	// DefaultCacheTTL applies to successful responses unless cache.ttl says
	// otherwise (30 days).
	DefaultCacheTTL = 720 * time.Hour
	// NegativeCacheTTL applies to "not found" responses (7 days).
	NegativeCacheTTL = 168 * time.Hour
)

// FetchFunc fetches a value from the vendor on a cache miss.
type FetchFunc[T any] func() (T, error)

// CacheDB is the cache database.
type CacheDB struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
	now  func() time.Time
}

var (
	globalCache     *CacheDB
	globalCacheOnce sync.Once
)

// ResetGlobalCache closes the shared cache so the next GetGlobalCache opens
// it again, e.g. after cache.dbfile changed.
func ResetGlobalCache() error {
	if globalCache != nil {
		if err := globalCache.Close(); err != nil {
			return err
		}
	}
	globalCache = nil
	globalCacheOnce = sync.Once{}
	return nil
}

// GetGlobalCache opens the cache named by cache.dbfile once per process.
func GetGlobalCache() (*CacheDB, error) {
	var initErr error
	globalCacheOnce.Do(func() {
		dbPath := viper.GetString("cache.dbfile")
		if dbPath == "" {
			dbPath = "./cache.db"
		}
		globalCache, initErr = NewCacheDB(dbPath)
	})
	if initErr != nil {
		globalCacheOnce = sync.Once{}
		return nil, initErr
	}
	return globalCache, nil
}

// NewCacheDB opens the cache at dbPath and creates every vendor table.
func NewCacheDB(dbPath string) (*CacheDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(err, closeErr)
	}

	c := &CacheDB{db: db, path: dbPath, now: time.Now}
	for _, table := range slices.Sorted(maps.Keys(ValidCacheTableNames)) {
		if err := c.CreateTable(table); err != nil {
			closeErr := db.Close()
			return nil, errors.Join(err, closeErr)
		}
	}
	return c, nil
}

// CreateTable creates a cache table if it does not exist yet.
func (c *CacheDB) CreateTable(tableName string) error {
	if err := validateTableName(tableName); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.Exec(tableSchema(tableName)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}
	return nil
}

// Path is the database file.
func (c *CacheDB) Path() string { return c.path }

// Close closes the database.
func (c *CacheDB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func validateTableName(tableName string) error {
	if !ValidCacheTableNames[tableName] {
		return fmt.Errorf("invalid cache table name: %s", tableName)
	}
	return nil
}

// Get returns the cached data for key unless it is missing or expired.
func (c *CacheDB) Get(tableName, key string) (string, bool, error) {
	if err := validateTableName(tableName); err != nil {
		return "", false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var data string
	var expiresAt int64
	err := c.db.QueryRow("SELECT data, expires_at FROM "+tableName+" WHERE cache_key = ?", key).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query cache: %w", err)
	}
	if c.now().Unix() >= expiresAt {
		slog.Debug("Cache expired", "table", tableName, "key", key)
		return "", false, nil
	}
	return data, true, nil
}

// Set stores data under key for ttl.
func (c *CacheDB) Set(tableName, key, data string, ttl time.Duration) error {
	if err := validateTableName(tableName); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	_, err := c.db.Exec("INSERT OR REPLACE INTO "+tableName+" (cache_key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)",
		key, data, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (c *CacheDB) Delete(tableName, key string) error {
	if err := validateTableName(tableName); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec("DELETE FROM "+tableName+" WHERE cache_key = ?", key)
	return err
}

// InvalidateSource empties a cache table and returns how many entries it
// held.
func (c *CacheDB) InvalidateSource(tableName string) (int64, error) {
	if err := validateTableName(tableName); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.Exec("DELETE FROM " + tableName)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	slog.Debug("Cache table cleared", "table", tableName, "rows_deleted", rows)
	return rows, nil
}

// ClearExpired drops expired entries from a table.
func (c *CacheDB) ClearExpired(tableName string) (int64, error) {
	if err := validateTableName(tableName); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.Exec("DELETE FROM "+tableName+" WHERE expires_at <= ?", c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired cache: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		slog.Info("Cleared expired cache entries", "table", tableName, "count", rows)
	}
	return rows, nil
}

// ConfiguredTTL is cache.ttl, or DefaultCacheTTL when unset or invalid.
func ConfiguredTTL() time.Duration {
	ttlStr := viper.GetString("cache.ttl")
	if ttlStr == "" {
		return DefaultCacheTTL
	}
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil || ttl <= 0 {
		slog.Warn("Invalid cache TTL, using default", "ttl", ttlStr, "error", err)
		return DefaultCacheTTL
	}
	return ttl
}

// GetOrFetch returns the cached value for key, or calls fetch and caches
// its result for the configured TTL. The bool reports a cache hit.
func GetOrFetch[T any](tableName, cacheKey string, fetch FetchFunc[T]) (T, bool, error) {
	return GetOrFetchWithTTL(tableName, cacheKey, fetch, nil)
}

// GetOrFetchWithTTL is GetOrFetch with the TTL chosen per fetched value. A
// nil ttlSelector uses the configured TTL; a selector returning zero or less
// skips caching that value.
func GetOrFetchWithTTL[T any](tableName, cacheKey string, fetch FetchFunc[T], ttlSelector func(T) time.Duration) (T, bool, error) {
	var zero T

	c, err := GetGlobalCache()
	if err != nil {
		slog.Warn("Failed to initialize cache, fetching directly", "error", err)
		data, fetchErr := fetch()
		return data, false, fetchErr
	}

	cached, hit, err := c.Get(tableName, cacheKey)
	if err != nil {
		slog.Warn("Cache lookup failed", "table", tableName, "key", cacheKey, "error", err)
	}
	if hit {
		var result T
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			slog.Debug("Cache hit", "table", tableName, "key", cacheKey)
			return result, true, nil
		}
		slog.Warn("Failed to unmarshal cached data, will refetch", "table", tableName, "key", cacheKey, "error", err)
	}

	slog.Debug("Cache miss, fetching data", "table", tableName, "key", cacheKey)
	data, err := fetch()
	if err != nil {
		return zero, false, fmt.Errorf("failed to fetch data: %w", err)
	}

	ttl := ConfiguredTTL()
	if ttlSelector != nil {
		ttl = ttlSelector(data)
	}
	if ttl <= 0 {
		slog.Debug("Skipping cache store per policy", "table", tableName, "key", cacheKey)
		return data, false, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Failed to marshal data for caching", "table", tableName, "key", cacheKey, "error", err)
		return data, false, nil
	}
	// A failed store must not fail the lookup.
	if err := c.Set(tableName, cacheKey, string(jsonData), ttl); err != nil {
		slog.Warn("Failed to cache data", "table", tableName, "key", cacheKey, "error", err)
	} else {
		slog.Debug("Data cached", "table", tableName, "key", cacheKey, "ttl", ttl)
	}
	return data, false, nil
}

// SelectNegativeCacheTTL keeps "not found" results for NegativeCacheTTL
// and everything else for the configured TTL.
//
//	cache.GetOrFetchWithTTL(cache.OverdriveTable, id,
//	    func() (*Lookup, error) { ... },
//	    cache.SelectNegativeCacheTTL(func(l *Lookup) bool { return l.NotFound }))
func SelectNegativeCacheTTL[T any](isNotFound func(T) bool) func(T) time.Duration {
	return func(result T) time.Duration {
		if isNotFound(result) {
			return NegativeCacheTTL
		}
		return ConfiguredTTL()
	}
}

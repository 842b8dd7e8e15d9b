package cache

import "fmt"

// Cache tables, one per vendor. Every table has the same layout.
const (
	OverdriveTable = "overdrive_cache"
	OneClickTable  = "oneclick_cache"
)

// Sources maps the names accepted on the command line to cache tables.
var Sources = map[string]string{
	"overdrive": OverdriveTable,
	"oneclick":  OneClickTable,
}

// ValidCacheTableNames is the whitelist of table names that may be
// interpolated into queries.
var ValidCacheTableNames = map[string]bool{
	OverdriveTable: true,
	OneClickTable:  true,
}

// tableSchema returns the DDL of a cache table. expires_at is a unix time in
// seconds, so negative results can expire sooner than hits.
func tableSchema(name string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_expires_at ON %[1]s(expires_at);
`, name)
}

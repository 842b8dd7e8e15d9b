package cache

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// InvalidateCacheCmd empties one vendor's cache.
type InvalidateCacheCmd struct {
	Source      string `arg:"" help:"Cache source to invalidate: overdrive, oneclick" required:""`
	ExpiredOnly bool   `help:"Only drop entries whose TTL has passed"`
}

func (i *InvalidateCacheCmd) Run() error {
	tableName, ok := Sources[i.Source]
	if !ok {
		return fmt.Errorf("invalid cache source '%s'; valid sources are: %s",
			i.Source, strings.Join(slices.Sorted(maps.Keys(Sources)), ", "))
	}

	c, err := GetGlobalCache()
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	slog.Info("Invalidating cache", "source", i.Source, "database", c.Path(), "expired_only", i.ExpiredOnly)

	invalidate := c.InvalidateSource
	if i.ExpiredOnly {
		invalidate = c.ClearExpired
	}
	rows, err := invalidate(tableName)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	slog.Info("Cache invalidated", "source", i.Source, "rows_deleted", rows)
	return nil
}

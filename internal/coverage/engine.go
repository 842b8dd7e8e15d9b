package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultBatchSize is the number of items pulled per repository round trip.
const DefaultBatchSize = 100

// Settings configures an Engine.
type Settings struct {
	// ServiceName identifies the engine in logs and in the timestamps table.
	ServiceName string
	// Operation disambiguates several kinds of coverage from the same data source.
	Operation string
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// CutoffTime, when set, makes records older than it count as missing.
	CutoffTime time.Time
}

// Query is a lazily evaluated, stably ordered set of items lacking coverage.
type Query[T Item] interface {
	Count(ctx context.Context) (int, error)
	Page(ctx context.Context, offset, limit int) ([]T, error)
	All(ctx context.Context) ([]T, error)
}

// Hooks are the item-kind specific parts of the engine.
type Hooks[T Item] interface {
	// ItemsThatNeedCoverage selects items with no record, a record whose
	// status is not in countAsCovered, or a record older than the cutoff.
	// A non-empty subset restricts the selection to those items.
	ItemsThatNeedCoverage(ctx context.Context, subset []T, countAsCovered StatusSet) (Query[T], error)
	// AddCoverageRecordFor stores a success record for item.
	AddCoverageRecordFor(ctx context.Context, item T) (*Record, error)
	// RecordFailureAsCoverageRecord stores a failure record.
	RecordFailureAsCoverageRecord(ctx context.Context, f *Failure[T]) (*Record, error)
	// FailureForIgnoredItem builds the failure recorded for an item the
	// processor produced no outcome for.
	FailureForIgnoredItem(item T) *Failure[T]
	// ExistingRecord returns the current record for item, or nil.
	ExistingRecord(ctx context.Context, item T) (*Record, error)
}

// Processor does the actual work for one item. Recoverable problems must be
// reported as a Failed result; a returned error is fatal and aborts the run.
type Processor[T Item] interface {
	ProcessItem(ctx context.Context, item T) (Result[T], error)
}

// BatchProcessor lets a processor handle a whole batch at once. Items it
// leaves out of the returned slice are recorded as ignored.
type BatchProcessor[T Item] interface {
	ProcessBatch(ctx context.Context, batch []T) ([]Result[T], error)
}

// BatchFinalizer is called after every batch, e.g. to upload artifacts
// produced while processing it.
type BatchFinalizer interface {
	FinalizeBatch(ctx context.Context) error
}

// Repository is the transactional store the engine commits to.
type Repository interface {
	Commit(ctx context.Context) error
	StampTimestamp(ctx context.Context, service string, finishedAt time.Time, runID string) error
}

// sweepPasses are the count-as-covered sets of a full sweep, in order: first
// items never attempted, then items whose last attempt failed transiently.
var sweepPasses = []StatusSet{AllStatuses, DefaultCountAsCovered}

// Cursor is the position of a sweep in progress.
type Cursor struct {
	Pass   int
	Offset int
}

// Engine drives batches of items through a Processor and records outcomes.
type Engine[T Item] struct {
	settings  Settings
	repo      Repository
	hooks     Hooks[T]
	processor Processor[T]
	log       *slog.Logger
	now       func() time.Time
}

// NewEngine wires an engine. It panics when settings has no ServiceName,
// since nothing could be stamped or logged for such an engine.
func NewEngine[T Item](settings Settings, repo Repository, hooks Hooks[T], processor Processor[T]) *Engine[T] {
	if settings.ServiceName == "" {
		panic("coverage: engine requires a service name")
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = DefaultBatchSize
	}
	return &Engine[T]{
		settings:  settings,
		repo:      repo,
		hooks:     hooks,
		processor: processor,
		log:       slog.Default().With("service", settings.ServiceName),
		now:       time.Now,
	}
}

// ServiceName identifies the engine.
func (e *Engine[T]) ServiceName() string { return e.settings.ServiceName }

// Operation is the operation name records are stored under.
func (e *Engine[T]) Operation() string { return e.settings.Operation }

// BatchSize is the number of items pulled per batch.
func (e *Engine[T]) BatchSize() int { return e.settings.BatchSize }

// CutoffTime is the staleness cutoff, zero when unset.
func (e *Engine[T]) CutoffTime() time.Time { return e.settings.CutoffTime }

// Run performs one full sweep and stamps its completion.
func (e *Engine[T]) Run(ctx context.Context) error {
	return e.RunOnceAndUpdateTimestamp(ctx)
}

// RunOnceAndUpdateTimestamp covers every item that has never been attempted,
// then retries every transient failure, then records the sweep's completion
// time under the service name.
func (e *Engine[T]) RunOnceAndUpdateTimestamp(ctx context.Context) error {
	runID := uuid.NewString()
	e.log.Info("Coverage sweep started", "run_id", runID)

	var cursor Cursor
	for {
		next, done, err := e.Step(ctx, cursor)
		if err != nil {
			return err
		}
		if done {
			break
		}
		cursor = next
	}

	return e.FinishSweep(ctx, runID)
}

// FinishSweep stamps the completion time of a sweep and commits it.
func (e *Engine[T]) FinishSweep(ctx context.Context, runID string) error {
	finished := e.now().UTC()
	if err := e.repo.StampTimestamp(ctx, e.settings.ServiceName, finished, runID); err != nil {
		return fmt.Errorf("stamping %s: %w", e.settings.ServiceName, err)
	}
	if err := e.repo.Commit(ctx); err != nil {
		return fmt.Errorf("committing sweep: %w", err)
	}
	e.log.Info("Coverage sweep finished", "run_id", runID, "finished_at", finished)
	return nil
}

// Step runs a single batch of a sweep. It returns the cursor for the next
// batch, and done once the final pass has been exhausted.
func (e *Engine[T]) Step(ctx context.Context, cursor Cursor) (Cursor, bool, error) {
	if err := ctx.Err(); err != nil {
		return cursor, false, err
	}
	if cursor.Pass >= len(sweepPasses) {
		return cursor, true, nil
	}

	offset, passDone, err := e.RunOnce(ctx, cursor.Offset, sweepPasses[cursor.Pass])
	if err != nil {
		return cursor, false, err
	}
	if !passDone {
		return Cursor{Pass: cursor.Pass, Offset: offset}, false, nil
	}
	if cursor.Pass+1 < len(sweepPasses) {
		return Cursor{Pass: cursor.Pass + 1}, false, nil
	}
	return cursor, true, nil
}

// RunOnce processes the batch at offset among the items that lack coverage
// under countAsCovered, commits it, and returns the offset of the next
// batch. done is true when there was nothing left at offset.
//
// Items whose new status is covered under countAsCovered drop out of the
// query, so the offset only advances past outcomes that leave an item
// selectable.
func (e *Engine[T]) RunOnce(ctx context.Context, offset int, countAsCovered StatusSet) (next int, done bool, err error) {
	if len(countAsCovered) == 0 {
		countAsCovered = DefaultCountAsCovered
	}

	qu, err := e.hooks.ItemsThatNeedCoverage(ctx, nil, countAsCovered)
	if err != nil {
		return offset, false, fmt.Errorf("selecting items that need coverage: %w", err)
	}
	total, err := qu.Count(ctx)
	if err != nil {
		return offset, false, fmt.Errorf("counting items that need coverage: %w", err)
	}
	e.log.Info("Items need coverage", "count", total, "counting_as_covered", countAsCovered.String())

	batch, err := qu.Page(ctx, offset, e.settings.BatchSize)
	if err != nil {
		return offset, false, fmt.Errorf("loading batch at offset %d: %w", offset, err)
	}
	if len(batch) == 0 {
		return offset, true, nil
	}

	counts, _, err := e.ProcessBatchAndHandleResults(ctx, batch)
	if err != nil {
		return offset, false, err
	}
	if err := e.repo.Commit(ctx); err != nil {
		return offset, false, fmt.Errorf("committing batch: %w", err)
	}

	if !countAsCovered.Has(StatusSuccess) {
		offset += counts.Successes
	}
	if !countAsCovered.Has(StatusTransientFailure) {
		offset += counts.TransientFailures
	}
	if !countAsCovered.Has(StatusPersistentFailure) {
		offset += counts.PersistentFailures
	}
	return offset, false, nil
}

// ProcessBatchAndHandleResults runs batch through the processor and records
// every outcome. Items the processor said nothing about are recorded as
// transient failures and counted with them, so the counts always add up to
// the number of distinct items in batch.
func (e *Engine[T]) ProcessBatchAndHandleResults(ctx context.Context, batch []T) (Counts, []*Record, error) {
	var counts Counts
	batch = distinct(batch)

	results, err := e.processBatch(ctx, batch)
	if err != nil {
		return counts, nil, err
	}

	unhandled := make(map[string]bool, len(batch))
	for _, item := range batch {
		unhandled[item.CoverageKey()] = true
	}

	records := make([]*Record, 0, len(batch))
	for _, result := range results {
		if result.IsZero() {
			continue
		}
		key := result.Item().CoverageKey()
		if !unhandled[key] {
			e.log.Warn("Discarding outcome for item that is not pending in this batch", "item", key)
			continue
		}
		delete(unhandled, key)

		var record *Record
		if failure, failed := result.Failure(); failed {
			record, err = e.hooks.RecordFailureAsCoverageRecord(ctx, failure)
			if err != nil {
				return counts, records, fmt.Errorf("recording failure for %s: %w", key, err)
			}
			if failure.Transient {
				e.log.Warn("Transient failure covering item", "item", key, "error", failure.Exception)
				counts.TransientFailures++
			} else {
				e.log.Error("Persistent failure covering item", "item", key, "error", failure.Exception)
				counts.PersistentFailures++
			}
		} else {
			record, err = e.hooks.AddCoverageRecordFor(ctx, result.Item())
			if err != nil {
				return counts, records, fmt.Errorf("recording success for %s: %w", key, err)
			}
			counts.Successes++
		}
		records = append(records, record)
	}

	ignored := 0
	for _, item := range batch {
		key := item.CoverageKey()
		if !unhandled[key] {
			continue
		}
		e.log.Warn("Item was ignored by a coverage provider that was supposed to cover it", "item", key)
		record, err := e.hooks.RecordFailureAsCoverageRecord(ctx, e.hooks.FailureForIgnoredItem(item))
		if err != nil {
			return counts, records, fmt.Errorf("recording ignored item %s: %w", key, err)
		}
		records = append(records, record)
		ignored++
	}

	e.log.Info("Batch processed",
		"successes", counts.Successes,
		"transient_failures", counts.TransientFailures,
		"persistent_failures", counts.PersistentFailures,
		"ignored", ignored,
	)

	if f, ok := e.processor.(BatchFinalizer); ok {
		if err := f.FinalizeBatch(ctx); err != nil {
			return counts, records, fmt.Errorf("finalizing batch: %w", err)
		}
	}

	counts.TransientFailures += ignored
	return counts, records, nil
}

func (e *Engine[T]) processBatch(ctx context.Context, batch []T) ([]Result[T], error) {
	if bp, ok := e.processor.(BatchProcessor[T]); ok {
		return bp.ProcessBatch(ctx, batch)
	}
	results := make([]Result[T], 0, len(batch))
	for _, item := range batch {
		result, err := e.processor.ProcessItem(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", item.CoverageKey(), err)
		}
		if !result.IsZero() {
			results = append(results, result)
		}
	}
	return results, nil
}

// ShouldUpdate decides whether an item with the given record needs work.
// Without a cutoff time, any record is final.
func (e *Engine[T]) ShouldUpdate(record *Record) bool {
	if record == nil {
		return true
	}
	if e.settings.CutoffTime.IsZero() {
		return false
	}
	return record.Timestamp.Before(e.settings.CutoffTime)
}

// EnsureCoverage covers one item outside a sweep. Unless force is set, an
// item whose record is still fresh is returned as-is without reprocessing.
func (e *Engine[T]) EnsureCoverage(ctx context.Context, item T, force bool) (*Record, error) {
	existing, err := e.hooks.ExistingRecord(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("looking up coverage for %s: %w", item.CoverageKey(), err)
	}
	if !force && !e.ShouldUpdate(existing) {
		return existing, nil
	}

	_, records, err := e.ProcessBatchAndHandleResults(ctx, []T{item})
	if err != nil {
		return nil, err
	}
	if err := e.repo.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing coverage for %s: %w", item.CoverageKey(), err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// RunOnSpecificItems covers the given items in batches, committing after
// each. Items that already have coverage count as successes without being
// reprocessed, and their records are not returned. Repeated items are
// covered and counted once.
func (e *Engine[T]) RunOnSpecificItems(ctx context.Context, items []T) (Counts, []*Record, error) {
	var counts Counts
	var records []*Record
	items = distinct(items)
	if len(items) == 0 {
		return counts, records, nil
	}

	qu, err := e.hooks.ItemsThatNeedCoverage(ctx, items, DefaultCountAsCovered)
	if err != nil {
		return counts, nil, fmt.Errorf("selecting items that need coverage: %w", err)
	}
	need, err := qu.All(ctx)
	if err != nil {
		return counts, nil, fmt.Errorf("loading items that need coverage: %w", err)
	}

	counts.Successes = len(items) - len(need)
	e.log.Info("Automatic successes", "count", counts.Successes)

	for start := 0; start < len(need); start += e.settings.BatchSize {
		end := min(start+e.settings.BatchSize, len(need))
		c, r, err := e.ProcessBatchAndHandleResults(ctx, need[start:end])
		if err != nil {
			return counts, records, err
		}
		if err := e.repo.Commit(ctx); err != nil {
			return counts, records, fmt.Errorf("committing batch: %w", err)
		}
		counts = counts.Add(c)
		records = append(records, r...)
	}
	return counts, records, nil
}

// distinct drops repeated items by CoverageKey, keeping the first occurrence.
func distinct[T Item](items []T) []T {
	seen := make(map[string]bool, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		key := item.CoverageKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

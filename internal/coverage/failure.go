package coverage

import (
	"context"
	"fmt"
)

// Item is anything the engine can cover.
type Item interface {
	// CoverageKey identifies the item within a batch.
	CoverageKey() string
	// PrimaryKey is the catalog row id the coverage record points at.
	PrimaryKey() int64
}

// Failure describes a failed attempt to cover an item. It lives only until
// it is turned into a Record.
type Failure[T Item] struct {
	Item       T
	Exception  string
	DataSource string
	Transient  bool
}

// NewFailure creates a Failure for item.
func NewFailure[T Item](item T, exception, dataSource string, transient bool) *Failure[T] {
	return &Failure[T]{Item: item, Exception: exception, DataSource: dataSource, Transient: transient}
}

// TransientFailure is shorthand for a retryable failure.
func TransientFailure[T Item](item T, exception, dataSource string) *Failure[T] {
	return NewFailure(item, exception, dataSource, true)
}

// PersistentFailure is shorthand for a failure that needs outside intervention.
func PersistentFailure[T Item](item T, exception, dataSource string) *Failure[T] {
	return NewFailure(item, exception, dataSource, false)
}

func (f *Failure[T]) String() string {
	kind := "persistent"
	if f.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s failure covering %s: %s", kind, f.Item.CoverageKey(), f.Exception)
}

// Status is the record status this failure turns into.
func (f *Failure[T]) Status() Status {
	if f.Transient {
		return StatusTransientFailure
	}
	return StatusPersistentFailure
}

// ToCoverageRecord persists the failure as an identifier coverage record.
// A failure without a data source cannot be stored this way.
func (f *Failure[T]) ToCoverageRecord(ctx context.Context, store RecordStore, operation string) (*Record, error) {
	if f.DataSource == "" {
		return nil, ErrNoDataSource
	}
	rec, _, err := store.AddCoverageRecord(ctx, Record{
		IdentifierID: f.Item.PrimaryKey(),
		DataSource:   f.DataSource,
		Operation:    operation,
		Status:       f.Status(),
		Exception:    f.Exception,
	})
	return rec, err
}

// ToWorkCoverageRecord persists the failure as a work coverage record.
func (f *Failure[T]) ToWorkCoverageRecord(ctx context.Context, store RecordStore, operation string) (*Record, error) {
	rec, _, err := store.AddWorkCoverageRecord(ctx, Record{
		WorkID:    f.Item.PrimaryKey(),
		Operation: operation,
		Status:    f.Status(),
		Exception: f.Exception,
	})
	return rec, err
}

// Result is what processing one item produced: either success or a Failure.
// The zero Result means the processor produced nothing for the item.
type Result[T Item] struct {
	item    T
	failure *Failure[T]
	set     bool
}

// Succeeded reports a successful attempt.
func Succeeded[T Item](item T) Result[T] {
	return Result[T]{item: item, set: true}
}

// Failed reports a failed attempt.
func Failed[T Item](f *Failure[T]) Result[T] {
	return Result[T]{item: f.Item, failure: f, set: true}
}

// IsZero reports whether r carries no outcome at all.
func (r Result[T]) IsZero() bool {
	return !r.set
}

// Item is the item the outcome belongs to.
func (r Result[T]) Item() T {
	return r.item
}

// Failure returns the failure, if the attempt failed.
func (r Result[T]) Failure() (*Failure[T], bool) {
	return r.failure, r.failure != nil
}

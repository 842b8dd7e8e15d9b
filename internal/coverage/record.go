// Package coverage guarantees that every item in a growing corpus eventually
// has the outcome of an external operation recorded against it.
//
// An Engine walks the items that lack coverage in batches, hands them to a
// Processor, and persists one Record per (item, data source, operation).
// IdentifierProvider and WorkProvider bind the engine to the two kinds of
// catalog items.
package coverage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status is the outcome of the most recent coverage attempt.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusTransientFailure  Status = "transient failure"
	StatusPersistentFailure Status = "persistent failure"
)

// StatusSet is a set of statuses that count as "covered" for a query.
type StatusSet []Status

var (
	// AllStatuses treats any existing record as coverage.
	AllStatuses = StatusSet{StatusSuccess, StatusTransientFailure, StatusPersistentFailure}

	// DefaultCountAsCovered leaves only transient failures eligible for another attempt.
	DefaultCountAsCovered = StatusSet{StatusSuccess, StatusPersistentFailure}
)

// Has reports whether s contains status.
func (s StatusSet) Has(status Status) bool {
	for _, x := range s {
		if x == status {
			return true
		}
	}
	return false
}

func (s StatusSet) String() string {
	parts := make([]string, len(s))
	for i, x := range s {
		parts[i] = string(x)
	}
	return strings.Join(parts, ", ")
}

// ErrNoDataSource is returned when a failure without a data source is
// converted into an identifier coverage record.
var ErrNoDataSource = errors.New("cannot convert coverage failure to a coverage record: no data source")

// Record is the persisted outcome for one item. Identifier records carry
// IdentifierID and DataSource, work records carry WorkID.
type Record struct {
	ID           int64     `json:"id"`
	IdentifierID int64     `json:"identifier_id,omitempty"`
	WorkID       int64     `json:"work_id,omitempty"`
	DataSource   string    `json:"data_source,omitempty"`
	Operation    string    `json:"operation,omitempty"`
	Status       Status    `json:"status"`
	Exception    string    `json:"exception,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// RecordStore persists coverage records. Both methods look up the record by
// its unique key and overwrite it in place, creating it when missing; the
// bool reports whether a new row was created.
type RecordStore interface {
	AddCoverageRecord(ctx context.Context, r Record) (*Record, bool, error)
	AddWorkCoverageRecord(ctx context.Context, r Record) (*Record, bool, error)
}

// Counts tallies the outcomes of one or more batches.
type Counts struct {
	Successes          int `json:"successes"`
	TransientFailures  int `json:"transient_failures"`
	PersistentFailures int `json:"persistent_failures"`
}

// Total is the number of items accounted for.
func (c Counts) Total() int {
	return c.Successes + c.TransientFailures + c.PersistentFailures
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Successes:          c.Successes + o.Successes,
		TransientFailures:  c.TransientFailures + o.TransientFailures,
		PersistentFailures: c.PersistentFailures + o.PersistentFailures,
	}
}

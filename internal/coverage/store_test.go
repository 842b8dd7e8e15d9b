package coverage

import (
	"context"
	"slices"
	"time"

	"github.com/lepinkainen/folio/internal/model"
)

type recordKey struct {
	id         int64
	dataSource string
	operation  string
}

// memStore is an in-memory IdentifierStore and WorkStore.
type memStore struct {
	identifiers []*model.Identifier
	works       []*model.Work

	records     map[recordKey]*Record
	workRecords map[recordKey]*Record
	nextRecord  int64

	pools    map[int64]*model.LicensePool
	editions map[int64]*model.Edition
	// noWork lists identifier ids CalculateWork cannot build a work for.
	noWork map[int64]bool
	ready  map[int64]bool

	commits int
	stamps  map[string]string
	// pages records the ids of every page served, keyed by the number of
	// statuses counted as covered.
	pages map[int][][]int64

	clock time.Time
}

func newMemStore() *memStore {
	return &memStore{
		records:     map[recordKey]*Record{},
		workRecords: map[recordKey]*Record{},
		pools:       map[int64]*model.LicensePool{},
		editions:    map[int64]*model.Edition{},
		noWork:      map[int64]bool{},
		ready:       map[int64]bool{},
		stamps:      map[string]string{},
		pages:       map[int][][]int64{},
		clock:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addIdentifiers(n int) []*model.Identifier {
	out := make([]*model.Identifier, 0, n)
	for i := 1; i <= n; i++ {
		id := &model.Identifier{
			ID:    int64(len(s.identifiers) + 1),
			Type:  model.IdentifierOverdrive,
			Value: "od-" + string(rune('a'+len(s.identifiers))),
		}
		s.identifiers = append(s.identifiers, id)
		out = append(out, id)
	}
	return out
}

func (s *memStore) addWorks(n int) []*model.Work {
	out := make([]*model.Work, 0, n)
	for i := 1; i <= n; i++ {
		w := &model.Work{ID: int64(len(s.works) + 1)}
		s.works = append(s.works, w)
		out = append(out, w)
	}
	return out
}

func missing(rec *Record, q MissingCoverage) bool {
	if rec == nil {
		return true
	}
	if !q.CountAsCovered.Has(rec.Status) {
		return true
	}
	return !q.CutoffTime.IsZero() && rec.Timestamp.Before(q.CutoffTime)
}

type sliceQuery[T Item] struct {
	store   *memStore
	covered int
	load    func() []T
}

func (q *sliceQuery[T]) Count(context.Context) (int, error) { return len(q.load()), nil }

func (q *sliceQuery[T]) All(context.Context) ([]T, error) { return q.load(), nil }

func (q *sliceQuery[T]) Page(_ context.Context, offset, limit int) ([]T, error) {
	items := q.load()
	if offset >= len(items) {
		items = nil
	} else {
		items = items[offset:min(offset+limit, len(items))]
	}
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.PrimaryKey())
	}
	q.store.pages[q.covered] = append(q.store.pages[q.covered], ids)
	return items, nil
}

func (s *memStore) IdentifiersMissingCoverage(_ context.Context, q MissingCoverage) (Query[*model.Identifier], error) {
	return &sliceQuery[*model.Identifier]{store: s, covered: len(q.CountAsCovered), load: func() []*model.Identifier {
		var out []*model.Identifier
		for _, id := range s.identifiers {
			if len(q.IdentifierTypes) > 0 && !slices.Contains(q.IdentifierTypes, id.Type) {
				continue
			}
			if len(q.Subset) > 0 && !slices.Contains(q.Subset, id.ID) {
				continue
			}
			if missing(s.records[recordKey{id.ID, q.DataSource, q.Operation}], q) {
				out = append(out, id)
			}
		}
		return out
	}}, nil
}

func (s *memStore) WorksMissingCoverage(_ context.Context, q MissingCoverage) (Query[*model.Work], error) {
	return &sliceQuery[*model.Work]{store: s, covered: len(q.CountAsCovered), load: func() []*model.Work {
		var out []*model.Work
		for _, w := range s.works {
			if len(q.Subset) > 0 && !slices.Contains(q.Subset, w.ID) {
				continue
			}
			if missing(s.workRecords[recordKey{id: w.ID, operation: q.Operation}], q) {
				out = append(out, w)
			}
		}
		return out
	}}, nil
}

func (s *memStore) upsert(m map[recordKey]*Record, key recordKey, r Record) (*Record, bool, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = s.tick()
	}
	existing, ok := m[key]
	if ok {
		r.ID = existing.ID
	} else {
		s.nextRecord++
		r.ID = s.nextRecord
	}
	stored := r
	m[key] = &stored
	out := stored
	return &out, !ok, nil
}

func (s *memStore) AddCoverageRecord(_ context.Context, r Record) (*Record, bool, error) {
	return s.upsert(s.records, recordKey{r.IdentifierID, r.DataSource, r.Operation}, r)
}

func (s *memStore) AddWorkCoverageRecord(_ context.Context, r Record) (*Record, bool, error) {
	return s.upsert(s.workRecords, recordKey{id: r.WorkID, operation: r.Operation}, r)
}

func (s *memStore) CoverageRecord(_ context.Context, identifierID int64, dataSource, operation string) (*Record, error) {
	return s.records[recordKey{identifierID, dataSource, operation}], nil
}

func (s *memStore) WorkCoverageRecord(_ context.Context, workID int64, operation string) (*Record, error) {
	return s.workRecords[recordKey{id: workID, operation: operation}], nil
}

func (s *memStore) Commit(context.Context) error {
	s.commits++
	return nil
}

func (s *memStore) StampTimestamp(_ context.Context, service string, _ time.Time, runID string) error {
	s.stamps[service] = runID
	return nil
}

func (s *memStore) LicensePool(_ context.Context, identifierID int64) (*model.LicensePool, error) {
	return s.pools[identifierID], nil
}

func (s *memStore) CreateLicensePool(_ context.Context, dataSource string, id *model.Identifier) (*model.LicensePool, error) {
	p := &model.LicensePool{ID: int64(len(s.pools) + 1), DataSource: dataSource, IdentifierID: id.ID}
	s.pools[id.ID] = p
	return p, nil
}

func (s *memStore) Edition(_ context.Context, dataSource string, id *model.Identifier) (*model.Edition, error) {
	if e, ok := s.editions[id.ID]; ok {
		return e, nil
	}
	e := &model.Edition{ID: int64(len(s.editions) + 1), DataSource: dataSource, IdentifierID: id.ID}
	s.editions[id.ID] = e
	return e, nil
}

func (s *memStore) SaveEdition(_ context.Context, e *model.Edition) error {
	s.editions[e.IdentifierID] = e
	return nil
}

func (s *memStore) SaveLicensePool(_ context.Context, p *model.LicensePool) error {
	s.pools[p.IdentifierID] = p
	return nil
}

func (s *memStore) CalculateWork(_ context.Context, pool *model.LicensePool) (*model.Work, error) {
	if s.noWork[pool.IdentifierID] {
		return nil, nil
	}
	return &model.Work{ID: pool.IdentifierID * 100}, nil
}

func (s *memStore) SetPresentationReady(_ context.Context, workID int64) error {
	s.ready[workID] = true
	return nil
}

// funcProcessor records every item it is asked to process.
type funcProcessor[T Item] struct {
	fn    func(item T) Result[T]
	calls []int64
}

func (p *funcProcessor[T]) ProcessItem(_ context.Context, item T) (Result[T], error) {
	p.calls = append(p.calls, item.PrimaryKey())
	return p.fn(item), nil
}

func succeedAll[T Item]() *funcProcessor[T] {
	return &funcProcessor[T]{fn: func(item T) Result[T] { return Succeeded(item) }}
}

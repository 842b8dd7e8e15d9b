package coverage

import (
	"context"

	"github.com/lepinkainen/folio/internal/model"
)

// WorkStore is the part of the catalog a WorkProvider needs.
type WorkStore interface {
	RecordStore
	Repository

	WorksMissingCoverage(ctx context.Context, q MissingCoverage) (Query[*model.Work], error)
	WorkCoverageRecord(ctx context.Context, workID int64, operation string) (*Record, error)
}

// WorkProvider covers works. Work coverage is keyed by operation alone.
type WorkProvider struct {
	*Engine[*model.Work]

	store WorkStore
}

// NewWorkProvider binds an engine to works.
func NewWorkProvider(store WorkStore, settings Settings, processor Processor[*model.Work]) *WorkProvider {
	p := &WorkProvider{store: store}
	p.Engine = NewEngine(settings, store, p, processor)
	return p
}

func (p *WorkProvider) ItemsThatNeedCoverage(ctx context.Context, subset []*model.Work, countAsCovered StatusSet) (Query[*model.Work], error) {
	q := MissingCoverage{
		Operation:      p.Operation(),
		CountAsCovered: countAsCovered,
		CutoffTime:     p.CutoffTime(),
	}
	for _, w := range subset {
		q.Subset = append(q.Subset, w.ID)
	}
	return p.store.WorksMissingCoverage(ctx, q)
}

func (p *WorkProvider) AddCoverageRecordFor(ctx context.Context, item *model.Work) (*Record, error) {
	rec, _, err := p.store.AddWorkCoverageRecord(ctx, Record{
		WorkID:    item.ID,
		Operation: p.Operation(),
		Status:    StatusSuccess,
	})
	return rec, err
}

func (p *WorkProvider) RecordFailureAsCoverageRecord(ctx context.Context, f *Failure[*model.Work]) (*Record, error) {
	return f.ToWorkCoverageRecord(ctx, p.store, p.Operation())
}

func (p *WorkProvider) FailureForIgnoredItem(item *model.Work) *Failure[*model.Work] {
	return TransientFailure(item, msgIgnoredWork, "")
}

func (p *WorkProvider) ExistingRecord(ctx context.Context, item *model.Work) (*Record, error) {
	return p.store.WorkCoverageRecord(ctx, item.ID, p.Operation())
}

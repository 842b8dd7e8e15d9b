package coverage

import (
	"context"
	"fmt"

	"github.com/lepinkainen/folio/internal/model"
)

// BibliographicBatchSize is the default batch size for bibliographic
// providers, which usually make one remote call per item.
const BibliographicBatchSize = 10

// BibliographicProvider fills in bibliographic data for every identifier of
// a data source's primary identifier type, and marks the resulting works
// presentation ready.
type BibliographicProvider struct {
	*IdentifierProvider

	api Processor[*model.Identifier]
}

// NewBibliographicProvider wires api, the vendor-specific processing step,
// behind a provider named "<source> Bibliographic Monitor". Zero fields in
// settings get bibliographic defaults.
func NewBibliographicProvider(store IdentifierStore, dataSource string, settings Settings, api Processor[*model.Identifier]) (*BibliographicProvider, error) {
	ds, err := model.LookupDataSource(dataSource)
	if err != nil {
		return nil, err
	}
	if settings.ServiceName == "" {
		settings.ServiceName = fmt.Sprintf("%s Bibliographic Monitor", ds.Name)
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = BibliographicBatchSize
	}

	b := &BibliographicProvider{api: api}
	inner, err := NewIdentifierProvider(store, settings, []string{ds.PrimaryIdentifierType}, ds.Name, b)
	if err != nil {
		return nil, err
	}
	inner.CanCreateLicensePools = true
	b.IdentifierProvider = inner
	return b, nil
}

// ProcessItem hands id to the vendor processing step.
func (b *BibliographicProvider) ProcessItem(ctx context.Context, id *model.Identifier) (Result[*model.Identifier], error) {
	return b.api.ProcessItem(ctx, id)
}

// ProcessBatch processes each identifier and marks the work of every
// success presentation ready. If that fails, the failure replaces the
// success.
func (b *BibliographicProvider) ProcessBatch(ctx context.Context, batch []*model.Identifier) ([]Result[*model.Identifier], error) {
	results := make([]Result[*model.Identifier], 0, len(batch))
	for _, id := range batch {
		result, err := b.ProcessItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", id, err)
		}
		if result.IsZero() {
			continue
		}
		if _, failed := result.Failure(); !failed {
			f, err := b.HandleSuccess(ctx, id)
			if err != nil {
				return nil, err
			}
			if f != nil {
				result = Failed(f)
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// HandleSuccess runs after a successful ProcessItem.
func (b *BibliographicProvider) HandleSuccess(ctx context.Context, id *model.Identifier) (*Failure[*model.Identifier], error) {
	return b.SetPresentationReady(ctx, id)
}

// FinalizeBatch forwards to the vendor step when it needs a batch hook.
func (b *BibliographicProvider) FinalizeBatch(ctx context.Context) error {
	if f, ok := b.api.(BatchFinalizer); ok {
		return f.FinalizeBatch(ctx)
	}
	return nil
}

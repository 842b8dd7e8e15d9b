package overdrive

import (
	"context"
	"fmt"

	"github.com/lepinkainen/folio/internal/coverage"
	"github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/model"
)

// BatchSize is small since every identifier costs one API call.
const BatchSize = 10

// MetadataLookuper is the part of the API the coverage provider needs.
type MetadataLookuper interface {
	MetadataLookup(ctx context.Context, overdriveID string) (*Product, error)
}

// Processor fills in bibliographic data for Overdrive identifiers.
type Processor struct {
	api      MetadataLookuper
	provider *coverage.BibliographicProvider
}

// NewCoverageProvider builds the Overdrive bibliographic coverage provider.
func NewCoverageProvider(store coverage.IdentifierStore, api MetadataLookuper, settings coverage.Settings) (*coverage.BibliographicProvider, error) {
	if settings.BatchSize <= 0 {
		settings.BatchSize = BatchSize
	}
	p := &Processor{api: api}
	provider, err := coverage.NewBibliographicProvider(store, model.DataSourceOverdrive, settings, p)
	if err != nil {
		return nil, err
	}
	p.provider = provider
	return provider, nil
}

func (p *Processor) ProcessItem(ctx context.Context, id *model.Identifier) (coverage.Result[*model.Identifier], error) {
	product, err := p.api.MetadataLookup(ctx, id.Value)
	if err != nil {
		if errors.IsStopProcessingError(err) {
			return coverage.Result[*model.Identifier]{}, err
		}
		return coverage.Failed(coverage.NewFailure(id, err.Error(), model.DataSourceOverdrive, errors.IsTransient(err))), nil
	}

	switch product.ErrorCode {
	case ErrorCodeNotFound:
		return coverage.Failed(coverage.PersistentFailure(id,
			fmt.Sprintf("ID not recognized by Overdrive: %s", id.Value), model.DataSourceOverdrive)), nil
	case ErrorCodeInvalidGUID:
		return coverage.Failed(coverage.PersistentFailure(id,
			fmt.Sprintf("Invalid Overdrive ID: %s", id.Value), model.DataSourceOverdrive)), nil
	}

	md := ToMetadata(product)
	if md == nil {
		return coverage.Failed(coverage.TransientFailure(id,
			fmt.Sprintf("Could not extract metadata from Overdrive data for %s", id.Value), model.DataSourceOverdrive)), nil
	}
	return p.provider.SetMetadata(ctx, id, md)
}

package oneclick

import (
	"context"
	"fmt"

	"github.com/lepinkainen/folio/internal/coverage"
	"github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/model"
)

// BatchSize for OneClick coverage.
const BatchSize = 25

// MetadataLookuper is the part of the API the coverage provider needs.
type MetadataLookuper interface {
	MetadataByISBN(ctx context.Context, isbn string) (*Media, error)
}

// Processor fills in bibliographic data for OneClick identifiers.
type Processor struct {
	api      MetadataLookuper
	provider *coverage.BibliographicProvider
}

// NewCoverageProvider builds the OneClick bibliographic coverage provider.
func NewCoverageProvider(store coverage.IdentifierStore, api MetadataLookuper, settings coverage.Settings) (*coverage.BibliographicProvider, error) {
	if settings.BatchSize <= 0 {
		settings.BatchSize = BatchSize
	}
	p := &Processor{api: api}
	provider, err := coverage.NewBibliographicProvider(store, model.DataSourceOneClick, settings, p)
	if err != nil {
		return nil, err
	}
	p.provider = provider
	return provider, nil
}

// ProcessItem looks the identifier up by ISBN. Every problem talking to
// OneClick is treated as transient, since OneClick reports bad input and
// server trouble the same way. Rejected credentials stop the sweep.
func (p *Processor) ProcessItem(ctx context.Context, id *model.Identifier) (coverage.Result[*model.Identifier], error) {
	media, err := p.api.MetadataByISBN(ctx, id.Value)
	if err != nil {
		if errors.IsStopProcessingError(err) {
			return coverage.Result[*model.Identifier]{}, err
		}
		return p.transient(id, err.Error()), nil
	}
	if media == nil {
		return p.transient(id, fmt.Sprintf("Cannot find OneClick metadata for %s", id)), nil
	}

	md := ToMetadata(media)
	if md == nil {
		return p.transient(id, fmt.Sprintf("Could not extract metadata from OneClick data for %s", id)), nil
	}

	result, err := p.provider.SetMetadata(ctx, id, md)
	if err != nil {
		return result, err
	}
	if _, failed := result.Failure(); failed {
		return result, nil
	}
	f, err := p.provider.HandleSuccess(ctx, id)
	if err != nil {
		return coverage.Result[*model.Identifier]{}, err
	}
	if f != nil {
		return coverage.Failed(f), nil
	}
	return result, nil
}

func (p *Processor) transient(id *model.Identifier, msg string) coverage.Result[*model.Identifier] {
	return coverage.Failed(coverage.TransientFailure(id, msg, model.DataSourceOneClick))
}

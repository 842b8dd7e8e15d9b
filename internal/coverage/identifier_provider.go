package coverage

import (
	"context"
	"fmt"
	"time"

	"github.com/lepinkainen/folio/internal/metadata"
	"github.com/lepinkainen/folio/internal/model"
)

// Messages recorded for the failures the provider helpers produce.
const (
	msgNoLicensePool     = "No license pool available"
	msgNoWork            = "Work could not be calculated"
	msgNoData            = "Received neither metadata nor circulation data from input source"
	msgNoMetadata        = "Did not receive metadata from input source"
	msgIgnoredIdentifier = "Was ignored by CoverageProvider."
	msgIgnoredWork       = "Was ignored by WorkCoverageProvider."
)

// MissingCoverage parameterizes the repository query for items lacking
// coverage.
type MissingCoverage struct {
	IdentifierTypes []string
	DataSource      string
	Operation       string
	CountAsCovered  StatusSet
	CutoffTime      time.Time
	// Subset restricts the query to these primary keys when non-empty.
	Subset []int64
}

// IdentifierStore is the part of the catalog an IdentifierProvider needs.
type IdentifierStore interface {
	RecordStore
	Repository

	IdentifiersMissingCoverage(ctx context.Context, q MissingCoverage) (Query[*model.Identifier], error)
	CoverageRecord(ctx context.Context, identifierID int64, dataSource, operation string) (*Record, error)

	// LicensePool returns nil without error when the identifier has none.
	LicensePool(ctx context.Context, identifierID int64) (*model.LicensePool, error)
	CreateLicensePool(ctx context.Context, dataSource string, id *model.Identifier) (*model.LicensePool, error)
	// Edition looks up or creates the edition dataSource has for id.
	Edition(ctx context.Context, dataSource string, id *model.Identifier) (*model.Edition, error)
	SaveEdition(ctx context.Context, e *model.Edition) error
	SaveLicensePool(ctx context.Context, p *model.LicensePool) error
	// CalculateWork finds or builds the work for a pool. It returns nil
	// without error when no work can be built yet.
	CalculateWork(ctx context.Context, pool *model.LicensePool) (*model.Work, error)
	SetPresentationReady(ctx context.Context, workID int64) error
}

// IdentifierProvider covers identifiers of some input types against an
// output data source.
type IdentifierProvider struct {
	*Engine[*model.Identifier]

	store      IdentifierStore
	inputTypes []string
	dataSource string

	// CanCreateLicensePools allows the provider to create a license pool for
	// an identifier that has none. Only sources that also sell licenses set it.
	CanCreateLicensePools bool

	MetadataPolicy    metadata.ReplacementPolicy
	CirculationPolicy metadata.ReplacementPolicy
}

// NewIdentifierProvider binds an engine to identifiers of inputTypes (all
// types when empty) and records coverage under dataSource.
func NewIdentifierProvider(store IdentifierStore, settings Settings, inputTypes []string, dataSource string, processor Processor[*model.Identifier]) (*IdentifierProvider, error) {
	if dataSource == "" {
		return nil, ErrNoDataSource
	}
	if _, err := model.LookupDataSource(dataSource); err != nil {
		return nil, err
	}
	p := &IdentifierProvider{
		store:             store,
		inputTypes:        inputTypes,
		dataSource:        dataSource,
		MetadataPolicy:    metadata.FromMetadataSource(),
		CirculationPolicy: metadata.FromLicenseSource(),
	}
	p.Engine = NewEngine(settings, store, p, processor)
	return p, nil
}

// DataSource is the output data source coverage is recorded under.
func (p *IdentifierProvider) DataSource() string { return p.dataSource }

// InputTypes are the identifier types the provider selects.
func (p *IdentifierProvider) InputTypes() []string { return p.inputTypes }

func (p *IdentifierProvider) ItemsThatNeedCoverage(ctx context.Context, subset []*model.Identifier, countAsCovered StatusSet) (Query[*model.Identifier], error) {
	q := MissingCoverage{
		IdentifierTypes: p.inputTypes,
		DataSource:      p.dataSource,
		Operation:       p.Operation(),
		CountAsCovered:  countAsCovered,
		CutoffTime:      p.CutoffTime(),
	}
	for _, id := range subset {
		q.Subset = append(q.Subset, id.ID)
	}
	return p.store.IdentifiersMissingCoverage(ctx, q)
}

func (p *IdentifierProvider) AddCoverageRecordFor(ctx context.Context, item *model.Identifier) (*Record, error) {
	rec, _, err := p.store.AddCoverageRecord(ctx, Record{
		IdentifierID: item.ID,
		DataSource:   p.dataSource,
		Operation:    p.Operation(),
		Status:       StatusSuccess,
	})
	return rec, err
}

func (p *IdentifierProvider) RecordFailureAsCoverageRecord(ctx context.Context, f *Failure[*model.Identifier]) (*Record, error) {
	return f.ToCoverageRecord(ctx, p.store, p.Operation())
}

func (p *IdentifierProvider) FailureForIgnoredItem(item *model.Identifier) *Failure[*model.Identifier] {
	return TransientFailure(item, msgIgnoredIdentifier, p.dataSource)
}

func (p *IdentifierProvider) ExistingRecord(ctx context.Context, item *model.Identifier) (*Record, error) {
	return p.store.CoverageRecord(ctx, item.ID, p.dataSource, p.Operation())
}

func (p *IdentifierProvider) fail(id *model.Identifier, msg string) *Failure[*model.Identifier] {
	return TransientFailure(id, msg, p.dataSource)
}

// LicensePool finds the pool for id, creating one when the provider is
// allowed to. It returns nil when there is none.
func (p *IdentifierProvider) LicensePool(ctx context.Context, id *model.Identifier) (*model.LicensePool, error) {
	pool, err := p.store.LicensePool(ctx, id.ID)
	if err != nil {
		return nil, fmt.Errorf("looking up license pool for %s: %w", id, err)
	}
	if pool != nil || !p.CanCreateLicensePools {
		return pool, nil
	}
	pool, err = p.store.CreateLicensePool(ctx, p.dataSource, id)
	if err != nil {
		return nil, fmt.Errorf("creating license pool for %s: %w", id, err)
	}
	return pool, nil
}

// Edition finds or creates the edition the pool's data source has for id.
func (p *IdentifierProvider) Edition(ctx context.Context, id *model.Identifier) (*model.Edition, *Failure[*model.Identifier], error) {
	pool, err := p.LicensePool(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if pool == nil {
		return nil, p.fail(id, msgNoLicensePool), nil
	}
	edition, err := p.store.Edition(ctx, pool.DataSource, id)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up edition for %s: %w", id, err)
	}
	return edition, nil, nil
}

// Work finds or calculates the work id belongs to.
func (p *IdentifierProvider) Work(ctx context.Context, id *model.Identifier) (*model.Work, *Failure[*model.Identifier], error) {
	pool, err := p.LicensePool(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if pool == nil {
		return nil, p.fail(id, msgNoLicensePool), nil
	}
	work, err := p.store.CalculateWork(ctx, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("calculating work for %s: %w", id, err)
	}
	if work == nil {
		return nil, p.fail(id, msgNoWork), nil
	}
	return work, nil, nil
}

// SetMetadata applies md to id's edition and makes sure a work exists.
func (p *IdentifierProvider) SetMetadata(ctx context.Context, id *model.Identifier, md *metadata.Metadata) (Result[*model.Identifier], error) {
	return p.SetMetadataAndCirculationData(ctx, id, md, nil)
}

// SetMetadataAndCirculationData applies md to the edition, then circ to the
// license pool, then calculates the work. The first stage that fails ends
// the attempt.
func (p *IdentifierProvider) SetMetadataAndCirculationData(ctx context.Context, id *model.Identifier, md *metadata.Metadata, circ *metadata.CirculationData) (Result[*model.Identifier], error) {
	if md == nil && circ == nil {
		return Failed(p.fail(id, msgNoData)), nil
	}

	if md != nil {
		if f, err := p.setMetadata(ctx, id, md); err != nil || f != nil {
			return failedOrErr(f, err)
		}
	}
	if circ != nil {
		if f, err := p.setCirculationData(ctx, id, circ); err != nil || f != nil {
			return failedOrErr(f, err)
		}
	}

	if _, f, err := p.Work(ctx, id); err != nil || f != nil {
		return failedOrErr(f, err)
	}
	return Succeeded(id), nil
}

func failedOrErr[T Item](f *Failure[T], err error) (Result[T], error) {
	if err != nil {
		return Result[T]{}, err
	}
	return Failed(f), nil
}

func (p *IdentifierProvider) setMetadata(ctx context.Context, id *model.Identifier, md *metadata.Metadata) (*Failure[*model.Identifier], error) {
	edition, f, err := p.Edition(ctx, id)
	if err != nil || f != nil {
		return f, err
	}
	if md == nil {
		return p.fail(id, msgNoMetadata), nil
	}
	if err := md.Apply(edition, p.MetadataPolicy); err != nil {
		p.log.Warn("Error applying metadata to edition", "edition", edition.ID, "error", err)
		return p.fail(id, err.Error()), nil
	}
	if err := p.store.SaveEdition(ctx, edition); err != nil {
		return nil, fmt.Errorf("saving edition %d: %w", edition.ID, err)
	}
	return nil, nil
}

func (p *IdentifierProvider) setCirculationData(ctx context.Context, id *model.Identifier, circ *metadata.CirculationData) (*Failure[*model.Identifier], error) {
	pool, err := p.LicensePool(ctx, id)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return p.fail(id, msgNoLicensePool), nil
	}
	if err := circ.Apply(pool, p.CirculationPolicy); err != nil {
		p.log.Warn("Error applying circulation data to pool", "pool", pool.ID, "error", err)
		return p.fail(id, err.Error()), nil
	}
	if err := p.store.SaveLicensePool(ctx, pool); err != nil {
		return nil, fmt.Errorf("saving license pool %d: %w", pool.ID, err)
	}
	return nil, nil
}

// SetPresentationReady marks id's work ready to show to patrons.
func (p *IdentifierProvider) SetPresentationReady(ctx context.Context, id *model.Identifier) (*Failure[*model.Identifier], error) {
	work, f, err := p.Work(ctx, id)
	if err != nil || f != nil {
		return f, err
	}
	if err := p.store.SetPresentationReady(ctx, work.ID); err != nil {
		return nil, fmt.Errorf("setting work %d presentation ready: %w", work.ID, err)
	}
	p.log.Debug("Work is presentation ready", "work", work.ID, "identifier", id.String())
	return nil, nil
}

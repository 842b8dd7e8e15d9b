package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lepinkainen/folio/internal/coverage"
	"github.com/lepinkainen/folio/internal/model"
)

// Identifier looks up an identifier, creating it when create is set. A
// missing identifier without create is ErrNotFound.
func (s *Store) Identifier(ctx context.Context, idType, value string, create bool) (*model.Identifier, error) {
	id := &model.Identifier{Type: idType, Value: value}
	err := s.reader().QueryRowContext(ctx,
		"SELECT id FROM identifiers WHERE type = ? AND identifier = ?", idType, value,
	).Scan(&id.ID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("looking up identifier %s: %w", id, err)
	}
	if !create {
		return nil, ErrNotFound
	}

	w, err := s.writer()
	if err != nil {
		return nil, err
	}
	res, err := w.ExecContext(ctx, "INSERT INTO identifiers (type, identifier) VALUES (?, ?)", idType, value)
	if err != nil {
		return nil, fmt.Errorf("creating identifier %s: %w", id, err)
	}
	if id.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return id, nil
}

// IdentifierByID loads an identifier by row id.
func (s *Store) IdentifierByID(ctx context.Context, id int64) (*model.Identifier, error) {
	ident := &model.Identifier{ID: id}
	err := s.reader().QueryRowContext(ctx,
		"SELECT type, identifier FROM identifiers WHERE id = ?", id,
	).Scan(&ident.Type, &ident.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ident, nil
}

// missingQuery is a lazily evaluated query over items lacking coverage,
// ordered by primary key.
type missingQuery[T coverage.Item] struct {
	s      *Store
	from   string
	where  []string
	args   []any
	cols   string
	scan   func(*sql.Rows) (T, error)
	loaded func(ctx context.Context, items []T) error
}

func (q *missingQuery[T]) body() string {
	b := " FROM " + q.from
	if len(q.where) > 0 {
		b += " WHERE " + strings.Join(q.where, " AND ")
	}
	return b
}

func (q *missingQuery[T]) Count(ctx context.Context) (int, error) {
	var n int
	if err := q.s.reader().QueryRowContext(ctx, "SELECT COUNT(*)"+q.body(), q.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting items missing coverage: %w", err)
	}
	return n, nil
}

func (q *missingQuery[T]) Page(ctx context.Context, offset, limit int) ([]T, error) {
	return q.fetch(ctx, " LIMIT ? OFFSET ?", limit, offset)
}

func (q *missingQuery[T]) All(ctx context.Context) ([]T, error) {
	return q.fetch(ctx, "")
}

func (q *missingQuery[T]) fetch(ctx context.Context, suffix string, extra ...any) ([]T, error) {
	query := "SELECT " + q.cols + q.body() + " ORDER BY 1" + suffix
	rows, err := q.s.reader().QueryContext(ctx, query, append(append([]any{}, q.args...), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("finding items missing coverage: %w", err)
	}
	var items []T
	for rows.Next() {
		item, err := q.scan(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if q.loaded != nil {
		if err := q.loaded(ctx, items); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// notCoveredClause matches a left-joined record alias c that is missing,
// has a status outside countAsCovered, or predates cutoff.
func notCoveredClause(countAsCovered coverage.StatusSet, cutoff time.Time) (string, []any) {
	if len(countAsCovered) == 0 {
		return "1 = 1", nil
	}
	clauses := []string{"c.id IS NULL"}
	var args []any
	statuses := make([]any, len(countAsCovered))
	for i, st := range countAsCovered {
		statuses[i] = string(st)
	}
	clauses = append(clauses, "c.status NOT IN ("+placeholders(len(statuses))+")")
	args = append(args, statuses...)
	if !cutoff.IsZero() {
		clauses = append(clauses, "c.timestamp < ?")
		args = append(args, formatTime(cutoff))
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// IdentifiersMissingCoverage finds identifiers of the requested types that
// lack coverage from the data source and operation.
func (s *Store) IdentifiersMissingCoverage(_ context.Context, m coverage.MissingCoverage) (coverage.Query[*model.Identifier], error) {
	q := &missingQuery[*model.Identifier]{
		s:    s,
		from: "identifiers i LEFT JOIN coverage_records c ON c.identifier_id = i.id AND c.data_source = ? AND c.operation = ?",
		args: []any{m.DataSource, m.Operation},
		cols: "i.id, i.type, i.identifier",
		scan: func(rows *sql.Rows) (*model.Identifier, error) {
			id := &model.Identifier{}
			return id, rows.Scan(&id.ID, &id.Type, &id.Value)
		},
	}
	if len(m.IdentifierTypes) > 0 {
		q.where = append(q.where, "i.type IN ("+placeholders(len(m.IdentifierTypes))+")")
		q.args = append(q.args, stringArgs(m.IdentifierTypes)...)
	}
	clause, args := notCoveredClause(m.CountAsCovered, m.CutoffTime)
	q.where = append(q.where, clause)
	q.args = append(q.args, args...)
	if len(m.Subset) > 0 {
		q.where = append(q.where, "i.id IN ("+placeholders(len(m.Subset))+")")
		q.args = append(q.args, int64Args(m.Subset)...)
	}
	return q, nil
}

// WorksMissingCoverage finds works lacking coverage for the operation.
func (s *Store) WorksMissingCoverage(_ context.Context, m coverage.MissingCoverage) (coverage.Query[*model.Work], error) {
	q := &missingQuery[*model.Work]{
		s:    s,
		from: "works w LEFT JOIN work_coverage_records c ON c.work_id = w.id AND c.operation = ?",
		args: []any{m.Operation},
		cols: workColumns,
		scan: func(rows *sql.Rows) (*model.Work, error) { return scanWork(rows) },
		loaded: func(ctx context.Context, works []*model.Work) error {
			return s.loadWorkGenres(ctx, works)
		},
	}
	clause, args := notCoveredClause(m.CountAsCovered, m.CutoffTime)
	q.where = append(q.where, clause)
	q.args = append(q.args, args...)
	if len(m.Subset) > 0 {
		q.where = append(q.where, "w.id IN ("+placeholders(len(m.Subset))+")")
		q.args = append(q.args, int64Args(m.Subset)...)
	}
	return q, nil
}

// AddCoverageRecord stores r as the one record for its identifier, data
// source and operation, overwriting any previous outcome.
func (s *Store) AddCoverageRecord(ctx context.Context, r coverage.Record) (*coverage.Record, bool, error) {
	return s.upsertRecord(ctx, "coverage_records",
		"identifier_id = ? AND data_source = ? AND operation = ?",
		[]any{r.IdentifierID, r.DataSource, r.Operation},
		"identifier_id, data_source, operation", r)
}

// AddWorkCoverageRecord stores r as the one record for its work and
// operation.
func (s *Store) AddWorkCoverageRecord(ctx context.Context, r coverage.Record) (*coverage.Record, bool, error) {
	return s.upsertRecord(ctx, "work_coverage_records",
		"work_id = ? AND operation = ?",
		[]any{r.WorkID, r.Operation},
		"work_id, operation", r)
}

func (s *Store) upsertRecord(ctx context.Context, table, key string, keyArgs []any, keyCols string, r coverage.Record) (*coverage.Record, bool, error) {
	w, err := s.writer()
	if err != nil {
		return nil, false, err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	r.Timestamp = r.Timestamp.UTC()

	err = w.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE "+key, keyArgs...).Scan(&r.ID)
	switch {
	case err == nil:
		_, err = w.ExecContext(ctx,
			"UPDATE "+table+" SET status = ?, exception = ?, timestamp = ? WHERE id = ?",
			string(r.Status), r.Exception, formatTime(r.Timestamp), r.ID)
		if err != nil {
			return nil, false, fmt.Errorf("updating coverage record: %w", err)
		}
		return &r, false, nil
	case errors.Is(err, sql.ErrNoRows):
		args := append(append([]any{}, keyArgs...), string(r.Status), r.Exception, formatTime(r.Timestamp))
		res, err := w.ExecContext(ctx,
			"INSERT INTO "+table+" ("+keyCols+", status, exception, timestamp) VALUES ("+placeholders(len(args))+")",
			args...)
		if err != nil {
			return nil, false, fmt.Errorf("inserting coverage record: %w", err)
		}
		if r.ID, err = res.LastInsertId(); err != nil {
			return nil, false, err
		}
		return &r, true, nil
	default:
		return nil, false, fmt.Errorf("looking up coverage record: %w", err)
	}
}

// CoverageRecord returns the identifier's record, or nil when there is none.
func (s *Store) CoverageRecord(ctx context.Context, identifierID int64, dataSource, operation string) (*coverage.Record, error) {
	r := &coverage.Record{IdentifierID: identifierID, DataSource: dataSource, Operation: operation}
	var status, ts string
	err := s.reader().QueryRowContext(ctx,
		"SELECT id, status, exception, timestamp FROM coverage_records WHERE identifier_id = ? AND data_source = ? AND operation = ?",
		identifierID, dataSource, operation,
	).Scan(&r.ID, &status, &r.Exception, &ts)
	return finishRecord(r, status, ts, err)
}

// WorkCoverageRecord returns the work's record, or nil when there is none.
func (s *Store) WorkCoverageRecord(ctx context.Context, workID int64, operation string) (*coverage.Record, error) {
	r := &coverage.Record{WorkID: workID, Operation: operation}
	var status, ts string
	err := s.reader().QueryRowContext(ctx,
		"SELECT id, status, exception, timestamp FROM work_coverage_records WHERE work_id = ? AND operation = ?",
		workID, operation,
	).Scan(&r.ID, &status, &r.Exception, &ts)
	return finishRecord(r, status, ts, err)
}

func finishRecord(r *coverage.Record, status, ts string, err error) (*coverage.Record, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up coverage record: %w", err)
	}
	r.Status = coverage.Status(status)
	if r.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	return r, nil
}

// StatusCounts maps each coverage status to the number of records with it.
type StatusCounts map[coverage.Status]int

// CoverageStatusCounts tallies identifier coverage records by status.
func (s *Store) CoverageStatusCounts(ctx context.Context, dataSource, operation string) (StatusCounts, error) {
	return s.statusCounts(ctx,
		"SELECT status, COUNT(*) FROM coverage_records WHERE data_source = ? AND operation = ? GROUP BY status",
		dataSource, operation)
}

// WorkCoverageStatusCounts tallies work coverage records by status.
func (s *Store) WorkCoverageStatusCounts(ctx context.Context, operation string) (StatusCounts, error) {
	return s.statusCounts(ctx,
		"SELECT status, COUNT(*) FROM work_coverage_records WHERE operation = ? GROUP BY status",
		operation)
}

func (s *Store) statusCounts(ctx context.Context, query string, args ...any) (StatusCounts, error) {
	rows, err := s.reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting coverage records: %w", err)
	}
	defer rows.Close()

	counts := StatusCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[coverage.Status(status)] = n
	}
	return counts, rows.Err()
}

// Timestamp records when a service last finished a sweep.
type Timestamp struct {
	Service    string    `json:"service"`
	FinishedAt time.Time `json:"finished_at"`
	RunID      string    `json:"run_id"`
}

// StampTimestamp records that service finished a sweep.
func (s *Store) StampTimestamp(ctx context.Context, service string, finishedAt time.Time, runID string) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	_, err = w.ExecContext(ctx, `INSERT INTO timestamps (service, finished_at, run_id) VALUES (?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET finished_at = excluded.finished_at, run_id = excluded.run_id`,
		service, formatTime(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("stamping timestamp for %s: %w", service, err)
	}
	return nil
}

// Timestamp returns the last sweep of service, or nil if it never finished
// one.
func (s *Store) Timestamp(ctx context.Context, service string) (*Timestamp, error) {
	ts := &Timestamp{Service: service}
	var finished string
	err := s.reader().QueryRowContext(ctx,
		"SELECT finished_at, run_id FROM timestamps WHERE service = ?", service,
	).Scan(&finished, &ts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ts.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	return ts, nil
}

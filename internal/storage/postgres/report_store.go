package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// ReportStore implements storage.ReportStore using PostgreSQL. The full
// report body is stored as JSONB alongside the indexed request metadata.
type ReportStore struct {
	pool *Pool
}

// NewReportStore creates a new ReportStore.
func NewReportStore(pool *Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReportStore = (*ReportStore)(nil)

// Insert archives a report. Returns ErrDuplicateKey if report_id exists.
func (s *ReportStore) Insert(ctx context.Context, r *storage.ReportRecord) error {
	if r == nil || r.ReportID == "" || r.Report == nil {
		return storage.ErrInvalidInput
	}

	body, err := json.Marshal(r.Report)
	if err != nil {
		return fmt.Errorf("marshal report body: %w", err)
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO simulation_reports (
			report_id, source, config_digest, base_seed, initial_cash,
			iterations, trading_days, created_at, report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.pool.Exec(ctx, query,
		r.ReportID, r.Source, r.ConfigDigest, r.BaseSeed, r.InitialCash,
		r.Iterations, r.TradingDays, createdAt, body,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetByID retrieves a report by its ID. Returns ErrNotFound if not exists.
func (s *ReportStore) GetByID(ctx context.Context, reportID string) (*storage.ReportRecord, error) {
	query := `
		SELECT report_id, source, config_digest, base_seed, initial_cash,
		       iterations, trading_days, created_at, report
		FROM simulation_reports
		WHERE report_id = $1
	`

	r, err := scanReportRecord(s.pool.QueryRow(ctx, query, reportID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get report by id: %w", err)
	}
	return r, nil
}

// List retrieves up to limit reports, newest first. limit <= 0 means all.
func (s *ReportStore) List(ctx context.Context, limit int) ([]*storage.ReportRecord, error) {
	query := `
		SELECT report_id, source, config_digest, base_seed, initial_cash,
		       iterations, trading_days, created_at, report
		FROM simulation_reports
		ORDER BY created_at DESC, report_id ASC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []*storage.ReportRecord
	for rows.Next() {
		r, err := scanReportRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}
	return out, nil
}

// scanReportRecord scans one row, unmarshalling the JSONB report body.
func scanReportRecord(row pgx.Row) (*storage.ReportRecord, error) {
	var r storage.ReportRecord
	var body []byte

	err := row.Scan(
		&r.ReportID, &r.Source, &r.ConfigDigest, &r.BaseSeed, &r.InitialCash,
		&r.Iterations, &r.TradingDays, &r.CreatedAt, &body,
	)
	if err != nil {
		return nil, err
	}

	r.Report = &domain.SimulationReport{}
	if err := json.Unmarshal(body, r.Report); err != nil {
		return nil, fmt.Errorf("unmarshal report body: %w", err)
	}
	return &r, nil
}

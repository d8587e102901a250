package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

const schemaLockID int64 = 2025011501

// TransitionRepository keeps the status history observed by the poller.
type TransitionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTransitionRepository(db *sql.DB) *TransitionRepository {
	return &TransitionRepository{db: db, now: time.Now}
}

func (r *TransitionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Concurrent watchers may start at once.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS status_transitions (
	id BIGSERIAL PRIMARY KEY,
	report_id BIGINT NOT NULL,
	file_id BIGINT NOT NULL,
	category TEXT NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	to_status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	observed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_transitions_report ON status_transitions(report_id, observed_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// RecordTransitions stores one poll's transitions atomically.
func (r *TransitionRepository) RecordTransitions(ctx context.Context, transitions []domain.StatusTransition) error {
	if len(transitions) == 0 {
		return nil
	}
	observedAt := r.now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transitions tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, t := range transitions {
		_, err := tx.ExecContext(ctx, `
INSERT INTO status_transitions (report_id, file_id, category, from_status, to_status, error_message, observed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, t.ReportID, t.FileID, string(t.Category), string(t.From), string(t.To), t.Error, observedAt)
		if err != nil {
			return fmt.Errorf("insert status transition: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transitions tx: %w", err)
	}
	return nil
}

// ListTransitions returns a report's history, oldest first.
func (r *TransitionRepository) ListTransitions(ctx context.Context, reportID int64) ([]domain.RecordedTransition, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT report_id, file_id, category, from_status, to_status, error_message, observed_at
FROM status_transitions
WHERE report_id = $1
ORDER BY observed_at, id
`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list status transitions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RecordedTransition, 0)
	for rows.Next() {
		var (
			rec                domain.RecordedTransition
			category, from, to string
		)
		if err := rows.Scan(&rec.ReportID, &rec.FileID, &category, &from, &to, &rec.Error, &rec.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan status transition: %w", err)
		}
		rec.Category = domain.FileCategory(category)
		rec.From = domain.FileStatus(from)
		rec.To = domain.FileStatus(to)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status transitions: %w", err)
	}
	return out, nil
}

// LatestStatuses returns the most recent recorded status of each file.
func (r *TransitionRepository) LatestStatuses(ctx context.Context, reportID int64) (map[int64]domain.FileStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT ON (file_id) file_id, to_status
FROM status_transitions
WHERE report_id = $1
ORDER BY file_id, observed_at DESC, id DESC
`, reportID)
	if err != nil {
		return nil, fmt.Errorf("query latest statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]domain.FileStatus)
	for rows.Next() {
		var (
			fileID int64
			status string
		)
		if err := rows.Scan(&fileID, &status); err != nil {
			return nil, fmt.Errorf("scan latest status: %w", err)
		}
		out[fileID] = domain.FileStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest statuses: %w", err)
	}
	return out, nil
}

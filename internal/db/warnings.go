package db

import (
	"context"
	"database/sql"
	"time"
)

// Warning is a single non-fatal problem encountered while walking a scan's
// roots (spec.md §3 "Warning" entity, e.g. permission denied, read error).
type Warning struct {
	ScanID    string
	Path      string
	Code      string
	Message   string
	CreatedAt time.Time
}

// InsertWarning records a single warning. Used outside the batch path for
// warnings raised while setting up or tearing down a scan.
func InsertWarning(ctx context.Context, database *sql.DB, scanID, path, code, message string) error {
	_, err := database.ExecContext(ctx,
		`INSERT INTO warnings (scan_id, path, code, message, created_at) VALUES ($1, $2, $3, $4, $5)`,
		scanID, path, code, message, NowUTC().Format(time.RFC3339))
	return err
}

// InsertWarningsBatch records warnings accumulated by the aggregator since
// its last flush (spec.md §4.4 "Flush procedure" folds warnings into the
// same transaction as node and file rows).
func InsertWarningsBatch(ctx context.Context, tx *sql.Tx, warnings []Warning) error {
	if len(warnings) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO warnings (scan_id, path, code, message, created_at) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, w := range warnings {
		createdAt := w.CreatedAt
		if createdAt.IsZero() {
			createdAt = NowUTC()
		}
		if _, err := stmt.ExecContext(ctx, w.ScanID, w.Path, w.Code, w.Message, createdAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

// ListWarnings returns every warning recorded for a scan, oldest first.
func ListWarnings(ctx context.Context, database *sql.DB, scanID string) ([]Warning, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT scan_id, path, code, message, created_at FROM warnings WHERE scan_id = $1 ORDER BY id`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Warning
	for rows.Next() {
		var w Warning
		var createdAt string
		if err := rows.Scan(&w.ScanID, &w.Path, &w.Code, &w.Message, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, err
		}
		w.CreatedAt = parsed
		out = append(out, w)
	}
	return out, rows.Err()
}

// CountWarnings returns the number of warnings recorded for a scan so far.
func CountWarnings(ctx context.Context, database *sql.DB, scanID string) (int64, error) {
	var n int64
	err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM warnings WHERE scan_id = $1`, scanID).Scan(&n)
	return n, err
}

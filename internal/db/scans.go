package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// scanWriteRetryAttempts and scanWriteRetryBackoff bound how hard the
// scans-table writers below fight through SQLITE_BUSY before giving up;
// they race the aggregator's own periodic flush against the same database.
const (
	scanWriteRetryAttempts = 5
	scanWriteRetryBackoff  = 25 * time.Millisecond
)

// Status values for a scan's single-shot state machine (spec.md §4.5,
// "State machine of a scan"): running -> done | canceled | failed.
const (
	StatusRunning  = "running"
	StatusDone     = "done"
	StatusCanceled = "canceled"
	StatusFailed   = "failed"
)

// ScanOptions is the serialized form of a scan's request options, stored
// verbatim in the scans.options column (spec.md §6 "Scan creation request").
type ScanOptions struct {
	FollowSymlinks   bool     `json:"follow_symlinks"`
	IncludeHidden    bool     `json:"include_hidden"`
	MeasureLogical   bool     `json:"measure_logical"`
	MeasureAllocated bool     `json:"measure_allocated"`
	Excludes         []string `json:"excludes,omitempty"`
	MaxDepth         *int     `json:"max_depth,omitempty"`
	Concurrency      *int     `json:"concurrency,omitempty"`
}

// Scan is a single scan run: its roots, options, lifecycle status, and the
// aggregate totals accumulated by the engine (spec.md §3 "Scan" entity).
type Scan struct {
	ID                 string
	Status             string
	RootPaths          []string
	Options            ScanOptions
	StartedAt          time.Time
	FinishedAt         *time.Time
	TotalLogicalSize   *int64
	TotalAllocatedSize *int64
	DirCount           *int64
	FileCount          *int64
	WarningCount       *int64
}

// CreateScan inserts a new scan row in StatusRunning with the given id,
// root paths, and options, and returns it. The caller (HTTP layer) assigns
// the scan identifier before the engine is invoked (spec.md §6).
func CreateScan(ctx context.Context, database *sql.DB, id string, rootPaths []string, options ScanOptions) (*Scan, error) {
	rootPathsJSON, err := json.Marshal(rootPaths)
	if err != nil {
		return nil, err
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}
	startedAt := NowUTC()
	err = RetryOnBusy(ctx, scanWriteRetryAttempts, scanWriteRetryBackoff, func() error {
		_, err := database.ExecContext(ctx,
			`INSERT INTO scans (id, status, root_paths, options, started_at) VALUES ($1, $2, $3, $4, $5)`,
			id, StatusRunning, string(rootPathsJSON), string(optionsJSON), startedAt.Format(time.RFC3339))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Scan{ID: id, Status: StatusRunning, RootPaths: rootPaths, Options: options, StartedAt: startedAt}, nil
}

// GetScan returns the scan with the given id, or sql.ErrNoRows if not found.
func GetScan(ctx context.Context, database *sql.DB, id string) (*Scan, error) {
	row := database.QueryRowContext(ctx,
		`SELECT id, status, root_paths, options, started_at, finished_at,
		 total_logical_size, total_allocated_size, dir_count, file_count, warning_count
		 FROM scans WHERE id = $1`, id)
	return scanRow(row)
}

func scanRow(row *sql.Row) (*Scan, error) {
	var s Scan
	var rootPathsJSON, optionsJSON, startedAt string
	var finishedAt nullRFC3339Time
	var totalLogical, totalAllocated, dirCount, fileCount, warningCount sql.NullInt64
	if err := row.Scan(&s.ID, &s.Status, &rootPathsJSON, &optionsJSON, &startedAt, &finishedAt,
		&totalLogical, &totalAllocated, &dirCount, &fileCount, &warningCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rootPathsJSON), &s.RootPaths); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(optionsJSON), &s.Options); err != nil {
		return nil, err
	}
	parsedStart, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, err
	}
	s.StartedAt = parsedStart
	s.FinishedAt = finishedAt.Ptr()
	if totalLogical.Valid {
		s.TotalLogicalSize = &totalLogical.Int64
	}
	if totalAllocated.Valid {
		s.TotalAllocatedSize = &totalAllocated.Int64
	}
	if dirCount.Valid {
		s.DirCount = &dirCount.Int64
	}
	if fileCount.Valid {
		s.FileCount = &fileCount.Int64
	}
	if warningCount.Valid {
		s.WarningCount = &warningCount.Int64
	}
	return &s, nil
}

// ErrAlreadyTerminal is returned by Finish when the scan has already made
// its single-shot running -> terminal transition (spec.md §3 "A scan has
// at most one terminal-state transition").
var ErrAlreadyTerminal = errors.New("db: scan already has a terminal status")

// Finish transitions a scan from running to a terminal status (done,
// canceled, or failed) and writes finished_at plus the final aggregate
// totals. It is a no-op returning ErrAlreadyTerminal if the scan is not
// currently running, so cancellation and completion can race without
// double-writing the terminal state.
func Finish(ctx context.Context, database *sql.DB, scanID, status string, logicalSize, allocatedSize, dirCount, fileCount, warningCount int64) error {
	var rowsAffected int64
	err := RetryOnBusy(ctx, scanWriteRetryAttempts, scanWriteRetryBackoff, func() error {
		res, err := database.ExecContext(ctx,
			`UPDATE scans SET status = $1, finished_at = $2, total_logical_size = $3, total_allocated_size = $4,
			 dir_count = $5, file_count = $6, warning_count = $7 WHERE id = $8 AND status = $9`,
			status, NowUTC().Format(time.RFC3339), logicalSize, allocatedSize, dirCount, fileCount, warningCount,
			scanID, StatusRunning)
		if err != nil {
			return err
		}
		rowsAffected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlreadyTerminal
	}
	return nil
}

// UpdateRunningTotals overwrites a running scan's aggregate totals without
// touching status or finished_at, so live queries observe progress
// (spec.md §4.4 "Periodic tick ... unconditionally write a running-totals
// update"). Silently succeeds even if the scan has already finished; the
// aggregator may race the final flush against its own last periodic tick.
func UpdateRunningTotals(ctx context.Context, database *sql.DB, scanID string, logicalSize, allocatedSize, dirCount, fileCount, warningCount int64) error {
	_, err := database.ExecContext(ctx,
		`UPDATE scans SET total_logical_size = $1, total_allocated_size = $2, dir_count = $3,
		 file_count = $4, warning_count = $5 WHERE id = $6`,
		logicalSize, allocatedSize, dirCount, fileCount, warningCount, scanID)
	return err
}

// ListRecentScans returns the most recent scans (by started_at descending).
// limit <= 0 means no limit.
func ListRecentScans(ctx context.Context, database *sql.DB, limit int) ([]Scan, error) {
	q := `SELECT id, status, root_paths, options, started_at, finished_at,
	      total_logical_size, total_allocated_size, dir_count, file_count, warning_count
	      FROM scans ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := database.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var s Scan
		var rootPathsJSON, optionsJSON, startedAt string
		var finishedAt nullRFC3339Time
		var totalLogical, totalAllocated, dirCount, fileCount, warningCount sql.NullInt64
		if err := rows.Scan(&s.ID, &s.Status, &rootPathsJSON, &optionsJSON, &startedAt, &finishedAt,
			&totalLogical, &totalAllocated, &dirCount, &fileCount, &warningCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rootPathsJSON), &s.RootPaths); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(optionsJSON), &s.Options); err != nil {
			return nil, err
		}
		parsedStart, err := time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, err
		}
		s.StartedAt = parsedStart
		s.FinishedAt = finishedAt.Ptr()
		if totalLogical.Valid {
			s.TotalLogicalSize = &totalLogical.Int64
		}
		if totalAllocated.Valid {
			s.TotalAllocatedSize = &totalAllocated.Int64
		}
		if dirCount.Valid {
			s.DirCount = &dirCount.Int64
		}
		if fileCount.Valid {
			s.FileCount = &fileCount.Int64
		}
		if warningCount.Valid {
			s.WarningCount = &warningCount.Int64
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// NowUTC returns the current UTC time for use in queries.
func NowUTC() time.Time {
	return time.Now().UTC()
}

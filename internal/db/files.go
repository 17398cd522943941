package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// File is a single regular-file record within a scan (spec.md §3 "File" entity).
type File struct {
	ScanID        string
	Path          string
	ParentPath    *string
	LogicalSize   int64
	AllocatedSize int64
	MTime         *int64
	ATime         *int64
}

// fileCols is the column count bound per row in a files INSERT (5). The
// chunk size is VariableLimit/fileCols = 199 rows; scanner.batch_size does
// not affect it.
const fileCols = 5

// InsertFilesBatch inserts file rows in chunks sized to respect the store's
// bound-parameter limit. The caller supplies a transaction so this can be
// combined with InsertNodesBatch inside one commit (spec.md §4.4 "Flush
// procedure").
func InsertFilesBatch(ctx context.Context, tx *sql.Tx, files []File) error {
	if len(files) == 0 {
		return nil
	}
	chunkSize := maxInsertChunk(fileCols)
	for start := 0; start < len(files); start += chunkSize {
		end := start + chunkSize
		if end > len(files) {
			end = len(files)
		}
		if err := insertFilesChunk(ctx, tx, files[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertFilesChunk(ctx context.Context, tx *sql.Tx, files []File) error {
	placeholders := make([]string, len(files))
	args := make([]interface{}, 0, len(files)*fileCols)
	for i, f := range files {
		base := i * fileCols
		placeholders[i] = fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, f.ScanID, f.Path, f.ParentPath, f.LogicalSize, f.AllocatedSize)
	}
	// #nosec G202 -- placeholders built from len(files); all values passed as args
	query := `INSERT INTO files (scan_id, path, parent_path, logical_size, allocated_size)
		VALUES ` + strings.Join(placeholders, ", ")
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ListChildFiles returns the regular files directly within parentPath,
// ordered by allocated_size descending.
func ListChildFiles(ctx context.Context, database *sql.DB, scanID, parentPath string, limit int) ([]File, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT scan_id, path, parent_path, logical_size, allocated_size, mtime, atime
		 FROM files WHERE scan_id = $1 AND parent_path = $2 ORDER BY allocated_size DESC LIMIT $3`,
		scanID, parentPath, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFileRows(rows)
}

// TopFiles returns up to limit files in a scan ordered by allocated_size
// descending (spec.md §4.6 "top" endpoint, file half).
func TopFiles(ctx context.Context, database *sql.DB, scanID string, limit int) ([]File, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT scan_id, path, parent_path, logical_size, allocated_size, mtime, atime
		 FROM files WHERE scan_id = $1 ORDER BY allocated_size DESC LIMIT $2`,
		scanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFileRows(rows)
}

// SubtreeFiles returns every file in a scan whose path is within the
// half-open prefix range [prefix, prefix+sentinel), used by the tree and
// export endpoints.
func SubtreeFiles(ctx context.Context, database *sql.DB, scanID, prefix string, limit int) ([]File, error) {
	lo, hi := prefixRange(prefix)
	rows, err := database.QueryContext(ctx,
		`SELECT scan_id, path, parent_path, logical_size, allocated_size, mtime, atime
		 FROM files WHERE scan_id = $1 AND path >= $2 AND path < $3 ORDER BY path LIMIT $4`,
		scanID, lo, hi, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFileRows(rows)
}

// escapeChar is used to escape LIKE metacharacters in user-supplied
// substrings (spec.md §4.6 "Escape LIKE wildcards ... using a chosen
// escape character").
const escapeChar = `\`

// escapeLike escapes '%', '_', and the escape character itself so a
// user-supplied substring is matched literally inside a LIKE pattern.
func escapeLike(s string) string {
	r := strings.NewReplacer(escapeChar, escapeChar+escapeChar, "%", escapeChar+"%", "_", escapeChar+"_")
	return r.Replace(s)
}

// SearchFiles returns files within a scan whose path contains substr
// (case-sensitive, LIKE-escaped), ordered by path, capped at limit.
func SearchFiles(ctx context.Context, database *sql.DB, scanID, substr string, limit int) ([]File, error) {
	pattern := "%" + escapeLike(substr) + "%"
	rows, err := database.QueryContext(ctx,
		`SELECT scan_id, path, parent_path, logical_size, allocated_size, mtime, atime
		 FROM files WHERE scan_id = $1 AND path LIKE $2 ESCAPE '\' ORDER BY path LIMIT $3`,
		scanID, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFileRows(rows)
}

func scanFileRows(rows *sql.Rows) ([]File, error) {
	var out []File
	for rows.Next() {
		f, err := scanFileInto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFileInto(r rowScanner) (File, error) {
	var f File
	var parentPath sql.NullString
	var mtime, atime sql.NullInt64
	if err := r.Scan(&f.ScanID, &f.Path, &parentPath, &f.LogicalSize, &f.AllocatedSize, &mtime, &atime); err != nil {
		return File{}, err
	}
	if parentPath.Valid {
		f.ParentPath = &parentPath.String
	}
	if mtime.Valid {
		f.MTime = &mtime.Int64
	}
	if atime.Valid {
		f.ATime = &atime.Int64
	}
	return f, nil
}

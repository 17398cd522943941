package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Node is a directory's persisted subtree aggregate (spec.md §3 "Node" entity).
type Node struct {
	ScanID        string
	Path          string
	ParentPath    *string
	Depth         int
	IsDir         bool
	LogicalSize   int64
	AllocatedSize int64
	FileCount     int64
	DirCount      int64
	MTime         *int64
	ATime         *int64
}

// nodeCols is the column count bound per row in a nodes INSERT (9). The
// chunk size is VariableLimit/nodeCols = 111 rows; scanner.batch_size does
// not affect it.
const nodeCols = 9

// InsertNodesBatch inserts directory node rows in chunks sized to respect
// the store's bound-parameter limit (spec.md §4.4, "Flush procedure"). The
// caller supplies a transaction so this can be combined with InsertFilesBatch
// inside one commit.
func InsertNodesBatch(ctx context.Context, tx *sql.Tx, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	chunkSize := maxInsertChunk(nodeCols)
	for start := 0; start < len(nodes); start += chunkSize {
		end := start + chunkSize
		if end > len(nodes) {
			end = len(nodes)
		}
		if err := insertNodesChunk(ctx, tx, nodes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertNodesChunk(ctx context.Context, tx *sql.Tx, nodes []Node) error {
	placeholders := make([]string, len(nodes))
	args := make([]interface{}, 0, len(nodes)*nodeCols)
	for i, n := range nodes {
		base := i * nodeCols
		placeholders[i] = fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		args = append(args, n.ScanID, n.Path, n.ParentPath, n.Depth, boolToInt(n.IsDir),
			n.LogicalSize, n.AllocatedSize, n.FileCount, n.DirCount)
	}
	// #nosec G202 -- placeholders built from len(nodes); all values passed as args
	query := `INSERT INTO nodes (scan_id, path, parent_path, depth, is_dir, logical_size, allocated_size, file_count, dir_count)
		VALUES ` + strings.Join(placeholders, ", ")
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// maxInsertChunk returns the largest number of rows of colsPerRow columns
// that stays within VariableLimit, bounded below by 1 so a pathological
// config never produces a zero-size chunk (spec.md §9 "Variable-limit
// chunking is a recurring reimplementation hazard").
func maxInsertChunk(colsPerRow int) int {
	n := VariableLimit / colsPerRow
	if n < 1 {
		n = 1
	}
	return n
}

// GetNode returns the node for (scanID, path), or sql.ErrNoRows.
func GetNode(ctx context.Context, database *sql.DB, scanID, path string) (*Node, error) {
	row := database.QueryRowContext(ctx,
		`SELECT scan_id, path, parent_path, depth, is_dir, logical_size, allocated_size, file_count, dir_count, mtime, atime
		 FROM nodes WHERE scan_id = $1 AND path = $2`, scanID, path)
	return scanNodeRow(row)
}

func scanNodeRow(row *sql.Row) (*Node, error) {
	var n Node
	var isDir int
	var parentPath sql.NullString
	var mtime, atime sql.NullInt64
	if err := row.Scan(&n.ScanID, &n.Path, &parentPath, &n.Depth, &isDir, &n.LogicalSize, &n.AllocatedSize,
		&n.FileCount, &n.DirCount, &mtime, &atime); err != nil {
		return nil, err
	}
	n.IsDir = isDir != 0
	if parentPath.Valid {
		n.ParentPath = &parentPath.String
	}
	if mtime.Valid {
		n.MTime = &mtime.Int64
	}
	if atime.Valid {
		n.ATime = &atime.Int64
	}
	return &n, nil
}

// ListChildNodes returns the immediate child directory nodes of parentPath
// within a scan, ordered by allocated_size descending (used by the "list"
// and "tree" query endpoints).
func ListChildNodes(ctx context.Context, database *sql.DB, scanID, parentPath string, limit int) ([]Node, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT scan_id, path, parent_path, depth, is_dir, logical_size, allocated_size, file_count, dir_count, mtime, atime
		 FROM nodes WHERE scan_id = $1 AND parent_path = $2 ORDER BY allocated_size DESC LIMIT $3`,
		scanID, parentPath, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodeRows(rows)
}

// TopNodes returns up to limit directory nodes in a scan ordered by
// allocated_size descending (spec.md §4.6 "top" endpoint, dir half).
func TopNodes(ctx context.Context, database *sql.DB, scanID string, limit int) ([]Node, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT scan_id, path, parent_path, depth, is_dir, logical_size, allocated_size, file_count, dir_count, mtime, atime
		 FROM nodes WHERE scan_id = $1 AND is_dir = 1 ORDER BY allocated_size DESC LIMIT $2`,
		scanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodeRows(rows)
}

// SubtreeNodes returns every node in a scan whose path is within the
// half-open prefix range [prefix, prefix+sentinel), used to build the
// hierarchical tree response (spec.md §4.6 "half-open range on path").
func SubtreeNodes(ctx context.Context, database *sql.DB, scanID, prefix string, limit int) ([]Node, error) {
	lo, hi := prefixRange(prefix)
	rows, err := database.QueryContext(ctx,
		`SELECT scan_id, path, parent_path, depth, is_dir, logical_size, allocated_size, file_count, dir_count, mtime, atime
		 FROM nodes WHERE scan_id = $1 AND path >= $2 AND path < $3 ORDER BY depth, path LIMIT $4`,
		scanID, lo, hi, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodeRows(rows)
}

func scanNodeRows(rows *sql.Rows) ([]Node, error) {
	var out []Node
	for rows.Next() {
		var n Node
		var isDir int
		var parentPath sql.NullString
		var mtime, atime sql.NullInt64
		if err := rows.Scan(&n.ScanID, &n.Path, &parentPath, &n.Depth, &isDir, &n.LogicalSize, &n.AllocatedSize,
			&n.FileCount, &n.DirCount, &mtime, &atime); err != nil {
			return nil, err
		}
		n.IsDir = isDir != 0
		if parentPath.Valid {
			n.ParentPath = &parentPath.String
		}
		if mtime.Valid {
			n.MTime = &mtime.Int64
		}
		if atime.Valid {
			n.ATime = &atime.Int64
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountDescendants returns (fileCount, dirCount) beneath prefix by counting
// rows in files/nodes whose path falls in the half-open prefix range. Used
// as the fallback for the "roots" list variant when no aggregate row exists
// yet (spec.md §4.6).
func CountDescendants(ctx context.Context, database *sql.DB, scanID, prefix string) (fileCount, dirCount int64, err error) {
	lo, hi := prefixRange(prefix)
	err = database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE scan_id = $1 AND path >= $2 AND path < $3`,
		scanID, lo, hi).Scan(&fileCount)
	if err != nil {
		return 0, 0, err
	}
	err = database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE scan_id = $1 AND is_dir = 1 AND path >= $2 AND path < $3`,
		scanID, lo, hi).Scan(&dirCount)
	if err != nil {
		return 0, 0, err
	}
	return fileCount, dirCount, nil
}

// prefixRange returns the half-open [lo, hi) range for a subtree prefix
// query: lo is the prefix itself (trailing separators trimmed) so the row
// whose path exactly equals prefix is included, hi is lo with a trailing
// byte that sorts just after the path separator, so the range also
// matches everything beneath the prefix but nothing that merely shares it
// as a string (spec.md §4.6 "half-open range [prefix, prefix + sentinel]",
// prefix inclusive since the walker emits a NodeRecord for the root itself).
func prefixRange(prefix string) (lo, hi string) {
	lo = strings.TrimRight(prefix, "/")
	hi = lo + "0" // '0' (0x30) sorts just after '/' (0x2f)
	return lo, hi
}

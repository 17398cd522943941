package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Result caps from spec.md §4.6 ("Query endpoints"): each endpoint clamps
// its own result size independent of what the caller requests, so a single
// query can never force the store to materialize an unbounded result set.
const (
	TreeMaxLimit   = 5000
	TopMaxLimit    = 500
	ListMaxLimit   = 2000
	ExportMaxLimit = 25000

	// ListMaxOffset and ListMaxSpan bound pagination over the list endpoint
	// (spec.md §4.6 "reject offsets or offset+limit spans beyond a cap").
	ListMaxOffset = 100000
	ListMaxSpan   = 102000
)

// ErrInvalidOffset and ErrOffsetSpanTooLarge report the list endpoint's two
// pagination-abuse checks (spec.md §4.6).
var (
	ErrInvalidOffset      = errors.New("db: offset must be >= 0")
	ErrOffsetSpanTooLarge = errors.New("db: offset+limit exceeds the allowed span")
)

func clamp(requested, max int) int {
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}

// TreeEntry is one row of a tree response: either a directory node or a
// regular file, disambiguated by IsDir.
type TreeEntry struct {
	Path          string
	ParentPath    *string
	Depth         int
	IsDir         bool
	LogicalSize   int64
	AllocatedSize int64
	FileCount     int64
	DirCount      int64
}

// Tree returns every node and file beneath prefix (inclusive), capped at
// TreeMaxLimit total entries combined across both tables (spec.md §4.6
// "tree" endpoint).
func Tree(ctx context.Context, database *sql.DB, scanID, prefix string, limit int) ([]TreeEntry, error) {
	limit = clamp(limit, TreeMaxLimit)

	nodes, err := SubtreeNodes(ctx, database, scanID, prefix, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]TreeEntry, 0, len(nodes))
	for _, n := range nodes {
		entries = append(entries, TreeEntry{
			Path: n.Path, ParentPath: n.ParentPath, Depth: n.Depth, IsDir: true,
			LogicalSize: n.LogicalSize, AllocatedSize: n.AllocatedSize,
			FileCount: n.FileCount, DirCount: n.DirCount,
		})
	}
	if len(entries) >= limit {
		return entries, nil
	}

	files, err := SubtreeFiles(ctx, database, scanID, prefix, limit-len(entries))
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		entries = append(entries, TreeEntry{
			Path: f.Path, ParentPath: f.ParentPath, IsDir: false,
			LogicalSize: f.LogicalSize, AllocatedSize: f.AllocatedSize,
		})
	}
	return entries, nil
}

// TopResult is the combined response of the "top" endpoint: the largest
// directories and the largest files in a scan, each independently ranked
// and capped (spec.md §4.6 "top" endpoint).
type TopResult struct {
	Dirs  []Node
	Files []File
}

// Top returns the largest directories and files in a scan by allocated
// size, each list capped at TopMaxLimit.
func Top(ctx context.Context, database *sql.DB, scanID string, limit int) (*TopResult, error) {
	limit = clamp(limit, TopMaxLimit)
	dirs, err := TopNodes(ctx, database, scanID, limit)
	if err != nil {
		return nil, err
	}
	files, err := TopFiles(ctx, database, scanID, limit)
	if err != nil {
		return nil, err
	}
	return &TopResult{Dirs: dirs, Files: files}, nil
}

// ListEntry is one row of a directory listing response: the immediate
// children (both subdirectories and files) of a given path.
type ListEntry struct {
	Path          string
	IsDir         bool
	LogicalSize   int64
	AllocatedSize int64
	FileCount     int64
	DirCount      int64
}

// List returns the immediate children of parentPath (subdirectories first,
// then files, each ordered by allocated_size descending), honoring offset
// and limit with the caps from spec.md §4.6. If parentPath has no recorded
// node (e.g. "roots" variant over multiple scan roots with no single parent
// row), the caller should use CountDescendants instead.
func List(ctx context.Context, database *sql.DB, scanID, parentPath string, offset, limit int) ([]ListEntry, error) {
	if offset < 0 {
		return nil, ErrInvalidOffset
	}
	if offset > ListMaxOffset {
		return nil, ErrOffsetSpanTooLarge
	}
	limit = clamp(limit, ListMaxLimit)
	if offset+limit > ListMaxSpan {
		return nil, ErrOffsetSpanTooLarge
	}

	// Fetch offset+limit from each side since the combined order interleaves
	// dirs before files; trim to the requested page in memory. This is the
	// same bounded-materialization approach the tree endpoint uses.
	fetch := offset + limit
	dirs, err := ListChildNodes(ctx, database, scanID, parentPath, fetch)
	if err != nil {
		return nil, err
	}
	var entries []ListEntry
	for _, n := range dirs {
		entries = append(entries, ListEntry{
			Path: n.Path, IsDir: true, LogicalSize: n.LogicalSize, AllocatedSize: n.AllocatedSize,
			FileCount: n.FileCount, DirCount: n.DirCount,
		})
	}
	if len(entries) < fetch {
		files, err := ListChildFiles(ctx, database, scanID, parentPath, fetch-len(entries))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			entries = append(entries, ListEntry{Path: f.Path, IsDir: false, LogicalSize: f.LogicalSize, AllocatedSize: f.AllocatedSize})
		}
	}
	if offset >= len(entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end], nil
}

// Recent returns the most recently started scans, capped the same way the
// teacher's history views are (spec.md §4.6 "recent" wraps ListRecentScans).
func Recent(ctx context.Context, database *sql.DB, limit int) ([]Scan, error) {
	limit = clamp(limit, ListMaxLimit)
	return ListRecentScans(ctx, database, limit)
}

// Search returns files in a scan whose path contains substr, capped at
// ListMaxLimit (spec.md §4.6 "search" endpoint).
func Search(ctx context.Context, database *sql.DB, scanID, substr string, limit int) ([]File, error) {
	limit = clamp(limit, ListMaxLimit)
	return SearchFiles(ctx, database, scanID, substr, limit)
}

// ExportRow is one row of an export response, shaped so it serializes
// directly to either CSV or JSON without a secondary transform step.
type ExportRow struct {
	Path          string `json:"path" csv:"path"`
	IsDir         bool   `json:"is_dir" csv:"is_dir"`
	LogicalSize   int64  `json:"logical_size" csv:"logical_size"`
	AllocatedSize int64  `json:"allocated_size" csv:"allocated_size"`
}

// Export returns every node and file beneath prefix, capped at
// ExportMaxLimit (spec.md §5.5 "Supplemented feature: CSV/JSON export").
func Export(ctx context.Context, database *sql.DB, scanID, prefix string, limit int) ([]ExportRow, error) {
	limit = clamp(limit, ExportMaxLimit)

	nodes, err := SubtreeNodes(ctx, database, scanID, prefix, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]ExportRow, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, ExportRow{Path: n.Path, IsDir: true, LogicalSize: n.LogicalSize, AllocatedSize: n.AllocatedSize})
	}
	if len(rows) >= limit {
		return rows, nil
	}

	files, err := SubtreeFiles(ctx, database, scanID, prefix, limit-len(rows))
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		rows = append(rows, ExportRow{Path: f.Path, IsDir: false, LogicalSize: f.LogicalSize, AllocatedSize: f.AllocatedSize})
	}
	return rows, nil
}

// Statistics is the scan-level summary returned by the "statistics"
// endpoint: the scan's own totals plus its warning count (spec.md §4.6).
type Statistics struct {
	Scan         Scan
	WarningCount int64
}

// GetStatistics loads a scan's aggregate totals and warning count.
func GetStatistics(ctx context.Context, database *sql.DB, scanID string) (*Statistics, error) {
	scan, err := GetScan(ctx, database, scanID)
	if err != nil {
		return nil, err
	}
	count, err := CountWarnings(ctx, database, scanID)
	if err != nil {
		return nil, err
	}
	return &Statistics{Scan: *scan, WarningCount: count}, nil
}

// rootsFallback is used by the "list" endpoint's "roots" variant: when
// parentPath spans multiple scan roots and has no single node row, count
// descendants directly instead of looking up a nonexistent aggregate.
func rootsFallback(ctx context.Context, database *sql.DB, scanID, prefix string) (fileCount, dirCount int64, err error) {
	return CountDescendants(ctx, database, scanID, prefix)
}

// ListRoots summarizes each of a scan's root paths using rootsFallback,
// since a scan's roots are siblings with no shared parent node row.
func ListRoots(ctx context.Context, database *sql.DB, scan *Scan) ([]ListEntry, error) {
	entries := make([]ListEntry, 0, len(scan.RootPaths))
	for _, root := range scan.RootPaths {
		node, err := GetNode(ctx, database, scan.ID, root)
		if err == nil {
			entries = append(entries, ListEntry{
				Path: node.Path, IsDir: true, LogicalSize: node.LogicalSize, AllocatedSize: node.AllocatedSize,
				FileCount: node.FileCount, DirCount: node.DirCount,
			})
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("db: load root node %q: %w", root, err)
		}
		fileCount, dirCount, ferr := rootsFallback(ctx, database, scan.ID, root)
		if ferr != nil {
			return nil, ferr
		}
		entries = append(entries, ListEntry{Path: root, IsDir: true, FileCount: fileCount, DirCount: dirCount})
	}
	return entries, nil
}

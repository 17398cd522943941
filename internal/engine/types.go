// Package engine implements the scan engine: the concurrent directory
// walker, its streaming aggregation into the store, and the per-scan
// lifecycle and event broadcast that ties them together.
package engine

import "github.com/kestrel-labs/diskspector/internal/db"

// Options is the resolved set of knobs a single scan runs with. Optional
// request fields (spec.md §4.2's ScanOptions) are resolved against
// configuration defaults before a scan starts; Options carries only the
// resolved values so the walker never has to reason about nil.
type Options struct {
	FollowSymlinks   bool
	IncludeHidden    bool
	MeasureLogical   bool
	MeasureAllocated bool
	Excludes         []string
	// MaxDepth is nil when unset (no limit is enforced at all). A set
	// value of 0 is a distinct, literal case: it prunes every
	// subdirectory of the root (spec.md §4.3 "subject to max_depth == 0
	// which blocks all descent"). A set value of N>0 enforces depth < N
	// during recursive descent (spec.md §4.3.1 "enforce depth < max_depth
	// if set").
	MaxDepth *int

	// RootConcurrency is the size of the root permit pool C = min(options.
	// concurrency ?? optimal, handle_limit ?? ∞) (spec.md §4.3). It is
	// independent of DirConcurrency: an unset request concurrency falls
	// back to a cpu-scaled default here, not to scanner.dir_concurrency.
	RootConcurrency int
	// DirConcurrency is the size of each root's own worker pool
	// D = options.concurrency ?? scanner.dir_concurrency ?? 12 (spec.md
	// §4.3). An explicit request concurrency overrides both pools at
	// once; an unset one lets each pool fall back to its own default.
	DirConcurrency int

	// FlushThreshold is the number of buffered node/file records a
	// producer accumulates before shipping them down the aggregator
	// channel (scanner.flush_threshold). It is a tuning knob threaded
	// through from configuration, not a scan semantic, but the walker
	// needs it to size its own local buffers the same way the
	// aggregator sizes its flush-at threshold.
	FlushThreshold int
}

// ResolveOptions merges a request's ScanOptions with configuration
// defaults, the way scan requests without explicit options fall back to
// scanner.* configuration (spec.md §6 "Scan creation request"). dirDefault
// is scanner.dir_concurrency (or its own built-in default); the root
// pool's default is always the cpu-scaled optimalConcurrency(), regardless
// of dirDefault, unless the request overrides both explicitly.
func ResolveOptions(req db.ScanOptions, dirDefault, flushThreshold int) Options {
	opts := Options{
		FollowSymlinks:   req.FollowSymlinks,
		IncludeHidden:    req.IncludeHidden,
		MeasureLogical:   req.MeasureLogical,
		MeasureAllocated: req.MeasureAllocated,
		Excludes:         req.Excludes,
		RootConcurrency:  optimalConcurrency(),
		DirConcurrency:   dirDefault,
		FlushThreshold:   flushThreshold,
	}
	opts.MaxDepth = req.MaxDepth
	if req.Concurrency != nil && *req.Concurrency > 0 {
		opts.RootConcurrency = *req.Concurrency
		opts.DirConcurrency = *req.Concurrency
	}
	return opts
}

// NodeRecord is a directory's subtree aggregate, produced in post-order as
// the walker finishes enumerating a directory's children (spec.md §4.3
// "append a NodeRecord for dir ... after enumeration").
type NodeRecord struct {
	Path          string
	ParentPath    *string
	Depth         int
	LogicalSize   int64
	AllocatedSize int64
	FileCount     int64
	DirCount      int64
}

// FileRecord is a single regular file's measurement, produced as soon as
// the walker observes the file (spec.md §4.3).
type FileRecord struct {
	Path          string
	ParentPath    *string
	LogicalSize   int64
	AllocatedSize int64
}

// WarningRecord is a single non-fatal problem encountered while walking,
// carried to the aggregator alongside the batch it was raised in (spec.md
// §3 "Warning" entity).
type WarningRecord struct {
	Path    string
	Code    string
	Message string
}

// ResultSummary is the running (or final) aggregate a walk contributes:
// either a root's full subtree total, or a zero-valued summary alongside a
// bare batch of records for the aggregator to fold in (spec.md §4.3
// "(Vec<NodeRecord>, Vec<FileRecord>, ScanResultSummary)").
type ResultSummary struct {
	TotalDirs          int64
	TotalFiles         int64
	TotalLogicalSize   int64
	TotalAllocatedSize int64
	Warnings           int64
}

// Add folds other into s, saturating at math.MaxInt64 so a pathological
// tree can never overflow the running totals (spec.md §3 "all arithmetic
// is saturating").
func (s *ResultSummary) Add(other ResultSummary) {
	s.TotalDirs = saturatingAdd(s.TotalDirs, other.TotalDirs)
	s.TotalFiles = saturatingAdd(s.TotalFiles, other.TotalFiles)
	s.TotalLogicalSize = saturatingAdd(s.TotalLogicalSize, other.TotalLogicalSize)
	s.TotalAllocatedSize = saturatingAdd(s.TotalAllocatedSize, other.TotalAllocatedSize)
	s.Warnings = saturatingAdd(s.Warnings, other.Warnings)
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if sum < a { // overflow, since both operands here are always >= 0
		return int64(^uint64(0) >> 1)
	}
	return sum
}

// batch is what one producer goroutine (a root walker, or a subdirectory
// worker) ships down the aggregator channel: a chunk of new node/file
// records plus any summary delta it already knows to be final.
type batch struct {
	nodes    []NodeRecord
	files    []FileRecord
	warnings []WarningRecord
	summary  ResultSummary
}

package httpapi

import (
	"os"
	"strings"

	"github.com/kestrel-labs/diskspector/internal/config"
	"github.com/kestrel-labs/diskspector/internal/db"
	"github.com/kestrel-labs/diskspector/internal/exclude"
)

// ValidationError is a rejected-at-the-boundary request (spec.md §7
// "Invalid request: rejected at the HTTP boundary before the engine is
// invoked"). Its Error() text is safe to return directly to the client.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalid(msg string) *ValidationError { return &ValidationError{msg: msg} }

// maxPathLen is the OS-appropriate path length ceiling spec.md §6 asks
// request validation to enforce ("below an OS-appropriate length"). 4096
// matches PATH_MAX on Linux/macOS; Windows' legacy MAX_PATH is smaller but
// long-path-aware APIs (as used by os.Stat here) tolerate the same bound.
const maxPathLen = 4096

const (
	minConcurrency = 1
	maxConcurrency = 256
	maxMaxDepth    = 100
)

// CreateScanRequest is the wire shape of a scan-creation POST body
// (spec.md §6 "Scan creation request"). Boolean option fields are
// pointers so an absent field can fall back to config.ScanDefaults()
// instead of being indistinguishable from an explicit false.
type CreateScanRequest struct {
	RootPaths        []string `json:"root_paths"`
	FollowSymlinks   *bool    `json:"follow_symlinks,omitempty"`
	IncludeHidden    *bool    `json:"include_hidden,omitempty"`
	MeasureLogical   *bool    `json:"measure_logical,omitempty"`
	MeasureAllocated *bool    `json:"measure_allocated,omitempty"`
	Excludes         []string `json:"excludes,omitempty"`
	MaxDepth         *int     `json:"max_depth,omitempty"`
	Concurrency      *int     `json:"concurrency,omitempty"`
}

// resolveScanOptions validates req and merges its optional fields against
// defaults, returning the db.ScanOptions the engine is launched with.
// Validation failures return a *ValidationError
// (spec.md §6 "Validation": non-empty/null-byte-free/length-bounded paths,
// compiling patterns, concurrency in [1,256], max_depth <= 100).
func resolveScanOptions(req CreateScanRequest, defaults config.ScanDefaults) (db.ScanOptions, error) {
	if len(req.RootPaths) == 0 {
		return db.ScanOptions{}, invalid("root_paths must be non-empty")
	}
	for _, p := range req.RootPaths {
		if err := validateRootPath(p); err != nil {
			return db.ScanOptions{}, err
		}
	}

	if _, err := exclude.New(req.Excludes); err != nil {
		return db.ScanOptions{}, invalid("invalid exclude pattern: " + err.Error())
	}

	if req.Concurrency != nil {
		if *req.Concurrency < minConcurrency || *req.Concurrency > maxConcurrency {
			return db.ScanOptions{}, invalid("concurrency must be in [1, 256]")
		}
	}
	if req.MaxDepth != nil && (*req.MaxDepth < 0 || *req.MaxDepth > maxMaxDepth) {
		return db.ScanOptions{}, invalid("max_depth must be in [0, 100]")
	}

	opts := db.ScanOptions{
		FollowSymlinks:   boolOr(req.FollowSymlinks, defaults.FollowSymlinks),
		IncludeHidden:    boolOr(req.IncludeHidden, defaults.IncludeHidden),
		MeasureLogical:   boolOr(req.MeasureLogical, defaults.MeasureLogical),
		MeasureAllocated: boolOr(req.MeasureAllocated, defaults.MeasureAllocated),
		Excludes:         req.Excludes,
		MaxDepth:         req.MaxDepth,
		Concurrency:      req.Concurrency,
	}
	return opts, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// validateRootPath enforces spec.md §6's "non-empty, null-byte-free, and
// below an OS-appropriate length" plus "must exist and be a directory at
// creation time".
func validateRootPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return invalid("root path must not be empty")
	}
	if strings.ContainsRune(path, 0) {
		return invalid("root path must not contain a null byte")
	}
	if len(path) > maxPathLen {
		return invalid("root path exceeds the maximum supported length")
	}
	info, err := os.Stat(path)
	if err != nil {
		return invalid("root path does not exist: " + path)
	}
	if !info.IsDir() {
		return invalid("root path is not a directory: " + path)
	}
	return nil
}

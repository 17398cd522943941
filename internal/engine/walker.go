package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kestrel-labs/diskspector/internal/exclude"
	"github.com/kestrel-labs/diskspector/internal/measure"
)

// ErrCancelled is returned up the walker call stack when a scan's context
// is cancelled mid-descent (spec.md §4.3.1 "If cancelled, abort with a
// cancelled error").
var ErrCancelled = errors.New("engine: scan cancelled")

// progressEvery is how many enumerated entries pass between Progress
// events, matching the source scanner's throttling cadence exactly
// (spec.md §4.3.1 "Every 512 entries, emit a Progress event").
const progressEvery = 512

// progressEventsPerSecond caps how often a scan's walk as a whole (one
// limiter shared by every worker) may publish a Progress event,
// independent of the entry-count cadence above (spec.md
// §2 item 5 "Progress events are rate-limited at the producer side").
// Progress is documented as best-effort and lossy, so a rate-limited event
// is simply skipped rather than buffered.
const progressEventsPerSecond = 10

// optimalConcurrency returns max(2, ceil(cpu_count*3/4)), the root permit
// pool's default size when a scan doesn't request an explicit concurrency
// (spec.md §4.3 "optimal = max(2, ceil(cpu_count*3/4))").
func optimalConcurrency() int {
	n := (runtime.NumCPU()*3 + 3) / 4
	if n < 2 {
		n = 2
	}
	return n
}

// walkContext bundles the state every producer goroutine in a scan shares:
// the scan id, resolved options, exclusion matcher, output channel, and
// event broadcaster.
type walkContext struct {
	ctx      context.Context
	scanID   string
	opts     Options
	excludes *exclude.Matcher

	out     chan<- batch
	events  *Broadcaster
	limiter *rate.Limiter

	mu    sync.Mutex
	total ResultSummary
}

// Walk runs the two-level parallel traversal over rootPaths and returns the
// scan's final aggregate summary. It sends batches of node/file records to
// wc.out as they're produced and publishes lifecycle events to wc.events.
// The caller is responsible for closing wc.out once every root has
// finished (Walk itself only ever sends on it).
func Walk(ctx context.Context, scanID string, rootPaths []string, opts Options, excludes *exclude.Matcher, out chan<- batch, events *Broadcaster) ResultSummary {
	wc := &walkContext{
		ctx: ctx, scanID: scanID, opts: opts, excludes: excludes, out: out, events: events,
		limiter: rate.NewLimiter(rate.Limit(progressEventsPerSecond), 1),
	}

	rootPermits := opts.RootConcurrency
	if rootPermits <= 0 {
		rootPermits = optimalConcurrency()
	}
	sem := semaphore.NewWeighted(int64(rootPermits))

	var wg sync.WaitGroup
	for _, root := range rootPaths {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(root string) {
			defer wg.Done()
			defer sem.Release(1)
			wc.walkRoot(root)
		}(root)
	}
	wg.Wait()

	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.total
}

// recordTotal folds a root's finished contribution into the scan-wide
// total this Walk call ultimately returns.
func (wc *walkContext) recordTotal(s ResultSummary) {
	wc.mu.Lock()
	wc.total.Add(s)
	wc.mu.Unlock()
}

// walkRoot implements the per-root procedure of spec.md §4.3: resolve
// root metadata, enumerate root entries once (counting files directly,
// collecting subdirectories), then dispatch the subdirectory list through
// a bounded worker pool that each run a single-threaded recursive descent.
func (wc *walkContext) walkRoot(root string) {
	root = filepath.Clean(root)

	info, err := os.Lstat(root)
	if err != nil {
		wc.warn(root, "missing_root", "root path does not exist")
		return
	}
	if wc.excludes.Match(root) {
		return
	}
	attrs := measure.ProbeAttributes(filepath.Base(root), info)
	if !wc.opts.FollowSymlinks && attrs.ReparsePoint {
		return
	}
	if !wc.opts.IncludeHidden && attrs.Hidden {
		return
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		wc.warn(root, "read_dir_failed", fmt.Sprintf("failed to read directory: %v", err))
		return
	}

	var subdirs []string
	var rootFiles, rootLogical, rootAllocated int64
	fileBuf := make([]FileRecord, 0, flushThreshold(wc.opts))

	for _, entry := range entries {
		if wc.ctx.Err() != nil {
			return
		}
		childPath := filepath.Join(root, entry.Name())
		if wc.excludes.Match(childPath) {
			continue
		}
		childInfo, err := entry.Info()
		if err != nil {
			wc.warn(childPath, "metadata_failed", "failed to stat")
			continue
		}
		childAttrs := measure.ProbeAttributes(entry.Name(), childInfo)

		if entry.IsDir() {
			if !wc.opts.FollowSymlinks && childAttrs.ReparsePoint {
				continue
			}
			if !wc.opts.IncludeHidden && childAttrs.Hidden {
				continue
			}
			if wc.opts.MaxDepth != nil && *wc.opts.MaxDepth == 0 {
				continue
			}
			subdirs = append(subdirs, childPath)
			continue
		}
		if !isRegular(childInfo) {
			continue
		}
		if !wc.opts.IncludeHidden && childAttrs.Hidden {
			continue
		}
		logical, allocated := wc.measureFile(childPath, childInfo)
		rootFiles++
		rootLogical += logical
		rootAllocated += allocated
		parent := root
		fileBuf = append(fileBuf, FileRecord{Path: childPath, ParentPath: &parent, LogicalSize: logical, AllocatedSize: allocated})
		if len(fileBuf) >= flushThreshold(wc.opts) {
			wc.send(batch{files: fileBuf})
			fileBuf = make([]FileRecord, 0, flushThreshold(wc.opts))
		}
	}
	if len(fileBuf) > 0 {
		wc.send(batch{files: fileBuf})
	}

	workerCount := wc.opts.DirConcurrency
	if workerCount <= 0 {
		workerCount = defaultDirConcurrency
	}
	subDirs, subFiles, subLogical, subAllocated := wc.runWorkerPool(subdirs, workerCount)

	rootNode := NodeRecord{
		Path:          root,
		ParentPath:    parentPathOf(root),
		Depth:         0,
		LogicalSize:   rootLogical + subLogical,
		AllocatedSize: rootAllocated + subAllocated,
		FileCount:     rootFiles + subFiles,
		DirCount:      subDirs,
	}
	rootSummary := ResultSummary{TotalDirs: 1 + subDirs, TotalFiles: rootFiles + subFiles, TotalLogicalSize: rootLogical + subLogical, TotalAllocatedSize: rootAllocated + subAllocated}
	wc.recordTotal(rootSummary)
	wc.send(batch{nodes: []NodeRecord{rootNode}, summary: rootSummary})
}

// runWorkerPool dispatches subdirs across up to workerCount goroutines,
// each calling descend for one subdirectory at a time (spec.md §4.3 "Per-
// root worker pool ... each worker processes one immediate child directory
// with a fully recursive descent").
func (wc *walkContext) runWorkerPool(subdirs []string, workerCount int) (dirs, files, logical, allocated int64) {
	if len(subdirs) == 0 {
		return 0, 0, 0, 0
	}
	if workerCount > len(subdirs) {
		workerCount = len(subdirs)
	}
	jobs := make(chan string)
	type result struct{ dirs, files, logical, allocated int64 }
	results := make(chan result, len(subdirs))

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dir := range jobs {
				d, f, l, a, err := wc.descend(dir, 1)
				if err != nil {
					continue
				}
				results <- result{d, f, l, a}
			}
		}()
	}
	go func() {
		for _, d := range subdirs {
			if wc.ctx.Err() != nil {
				break
			}
			jobs <- d
		}
		close(jobs)
	}()
	wg.Wait()
	close(results)

	for r := range results {
		dirs += r.dirs
		files += r.files
		logical += r.logical
		allocated += r.allocated
	}
	return dirs, files, logical, allocated
}

// descend is the single-threaded recursive descent of spec.md §4.3.1.
// Returns (dirs, files, logical, allocated) for the subtree rooted at dir,
// where dirs counts dir itself.
func (wc *walkContext) descend(dir string, depth int) (localDirs, localFiles, localLogical, localAllocated int64, err error) {
	if wc.ctx.Err() != nil {
		return 0, 0, 0, 0, ErrCancelled
	}
	if wc.excludes.Match(dir) {
		return 0, 0, 0, 0, nil
	}

	info, statErr := os.Lstat(dir)
	if statErr != nil {
		wc.warn(dir, "metadata_failed", fmt.Sprintf("failed to stat: %v", statErr))
		return 0, 0, 0, 0, statErr
	}
	attrs := measure.ProbeAttributes(filepath.Base(dir), info)
	if !wc.opts.FollowSymlinks && attrs.ReparsePoint {
		return 0, 0, 0, 0, nil
	}
	if !wc.opts.IncludeHidden && attrs.Hidden {
		return 0, 0, 0, 0, nil
	}

	localDirs = 1
	entries, readErr := os.ReadDir(dir)
	nodeBuf := make([]NodeRecord, 0, flushThreshold(wc.opts))
	fileBuf := make([]FileRecord, 0, flushThreshold(wc.opts))

	if readErr != nil {
		wc.warn(dir, "read_dir_failed", fmt.Sprintf("failed to read directory: %v", readErr))
	} else {
		var sent int
		for _, entry := range entries {
			if wc.ctx.Err() != nil {
				return localDirs, localFiles, localLogical, localAllocated, ErrCancelled
			}
			childPath := filepath.Join(dir, entry.Name())
			if wc.excludes.Match(childPath) {
				continue
			}
			childInfo, infoErr := entry.Info()
			if infoErr != nil {
				wc.warn(childPath, "metadata_failed", "failed to stat")
				continue
			}
			childAttrs := measure.ProbeAttributes(entry.Name(), childInfo)

			if entry.IsDir() {
				if !wc.opts.FollowSymlinks && childAttrs.ReparsePoint {
					continue
				}
				if !wc.opts.IncludeHidden && childAttrs.Hidden {
					continue
				}
				if wc.opts.MaxDepth != nil && depth >= *wc.opts.MaxDepth {
					continue
				}
				d, f, l, a, derr := wc.descend(childPath, depth+1)
				if derr != nil && !errors.Is(derr, ErrCancelled) {
					// stat/read errors on a subdirectory already produced
					// their own warning inside the recursive call.
				}
				if errors.Is(derr, ErrCancelled) {
					return localDirs, localFiles, localLogical, localAllocated, ErrCancelled
				}
				localDirs += d
				localFiles += f
				localLogical += l
				localAllocated += a
			} else if isRegular(childInfo) {
				if !wc.opts.IncludeHidden && childAttrs.Hidden {
					continue
				}
				logical, allocated := wc.measureFile(childPath, childInfo)
				localFiles++
				localLogical += logical
				localAllocated += allocated
				parent := dir
				fileBuf = append(fileBuf, FileRecord{Path: childPath, ParentPath: &parent, LogicalSize: logical, AllocatedSize: allocated})
			} else {
				continue
			}

			sent++
			if sent%progressEvery == 0 && wc.limiter.Allow() {
				wc.events.Publish(Event{
					Type: EventProgress, CurrentPath: childPath,
					DirsScanned: localDirs, FilesScanned: localFiles,
					LogicalSize: localLogical, AllocatedSize: localAllocated,
				})
			}
			if len(nodeBuf)+len(fileBuf) >= flushThreshold(wc.opts) {
				wc.send(batch{nodes: nodeBuf, files: fileBuf})
				nodeBuf = make([]NodeRecord, 0, flushThreshold(wc.opts))
				fileBuf = make([]FileRecord, 0, flushThreshold(wc.opts))
			}
		}
	}

	nodeBuf = append(nodeBuf, NodeRecord{
		Path: dir, ParentPath: parentPathOf(dir), Depth: depth,
		LogicalSize: localLogical, AllocatedSize: localAllocated,
		FileCount: localFiles, DirCount: localDirs - 1,
	})
	if len(nodeBuf) > 0 || len(fileBuf) > 0 {
		wc.send(batch{nodes: nodeBuf, files: fileBuf})
	}

	return localDirs, localFiles, localLogical, localAllocated, nil
}

// measureFile resolves a file's logical and allocated size per
// spec.md §4.1: allocated falls back to logical when measurement is
// disabled or the platform probe can't determine it.
func (wc *walkContext) measureFile(path string, info fs.FileInfo) (logical, allocated int64) {
	logical = measure.LogicalSize(info)
	if !wc.opts.MeasureAllocated {
		return logical, logical
	}
	if size, ok := measure.AllocatedSize(path, info); ok {
		return logical, size
	}
	return logical, logical
}

// warn records a warning both as a broadcast event and as a summary
// increment; the caller's enclosing batch carries the increment forward
// to the aggregator, which persists it to the warnings table.
func (wc *walkContext) warn(path, code, message string) {
	wc.events.Publish(Event{Type: EventWarning, Path: path, Code: code, Message: message})
	wc.send(batch{warnings: []WarningRecord{{Path: path, Code: code, Message: message}}, summary: ResultSummary{Warnings: 1}})
}

// send ships b down the aggregator channel, blocking if it's full. This is
// the engine's only back-pressure mechanism: a slow store makes producers
// slow down rather than buffering without bound (spec.md §4.4 "Producers
// may block (synchronously) when full").
func (wc *walkContext) send(b batch) {
	select {
	case wc.out <- b:
	case <-wc.ctx.Done():
	}
}

// defaultDirConcurrency is the per-root worker pool size when neither the
// request nor configuration specify one (spec.md §4.3 "scanner.dir_
// concurrency ?? 12").
const defaultDirConcurrency = 12

// defaultFlushThreshold is used when Options.FlushThreshold is unset (e.g.
// an Options built directly by a test rather than via ResolveOptions),
// matching the source's own built-in default.
const defaultFlushThreshold = 256

// flushThreshold returns the number of buffered records a producer
// accumulates before shipping them down the aggregator channel
// (scanner.flush_threshold, threaded through Options by ResolveOptions).
func flushThreshold(opts Options) int {
	if opts.FlushThreshold > 0 {
		return opts.FlushThreshold
	}
	return defaultFlushThreshold
}

func isRegular(info fs.FileInfo) bool {
	return info.Mode().IsRegular()
}

// parentPathOf returns the parent directory of path, or nil at the
// filesystem root (spec.md §3 "parent path (nullable, text)").
func parentPathOf(path string) *string {
	parent := filepath.Dir(path)
	if parent == path || parent == "." {
		return nil
	}
	// Guard against a root like "/" or "C:\" whose Dir is itself.
	clean := filepath.Clean(path)
	if filepath.Clean(parent) == clean {
		return nil
	}
	p := parent
	return &p
}

package engine

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/kestrel-labs/diskspector/internal/db"
)

// aggregator is the single consumer of a scan's batch channel: it folds
// every producer's records into buffers, flushes them to the store in one
// transaction once a threshold is crossed, and periodically writes running
// totals so clients polling the scan row see live progress (spec.md §4.4
// "Aggregator & batch persister").
type aggregator struct {
	database *sql.DB
	scanID   string

	flushAt       int // max(flush_threshold, batch_size)
	flushInterval time.Duration

	nodes    []db.Node
	files    []db.File
	warnings []db.Warning
	running  ResultSummary // saturating running totals, committed so far
}

// newAggregator builds an aggregator flushing at max(flushThreshold,
// batchSize) records and ticking every flushInterval (spec.md §4.4
// "Trigger a flush when |nodes|+|files| >= max(flush_threshold,
// batch_size)").
func newAggregator(database *sql.DB, scanID string, batchSize, flushThreshold int, flushInterval time.Duration) *aggregator {
	at := flushThreshold
	if batchSize > at {
		at = batchSize
	}
	if at <= 0 {
		at = 1
	}
	return &aggregator{database: database, scanID: scanID, flushAt: at, flushInterval: flushInterval}
}

// run drains in until it's closed, flushing whenever the combined buffer
// crosses flushAt or the periodic ticker fires, and returns the scan's
// final running totals (spec.md §4.4, §4.4's "Periodic tick" and "Flush
// procedure"). A flush error is logged but does not stop the drain: the
// engine keeps consuming so producers never deadlock against a full
// channel, and the scan is later marked failed by its caller once drained.
func (a *aggregator) run(ctx context.Context, in <-chan batch) (ResultSummary, error) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	var firstErr error
	for {
		select {
		case b, ok := <-in:
			if !ok {
				if err := a.flush(ctx); err != nil && firstErr == nil {
					firstErr = err
				}
				return a.running, firstErr
			}
			a.absorb(b)
			if len(a.nodes)+len(a.files) >= a.flushAt {
				if err := a.flush(ctx); err != nil && firstErr == nil {
					firstErr = err
					log.Printf("[engine] aggregator: flush failed for scan %s: %v", a.scanID, err)
				}
			}
		case <-ticker.C:
			if err := a.flush(ctx); err != nil {
				log.Printf("[engine] aggregator: periodic flush failed for scan %s: %v", a.scanID, err)
				continue
			}
			if err := db.UpdateRunningTotals(ctx, a.database, a.scanID,
				a.running.TotalLogicalSize, a.running.TotalAllocatedSize, a.running.TotalDirs, a.running.TotalFiles, a.running.Warnings); err != nil {
				log.Printf("[engine] aggregator: running-totals update failed for scan %s: %v", a.scanID, err)
			}
		}
	}
}

// absorb folds a batch's records into the pending buffers and its summary
// delta into the running totals (saturating, per spec.md §3).
func (a *aggregator) absorb(b batch) {
	for _, n := range b.nodes {
		a.nodes = append(a.nodes, db.Node{
			ScanID: a.scanID, Path: n.Path, ParentPath: n.ParentPath, Depth: n.Depth, IsDir: true,
			LogicalSize: n.LogicalSize, AllocatedSize: n.AllocatedSize, FileCount: n.FileCount, DirCount: n.DirCount,
		})
	}
	for _, f := range b.files {
		a.files = append(a.files, db.File{
			ScanID: a.scanID, Path: f.Path, ParentPath: f.ParentPath,
			LogicalSize: f.LogicalSize, AllocatedSize: f.AllocatedSize,
		})
	}
	for _, w := range b.warnings {
		a.warnings = append(a.warnings, db.Warning{ScanID: a.scanID, Path: w.Path, Code: w.Code, Message: w.Message})
	}
	a.running.Add(b.summary)
}

// flush commits the pending node, file, and warning buffers in a single
// transaction, chunked internally to respect the store's variable-binding
// limit (spec.md §4.4 "Flush procedure"). A no-op when all three buffers
// are empty, so the periodic tick can call it unconditionally. The whole
// attempt is wrapped in db.RetryOnBusy since a concurrent scan's own
// flush (or a query handler's read) can momentarily hold SQLITE_BUSY
// against this writer.
func (a *aggregator) flush(ctx context.Context) error {
	if len(a.nodes) == 0 && len(a.files) == 0 && len(a.warnings) == 0 {
		return nil
	}
	err := db.RetryOnBusy(ctx, busyRetryAttempts, busyRetryInitialBackoff, func() error {
		tx, err := a.database.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := db.InsertNodesBatch(ctx, tx, a.nodes); err != nil {
			return err
		}
		if err := db.InsertFilesBatch(ctx, tx, a.files); err != nil {
			return err
		}
		if err := db.InsertWarningsBatch(ctx, tx, a.warnings); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}

	a.nodes = a.nodes[:0]
	a.files = a.files[:0]
	a.warnings = a.warnings[:0]
	return nil
}

// busyRetryAttempts and busyRetryInitialBackoff bound how hard a flush
// fights through SQLITE_BUSY before giving up (db.RetryOnBusy doubles the
// backoff each attempt, capped at 5s).
const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 25 * time.Millisecond
)

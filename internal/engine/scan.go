package engine

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-labs/diskspector/internal/db"
	"github.com/kestrel-labs/diskspector/internal/exclude"
)

// ErrScanNotFound is returned by Manager lookups for an id with no
// in-memory run, either because it never existed or because it has
// already finished and been evicted.
var ErrScanNotFound = errors.New("engine: scan not found")

// Tuning bundles the configuration-derived knobs a Manager needs to size
// the aggregator channel and flush cadence (spec.md §6 "scanner.*").
type Tuning struct {
	BatchSize       int
	FlushThreshold  int
	FlushIntervalMS int
	HandleLimit     int // 0 means unlimited
	DirConcurrency  int
}

// run is a Manager's bookkeeping for one in-flight scan: its cancellation
// function and its event broadcaster, kept around after the scan finishes
// only long enough for late SSE subscribers to still attach (the scan row
// itself remains the durable record, per spec.md §4.5 "Authoritative
// state is the store row").
type run struct {
	cancel context.CancelFunc
	events *Broadcaster
}

// Manager tracks in-flight (and recently finished) scans so the HTTP layer
// can cancel a scan or subscribe to its live event stream by id.
type Manager struct {
	database *sql.DB
	tuning   Tuning

	mu   sync.Mutex
	runs map[string]*run
}

// NewManager builds a Manager writing to database with the given tuning.
func NewManager(database *sql.DB, tuning Tuning) *Manager {
	return &Manager{database: database, tuning: tuning, runs: make(map[string]*run)}
}

// Start creates a scan row, launches its walk+aggregate pipeline in a new
// goroutine, and returns the assigned scan id immediately (spec.md §6
// "Scan creation request ... launches a scan task"). The scan's context is
// derived from ctx, which should be the caller's own lifetime (e.g. the
// process context), not tied to any one HTTP request.
func (m *Manager) Start(ctx context.Context, rootPaths []string, opts db.ScanOptions) (*db.Scan, error) {
	excludes, err := exclude.New(opts.Excludes)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	scan, err := db.CreateScan(ctx, m.database, id, rootPaths, opts)
	if err != nil {
		return nil, err
	}

	scanCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, events: NewBroadcaster(DefaultSubscriberBuffer)}
	m.mu.Lock()
	m.runs[id] = r
	m.mu.Unlock()

	go m.runScan(scanCtx, r, id, rootPaths, opts, excludes)

	return scan, nil
}

// Cancel fires the cancellation context for a running scan. Returns
// ErrScanNotFound if the scan is unknown or its run has been evicted; a
// scan that has finished but is still within its eviction grace period is
// accepted, and cancelling it has no effect.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return ErrScanNotFound
	}
	r.cancel()
	return nil
}

// Subscribe attaches to a running scan's live event stream. Returns
// ErrScanNotFound once the scan has finished and been evicted; callers
// should fall back to polling db.GetScan for terminal state in that case.
func (m *Manager) Subscribe(id string) (<-chan Event, func(), error) {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil, ErrScanNotFound
	}
	ch, unsub := r.events.Subscribe()
	return ch, unsub, nil
}

// runScan drives one scan end to end: Started event, Walk+aggregator
// pipeline, terminal event + db.Finish, then evicts the run from the
// manager after a grace period so very-late subscribers still observe the
// terminal event (spec.md §4.5's event set: Started, Progress, Warning,
// Done, Cancelled, Failed).
func (m *Manager) runScan(ctx context.Context, r *run, scanID string, rootPaths []string, reqOpts db.ScanOptions, excludes *exclude.Matcher) {
	defer m.evictAfterGrace(scanID)
	defer r.events.Close()

	opts := ResolveOptions(reqOpts, m.tuning.DirConcurrency, m.tuning.FlushThreshold)
	// handle_limit caps only the root permit pool C, never the per-root
	// worker pool D (spec.md §5 "further caps root concurrency").
	if m.tuning.HandleLimit > 0 && opts.RootConcurrency > m.tuning.HandleLimit {
		opts.RootConcurrency = m.tuning.HandleLimit
	}

	r.events.Publish(Event{Type: EventStarted, RootPaths: rootPaths})

	channelCap := aggregatorChannelCap(opts.RootConcurrency)
	ch := make(chan batch, channelCap)
	agg := newAggregator(m.database, scanID, m.tuning.BatchSize, m.tuning.FlushThreshold, flushInterval(m.tuning.FlushIntervalMS))

	var aggTotal ResultSummary
	var aggErr error
	aggDone := make(chan struct{})
	go func() {
		aggTotal, aggErr = agg.run(context.Background(), ch)
		close(aggDone)
	}()

	Walk(ctx, scanID, rootPaths, opts, excludes, ch, r.events)
	close(ch)
	<-aggDone

	status := db.StatusDone
	switch {
	case aggErr != nil:
		status = db.StatusFailed
	case ctx.Err() != nil:
		status = db.StatusCanceled
	}

	if err := db.Finish(context.Background(), m.database, scanID, status,
		aggTotal.TotalLogicalSize, aggTotal.TotalAllocatedSize, aggTotal.TotalDirs, aggTotal.TotalFiles, aggTotal.Warnings); err != nil {
		if !errors.Is(err, db.ErrAlreadyTerminal) {
			log.Printf("[engine] scan %s: failed to record terminal status %s: %v", scanID, status, err)
		}
	}

	switch status {
	case db.StatusDone:
		r.events.Publish(Event{
			Type: EventDone, TotalDirs: aggTotal.TotalDirs, TotalFiles: aggTotal.TotalFiles,
			TotalLogicalSize: aggTotal.TotalLogicalSize, TotalAllocatedSize: aggTotal.TotalAllocatedSize,
		})
	case db.StatusCanceled:
		r.events.Publish(Event{Type: EventCancelled})
	case db.StatusFailed:
		r.events.Publish(Event{Type: EventFailed, Message: aggErr.Error()})
	}
}

// evictGrace is how long a finished scan's run stays registered after its
// terminal event, so an SSE client that was mid-(re)connect still finds a
// live subscription to attach to instead of racing eviction.
const evictGrace = 30 * time.Second

func (m *Manager) evictAfterGrace(scanID string) {
	time.AfterFunc(evictGrace, func() {
		m.mu.Lock()
		delete(m.runs, scanID)
		m.mu.Unlock()
	})
}

// aggregatorChannelCap returns min(8*C+128, 1024), the bounded channel
// capacity between producers and the aggregator (spec.md §4.4).
func aggregatorChannelCap(concurrency int) int {
	n := 8*concurrency + 128
	if n > 1024 {
		n = 1024
	}
	if n < 1 {
		n = 1
	}
	return n
}

func flushInterval(ms int) time.Duration {
	if ms <= 0 {
		ms = 500
	}
	return time.Duration(ms) * time.Millisecond
}

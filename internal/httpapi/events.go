package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kestrel-labs/diskspector/internal/db"
	"github.com/kestrel-labs/diskspector/internal/engine"
)

// keepaliveInterval is the roughly-10-second SSE keepalive cadence spec.md
// §6 requires ("periodic keepalive frames roughly every 10 seconds").
const keepaliveInterval = 10 * time.Second

// handleScanEvents serves spec.md §6's "Live event stream": server-sent
// events of typed JSON (tag field "type", snake_case variant names) for a
// running scan. A scan that has already finished and been evicted from the
// Manager is served as a single synthetic terminal event built from the
// durable scan row, per spec.md §7's "clients that missed events ... rely
// on the scan row as authoritative".
func (s *Server) handleScanEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		ch, unsubscribe, err := s.manager.Subscribe(id)
		if err != nil {
			if !errors.Is(err, engine.ErrScanNotFound) {
				writeEngineError(w, err)
				return
			}
			s.writeTerminalEventFallback(w, r, id)
			return
		}
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				writeSSEEvent(w, ev)
				flusher.Flush()
			case <-ticker.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev engine.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
}

// writeTerminalEventFallback serves a single event synthesized from the
// scan row when the Manager no longer has a live subscription (the scan
// finished and its grace period elapsed).
func (s *Server) writeTerminalEventFallback(w http.ResponseWriter, r *http.Request, id string) {
	sc, err := db.GetScan(r.Context(), s.dbForRead(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var ev engine.Event
	switch sc.Status {
	case db.StatusCanceled:
		ev = engine.Event{Type: engine.EventCancelled}
	case db.StatusFailed:
		ev = engine.Event{Type: engine.EventFailed, Message: "scan failed"}
	default:
		ev = engine.Event{Type: engine.EventDone}
	}
	if sc.DirCount != nil {
		ev.TotalDirs = *sc.DirCount
	}
	if sc.FileCount != nil {
		ev.TotalFiles = *sc.FileCount
	}
	if sc.TotalLogicalSize != nil {
		ev.TotalLogicalSize = *sc.TotalLogicalSize
	}
	if sc.TotalAllocatedSize != nil {
		ev.TotalAllocatedSize = *sc.TotalAllocatedSize
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	writeSSEEvent(w, ev)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kestrel-labs/diskspector/internal/db"
)

func TestServer_ScanEventsReturns404ForUnknownScan(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/scans/does-not-exist/events", nil)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET events for unknown scan: code = %d, want 404", rec.Code)
	}
}

func TestServer_ScanEventsStreamsForRunningScan(t *testing.T) {
	srv, _ := testServer(t)
	dir := t.TempDir()

	scan, err := srv.manager.Start(context.Background(), []string{dir}, db.ScanOptions{MeasureLogical: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A short-lived context stands in for a client that disconnects almost
	// immediately; the handler must return promptly rather than hang.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/scans/"+scan.ID+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET events: code = %d, body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

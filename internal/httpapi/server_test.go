package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/kestrel-labs/diskspector/internal/config"
	"github.com/kestrel-labs/diskspector/internal/db"
	"github.com/kestrel-labs/diskspector/internal/engine"
)

func testServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	os.Setenv(config.EnvPort, "0")
	t.Cleanup(func() { os.Unsetenv(config.EnvPort) })
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	manager := engine.NewManager(database, engine.Tuning{
		BatchSize: cfg.BatchSize(), FlushThreshold: cfg.FlushThreshold(),
		FlushIntervalMS: cfg.FlushIntervalMS(), HandleLimit: cfg.HandleLimit(), DirConcurrency: cfg.DirConcurrency(),
	})
	return NewServer(context.Background(), cfg, database, nil, manager), database
}

func TestServer_HealthReturns200(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz: code = %d, want 200", rec.Code)
	}
}

func TestServer_404ForUnknown(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /unknown: code = %d, want 404", rec.Code)
	}
}

func TestServer_CreateScanRejectsMissingRootPaths(t *testing.T) {
	srv, _ := testServer(t)
	body, _ := json.Marshal(CreateScanRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST /api/scans with no roots: code = %d, want 400", rec.Code)
	}
}

func TestServer_CreateScanRejectsNonexistentRoot(t *testing.T) {
	srv, _ := testServer(t)
	body, _ := json.Marshal(CreateScanRequest{RootPaths: []string{"/does/not/exist/at/all"}})
	req := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST /api/scans with missing root: code = %d, want 400", rec.Code)
	}
}

func TestServer_CreateScanRejectsOutOfRangeConcurrency(t *testing.T) {
	srv, _ := testServer(t)
	n := 1000
	body, _ := json.Marshal(CreateScanRequest{RootPaths: []string{t.TempDir()}, Concurrency: &n})
	req := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST /api/scans with concurrency=1000: code = %d, want 400", rec.Code)
	}
}

func TestServer_CreateScanSucceedsAndEventuallyCompletes(t *testing.T) {
	srv, database := testServer(t)
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/a.txt", []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	body, _ := json.Marshal(CreateScanRequest{RootPaths: []string{dir}})
	req := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/scans: code = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	var created scanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created scan has empty ID")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		sc, err := db.GetScan(context.Background(), database, created.ID)
		if err != nil {
			t.Fatalf("GetScan: %v", err)
		}
		if sc.Status == db.StatusDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan did not complete in time, status=%s", sc.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/scans/"+created.ID, nil)
	rec = httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/scans/{id}: code = %d, want 200", rec.Code)
	}
}

// TestServer_CreateScanOutlivesItsRequestContext guards against wiring
// Manager.Start to the creating request's context: net/http cancels
// r.Context() the moment ServeHTTP returns, which happens right after the
// handler writes its 202 response, so a scan tied to it would be aborted
// as canceled almost immediately.
func TestServer_CreateScanOutlivesItsRequestContext(t *testing.T) {
	srv, database := testServer(t)
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/a.txt", []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reqCtx, reqCancel := context.WithCancel(context.Background())
	body, _ := json.Marshal(CreateScanRequest{RootPaths: []string{dir}})
	req := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewReader(body)).WithContext(reqCtx)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/scans: code = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	var created scanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	// Simulate net/http tearing down the request's context right after the
	// handler returns, as it does for every real request.
	reqCancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sc, err := db.GetScan(context.Background(), database, created.ID)
		if err != nil {
			t.Fatalf("GetScan: %v", err)
		}
		if sc.Status != db.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sc, err := db.GetScan(context.Background(), database, created.ID)
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if sc.Status != db.StatusDone {
		t.Errorf("status = %q, want %q: scan must not be tied to its creating request's context", sc.Status, db.StatusDone)
	}
}

func TestServer_GetScanReturns404ForUnknownID(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/scans/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown scan: code = %d, want 404", rec.Code)
	}
}

func TestServer_RunContextCancelShutsDown(t *testing.T) {
	srv, _ := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.Run(ctx); err != nil && err != http.ErrServerClosed {
		t.Errorf("Run after cancel: err = %v", err)
	}
}

// Package httpapi exposes diskspector's scan lifecycle and query endpoints
// as JSON over HTTP, following the teacher's http.ServeMux method+pattern
// routing and Server-wraps-two-pools structure (internal/server/server.go)
// but replacing HTML templates with JSON encoding throughout.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/kestrel-labs/diskspector/internal/config"
	"github.com/kestrel-labs/diskspector/internal/engine"
)

// Server wires configuration, the store, and the scan engine to an
// http.ServeMux, mirroring the teacher's Server (cfg/db/readDB/mux).
type Server struct {
	cfg     *config.Config
	db      *sql.DB // read-write: scan creation, cancellation
	readDB  *sql.DB // optional read-only pool for query handlers during a scan
	manager *engine.Manager
	mux     *http.ServeMux

	// baseCtx is the process's own lifetime context, passed to
	// Manager.Start so a scan's context isn't tied to the one HTTP
	// request that created it (a request's context is cancelled the
	// instant its handler returns, which happens right after the 202
	// response is written).
	baseCtx context.Context
}

// NewServer builds a Server and registers its routes. readDB may be nil, in
// which case read handlers fall back to the read-write pool (teacher's
// dbForRead pattern). ctx is the process-lifetime context under which
// scans run; it is typically the same context passed to Run.
func NewServer(ctx context.Context, cfg *config.Config, database, readDB *sql.DB, manager *engine.Manager) *Server {
	s := &Server{cfg: cfg, db: database, readDB: readDB, manager: manager, mux: http.NewServeMux(), baseCtx: ctx}
	s.routes()
	return s
}

func (s *Server) dbForRead() *sql.DB {
	if s.readDB != nil {
		return s.readDB
	}
	return s.db
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/scans", s.handleScansCreate())
	s.mux.HandleFunc("GET /api/scans/recent", s.handleScansRecent())
	s.mux.HandleFunc("GET /api/scans/{id}", s.handleScanGet())
	s.mux.HandleFunc("POST /api/scans/{id}/cancel", s.handleScanCancel())
	s.mux.HandleFunc("GET /api/scans/{id}/events", s.handleScanEvents())
	s.mux.HandleFunc("GET /api/scans/{id}/tree", s.handleTree())
	s.mux.HandleFunc("GET /api/scans/{id}/top", s.handleTop())
	s.mux.HandleFunc("GET /api/scans/{id}/list", s.handleList())
	s.mux.HandleFunc("GET /api/scans/{id}/search", s.handleSearch())
	s.mux.HandleFunc("GET /api/scans/{id}/export", s.handleExport())
	s.mux.HandleFunc("GET /api/scans/{id}/statistics", s.handleStatistics())
	s.mux.HandleFunc("GET /api/scans/{id}/warnings", s.handleWarnings())
	s.mux.HandleFunc("GET /api/drives", s.handleDrives())
	s.mux.HandleFunc("GET /healthz", s.handleHealth())
	s.mux.HandleFunc("/", s.handle404())
}

func (s *Server) handle404() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully (teacher's Server.Run in internal/server/server.go).
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(s.cfg.Port()),
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // none, so long-lived SSE event streams are not cut off
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/kestrel-labs/diskspector/internal/db"
)

// scanResponse is the "Scan summary response" of spec.md §6: a projection
// of the scan row plus human-readable totals for direct UI consumption.
type scanResponse struct {
	ID                   string   `json:"id"`
	Status               string   `json:"status"`
	RootPaths            []string `json:"root_paths"`
	Options              db.ScanOptions `json:"options"`
	StartedAt            string   `json:"started_at"`
	FinishedAt           *string  `json:"finished_at,omitempty"`
	TotalLogicalSize     *int64   `json:"total_logical_size,omitempty"`
	TotalAllocatedSize   *int64   `json:"total_allocated_size,omitempty"`
	DirCount             *int64   `json:"dir_count,omitempty"`
	FileCount            *int64   `json:"file_count,omitempty"`
	WarningCount         *int64   `json:"warning_count,omitempty"`
	TotalLogicalHuman    string   `json:"total_logical_size_human,omitempty"`
	TotalAllocatedHuman  string   `json:"total_allocated_size_human,omitempty"`
}

func toScanResponse(sc *db.Scan) scanResponse {
	resp := scanResponse{
		ID: sc.ID, Status: sc.Status, RootPaths: sc.RootPaths, Options: sc.Options,
		StartedAt: sc.StartedAt.Format(rfc3339),
		TotalLogicalSize: sc.TotalLogicalSize, TotalAllocatedSize: sc.TotalAllocatedSize,
		DirCount: sc.DirCount, FileCount: sc.FileCount, WarningCount: sc.WarningCount,
	}
	if sc.FinishedAt != nil {
		s := sc.FinishedAt.Format(rfc3339)
		resp.FinishedAt = &s
	}
	if sc.TotalLogicalSize != nil {
		resp.TotalLogicalHuman = humanize.Bytes(uint64NonNeg(*sc.TotalLogicalSize))
	}
	if sc.TotalAllocatedSize != nil {
		resp.TotalAllocatedHuman = humanize.Bytes(uint64NonNeg(*sc.TotalAllocatedSize))
	}
	return resp
}

func uint64NonNeg(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

const rfc3339 = "2006-01-02T15:04:05Z07:00"

func (s *Server) handleScansCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		opts, err := resolveScanOptions(req, s.cfg.ScanDefaults())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		scan, err := s.manager.Start(s.baseCtx, req.RootPaths, opts)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		log.Printf("[httpapi] scan %s created for roots %v", scan.ID, scan.RootPaths)
		writeJSON(w, http.StatusAccepted, toScanResponse(scan))
	}
}

func (s *Server) handleScanGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sc, err := db.GetScan(r.Context(), s.dbForRead(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toScanResponse(sc))
	}
}

func (s *Server) handleScanCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.manager.Cancel(id); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	}
}

func (s *Server) handleScansRecent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := intQuery(r, "limit", 0)
		scans, err := db.Recent(r.Context(), s.dbForRead(), limit)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		resp := make([]scanResponse, len(scans))
		for i := range scans {
			resp[i] = toScanResponse(&scans[i])
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleWarnings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		warnings, err := db.ListWarnings(r.Context(), s.dbForRead(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, warnings)
	}
}

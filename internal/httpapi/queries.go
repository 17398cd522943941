package httpapi

import (
	"net/http"

	"github.com/kestrel-labs/diskspector/internal/db"
)

// handleTree serves spec.md §4.6's "tree" endpoint: every node and file
// beneath ?prefix= (default the scan's own roots), capped at
// db.TreeMaxLimit.
func (s *Server) handleTree() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		prefix := stringQuery(r, "prefix", "")
		if prefix == "" {
			sc, err := db.GetScan(r.Context(), s.dbForRead(), id)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			entries, err := listRootsTree(r, s, sc)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, entries)
			return
		}
		entries, err := db.Tree(r.Context(), s.dbForRead(), id, prefix, intQuery(r, "limit", 0))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// listRootsTree returns the tree rooted at each of a scan's own root paths
// combined, for the no-?prefix= case.
func listRootsTree(r *http.Request, s *Server, sc *db.Scan) ([]db.TreeEntry, error) {
	limit := intQuery(r, "limit", 0)
	if limit <= 0 || limit > db.TreeMaxLimit {
		limit = db.TreeMaxLimit
	}
	var out []db.TreeEntry
	for _, root := range sc.RootPaths {
		if len(out) >= limit {
			break
		}
		entries, err := db.Tree(r.Context(), s.dbForRead(), sc.ID, root, limit-len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// handleTop serves spec.md §4.6's "top" endpoint: largest directories and
// files by allocated size, each capped at db.TopMaxLimit.
func (s *Server) handleTop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		result, err := db.Top(r.Context(), s.dbForRead(), id, intQuery(r, "limit", 0))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// handleList serves spec.md §4.6's "list" endpoint: a directory's
// immediate children, with ?parent=, ?offset=, ?limit=. A missing or empty
// ?parent= lists the scan's own roots.
func (s *Server) handleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		parent := stringQuery(r, "parent", "")
		if parent == "" {
			sc, err := db.GetScan(r.Context(), s.dbForRead(), id)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			entries, err := db.ListRoots(r.Context(), s.dbForRead(), sc)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, entries)
			return
		}
		entries, err := db.List(r.Context(), s.dbForRead(), id, parent, intQuery(r, "offset", 0), intQuery(r, "limit", 0))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// handleSearch serves spec.md §4.6's "search" endpoint: files whose path
// contains ?q=, capped at db.ListMaxLimit.
func (s *Server) handleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		q := stringQuery(r, "q", "")
		if q == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}
		files, err := db.Search(r.Context(), s.dbForRead(), id, q, intQuery(r, "limit", 0))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, files)
	}
}

// handleStatistics serves spec.md §4.6's "statistics" endpoint: a scan's
// aggregate totals plus its warning count.
func (s *Server) handleStatistics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		stats, err := db.GetStatistics(r.Context(), s.dbForRead(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Scan         scanResponse `json:"scan"`
			WarningCount int64        `json:"warning_count"`
		}{Scan: toScanResponse(&stats.Scan), WarningCount: stats.WarningCount})
	}
}

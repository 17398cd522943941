package httpapi

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"

	"github.com/kestrel-labs/diskspector/internal/db"
)

// handleExport serves the supplemented export endpoint (SPEC_FULL.md §5
// "Export formats: both CSV and JSON"), content-negotiated by ?format= (or
// Accept header, JSON by default), capped at db.ExportMaxLimit.
func (s *Server) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		prefix := stringQuery(r, "prefix", "")
		rows, err := db.Export(r.Context(), s.dbForRead(), id, prefix, intQuery(r, "limit", 0))
		if err != nil {
			writeEngineError(w, err)
			return
		}

		if wantsCSV(r) {
			writeExportCSV(w, rows)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func wantsCSV(r *http.Request) bool {
	if f := strings.ToLower(stringQuery(r, "format", "")); f != "" {
		return f == "csv"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}

func writeExportCSV(w http.ResponseWriter, rows []db.ExportRow) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="export.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"path", "is_dir", "logical_size", "allocated_size"})
	for _, row := range rows {
		_ = cw.Write([]string{
			row.Path,
			strconv.FormatBool(row.IsDir),
			strconv.FormatInt(row.LogicalSize, 10),
			strconv.FormatInt(row.AllocatedSize, 10),
		})
	}
	cw.Flush()
}

package httpapi

import (
	"net/http"

	"github.com/kestrel-labs/diskspector/internal/drives"
)

// handleDrives serves the supplemented drive/volume listing endpoint
// (SPEC_FULL.md §5 "GET /api/drives"), for populating a root-path picker.
func (s *Server) handleDrives() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := drives.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

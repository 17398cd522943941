package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kestrel-labs/diskspector/internal/db"
	"github.com/kestrel-labs/diskspector/internal/engine"
)

// writeJSON encodes v as the response body with the given status. Matches
// the teacher's json.NewEncoder(w).Encode(...) idiom (server.go
// handleScanRootsList) rather than pre-marshaling into a buffer.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeEngineError classifies an error returned by the engine/db layer into
// an HTTP status, per spec.md §7's "Invalid request" vs. everything else
// distinction: ValidationError -> 400, not-found sentinels -> 404,
// pagination-abuse sentinels -> 400, everything else -> 500.
func writeEngineError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, engine.ErrScanNotFound):
		writeError(w, http.StatusNotFound, "scan not found")
	case errors.Is(err, db.ErrInvalidOffset), errors.Is(err, db.ErrOffsetSpanTooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

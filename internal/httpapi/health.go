package httpapi

import "net/http"

// handleHealth serves the supplemented health endpoint (SPEC_FULL.md §5
// "GET /healthz ... store ping + version string"), grounded on the
// teacher's handleHealth in internal/server/server.go.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
	}
}

// Version is the diskspector build version, overridable at link time via
// -ldflags "-X github.com/kestrel-labs/diskspector/internal/httpapi.Version=...".
var Version = "dev"

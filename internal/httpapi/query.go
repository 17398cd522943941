package httpapi

import (
	"net/http"
	"strconv"
)

// intQuery parses an integer query parameter, returning def if absent or
// unparseable (handlers clamp against the store's own result caps anyway,
// per spec.md §4.6, so a malformed value just falls back rather than
// erroring).
func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func stringQuery(r *http.Request, name, def string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	return def
}

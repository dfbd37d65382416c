package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// WriteJSON marshals v as JSON and writes it to w with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// ListResponse is the offset-paginated list envelope.
type ListResponse struct {
	Results []any `json:"results"`
	Total   int   `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
}

// QueryDate parses an ISO date query parameter, returning fallback when the
// parameter is absent. ok is false when the value is present but malformed.
func QueryDate(r *http.Request, name string, fallback time.Time) (d time.Time, ok bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, true
	}
	d, err := week.Parse(v)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// QueryInt parses an integer query parameter, returning fallback when absent
// or malformed.
func QueryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// QueryBool parses a boolean query parameter, returning fallback when absent
// or malformed. Accepts 1/0 and true/false.
func QueryBool(r *http.Request, name string, fallback bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

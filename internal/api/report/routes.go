package report

import (
	"log/slog"
	"net/http"

	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
)

// RegisterRoutes registers the snapshot and report endpoints on the mux.
func RegisterRoutes(mux *http.ServeMux, st *store.Store, cfg config.Cadence, logger *slog.Logger) {
	h := &Handler{store: st, cfg: cfg, logger: logger}

	mux.HandleFunc("GET /analytics/cadence/snap-week", h.SnapWeek)
	mux.HandleFunc("GET /analytics/cadence/weekly-report", h.WeeklyReport)
	mux.HandleFunc("GET /health", h.Health)
}

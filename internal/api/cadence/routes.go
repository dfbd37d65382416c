package cadence

import (
	"log/slog"
	"net/http"

	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
)

// RegisterRoutes registers the cadence endpoints on the mux.
func RegisterRoutes(mux *http.ServeMux, st *store.Store, cfg config.Cadence, logger *slog.Logger) {
	h := &Handler{store: st, cfg: cfg, logger: logger}

	mux.HandleFunc("GET /analytics/cadence/rebuild", h.Rebuild)
	mux.HandleFunc("GET /analytics/cadence/cadences", h.Browse)
	mux.HandleFunc("GET /analytics/cadence/person/{id}", h.Person)
	mux.HandleFunc("POST /analytics/cadence/reset", h.Reset)
}

// Package report serves the snapshot and weekly-report endpoints.
package report

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/api"
	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/report"
	"github.com/josh20ny/np-analytics-app-sub000/internal/snapshot"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// Handler serves snapshot builds and the assembled weekly report.
type Handler struct {
	store  *store.Store
	cfg    config.Cadence
	logger *slog.Logger
}

// SnapWeek builds (or rebuilds) the per-person snapshot for one week.
func (h *Handler) SnapWeek(w http.ResponseWriter, r *http.Request) {
	corrID := api.CorrelationID(r.Context())

	weekEnd, ok := api.QueryDate(r, "week_end", week.LastSunday(time.Now().UTC()))
	if !ok {
		api.WriteError(w, http.StatusBadRequest, api.NewInputError("invalid week_end date", corrID))
		return
	}
	weekEnd = week.LastSunday(weekEnd)

	builder := snapshot.NewBuilder(h.store, h.cfg, h.logger)
	res, err := builder.Build(r.Context(), weekEnd, api.QueryBool(r, "rebuild_cadence", true))
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"week_start":    week.Format(res.WeekStart),
		"week_end":      week.Format(res.WeekEnd),
		"rows_upserted": res.RowsUpserted,
		"people":        res.People,
	})
}

// WeeklyReport assembles the full weekly report for the week containing
// week_end. Days that are not Sundays snap back to the previous Sunday.
func (h *Handler) WeeklyReport(w http.ResponseWriter, r *http.Request) {
	corrID := api.CorrelationID(r.Context())

	weekEnd, ok := api.QueryDate(r, "week_end", week.LastSunday(time.Now().UTC()))
	if !ok {
		api.WriteError(w, http.StatusBadRequest, api.NewInputError("invalid week_end date", corrID))
		return
	}

	opts := report.DefaultOptions()
	opts.EnsureSnapshot = api.QueryBool(r, "ensure_snapshot", opts.EnsureSnapshot)
	opts.PersistFrontDoor = api.QueryBool(r, "persist_front_door", opts.PersistFrontDoor)
	if days := api.QueryInt(r, "rolling_days", 0); days > 0 {
		opts.RollingDays = days
	}

	agg := report.NewAggregator(h.store, h.cfg, h.logger)
	rep, err := agg.WeeklyReport(r.Context(), weekEnd, opts)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}

	api.WriteJSON(w, http.StatusOK, rep)
}

// Health reports liveness. It also pings the database so orchestrators see
// a broken store as unhealthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		api.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

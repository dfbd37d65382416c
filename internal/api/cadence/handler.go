// Package cadence serves the cadence endpoints: rebuild, browse, person
// detail and the destructive reset.
package cadence

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/api"
	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/snapshot"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// ResetConfirmToken is the exact token the reset endpoint requires before
// truncating derived tables.
const ResetConfirmToken = "RESET-CADENCE"

// Handler serves the cadence API.
type Handler struct {
	store  *store.Store
	cfg    config.Cadence
	logger *slog.Logger
}

// cadenceRow is the wire shape of one person_cadence row.
type cadenceRow struct {
	PersonID           string        `json:"person_id"`
	Name               string        `json:"name,omitempty"`
	Email              string        `json:"email,omitempty"`
	Signal             domain.Signal `json:"signal"`
	Bucket             domain.Bucket `json:"bucket"`
	MedianIntervalDays *int          `json:"median_interval_days"`
	IQRDays            *int          `json:"iqr_days"`
	LastSeenDate       string        `json:"last_seen_date,omitempty"`
	ExpectedNextDate   string        `json:"expected_next_date,omitempty"`
	MissedCycles       int           `json:"missed_cycles"`
	SamplesN           int           `json:"samples_n"`
	CalcMethod         string        `json:"calc_method"`
	CampusID           *string       `json:"campus_id,omitempty"`
}

func toCadenceRow(c domain.PersonCadence) cadenceRow {
	return cadenceRow{
		PersonID:           c.PersonID,
		Signal:             c.Signal,
		Bucket:             c.Bucket,
		MedianIntervalDays: c.MedianIntervalDays,
		IQRDays:            c.IQRDays,
		LastSeenDate:       week.FormatPtr(c.LastSeenDate),
		ExpectedNextDate:   week.FormatPtr(c.ExpectedNextDate),
		MissedCycles:       c.MissedCycles,
		SamplesN:           c.SamplesN,
		CalcMethod:         c.CalcMethod,
		CampusID:           c.CampusID,
	}
}

// parseSignals resolves a comma-separated signals parameter, defaulting to
// the configured signal set.
func (h *Handler) parseSignals(raw string) ([]domain.Signal, error) {
	if raw == "" {
		return h.cfg.Signals, nil
	}
	var out []domain.Signal
	for _, part := range strings.Split(raw, ",") {
		sig, ok := domain.ParseSignal(strings.TrimSpace(part))
		if !ok {
			return nil, fmt.Errorf("unknown signal %q", part)
		}
		out = append(out, sig)
	}
	return out, nil
}

// Rebuild recomputes cadence rows for the requested signals as of week_end.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	corrID := api.CorrelationID(r.Context())

	signals, err := h.parseSignals(r.URL.Query().Get("signals"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.NewInputError(err.Error(), corrID))
		return
	}
	asOf, ok := api.QueryDate(r, "week_end", week.LastSunday(time.Now().UTC()))
	if !ok {
		api.WriteError(w, http.StatusBadRequest, api.NewInputError("invalid week_end date", corrID))
		return
	}
	asOf = week.LastSunday(asOf)

	cfg := h.cfg
	if days := api.QueryInt(r, "rolling_days", 0); days > 0 {
		cfg.RollingDays = days
	}
	// An explicit window start wins over rolling_days.
	since, ok := api.QueryDate(r, "since", time.Time{})
	if !ok {
		api.WriteError(w, http.StatusBadRequest, api.NewInputError("invalid since date", corrID))
		return
	}
	if !since.IsZero() {
		days := week.DaysBetween(since, asOf)
		if days < 1 {
			api.WriteError(w, http.StatusBadRequest, api.NewInputError("since must be before week_end", corrID))
			return
		}
		cfg.RollingDays = days
	}

	builder := snapshot.NewBuilder(h.store, cfg, h.logger)
	if err := builder.RebuildCadences(r.Context(), asOf, signals); err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"as_of":        week.Format(asOf),
		"signals":      signals,
		"rolling_days": cfg.RollingDays,
	})
}

// Browse lists cadence rows with filtering and offset pagination.
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	corrID := api.CorrelationID(r.Context())

	sig, ok := domain.ParseSignal(r.URL.Query().Get("signal"))
	if !ok {
		api.WriteError(w, http.StatusBadRequest, api.NewInputError("signal parameter is required", corrID))
		return
	}

	opts := store.BrowseOpts{
		Signal:        sig,
		ExcludeLapsed: api.QueryBool(r, "exclude_lapsed", true),
		Threshold:     h.cfg.LapseCyclesThreshold,
		Query:         r.URL.Query().Get("q"),
		OrderBy:       r.URL.Query().Get("order_by"),
		Limit:         api.QueryInt(r, "limit", 50),
		Offset:        api.QueryInt(r, "offset", 0),
	}
	if b := r.URL.Query().Get("bucket"); b != "" {
		opts.Bucket = domain.Bucket(b)
	}

	items, total, err := h.store.Cadence.Browse(r.Context(), opts)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}

	results := make([]any, 0, len(items))
	for _, item := range items {
		row := toCadenceRow(item.PersonCadence)
		row.Name = item.Name
		row.Email = item.Email
		results = append(results, row)
	}
	api.WriteJSON(w, http.StatusOK, api.ListResponse{
		Results: results,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// personDetail is the person endpoint payload.
type personDetail struct {
	PersonID    string              `json:"person_id"`
	Name        string              `json:"name"`
	Email       string              `json:"email,omitempty"`
	HouseholdID string              `json:"household_id,omitempty"`
	Cadences    []cadenceRow        `json:"cadences"`
	Recent      map[string][]string `json:"recent_events"`
}

// Person returns one person's cadences plus their recent activity dates.
func (h *Handler) Person(w http.ResponseWriter, r *http.Request) {
	corrID := api.CorrelationID(r.Context())
	personID := r.PathValue("id")

	p, err := h.store.People.Get(r.Context(), personID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.WriteError(w, http.StatusNotFound, api.NewNotFoundError("person not found", corrID))
			return
		}
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}

	days := api.QueryInt(r, "days", 90)
	if days <= 0 {
		days = 90
	}
	until := week.Truncate(time.Now().UTC())
	since := until.AddDate(0, 0, -days)

	signals := []domain.Signal{domain.SignalAttend, domain.SignalGive, domain.SignalServe, domain.SignalGroup}
	cadences, err := h.store.Cadence.ForPerson(r.Context(), personID, signals)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}

	detail := personDetail{
		PersonID:    p.PersonID,
		Name:        p.Name(),
		Email:       p.Email,
		HouseholdID: p.HouseholdID,
		Cadences:    make([]cadenceRow, 0, len(cadences)),
		Recent:      map[string][]string{},
	}
	for _, c := range cadences {
		detail.Cadences = append(detail.Cadences, toCadenceRow(c))
	}

	attendance, err := h.store.Facts.AttendanceEvents(r.Context(), since, until)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}
	giving, err := h.store.Facts.GivingEvents(r.Context(), since, until)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}
	detail.Recent["attend"] = formatDates(attendance[personID])
	detail.Recent["give"] = formatDates(giving[personID])

	api.WriteJSON(w, http.StatusOK, detail)
}

func formatDates(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, week.Format(d))
	}
	return out
}

// Reset truncates all derived tables and optionally backfills by looping
// Sundays. It refuses to touch anything without the exact confirmation
// token.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corrID := api.CorrelationID(ctx)

	if r.URL.Query().Get("confirm") != ResetConfirmToken {
		api.WriteError(w, http.StatusBadRequest, api.NewConfirmationError(
			fmt.Sprintf("reset requires confirm=%s", ResetConfirmToken), corrID))
		return
	}

	backfill := api.QueryBool(r, "backfill", false)
	signals, err := h.parseSignals(r.URL.Query().Get("signals"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.NewInputError(err.Error(), corrID))
		return
	}

	// Validate the window before any mutation.
	endDate, ok := api.QueryDate(r, "end_date", week.LastSunday(time.Now().UTC()))
	if !ok {
		api.WriteError(w, http.StatusBadRequest, api.NewInputError("invalid end_date", corrID))
		return
	}
	startDate, ok := api.QueryDate(r, "start_date", time.Time{})
	if !ok {
		api.WriteError(w, http.StatusBadRequest, api.NewInputError("invalid start_date", corrID))
		return
	}

	for _, del := range []func() error{
		func() error { return h.store.Lapses.DeleteAll(ctx) },
		func() error { return h.store.Weekly.DeleteAll(ctx) },
		func() error { return h.store.Snapshots.DeleteAll(ctx) },
		func() error { return h.store.Cadence.DeleteAll(ctx) },
	} {
		if err := del(); err != nil {
			api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
			return
		}
	}
	h.logger.Warn("derived tables truncated", "correlation_id", corrID)

	weeksRebuilt := 0
	if backfill {
		if startDate.IsZero() {
			earliest, err := h.store.Facts.EarliestFactDate(ctx)
			if err != nil {
				api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
				return
			}
			if earliest == nil {
				api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "weeks_rebuilt": 0})
				return
			}
			startDate = *earliest
		}

		builder := snapshot.NewBuilder(h.store, h.cfg, h.logger)
		for _, sunday := range week.Sundays(startDate, endDate) {
			if err := builder.RebuildCadences(ctx, sunday, signals); err != nil {
				api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
				return
			}
			if _, err := builder.Build(ctx, sunday, false); err != nil {
				api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
				return
			}
			weeksRebuilt++
		}
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"weeks_rebuilt": weeksRebuilt,
	})
}

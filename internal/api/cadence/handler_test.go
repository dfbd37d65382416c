package cadence_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/api"
	"github.com/josh20ny/np-analytics-app-sub000/internal/api/cadence"
	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
	"github.com/josh20ny/np-analytics-app-sub000/internal/testhelpers"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

func setupServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st := store.New(testhelpers.NewMigratedDB(t))

	mux := http.NewServeMux()
	cadence.RegisterRoutes(mux, st, config.DefaultCadence(), slog.Default())

	handler := api.Chain(mux, api.RequestID())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, st
}

func seedGiver(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	if err := st.Facts.InsertPerson(ctx, domain.Person{
		PersonID:  "p1",
		FirstName: "Mona",
		LastName:  "Monthly",
		Email:     "mona@example.com",
	}); err != nil {
		t.Fatalf("insert person: %v", err)
	}
	for _, d := range []string{"2025-03-09", "2025-04-06", "2025-05-04", "2025-06-01"} {
		day, err := week.Parse(d)
		if err != nil {
			t.Fatalf("parse %s: %v", d, err)
		}
		if err := st.Facts.InsertGiving(ctx, "p1", day, 1); err != nil {
			t.Fatalf("insert giving: %v", err)
		}
	}
}

func TestRebuildEndpoint(t *testing.T) {
	srv, st := setupServer(t)
	seedGiver(t, st)

	resp, err := http.Get(srv.URL + "/analytics/cadence/rebuild?signals=give&week_end=2025-06-08")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["as_of"] != "2025-06-08" {
		t.Errorf("as_of = %v, want 2025-06-08", body["as_of"])
	}

	got, err := st.Cadence.Get(context.Background(), "p1", domain.SignalGive)
	if err != nil {
		t.Fatalf("cadence row not built: %v", err)
	}
	if got.Bucket != domain.BucketMonthly {
		t.Errorf("bucket = %q, want monthly", got.Bucket)
	}
}

func TestRebuildRejectsUnknownSignal(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/analytics/cadence/rebuild?signals=bogus")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var apiErr api.Error
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if apiErr.Category != api.CategoryInput {
		t.Errorf("category = %q, want %q", apiErr.Category, api.CategoryInput)
	}
}

func TestBrowseEndpoint(t *testing.T) {
	srv, st := setupServer(t)
	seedGiver(t, st)

	med, iqr := 30, 3
	last, next := week.Date(2025, 6, 1), week.Date(2025, 7, 1)
	if _, err := st.Cadence.Upsert(context.Background(), []domain.PersonCadence{{
		PersonID:           "p1",
		Signal:             domain.SignalGive,
		Bucket:             domain.BucketMonthly,
		MedianIntervalDays: &med,
		IQRDays:            &iqr,
		LastSeenDate:       &last,
		ExpectedNextDate:   &next,
		SamplesN:           4,
		CalcMethod:         domain.CalcMethodIntervals,
	}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	resp, err := http.Get(srv.URL + "/analytics/cadence/cadences?signal=give&bucket=monthly&q=mona")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var list struct {
		Results []map[string]any `json:"results"`
		Total   int              `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || len(list.Results) != 1 {
		t.Fatalf("total = %d, results = %d, want 1/1", list.Total, len(list.Results))
	}
	if list.Results[0]["name"] != "Mona Monthly" {
		t.Errorf("name = %v, want Mona Monthly", list.Results[0]["name"])
	}
	if list.Results[0]["bucket"] != "monthly" {
		t.Errorf("bucket = %v, want monthly", list.Results[0]["bucket"])
	}
}

func TestBrowseRequiresSignal(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/analytics/cadence/cadences")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPersonEndpoint(t *testing.T) {
	srv, st := setupServer(t)
	seedGiver(t, st)

	med := 30
	last := week.Date(2025, 6, 1)
	if _, err := st.Cadence.Upsert(context.Background(), []domain.PersonCadence{{
		PersonID:           "p1",
		Signal:             domain.SignalGive,
		Bucket:             domain.BucketMonthly,
		MedianIntervalDays: &med,
		LastSeenDate:       &last,
		SamplesN:           4,
		CalcMethod:         domain.CalcMethodIntervals,
	}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	resp, err := http.Get(srv.URL + "/analytics/cadence/person/p1?days=3650")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var detail struct {
		PersonID string           `json:"person_id"`
		Name     string           `json:"name"`
		Cadences []map[string]any `json:"cadences"`
		Recent   map[string][]string `json:"recent_events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.PersonID != "p1" || detail.Name != "Mona Monthly" {
		t.Errorf("person = %s/%s, want p1/Mona Monthly", detail.PersonID, detail.Name)
	}
	if len(detail.Cadences) != 1 {
		t.Fatalf("cadences = %d, want 1", len(detail.Cadences))
	}
	if len(detail.Recent["give"]) != 4 {
		t.Errorf("recent gifts = %d, want 4", len(detail.Recent["give"]))
	}
}

func TestPersonNotFound(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/analytics/cadence/person/nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var apiErr api.Error
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if apiErr.Category != api.CategoryNotFound {
		t.Errorf("category = %q, want %q", apiErr.Category, api.CategoryNotFound)
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	srv, st := setupServer(t)
	ctx := context.Background()

	med := 30
	if _, err := st.Cadence.Upsert(ctx, []domain.PersonCadence{{
		PersonID:           "p1",
		Signal:             domain.SignalGive,
		Bucket:             domain.BucketMonthly,
		MedianIntervalDays: &med,
		SamplesN:           4,
		CalcMethod:         domain.CalcMethodIntervals,
	}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	resp, err := http.Post(srv.URL+"/analytics/cadence/reset?confirm=wrong", "application/json", http.NoBody)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var apiErr api.Error
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if apiErr.Category != api.CategoryConfirmation {
		t.Errorf("category = %q, want %q", apiErr.Category, api.CategoryConfirmation)
	}

	// Nothing was deleted.
	if _, err := st.Cadence.Get(ctx, "p1", domain.SignalGive); err != nil {
		t.Errorf("cadence row should survive a refused reset: %v", err)
	}
}

func TestResetTruncatesDerivedTables(t *testing.T) {
	srv, st := setupServer(t)
	ctx := context.Background()

	med := 30
	if _, err := st.Cadence.Upsert(ctx, []domain.PersonCadence{{
		PersonID:           "p1",
		Signal:             domain.SignalGive,
		Bucket:             domain.BucketMonthly,
		MedianIntervalDays: &med,
		SamplesN:           4,
		CalcMethod:         domain.CalcMethodIntervals,
	}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	resp, err := http.Post(srv.URL+"/analytics/cadence/reset?confirm="+cadence.ResetConfirmToken, "application/json", http.NoBody)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if _, err := st.Cadence.Get(ctx, "p1", domain.SignalGive); err == nil {
		t.Error("cadence row should be gone after reset")
	}
}

func TestResetBackfillRebuildsWeeks(t *testing.T) {
	srv, st := setupServer(t)
	seedGiver(t, st)
	ctx := context.Background()

	url := srv.URL + "/analytics/cadence/reset?confirm=" + cadence.ResetConfirmToken +
		"&backfill=true&signals=give&start_date=2025-05-26&end_date=2025-06-08"
	resp, err := http.Post(url, "application/json", http.NoBody)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["weeks_rebuilt"] != float64(2) {
		t.Errorf("weeks_rebuilt = %v, want 2", body["weeks_rebuilt"])
	}

	// Both Sundays got snapshots.
	for _, d := range []time.Time{week.Date(2025, 6, 1), week.Date(2025, 6, 8)} {
		rows, err := st.Snapshots.RowsForWeek(ctx, d)
		if err != nil {
			t.Fatalf("rows for %s: %v", week.Format(d), err)
		}
		if len(rows) == 0 {
			t.Errorf("no snapshot rows for %s", week.Format(d))
		}
	}
}

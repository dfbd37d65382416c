package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/josh20ny/np-analytics-app-sub000/internal/api"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	data := map[string]string{"key": "value"}

	api.WriteJSON(rec, http.StatusOK, data)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var result map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("key = %q, want %q", result["key"], "value")
	}
}

func TestQueryDate(t *testing.T) {
	fallback := week.Date(2025, 6, 8)

	req := httptest.NewRequest(http.MethodGet, "/?week_end=2025-06-01", http.NoBody)
	d, ok := api.QueryDate(req, "week_end", fallback)
	if !ok || week.Format(d) != "2025-06-01" {
		t.Errorf("QueryDate = %v/%v, want 2025-06-01/true", d, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	d, ok = api.QueryDate(req, "week_end", fallback)
	if !ok || !d.Equal(fallback) {
		t.Errorf("missing param = %v/%v, want fallback/true", d, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/?week_end=not-a-date", http.NoBody)
	if _, ok := api.QueryDate(req, "week_end", fallback); ok {
		t.Error("malformed date should not be ok")
	}
}

func TestQueryIntAndBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&exclude_lapsed=false", http.NoBody)

	if n := api.QueryInt(req, "limit", 50); n != 25 {
		t.Errorf("limit = %d, want 25", n)
	}
	if n := api.QueryInt(req, "offset", 0); n != 0 {
		t.Errorf("offset = %d, want fallback 0", n)
	}
	if b := api.QueryBool(req, "exclude_lapsed", true); b {
		t.Error("exclude_lapsed = true, want false")
	}
	if b := api.QueryBool(req, "missing", true); !b {
		t.Error("missing bool should fall back to true")
	}
}

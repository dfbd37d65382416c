package conformance_test

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

// doRequest makes an authenticated HTTP request to the test server and
// returns the response. The caller is responsible for closing the body.
func doRequest(t *testing.T, method, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, serverURL+path, http.NoBody)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// readJSON reads the response body and unmarshals it into a map.
func readJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("unmarshal response (status %d): body=%s err=%v", resp.StatusCode, string(b), err)
	}
	return result
}

// mustStatus asserts the HTTP response has the expected status code.
func mustStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d; body=%s", expected, resp.StatusCode, string(b))
	}
}

// assertErrorEnvelope validates the standard error envelope shape.
func assertErrorEnvelope(t *testing.T, body map[string]any, expectedCategory string) {
	t.Helper()
	if body["status"] != "error" {
		t.Errorf("status = %v, want error", body["status"])
	}
	if body["category"] != expectedCategory {
		t.Errorf("category = %v, want %s", body["category"], expectedCategory)
	}
	if body["correlationId"] == "" || body["correlationId"] == nil {
		t.Error("correlationId is empty")
	}
}

// section digs a nested object out of a decoded JSON map.
func section(t *testing.T, body map[string]any, key string) map[string]any {
	t.Helper()
	m, ok := body[key].(map[string]any)
	if !ok {
		t.Fatalf("missing or non-object section %q in %v", key, body)
	}
	return m
}

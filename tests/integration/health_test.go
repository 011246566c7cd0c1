//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestLivez(t *testing.T) {
	resp := do(t, http.MethodGet, "/livez", "", nil)
	wantStatus(t, resp, http.StatusOK)

	h := decodeBody[healthResponse](t, resp)
	if h.Status != "ok" {
		t.Fatalf("livez status: got %s, want ok", h.Status)
	}
}

func TestReadyz(t *testing.T) {
	resp := do(t, http.MethodGet, "/readyz", "", nil)
	wantStatus(t, resp, http.StatusOK)

	h := decodeBody[healthResponse](t, resp)
	if h.Status != "ok" {
		t.Fatalf("readyz status: got %s, want ok", h.Status)
	}
}

func TestUnknownRouteHasErrorShape(t *testing.T) {
	resp := do(t, http.MethodGet, "/api/unknown", "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	// The rate limit headers are applied on every response, even 404s.
	if resp.Header.Get("X-RateLimit-Limit") == "" {
		t.Error("missing X-RateLimit-Limit header")
	}
}

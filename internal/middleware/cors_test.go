package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	h := CORS([]string{"https://dash.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/vehicles", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if resp.Header().Get("Vary") == "" {
		t.Fatal("expected Vary header for per-origin responses")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/vehicles", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for foreign site %q", got)
	}
	if resp.Code != http.StatusOK {
		t.Fatalf("expected request to reach handler, got %d", resp.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/issues", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code < 200 || resp.Code >= 300 {
		t.Fatalf("expected 2xx preflight, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected wildcard origin")
	}
	if resp.Header().Get("Access-Control-Allow-Methods") != http.MethodPost {
		t.Fatalf("unexpected allow methods %q", resp.Header().Get("Access-Control-Allow-Methods"))
	}
	if resp.Header().Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("unexpected max age %q", resp.Header().Get("Access-Control-Max-Age"))
	}
}

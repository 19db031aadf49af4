package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/vehicle"
	chatService "github.com/zhouzirui/vehicle-assist/backend/internal/service/chat"
	intakeService "github.com/zhouzirui/vehicle-assist/backend/internal/service/intake"
	issueService "github.com/zhouzirui/vehicle-assist/backend/internal/service/issue"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	vehicles := vehicle.NewMemoryStore(vehicle.Seed())
	repo := issueService.NewMemoryRepository()
	chatSvc := chatService.NewService()
	intakeSvc := intakeService.NewService(intakeService.Deps{Submitter: issueService.NewStoreSubmitter(repo)}, vehicles)
	t.Cleanup(chatSvc.Close)
	t.Cleanup(intakeSvc.Close)

	return NewRouter([]string{"http://localhost:5173"}, Services{
		Vehicles: vehicles,
		Chat:     chatSvc,
		Intake:   intakeSvc,
		Issues:   repo,
	})
}

func TestRouterHealthAndCORS(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestRouterMountsDomainRoutes(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/api/vehicles", "/api/issue-tags", "/api/issues"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/intake/session", strings.NewReader(`{"vehicle":"nexon-ev"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
}

func TestRouterSkipsSpeechWithoutTranscriber(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/speech/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

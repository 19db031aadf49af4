package issue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
	issueservice "github.com/zhouzirui/vehicle-assist/backend/internal/service/issue"
)

func setupRouter() (*chi.Mux, *issueservice.MemoryRepository) {
	repo := issueservice.NewMemoryRepository()
	r := chi.NewRouter()
	New(repo).RegisterRoutes(r)
	return r, repo
}

func TestCreateIssue(t *testing.T) {
	r, _ := setupRouter()
	body := `{"description":"Nexon - Brake pedal feels spongy","category":"Brakes","severity":"high","suggestedActions":["Stop driving"],"vehicleModel":"Nexon","status":"open","createdAt":"2026-05-01T09:00:00Z"}`

	req := httptest.NewRequest(http.MethodPost, "/issues", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var stored issue.Record
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.ID == "" || stored.Severity != issue.SeverityHigh {
		t.Fatalf("unexpected stored record %+v", stored)
	}
	if !stored.CreatedAt.Equal(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("createdAt not preserved: %v", stored.CreatedAt)
	}
}

func TestCreateIssueValidation(t *testing.T) {
	r, _ := setupRouter()
	for _, body := range []string{`{}`, `{"description":"x","severity":"critical"}`, `nope`} {
		req := httptest.NewRequest(http.MethodPost, "/issues", strings.NewReader(body))
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, resp.Code)
		}
	}
}

func TestCreateIssueDefaultsEmptyActions(t *testing.T) {
	r, _ := setupRouter()
	req := httptest.NewRequest(http.MethodPost, "/issues", strings.NewReader(`{"description":"Oil leak"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if !strings.Contains(resp.Body.String(), `"suggestedActions":[]`) {
		t.Fatalf("expected empty actions array, got %s", resp.Body.String())
	}
}

func TestGetAndListIssues(t *testing.T) {
	r, repo := setupRouter()
	stored, _ := repo.Create(context.Background(), issue.Record{Description: "x", Severity: issue.SeverityLow, CreatedAt: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/issues/"+stored.ID, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/issues/unknown", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/issues?limit=abc", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/issues?limit=5", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	var list []issue.Record
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(list))
	}
}

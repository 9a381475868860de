//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/shsh-practice/internal/config"
	"github.com/ashureev/shsh-practice/internal/domain"
	"github.com/ashureev/shsh-practice/internal/identity"
	"github.com/ashureev/shsh-practice/internal/live"
	"github.com/go-chi/chi/v5"
)

type fakeRepo struct {
	mu      sync.Mutex
	events  []*domain.ActivityEvent
	pingErr error
	listErr error
	gotArgs []interface{}
}

func (f *fakeRepo) RecordEvent(_ context.Context, ev *domain.ActivityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRepo) ListEvents(_ context.Context, userID, challengeID string, limit int) ([]*domain.ActivityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotArgs = []interface{}{userID, challengeID, limit}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func (f *fakeRepo) CleanupOlderThan(context.Context, time.Duration) (int64, error) { return 0, nil }

func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }

func (f *fakeRepo) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		History: config.HistoryConfig{PageSize: 20},
		Timer:   config.TimerConfig{TickInterval: time.Second},
		Submit:  config.SubmitConfig{RateLimit: 10, RateWindow: time.Minute},
	}
}

func newTestRouter(repo *fakeRepo) chi.Router {
	r := chi.NewRouter()
	NewHealthHandler(repo, time.Second).RegisterHealth(r)
	NewPracticeHandler(NewHandler(repo, live.NewSessionManager(), testConfig())).RegisterRoutes(r)
	return r
}

func authed(req *http.Request, userID string) *http.Request {
	return req.WithContext(identity.WithIdentity(req.Context(), userID, "tok", "tab-1"))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return got
}

func TestHealth(t *testing.T) {
	repo := &fakeRepo{}
	rec := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := decode(t, rec)["status"]; got != "healthy" {
		t.Errorf("Expected healthy, got %v", got)
	}

	repo.pingErr = errors.New("db down")
	rec = httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
	if got := decode(t, rec)["status"]; got != "degraded" {
		t.Errorf("Expected degraded, got %v", got)
	}
}

func TestGetMe(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeRepo{}).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/me", nil), "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	got := decode(t, rec)
	if got["user_id"] != "user-1" || got["session_id"] != "tab-1" || got["view_active"] != false {
		t.Errorf("Unexpected body %v", got)
	}

	rec = httptest.NewRecorder()
	newTestRouter(&fakeRepo{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without identity, got %d", rec.Code)
	}
}

func TestGetConfig(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeRepo{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	got := decode(t, rec)
	if got["history_page_size"] != float64(20) || got["timer_tick_interval_ms"] != float64(1000) {
		t.Errorf("Unexpected config %v", got)
	}
}

func TestGetActivity(t *testing.T) {
	repo := &fakeRepo{events: []*domain.ActivityEvent{
		{ID: "e1", UserID: "user-1", ChallengeID: "ch-1", Kind: domain.ActivityTimerStart},
	}}
	rec := httptest.NewRecorder()
	req := authed(httptest.NewRequest(http.MethodGet, "/api/activity?challenge_id=ch-1&limit=5", nil), "user-1")
	newTestRouter(repo).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	events, ok := decode(t, rec)["events"].([]interface{})
	if !ok || len(events) != 1 {
		t.Fatalf("Expected 1 event, got %v", events)
	}
	if repo.gotArgs[0] != "user-1" || repo.gotArgs[1] != "ch-1" || repo.gotArgs[2] != 5 {
		t.Errorf("Unexpected list args %v", repo.gotArgs)
	}
}

func TestGetActivityErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeRepo{}).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/activity?limit=abc", nil), "user-1"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newTestRouter(&fakeRepo{listErr: errors.New("boom")}).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/activity", nil), "user-1"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 on store failure, got %d", rec.Code)
	}
}

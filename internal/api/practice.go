package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/shsh-practice/internal/identity"
	"github.com/ashureev/shsh-practice/internal/store"
	"github.com/go-chi/chi/v5"
)

// PracticeHandler serves the authenticated REST routes of the panel.
type PracticeHandler struct {
	*Handler
}

// NewPracticeHandler creates a new practice handler.
func NewPracticeHandler(base *Handler) *PracticeHandler {
	return &PracticeHandler{Handler: base}
}

// RegisterRoutes registers practice routes.
func (h *PracticeHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Get("/activity", h.GetActivity)
	})
}

// GetMe returns the caller's identity and whether this tab has a live view.
func (h *PracticeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     userID,
		"session_id":  sessionID,
		"view_active": h.sm.GetActive(userID, sessionID) != nil,
	})
}

// GetConfig returns the panel settings the frontend needs.
func (h *PracticeHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"history_page_size":      h.cfg.History.PageSize,
		"timer_tick_interval_ms": h.cfg.Timer.TickInterval.Milliseconds(),
		"submit_rate_limit":      h.cfg.Submit.RateLimit,
		"submit_rate_window_ms":  h.cfg.Submit.RateWindow.Milliseconds(),
	})
}

// GetActivity lists the caller's journaled activity, newest first.
func (h *PracticeHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	challengeID := r.URL.Query().Get("challenge_id")

	events, err := h.repo.ListEvents(r.Context(), userID, challengeID, limit)
	if err != nil {
		slog.Error("Failed to list activity", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list activity")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{repo: repo, timeout: timeout}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// Package api provides HTTP handlers for the practice panel server.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/shsh-practice/internal/config"
	"github.com/ashureev/shsh-practice/internal/live"
	"github.com/ashureev/shsh-practice/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
	sm   *live.SessionManager
	cfg  *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sm *live.SessionManager, cfg *config.Config) *Handler {
	return &Handler{
		repo: repo,
		sm:   sm,
		cfg:  cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

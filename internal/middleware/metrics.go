package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/shsh-practice/internal/metrics"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Metrics records Prometheus request metrics. The chi wrap writer keeps
// http.Hijacker available for WebSocket upgrades.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(time.Since(start).Seconds())
	})
}

// routePattern prefers the matched chi pattern to keep label cardinality low.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return normalizePath(r.URL.Path)
}

func normalizePath(path string) string {
	if strings.HasPrefix(path, "/api/challenges/") {
		return "/api/challenges/:id"
	}
	switch path {
	case "/health", "/metrics", "/ws/practice", "/api/me", "/api/config", "/api/activity":
		return path
	}
	return "other"
}

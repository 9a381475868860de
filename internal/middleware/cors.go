// Package middleware provides HTTP middleware for the practice panel server.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-SHSH-Session-ID"
	corsMaxAge       = 10 * 60
)

// corsPolicy resolves which browser origins may call the panel server.
type corsPolicy struct {
	wildcard bool
	explicit map[string]struct{}
}

func newCORSPolicy(allowedOrigins []string) corsPolicy {
	p := corsPolicy{explicit: make(map[string]struct{}, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.wildcard = true
		default:
			p.explicit[o] = struct{}{}
		}
	}
	return p
}

// match reports whether origin is allowed and whether it was listed by name.
// Credentials are only granted to listed origins, never to a wildcard echo.
func (p corsPolicy) match(origin string) (allowed, listed bool) {
	if origin == "" {
		return false, false
	}
	if _, ok := p.explicit[origin]; ok {
		return true, true
	}
	return p.wildcard, false
}

// CORS answers preflights and decorates responses for allowed origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newCORSPolicy(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")

			if allowed, listed := policy.match(origin); allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				if listed {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if r.Method == http.MethodOptions {
					h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

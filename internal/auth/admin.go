// Package auth guards the admin routes with a static bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

type AdminGuard struct {
	token string
}

// NewAdminGuard returns a guard for token. An empty token leaves admin
// routes open, which is how local games are usually run.
func NewAdminGuard(token string) *AdminGuard {
	return &AdminGuard{token: strings.TrimSpace(token)}
}

func (g *AdminGuard) Enabled() bool {
	return g != nil && g.token != ""
}

// Allow reports whether the Authorization header carries the admin token.
func (g *AdminGuard) Allow(header string) bool {
	if !g.Enabled() {
		return true
	}
	got := BearerToken(header)
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(g.token)) == 1
}

// Middleware rejects requests without the admin token with 401.
func (g *AdminGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Allow(r.Header.Get("Authorization")) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"admin token required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

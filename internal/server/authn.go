package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/mindfulsc/mindful/internal/auth"
)

type claimsKey struct{}

func claimsFrom(r *http.Request) *auth.Claims {
	c, _ := r.Context().Value(claimsKey{}).(*auth.Claims)
	if c == nil {
		return &auth.Claims{}
	}
	return c
}

// withAuth wraps a handler with bearer token authentication.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := s.tokens.Parse(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			s.logger.Debug("rejected bearer token", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		handler(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	}
}

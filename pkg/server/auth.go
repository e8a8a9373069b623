package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/raterudder/franklinwh/pkg/log"
)

type contextKey string

const emailContextKey contextKey = "email"

// adminMiddleware requires a bearer ID token whose email is in adminEmails.
// Without a configured verifier every request is rejected unless bypassAuth
// is set.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.bypassAuth {
			next.ServeHTTP(w, r)
			return
		}
		if s.verifyToken == nil {
			log.Ctx(ctx).WarnContext(ctx, "rejecting control request, no token verifier configured")
			writeJSONError(w, "authentication not configured", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Ctx(ctx).WarnContext(ctx, "missing auth header")
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
			writeJSONError(w, "invalid auth header", http.StatusBadRequest)
			return
		}

		email, err := s.verifyToken(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid id token", http.StatusUnauthorized)
			return
		}
		if email == "" || !s.isAdmin(email) {
			log.Ctx(ctx).WarnContext(ctx, "email not allowed to control gateway", slog.String("email", email))
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}

		ctx = log.WithAttrs(ctx, slog.String("authEmail", email))
		ctx = context.WithValue(ctx, emailContextKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) isAdmin(email string) bool {
	for _, adminEmail := range s.adminEmails {
		if subtle.ConstantTimeCompare([]byte(email), []byte(adminEmail)) == 1 {
			return true
		}
	}
	return false
}

func getEmail(r *http.Request) string {
	email, _ := r.Context().Value(emailContextKey).(string)
	return email
}

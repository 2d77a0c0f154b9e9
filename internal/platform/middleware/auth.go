// Package middleware provides the two authentication gates for the HTTP
// surface: JWT bearer tokens for the reporting/admin API and per-source API
// keys for the collector submission contract.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/httputil"
	"creaturegrc/pkg/requestcontext"
)

// RequireJWT validates an HS256 bearer token and injects the subject claim as
// the acting party.
func RequireJWT(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
				return
			}

			token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected signing method")
				}
				return []byte(signingKey), nil
			})
			if err != nil || !token.Valid {
				logger.Debug("token rejected", "error", err)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
				return
			}

			ctx := r.Context()
			if subject, err := token.Claims.GetSubject(); err == nil && subject != "" {
				ctx = requestcontext.WithActor(ctx, subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCollectorKey authenticates collector submissions. The caller sends
// its source system name and plaintext API key; keys holds the bcrypt hash
// per source. The source name becomes the acting party on success.
func RequireCollectorKey(keys map[string]string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			source := r.Header.Get("X-Source-System")
			key := r.Header.Get("X-API-Key")
			if source == "" || key == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "source system and API key required"))
				return
			}

			hash, ok := keys[source]
			if !ok {
				logger.Warn("unknown collector source", "source", source)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "unknown source system"))
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
				logger.Warn("collector key rejected", "source", source)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid API key"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(r.Context(), source)))
		})
	}
}

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// MethodAPIKey and MethodJWT identify how the caller authenticated.
const (
	MethodAPIKey = "apikey"
	MethodJWT    = "jwt"
)

// Identity represents the authenticated caller for a control-plane request.
type Identity struct {
	Subject string
	Role    string
	Method  string
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context, or nil if unset.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// Middleware authenticates control-plane requests via X-API-Key or a bearer
// JWT and stores the resulting Identity in the request context. Either
// authenticator may be nil, in which case that method is skipped.
//
// Precedence: X-API-Key header, then Authorization: Bearer <jwt>.
func Middleware(apiKeyAuth *APIKeyAuthenticator, jwtAuth *JWTAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if rawKey := r.Header.Get("X-API-Key"); rawKey != "" && apiKeyAuth != nil {
				if !apiKeyAuth.Check(rawKey) {
					logger.Warn("API key authentication failed")
					respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
					return
				}
				identity = &Identity{Subject: "apikey", Role: "operator", Method: MethodAPIKey}
			}

			if identity == nil {
				if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") && jwtAuth != nil {
					raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
					claims, err := jwtAuth.Validate(raw)
					if err != nil {
						logger.Warn("JWT authentication failed", "error", err)
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
						return
					}
					identity = &Identity{Subject: claims.Subject, Role: claims.Role, Method: MethodJWT}
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}

/*
auth.go - Bearer-token middleware for mutating routes

PURPOSE:
  Optional HS256 JWT verification. When no secret is configured (local
  development, tests) the middleware is a no-op; when a secret is set,
  mutating routes require a valid bearer token and the subject claim is
  made available to handlers.

TOKEN FORMAT:
  Authorization: Bearer <jwt>, signed with HS256. Expiry and
  issued-at are enforced by the jwt library's default validators.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// ContextKeySubject holds the authenticated token subject.
const ContextKeySubject contextKey = "authSubject"

// requireAuth returns a middleware enforcing bearer auth, or a no-op
// when secret is empty.
func requireAuth(secret string) func(http.Handler) http.Handler {
	if secret == "" {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "Authorization header format must be Bearer {token}", nil)
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubject, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFrom returns the authenticated subject, if any.
func SubjectFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ContextKeySubject).(string)
	return s, ok && s != ""
}

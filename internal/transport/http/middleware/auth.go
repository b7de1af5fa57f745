package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/care-auth-api/internal/domain"
	jwtinfra "github.com/care-auth-api/internal/infrastructure/jwt"
)

type contextKey string

const ClaimsKey contextKey = "claims"

type credentialChecker interface {
	Check(ctx context.Context, credentialID string) (*domain.Credential, error)
	Resolve(ctx context.Context, token string) (*domain.Credential, error)
}

// Auth returns middleware that authenticates the Bearer value and injects
// claims into context. A signed JWT is verified and then checked against the
// credential store so revocation takes effect before the JWT expires; an
// opaque credential token is resolved directly.
func Auth(provider *jwtinfra.Provider, creds credentialChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, `{"error":"missing or invalid authorization header"}`, http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			var claims *jwtinfra.Claims
			if c, err := provider.Verify(tokenStr); err == nil {
				if _, err := creds.Check(r.Context(), c.CredentialID); err != nil {
					http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
					return
				}
				claims = c
			} else if cred, err := creds.Resolve(r.Context(), tokenStr); err == nil {
				claims = &jwtinfra.Claims{
					PrincipalID:  cred.PrincipalID,
					Guard:        cred.Guard,
					CredentialID: cred.CredentialID,
				}
			} else {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts the authenticated claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}

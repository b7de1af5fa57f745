package middleware

import (
	"net/http"

	"github.com/care-auth-api/internal/domain"
	"github.com/go-chi/chi/v5"
)

// GuardFromPath parses the {guard} URL parameter into an owner kind.
func GuardFromPath(r *http.Request) (domain.OwnerKind, bool) {
	g := domain.OwnerKind(chi.URLParam(r, "guard"))
	switch g {
	case domain.KindClient, domain.KindWorker, domain.KindAdmin:
		return g, true
	}
	return "", false
}

// RequireGuard rejects authenticated requests whose credential belongs to a
// different guard than the one in the path. Credentials are scoped to
// exactly one actor kind.
func RequireGuard() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			guard, ok := GuardFromPath(r)
			if !ok || claims.Guard != guard {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

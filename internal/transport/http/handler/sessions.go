package handler

import (
	"encoding/json"
	"net/http"

	"github.com/care-auth-api/internal/application/credential"
	"github.com/care-auth-api/internal/pkg/validate"
	"github.com/care-auth-api/internal/transport/http/middleware"
)

// SessionHandler handles login and logout endpoints.
type SessionHandler struct {
	svc credential.Service
}

func NewSessionHandler(svc credential.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	guard, ok := middleware.GuardFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown guard")
		return
	}
	var req credential.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	result, err := h.svc.Authenticate(r.Context(), guard, req)
	if err != nil {
		httpError(w, err)
		return
	}
	cred := result.Credential
	principal := toSafePrincipal(cred.Principal)
	cred.Principal = nil
	writeJSON(w, http.StatusOK, AuthEnvelope{Bearer: result.Bearer, Credential: cred, Principal: principal})
}

// Logout revokes the caller's own credential.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Revoke(r.Context(), claims.CredentialID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

// LogoutAll revokes every live credential the caller holds under its guard.
func (h *SessionHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.RevokeAll(r.Context(), claims.Guard, claims.PrincipalID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out everywhere"})
}

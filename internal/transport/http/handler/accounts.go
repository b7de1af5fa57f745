package handler

import (
	"encoding/json"
	"net/http"

	"github.com/care-auth-api/internal/application/account"
	"github.com/care-auth-api/internal/domain"
	"github.com/care-auth-api/internal/pkg/validate"
	"github.com/care-auth-api/internal/transport/http/middleware"
)

// AccountHandler handles registration and the OTP-gated account flows.
type AccountHandler struct {
	svc account.Service
}

func NewAccountHandler(svc account.Service) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	guard, ok := middleware.GuardFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown guard")
		return
	}
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	p, err := h.svc.Register(r.Context(), guard, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PrincipalEnvelope{Principal: toSafePrincipal(p), Message: "verification code sent"})
}

func (h *AccountHandler) ConfirmAccount(w http.ResponseWriter, r *http.Request) {
	guard, ok := middleware.GuardFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown guard")
		return
	}
	var req account.ConfirmAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.ConfirmAccount(r.Context(), guard, req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "account verified"})
}

// toSafePrincipal strips the password hash before the principal crosses the wire.
func toSafePrincipal(p *domain.Principal) *domain.Principal {
	if p == nil {
		return nil
	}
	safe := *p
	safe.PasswordHash = ""
	return &safe
}

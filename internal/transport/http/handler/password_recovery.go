package handler

import (
	"encoding/json"
	"net/http"

	"github.com/care-auth-api/internal/application/account"
	"github.com/care-auth-api/internal/pkg/validate"
	"github.com/care-auth-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// PasswordRecoveryHandler handles password recovery flow endpoints.
type PasswordRecoveryHandler struct {
	svc account.Service
}

func NewPasswordRecoveryHandler(svc account.Service) *PasswordRecoveryHandler {
	return &PasswordRecoveryHandler{svc: svc}
}

func (h *PasswordRecoveryHandler) Action(w http.ResponseWriter, r *http.Request) {
	guard, ok := middleware.GuardFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown guard")
		return
	}
	switch chi.URLParam(r, "action") {
	case "request":
		var req account.PasswordResetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.RequestPasswordReset(r.Context(), guard, req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "reset code sent"})
	case "reset":
		var req account.ResetPasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.ResetPassword(r.Context(), guard, req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/care-auth-api/internal/application/account"
	"github.com/care-auth-api/internal/pkg/validate"
	"github.com/care-auth-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// ContactChangeHandler handles the authenticated email/phone change flow.
type ContactChangeHandler struct {
	svc account.Service
}

func NewContactChangeHandler(svc account.Service) *ContactChangeHandler {
	return &ContactChangeHandler{svc: svc}
}

func (h *ContactChangeHandler) Action(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	switch chi.URLParam(r, "action") {
	case "request":
		var req account.ContactChangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.RequestContactChange(r.Context(), claims.Guard, claims.PrincipalID, req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
	case "confirm":
		var req account.ConfirmContactChangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.ConfirmContactChange(r.Context(), claims.Guard, claims.PrincipalID, req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "contact updated"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

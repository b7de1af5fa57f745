package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/care-auth-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message           string `json:"message,omitempty"`
	Error             string `json:"error,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

// AuthEnvelope wraps login responses.
type AuthEnvelope struct {
	Bearer     string             `json:"Bearer,omitempty"`
	Credential *domain.Credential `json:"credential,omitempty"`
	Principal  *domain.Principal  `json:"principal,omitempty"`
	Message    string             `json:"message,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// PrincipalEnvelope wraps registration responses.
type PrincipalEnvelope struct {
	Principal *domain.Principal `json:"principal,omitempty"`
	Message   string            `json:"message,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain errors to HTTP responses. Authentication failures
// collapse onto one generic message so callers cannot distinguish a wrong
// password from a privilege rejection.
func httpError(w http.ResponseWriter, err error) {
	var invalidCode *domain.InvalidCodeError
	switch {
	case errors.As(err, &invalidCode):
		remaining := invalidCode.AttemptsRemaining
		writeJSON(w, http.StatusUnauthorized, MessageEnvelope{
			Error:             "invalid code",
			AttemptsRemaining: &remaining,
		})
	case errors.Is(err, domain.ErrOTPExpired):
		writeError(w, http.StatusUnauthorized, "code expired, request a new one")
	case errors.Is(err, domain.ErrTooManyAttempts):
		writeError(w, http.StatusUnauthorized, "too many attempts, request a new code")
	case errors.Is(err, domain.ErrAlreadyVerified):
		writeError(w, http.StatusConflict, "code already used")
	case errors.Is(err, domain.ErrOTPNotFound):
		writeError(w, http.StatusNotFound, "no code found, request a new one")
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrAccessDenied):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"carevault.org/internal/ledger"
	"carevault.org/internal/obs"
	"carevault.org/internal/submit"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// statusFor maps a ledger or gateway error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, submit.ErrInvalidArgs),
		errors.Is(err, submit.ErrUnknownOperation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, ledger.ErrNotRegistered),
		errors.Is(err, ledger.ErrOwnerNotPatient),
		errors.Is(err, ledger.ErrNotGranted),
		errors.Is(err, ledger.ErrExpired):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrAlreadyRegistered),
		errors.Is(err, ledger.ErrAlreadyActive),
		errors.Is(err, ledger.ErrAlreadyInactive),
		errors.Is(err, ledger.ErrAlreadyExpired),
		errors.Is(err, ledger.ErrNotPending),
		errors.Is(err, ledger.ErrRecordInactive):
		return http.StatusConflict
	case errors.Is(err, submit.ErrDegraded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		obs.Logger().WithError(err).WithField("request_id", RequestIDFromContext(r.Context())).Error("request_failed")
		writeError(w, r, status, "Internal", "internal error")
		return
	}
	writeError(w, r, status, submit.Code(err), strings.TrimPrefix(err.Error(), "submit: "))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
}

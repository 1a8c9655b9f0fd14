package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"carevault.org/internal/ledger"
	"carevault.org/internal/submit"
)

func (a *API) registerPatient(w http.ResponseWriter, r *http.Request) {
	var args submit.ProfileArgs
	if !readBody(w, r, &args) {
		return
	}
	a.submitArgs(w, r, submit.OpRegisterPatient, args, http.StatusCreated)
}

func (a *API) registerDoctor(w http.ResponseWriter, r *http.Request) {
	var args submit.DoctorArgs
	if !readBody(w, r, &args) {
		return
	}
	a.submitArgs(w, r, submit.OpRegisterDoctor, args, http.StatusCreated)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var args submit.ProfileArgs
	if !readBody(w, r, &args) {
		return
	}
	a.submitArgs(w, r, submit.OpUpdateProfile, args, http.StatusOK)
}

type doctorStatusRequest struct {
	Reason string `json:"reason"`
}

// doctorStatus serves verify, reject and suspend; only reject and suspend
// carry a reason.
func (a *API) doctorStatus(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req doctorStatusRequest
		if !readBody(w, r, &req) {
			return
		}
		a.submitArgs(w, r, op, submit.DoctorStatusArgs{
			Doctor: ledger.Address(strings.TrimSpace(r.PathValue("address"))),
			Reason: req.Reason,
		}, http.StatusOK)
	}
}

func (a *API) getIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := a.ledger.GetIdentity(ledger.Address(r.PathValue("address")))
	if errors.Is(err, ledger.ErrNotRegistered) {
		writeError(w, r, http.StatusNotFound, "NotRegistered", err.Error())
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"carevault.org/internal/ledger"
	"carevault.org/internal/submit"
)

type accessRequest struct {
	Reason string `json:"reason"`
}

type grantRequest struct {
	WrappedKeyDigest ledger.Digest `json:"wrapped_key_digest"`
	DurationDays     int           `json:"duration_days"`
}

// accessView is a grant with lazy expiry folded into its status. Superseded
// grants were replaced by a newer request for the same pair and are never
// active.
type accessView struct {
	ledger.AccessGrant
	EffectiveStatus ledger.AccessStatus `json:"effective_status"`
	Active          bool                `json:"active"`
	Superseded      bool                `json:"superseded"`
}

func (a *API) view(g ledger.AccessGrant) accessView {
	now := a.ledger.Now()
	superseded := a.ledger.IsSuperseded(g.ID)
	return accessView{
		AccessGrant:     g,
		EffectiveStatus: g.EffectiveStatus(now),
		Active:          g.Usable(now) && !superseded,
		Superseded:      superseded,
	}
}

func (a *API) requestAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req accessRequest
	if !readBody(w, r, &req) {
		return
	}
	a.submitArgs(w, r, submit.OpRequestAccess, submit.RequestAccessArgs{RecordID: id, Reason: req.Reason}, http.StatusCreated)
}

func (a *API) grantAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := accessID(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if !readBody(w, r, &req) {
		return
	}
	a.submitArgs(w, r, submit.OpGrantAccess, submit.GrantAccessArgs{
		AccessID:         id,
		WrappedKeyDigest: req.WrappedKeyDigest,
		DurationDays:     req.DurationDays,
	}, http.StatusOK)
}

func (a *API) revokeAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := accessID(w, r)
	if !ok {
		return
	}
	a.submitArgs(w, r, submit.OpRevokeAccess, submit.AccessArgs{AccessID: id}, http.StatusOK)
}

func (a *API) getAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := accessID(w, r)
	if !ok {
		return
	}
	g, err := a.ledger.GetAccess(id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(g))
}

type accessCheckResponse struct {
	RecordID ledger.RecordID `json:"record_id"`
	Doctor   ledger.Address  `json:"doctor"`
	Active   bool            `json:"active"`
	Grant    *accessView     `json:"grant,omitempty"`
}

// accessFor answers hasActiveAccess; a pair with no grant is simply inactive.
func (a *API) accessFor(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	doctor := ledger.Address(strings.TrimSpace(r.PathValue("doctor")))
	resp := accessCheckResponse{RecordID: id, Doctor: doctor}
	g, err := a.ledger.GetAccessFor(id, doctor)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
	case err != nil:
		writeDomainError(w, r, err)
		return
	default:
		v := a.view(g)
		resp.Grant = &v
		resp.Active = v.Active
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) pendingRequests(w http.ResponseWriter, r *http.Request) {
	items := a.ledger.GetPendingRequests(ledger.Address(r.PathValue("address")))
	writeJSON(w, http.StatusOK, listResponse[ledger.AccessGrant]{Items: items})
}

func (a *API) doctorRecords(w http.ResponseWriter, r *http.Request) {
	items := a.ledger.GetDoctorAccessibleRecords(ledger.Address(r.PathValue("address")))
	writeJSON(w, http.StatusOK, listResponse[ledger.RecordID]{Items: items})
}

type auditResponse struct {
	Items     []ledger.AuditEvent `json:"items"`
	NextAfter uint64              `json:"next_after"`
	Total     uint64              `json:"total"`
}

func (a *API) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query().Get("limit"), 100, 1, 1000, "limit")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		after, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "InvalidInput", "after must be a non-negative integer")
			return
		}
	}
	items := a.ledger.AuditEvents(after, limit)
	next := after
	if n := len(items); n > 0 {
		next = items[n-1].Seq
	}
	writeJSON(w, http.StatusOK, auditResponse{Items: items, NextAfter: next, Total: a.ledger.AuditLen()})
}

package httpapi

import (
	"net/http"
	"strconv"

	"carevault.org/internal/audit"
	"carevault.org/internal/auth"
	"carevault.org/internal/ledger"
	"carevault.org/internal/submit"
)

func (a *API) addRecord(w http.ResponseWriter, r *http.Request) {
	var in ledger.NewRecord
	if !readBody(w, r, &in) {
		return
	}
	a.submitArgs(w, r, submit.OpAddRecord, in, http.StatusCreated)
}

func (a *API) deactivateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	a.submitArgs(w, r, submit.OpDeactivateRecord, submit.RecordArgs{RecordID: id}, http.StatusOK)
}

func (a *API) getRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := a.ledger.GetRecord(id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) countRecords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"total": a.ledger.GetTotalRecords()})
}

// patientRecords lists a patient's record ids; ?active=true hides
// deactivated records.
func (a *API) patientRecords(w http.ResponseWriter, r *http.Request) {
	owner := ledger.Address(r.PathValue("address"))
	activeOnly := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "InvalidInput", "active must be a boolean")
			return
		}
		activeOnly = v
	}
	var ids []ledger.RecordID
	if activeOnly {
		ids = a.ledger.GetActivePatientRecordIDs(owner)
	} else {
		ids = a.ledger.GetPatientRecordIDs(owner)
	}
	writeJSON(w, http.StatusOK, listResponse[ledger.RecordID]{Items: ids})
}

type keyResponse struct {
	RecordID           ledger.RecordID `json:"record_id"`
	EncryptedKeyDigest ledger.Digest   `json:"encrypted_key_digest"`
}

// encryptedKey returns the caller's wrapped key digest for a record. Every
// successful fetch leaves an audit line.
func (a *API) encryptedKey(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	caller, _ := auth.CallerFromContext(r.Context())
	digest, err := a.ledger.GetEncryptedKeyDigest(ledger.Address(caller), id)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "record.key.denied", map[string]any{
			"record_id": uint64(id),
			"code":      ledger.Code(err),
		})
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "record.key.fetched", map[string]any{
		"record_id": uint64(id),
	})
	writeJSON(w, http.StatusOK, keyResponse{RecordID: id, EncryptedKeyDigest: digest})
}

func recordID(w http.ResponseWriter, r *http.Request) (ledger.RecordID, bool) {
	v, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidInput", err.Error())
		return 0, false
	}
	return ledger.RecordID(v), true
}

func accessID(w http.ResponseWriter, r *http.Request) (ledger.AccessID, bool) {
	v, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidInput", err.Error())
		return 0, false
	}
	return ledger.AccessID(v), true
}

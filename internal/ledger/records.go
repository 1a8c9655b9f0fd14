package ledger

import (
	"carevault.org/internal/events"
)

// NewRecord holds the caller-supplied fields of AddRecord.
type NewRecord struct {
	Owner          Address    `json:"owner"`
	PayloadDigest  Digest     `json:"payload_digest"`
	OwnerKeyDigest Digest     `json:"owner_key_digest"`
	Type           RecordType `json:"type"`
	IntegrityHash  Digest     `json:"integrity_hash"`
	Description    string     `json:"description"`
}

// AddRecord appends an immutable record owned by in.Owner. The caller must be
// the owner or a verified doctor.
func (l *Ledger) AddRecord(tx Tx, in NewRecord) (RecordID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isPatient(in.Owner) {
		return 0, ErrOwnerNotPatient
	}
	if tx.Caller != in.Owner && !l.isVerifiedDoctor(tx.Caller) {
		return 0, ErrUnauthorized
	}
	if in.PayloadDigest == "" || in.OwnerKeyDigest == "" || in.IntegrityHash == "" {
		return 0, ErrEmptyDigest
	}
	if !in.Type.Valid() {
		return 0, ErrInvalidRecordType
	}
	if len(in.Description) > maxDescriptionBytes {
		return 0, ErrDescriptionTooLong
	}

	id := RecordID(len(l.records) + 1)
	l.records = append(l.records, Record{
		ID:             id,
		Owner:          in.Owner,
		PayloadDigest:  in.PayloadDigest,
		OwnerKeyDigest: in.OwnerKeyDigest,
		Type:           in.Type,
		IntegrityHash:  in.IntegrityHash,
		Description:    in.Description,
		Author:         tx.Caller,
		CreatedAt:      tx.At,
		Active:         true,
	})
	l.ownerRecords[in.Owner] = append(l.ownerRecords[in.Owner], id)

	l.commit(tx, events.KindRecordAdded, id, 0, AuditRecordAdded, map[string]any{
		"owner":          string(in.Owner),
		"author":         string(tx.Caller),
		"type":           in.Type.String(),
		"payload_digest": string(in.PayloadDigest),
		"integrity_hash": string(in.IntegrityHash),
	})
	return id, nil
}

// DeactivateRecord soft-deletes a record. Owner only; irreversible.
func (l *Ledger) DeactivateRecord(tx Tx, id RecordID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.record(id)
	if rec == nil {
		return ErrNotFound
	}
	if rec.Owner != tx.Caller {
		return ErrUnauthorized
	}
	if !rec.Active {
		return ErrAlreadyInactive
	}
	rec.Active = false
	l.commit(tx, events.KindRecordDeactivated, id, 0, AuditRecordDeactivated, map[string]any{
		"owner": string(rec.Owner),
	})
	return nil
}

// GetRecord returns record id.
func (l *Ledger) GetRecord(id RecordID) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec := l.record(id)
	if rec == nil {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// GetPatientRecordIDs returns every record id owned by owner, in creation order.
func (l *Ledger) GetPatientRecordIDs(owner Address) []RecordID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]RecordID(nil), l.ownerRecords[owner]...)
}

// GetTotalRecords returns the current record id counter.
func (l *Ledger) GetTotalRecords() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.records))
}

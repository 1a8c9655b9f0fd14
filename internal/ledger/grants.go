package ledger

import (
	"time"

	"carevault.org/internal/events"
)

// RequestAccess opens a new grant in state Requested for the caller on record id.
// A lapsed or revoked grant for the same pair is superseded by the new one.
func (l *Ledger) RequestAccess(tx Tx, id RecordID, reason string) (AccessID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isVerifiedDoctor(tx.Caller) {
		return 0, ErrUnauthorized
	}
	rec := l.record(id)
	if rec == nil {
		return 0, ErrNotFound
	}
	if !rec.Active {
		return 0, ErrRecordInactive
	}
	if reason == "" || len(reason) > maxReasonBytes {
		return 0, ErrInvalidReason
	}
	key := pairKey{record: id, doctor: tx.Caller}
	if prev := l.grant(l.pairs[key]); prev != nil && prev.Usable(tx.At) {
		return 0, ErrAlreadyActive
	}

	accessID := AccessID(len(l.grants) + 1)
	l.grants = append(l.grants, AccessGrant{
		ID:          accessID,
		RecordID:    id,
		Patient:     rec.Owner,
		Doctor:      tx.Caller,
		Status:      AccessRequested,
		Reason:      reason,
		RequestedAt: tx.At,
	})
	l.pairs[key] = accessID
	l.patientRequests[rec.Owner] = append(l.patientRequests[rec.Owner], accessID)

	l.commit(tx, events.KindAccessRequested, id, accessID, AuditAccessRequested, map[string]any{
		"access_id": uint64(accessID),
		"patient":   string(rec.Owner),
		"doctor":    string(tx.Caller),
		"reason":    reason,
	})
	return accessID, nil
}

// GrantAccess moves a Requested grant to Granted for durationDays days and
// stores the digest of the key re-wrapped for the doctor.
func (l *Ledger) GrantAccess(tx Tx, id AccessID, wrappedKey Digest, durationDays int) (AccessGrant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	g := l.grant(id)
	if g == nil {
		return AccessGrant{}, ErrNotFound
	}
	if g.Patient != tx.Caller {
		return AccessGrant{}, ErrUnauthorized
	}
	if g.Status != AccessRequested || l.pairs[pairKey{record: g.RecordID, doctor: g.Doctor}] != id {
		return AccessGrant{}, ErrInvalidState
	}
	if wrappedKey == "" {
		return AccessGrant{}, ErrEmptyDigest
	}
	if rec := l.record(g.RecordID); rec != nil && rec.OwnerKeyDigest == wrappedKey {
		return AccessGrant{}, ErrKeyNotRewrapped
	}
	if durationDays < minGrantDays || durationDays > maxGrantDays {
		return AccessGrant{}, ErrInvalidDuration
	}

	g.Status = AccessGranted
	g.GrantedAt = tx.At
	g.ExpiresAt = tx.At.Add(time.Duration(durationDays) * 24 * time.Hour)
	g.WrappedKeyDigest = wrappedKey
	l.doctorRecords[g.Doctor] = append(l.doctorRecords[g.Doctor], g.RecordID)

	l.commit(tx, events.KindAccessGranted, g.RecordID, id, AuditAccessGranted, map[string]any{
		"access_id":          uint64(id),
		"doctor":             string(g.Doctor),
		"wrapped_key_digest": string(wrappedKey),
		"expires_at":         g.ExpiresAt.Format(time.RFC3339Nano),
	})
	return *g, nil
}

// RevokeAccess ends a Granted grant before it lapses.
func (l *Ledger) RevokeAccess(tx Tx, id AccessID) (AccessGrant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	g := l.grant(id)
	if g == nil {
		return AccessGrant{}, ErrNotFound
	}
	if g.Patient != tx.Caller {
		return AccessGrant{}, ErrUnauthorized
	}
	if g.Status != AccessGranted {
		return AccessGrant{}, ErrInvalidState
	}
	if tx.At.After(g.ExpiresAt) {
		return AccessGrant{}, ErrAlreadyExpired
	}

	g.Status = AccessRevoked
	g.RevokedAt = tx.At
	l.commit(tx, events.KindAccessRevoked, g.RecordID, id, AuditAccessRevoked, map[string]any{
		"access_id": uint64(id),
		"doctor":    string(g.Doctor),
	})
	return *g, nil
}

// HasActiveAccess reports whether doctor's newest grant on record id is
// Granted and not past its expiry.
func (l *Ledger) HasActiveAccess(id RecordID, doctor Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isGranteeOf(doctor, id, l.Now())
}

// GetAccess returns grant id as stored; use EffectiveStatus for the observed state.
func (l *Ledger) GetAccess(id AccessID) (AccessGrant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g := l.grant(id)
	if g == nil {
		return AccessGrant{}, ErrNotFound
	}
	return *g, nil
}

// GetAccessFor returns the newest grant for the (record, doctor) pair.
func (l *Ledger) GetAccessFor(id RecordID, doctor Address) (AccessGrant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g := l.grant(l.pairs[pairKey{record: id, doctor: doctor}])
	if g == nil {
		return AccessGrant{}, ErrNotFound
	}
	return *g, nil
}

// IsSuperseded reports whether a newer request for the same (record, doctor)
// pair has replaced grant id. A superseded grant can never be granted.
func (l *Ledger) IsSuperseded(id AccessID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g := l.grant(id)
	return g != nil && l.pairs[pairKey{record: g.RecordID, doctor: g.Doctor}] != id
}

// GetEncryptedKeyDigest returns the key digest wrapped for caller on record id.
// The caller must still be a verified doctor; suspension cuts off existing grants.
func (l *Ledger) GetEncryptedKeyDigest(caller Address, id RecordID) (Digest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	g := l.grant(l.pairs[pairKey{record: id, doctor: caller}])
	if g == nil {
		return "", ErrNotFound
	}
	if !l.isVerifiedDoctor(caller) {
		return "", ErrUnauthorized
	}
	if g.Status != AccessGranted {
		return "", ErrNotGranted
	}
	if l.Now().After(g.ExpiresAt) {
		return "", ErrExpired
	}
	return g.WrappedKeyDigest, nil
}

package ledger

import (
	"carevault.org/internal/events"
)

// RegisterPatient registers the caller as a patient.
func (l *Ledger) RegisterPatient(tx Tx, profile Digest) (Identity, error) {
	return l.register(tx, RolePatient, profile, "")
}

// RegisterDoctor registers the caller as a doctor pending verification.
func (l *Ledger) RegisterDoctor(tx Tx, profile Digest, licenseRef string) (Identity, error) {
	return l.register(tx, RoleDoctor, profile, licenseRef)
}

func (l *Ledger) register(tx Tx, role Role, profile Digest, licenseRef string) (Identity, error) {
	if tx.Caller == "" {
		return Identity{}, ErrEmptyCaller
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.identities[tx.Caller]; ok {
		return Identity{}, ErrAlreadyRegistered
	}
	if profile == "" {
		return Identity{}, ErrEmptyProfile
	}
	if role == RoleDoctor {
		if licenseRef == "" {
			return Identity{}, ErrEmptyLicenseRef
		}
		if len(licenseRef) > maxReasonBytes {
			return Identity{}, ErrLicenseRefTooLong
		}
	}

	id := &Identity{
		Address:       tx.Caller,
		Role:          role,
		ProfileDigest: profile,
		LicenseRef:    licenseRef,
		RegisteredAt:  tx.At,
	}
	kind, action := events.KindPatientRegistered, AuditPatientRegistered
	details := map[string]any{"profile_digest": string(profile)}
	if role == RoleDoctor {
		id.Status = StatusPending
		kind, action = events.KindDoctorRegistered, AuditDoctorRegistered
		details["license_ref"] = licenseRef
	}
	l.identities[tx.Caller] = id
	l.commit(tx, kind, NoRecord, 0, action, details)
	return *id, nil
}

// VerifyDoctor moves a pending doctor to Verified. Administrator only.
func (l *Ledger) VerifyDoctor(tx Tx, doctor Address) (Identity, error) {
	return l.setDoctorStatus(tx, doctor, StatusVerified, "")
}

// RejectDoctor marks a doctor Rejected. Administrator only.
func (l *Ledger) RejectDoctor(tx Tx, doctor Address, reason string) (Identity, error) {
	return l.setDoctorStatus(tx, doctor, StatusRejected, reason)
}

// SuspendDoctor marks a doctor Suspended. Administrator only.
func (l *Ledger) SuspendDoctor(tx Tx, doctor Address, reason string) (Identity, error) {
	return l.setDoctorStatus(tx, doctor, StatusSuspended, reason)
}

func (l *Ledger) setDoctorStatus(tx Tx, doctor Address, status VerificationStatus, reason string) (Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isAdministrator(tx.Caller) {
		return Identity{}, ErrUnauthorized
	}
	id, ok := l.identities[doctor]
	if !ok || id.Role != RoleDoctor {
		return Identity{}, ErrNotRegistered
	}
	if status == StatusVerified && id.Status != StatusPending {
		return Identity{}, ErrNotPending
	}
	if status != StatusVerified && (reason == "" || len(reason) > maxReasonBytes) {
		return Identity{}, ErrInvalidReason
	}

	action := AuditDoctorVerified
	switch status {
	case StatusRejected:
		action = AuditDoctorRejected
	case StatusSuspended:
		action = AuditDoctorSuspended
	}

	previous := id.Status
	id.Status = status
	id.StatusReason = reason
	if status == StatusVerified {
		id.VerifiedAt = tx.At
	}
	l.commit(tx, events.KindDoctorStatusChanged, NoRecord, 0, action, map[string]any{
		"doctor": string(doctor),
		"from":   previous.String(),
		"to":     status.String(),
		"reason": reason,
	})
	return *id, nil
}

// UpdateProfile replaces the caller's profile pointer.
func (l *Ledger) UpdateProfile(tx Tx, profile Digest) (Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.identities[tx.Caller]
	if !ok {
		return Identity{}, ErrNotRegistered
	}
	if profile == "" {
		return Identity{}, ErrEmptyProfile
	}
	id.ProfileDigest = profile
	l.commit(tx, events.KindProfileUpdated, NoRecord, 0, AuditProfileUpdated, map[string]any{
		"profile_digest": string(profile),
	})
	return *id, nil
}

// GetIdentity returns the identity registered at addr.
func (l *Ledger) GetIdentity(addr Address) (Identity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.identities[addr]
	if !ok {
		return Identity{}, ErrNotRegistered
	}
	return *id, nil
}

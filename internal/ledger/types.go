package ledger

import (
	"time"
)

// Address identifies an actor. It is the hex form of the actor's X25519
// public key; the ledger itself treats it as opaque.
type Address string

// Digest addresses immutable content in the external content store.
type Digest string

// RecordID is 1-based; zero means "does not exist".
type RecordID uint64

// AccessID is 1-based; zero means "does not exist".
type AccessID uint64

// Role is fixed at first registration.
type Role uint8

const (
	RoleNone Role = iota
	RolePatient
	RoleDoctor
)

func (r Role) String() string {
	switch r {
	case RolePatient:
		return "Patient"
	case RoleDoctor:
		return "Doctor"
	default:
		return "None"
	}
}

// VerificationStatus applies to doctors only.
type VerificationStatus uint8

const (
	StatusNone VerificationStatus = iota
	StatusPending
	StatusVerified
	StatusRejected
	StatusSuspended
)

func (s VerificationStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusVerified:
		return "Verified"
	case StatusRejected:
		return "Rejected"
	case StatusSuspended:
		return "Suspended"
	default:
		return "None"
	}
}

// Identity is a registered actor.
type Identity struct {
	Address       Address            `json:"address"`
	Role          Role               `json:"role"`
	Status        VerificationStatus `json:"verification_status"`
	ProfileDigest Digest             `json:"profile_digest"`
	LicenseRef    string             `json:"license_ref,omitempty"`
	StatusReason  string             `json:"status_reason,omitempty"`
	RegisteredAt  time.Time          `json:"registered_at"`
	VerifiedAt    time.Time          `json:"verified_at,omitzero"`
}

// RecordType classifies a health document. The zero value is not a type, so
// a record that omits it is rejected.
type RecordType uint8

const (
	RecordLabResult RecordType = iota + 1
	RecordPrescription
	RecordImaging
	RecordDiagnosis
	RecordVaccination
	RecordClinicalNote
	RecordOther
)

var recordTypeNames = [...]string{
	RecordLabResult:    "LabResult",
	RecordPrescription: "Prescription",
	RecordImaging:      "Imaging",
	RecordDiagnosis:    "Diagnosis",
	RecordVaccination:  "Vaccination",
	RecordClinicalNote: "ClinicalNote",
	RecordOther:        "Other",
}

func (t RecordType) Valid() bool { return t > 0 && int(t) < len(recordTypeNames) }

func (t RecordType) String() string {
	if !t.Valid() {
		return "Unknown"
	}
	return recordTypeNames[t]
}

// ParseRecordType maps a type name back to its value.
func ParseRecordType(name string) (RecordType, bool) {
	for i, n := range recordTypeNames {
		if i > 0 && n == name {
			return RecordType(i), true
		}
	}
	return 0, false
}

// Record is immutable metadata for one encrypted health document. Only
// Active ever changes after creation.
type Record struct {
	ID             RecordID   `json:"id"`
	Owner          Address    `json:"owner"`
	PayloadDigest  Digest     `json:"payload_digest"`
	OwnerKeyDigest Digest     `json:"owner_key_digest"`
	Type           RecordType `json:"type"`
	IntegrityHash  Digest     `json:"integrity_hash"`
	Description    string     `json:"description"`
	Author         Address    `json:"author"`
	CreatedAt      time.Time  `json:"created_at"`
	Active         bool       `json:"active"`
}

// AccessStatus is the stored state of an access grant. Expired is never
// written; it is derived from ExpiresAt by EffectiveStatus.
type AccessStatus uint8

const (
	AccessNone AccessStatus = iota
	AccessRequested
	AccessGranted
	AccessRevoked
	AccessExpired
)

func (s AccessStatus) String() string {
	switch s {
	case AccessRequested:
		return "Requested"
	case AccessGranted:
		return "Granted"
	case AccessRevoked:
		return "Revoked"
	case AccessExpired:
		return "Expired"
	default:
		return "None"
	}
}

// AccessGrant is one doctor's request for, and permission on, one record.
type AccessGrant struct {
	ID               AccessID     `json:"id"`
	RecordID         RecordID     `json:"record_id"`
	Patient          Address      `json:"patient"`
	Doctor           Address      `json:"doctor"`
	Status           AccessStatus `json:"status"`
	Reason           string       `json:"reason"`
	RequestedAt      time.Time    `json:"requested_at"`
	GrantedAt        time.Time    `json:"granted_at,omitzero"`
	ExpiresAt        time.Time    `json:"expires_at,omitzero"`
	RevokedAt        time.Time    `json:"revoked_at,omitzero"`
	WrappedKeyDigest Digest       `json:"wrapped_key_digest,omitempty"`
}

// EffectiveStatus folds lazy expiry into the stored status.
func (g AccessGrant) EffectiveStatus(now time.Time) AccessStatus {
	if g.Status == AccessGranted && now.After(g.ExpiresAt) {
		return AccessExpired
	}
	return g.Status
}

// Usable reports whether the grant currently entitles the doctor to the key.
func (g AccessGrant) Usable(now time.Time) bool {
	return g.EffectiveStatus(now) == AccessGranted
}

// AuditAction enumerates audited operations.
type AuditAction uint8

const (
	AuditPatientRegistered AuditAction = iota + 1
	AuditDoctorRegistered
	AuditDoctorVerified
	AuditDoctorRejected
	AuditDoctorSuspended
	AuditProfileUpdated
	AuditRecordAdded
	AuditRecordDeactivated
	AuditAccessRequested
	AuditAccessGranted
	AuditAccessRevoked
)

var auditActionNames = map[AuditAction]string{
	AuditPatientRegistered: "PatientRegistered",
	AuditDoctorRegistered:  "DoctorRegistered",
	AuditDoctorVerified:    "DoctorVerified",
	AuditDoctorRejected:    "DoctorRejected",
	AuditDoctorSuspended:   "DoctorSuspended",
	AuditProfileUpdated:    "ProfileUpdated",
	AuditRecordAdded:       "RecordAdded",
	AuditRecordDeactivated: "RecordDeactivated",
	AuditAccessRequested:   "AccessRequested",
	AuditAccessGranted:     "AccessGranted",
	AuditAccessRevoked:     "AccessRevoked",
}

func (a AuditAction) String() string {
	if n, ok := auditActionNames[a]; ok {
		return n
	}
	return "Unknown"
}

// NoRecord marks audit events that are not about a specific record.
const NoRecord RecordID = 0

// AuditEvent is an immutable compliance fact.
type AuditEvent struct {
	Seq           uint64      `json:"seq"`
	RecordID      RecordID    `json:"record_id"`
	Actor         Address     `json:"actor"`
	Action        AuditAction `json:"action"`
	DetailsDigest Digest      `json:"details_digest"`
	At            time.Time   `json:"at"`
}

// Tx carries the authenticated caller and commit time of one mutation.
type Tx struct {
	Caller Address
	At     time.Time
}

const (
	maxDescriptionBytes = 100
	maxReasonBytes      = 200
	minGrantDays        = 1
	maxGrantDays        = 365
)

func (r Role) MarshalText() ([]byte, error)               { return []byte(r.String()), nil }
func (s VerificationStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s AccessStatus) MarshalText() ([]byte, error)       { return []byte(s.String()), nil }
func (a AuditAction) MarshalText() ([]byte, error)        { return []byte(a.String()), nil }
func (t RecordType) MarshalText() ([]byte, error)         { return []byte(t.String()), nil }

func (t *RecordType) UnmarshalText(b []byte) error {
	v, ok := ParseRecordType(string(b))
	if !ok {
		return ErrInvalidRecordType
	}
	*t = v
	return nil
}

func (r *Role) UnmarshalText(b []byte) error {
	for _, v := range []Role{RoleNone, RolePatient, RoleDoctor} {
		if v.String() == string(b) {
			*r = v
			return nil
		}
	}
	return ErrInvalidInput
}

func (s *VerificationStatus) UnmarshalText(b []byte) error {
	for v := StatusNone; v <= StatusSuspended; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return ErrInvalidInput
}

func (s *AccessStatus) UnmarshalText(b []byte) error {
	for v := AccessNone; v <= AccessExpired; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return ErrInvalidInput
}

func (a *AuditAction) UnmarshalText(b []byte) error {
	for v, n := range auditActionNames {
		if n == string(b) {
			*a = v
			return nil
		}
	}
	return ErrInvalidInput
}

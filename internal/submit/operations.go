package submit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"carevault.org/internal/ledger"
)

// Operation names accepted by Submit.
const (
	OpRegisterPatient  = "registerPatient"
	OpRegisterDoctor   = "registerDoctor"
	OpVerifyDoctor     = "verifyDoctor"
	OpRejectDoctor     = "rejectDoctor"
	OpSuspendDoctor    = "suspendDoctor"
	OpUpdateProfile    = "updateProfile"
	OpAddRecord        = "addRecord"
	OpDeactivateRecord = "deactivateRecord"
	OpRequestAccess    = "requestAccess"
	OpGrantAccess      = "grantAccess"
	OpRevokeAccess     = "revokeAccess"
)

// Argument shapes, shared with clients.
type (
	ProfileArgs struct {
		ProfileDigest ledger.Digest `json:"profile_digest"`
	}
	DoctorArgs struct {
		ProfileDigest ledger.Digest `json:"profile_digest"`
		LicenseRef    string        `json:"license_ref"`
	}
	DoctorStatusArgs struct {
		Doctor ledger.Address `json:"doctor"`
		Reason string         `json:"reason,omitempty"`
	}
	RecordArgs struct {
		RecordID ledger.RecordID `json:"record_id"`
	}
	RequestAccessArgs struct {
		RecordID ledger.RecordID `json:"record_id"`
		Reason   string          `json:"reason"`
	}
	GrantAccessArgs struct {
		AccessID         ledger.AccessID `json:"access_id"`
		WrappedKeyDigest ledger.Digest   `json:"wrapped_key_digest"`
		DurationDays     int             `json:"duration_days"`
	}
	AccessArgs struct {
		AccessID ledger.AccessID `json:"access_id"`
	}
)

// Result shapes for operations that return only an id.
type (
	RecordResult struct {
		RecordID ledger.RecordID `json:"record_id"`
	}
	AccessResult struct {
		AccessID ledger.AccessID `json:"access_id"`
	}
)

type handler func(l *ledger.Ledger, tx ledger.Tx, args json.RawMessage) (any, error)

func op[T any](fn func(l *ledger.Ledger, tx ledger.Tx, args T) (any, error)) handler {
	return func(l *ledger.Ledger, tx ledger.Tx, raw json.RawMessage) (any, error) {
		var args T
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return fn(l, tx, args)
	}
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, ledger.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

var operations = map[string]handler{
	OpRegisterPatient: op(func(l *ledger.Ledger, tx ledger.Tx, a ProfileArgs) (any, error) {
		return l.RegisterPatient(tx, a.ProfileDigest)
	}),
	OpRegisterDoctor: op(func(l *ledger.Ledger, tx ledger.Tx, a DoctorArgs) (any, error) {
		return l.RegisterDoctor(tx, a.ProfileDigest, a.LicenseRef)
	}),
	OpVerifyDoctor: op(func(l *ledger.Ledger, tx ledger.Tx, a DoctorStatusArgs) (any, error) {
		return l.VerifyDoctor(tx, a.Doctor)
	}),
	OpRejectDoctor: op(func(l *ledger.Ledger, tx ledger.Tx, a DoctorStatusArgs) (any, error) {
		return l.RejectDoctor(tx, a.Doctor, a.Reason)
	}),
	OpSuspendDoctor: op(func(l *ledger.Ledger, tx ledger.Tx, a DoctorStatusArgs) (any, error) {
		return l.SuspendDoctor(tx, a.Doctor, a.Reason)
	}),
	OpUpdateProfile: op(func(l *ledger.Ledger, tx ledger.Tx, a ProfileArgs) (any, error) {
		return l.UpdateProfile(tx, a.ProfileDigest)
	}),
	OpAddRecord: op(func(l *ledger.Ledger, tx ledger.Tx, a ledger.NewRecord) (any, error) {
		id, err := l.AddRecord(tx, a)
		if err != nil {
			return nil, err
		}
		return RecordResult{RecordID: id}, nil
	}),
	OpDeactivateRecord: op(func(l *ledger.Ledger, tx ledger.Tx, a RecordArgs) (any, error) {
		if err := l.DeactivateRecord(tx, a.RecordID); err != nil {
			return nil, err
		}
		return RecordResult{RecordID: a.RecordID}, nil
	}),
	OpRequestAccess: op(func(l *ledger.Ledger, tx ledger.Tx, a RequestAccessArgs) (any, error) {
		id, err := l.RequestAccess(tx, a.RecordID, a.Reason)
		if err != nil {
			return nil, err
		}
		return AccessResult{AccessID: id}, nil
	}),
	OpGrantAccess: op(func(l *ledger.Ledger, tx ledger.Tx, a GrantAccessArgs) (any, error) {
		return l.GrantAccess(tx, a.AccessID, a.WrappedKeyDigest, a.DurationDays)
	}),
	OpRevokeAccess: op(func(l *ledger.Ledger, tx ledger.Tx, a AccessArgs) (any, error) {
		return l.RevokeAccess(tx, a.AccessID)
	}),
}

// Operations lists the accepted operation names in sorted order.
func Operations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewOperation encodes args into an Operation.
func NewOperation(name string, args any) (Operation, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Operation{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return Operation{Name: name, Args: raw}, nil
}

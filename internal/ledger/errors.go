package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotRegistered     = errors.New("not registered")
	ErrOwnerNotPatient   = errors.New("owner is not a registered patient")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrAlreadyActive     = errors.New("access already active")
	ErrAlreadyInactive   = errors.New("record already inactive")
	ErrAlreadyExpired    = errors.New("access already expired")
	ErrNotPending        = errors.New("doctor is not pending verification")
	ErrRecordInactive    = errors.New("record inactive")
	ErrNotGranted        = errors.New("access not granted")
	ErrExpired           = errors.New("access expired")

	// InvalidInput family.
	ErrEmptyDigest        = fmt.Errorf("%w: empty digest", ErrInvalidInput)
	ErrEmptyProfile       = fmt.Errorf("%w: empty profile digest", ErrInvalidInput)
	ErrDescriptionTooLong = fmt.Errorf("%w: description exceeds %d bytes", ErrInvalidInput, maxDescriptionBytes)
	ErrInvalidReason      = fmt.Errorf("%w: reason must be 1..%d bytes", ErrInvalidInput, maxReasonBytes)
	ErrInvalidDuration    = fmt.Errorf("%w: duration must be %d..%d days", ErrInvalidInput, minGrantDays, maxGrantDays)
	ErrInvalidRecordType  = fmt.Errorf("%w: unknown record type", ErrInvalidInput)
	ErrKeyNotRewrapped    = fmt.Errorf("%w: wrapped key must be re-wrapped for the doctor", ErrInvalidInput)
	ErrEmptyCaller        = fmt.Errorf("%w: caller identity required", ErrInvalidInput)
	ErrEmptyLicenseRef    = fmt.Errorf("%w: license reference required", ErrInvalidInput)
	ErrLicenseRefTooLong  = fmt.Errorf("%w: license reference exceeds %d bytes", ErrInvalidInput, maxReasonBytes)
)

var codes = []struct {
	err  error
	code string
}{
	// Most specific first: family members wrap ErrInvalidInput.
	{ErrEmptyDigest, "EmptyDigest"},
	{ErrEmptyProfile, "EmptyProfile"},
	{ErrDescriptionTooLong, "DescriptionTooLong"},
	{ErrInvalidReason, "InvalidReason"},
	{ErrInvalidDuration, "InvalidDuration"},
	{ErrInvalidRecordType, "InvalidRecordType"},
	{ErrKeyNotRewrapped, "KeyNotRewrapped"},
	{ErrEmptyCaller, "EmptyCaller"},
	{ErrEmptyLicenseRef, "EmptyLicenseRef"},
	{ErrLicenseRefTooLong, "LicenseRefTooLong"},
	{ErrInvalidInput, "InvalidInput"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrNotRegistered, "NotRegistered"},
	{ErrOwnerNotPatient, "OwnerNotPatient"},
	{ErrNotFound, "NotFound"},
	{ErrInvalidState, "InvalidState"},
	{ErrAlreadyRegistered, "AlreadyRegistered"},
	{ErrAlreadyActive, "AlreadyActive"},
	{ErrAlreadyInactive, "AlreadyInactive"},
	{ErrAlreadyExpired, "AlreadyExpired"},
	{ErrNotPending, "NotPending"},
	{ErrRecordInactive, "RecordInactive"},
	{ErrNotGranted, "NotGranted"},
	{ErrExpired, "Expired"},
}

// Code returns the stable wire code for a ledger error, or "" when err is
// not a ledger error.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// FromCode is the inverse of Code.
func FromCode(code string) (error, bool) {
	for _, c := range codes {
		if c.code == code {
			return c.err, true
		}
	}
	return nil, false
}

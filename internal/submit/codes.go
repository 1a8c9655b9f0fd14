package submit

import (
	"errors"

	"carevault.org/internal/ledger"
)

var gatewayCodes = []struct {
	err  error
	code string
}{
	{ErrUnknownOperation, "UnknownOperation"},
	{ErrInvalidArgs, "InvalidArgs"},
	{ErrDegraded, "Degraded"},
}

// Code returns the wire code for a ledger or gateway error, or "" when err
// carries neither.
func Code(err error) string {
	if code := ledger.Code(err); code != "" {
		return code
	}
	for _, c := range gatewayCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// FromCode maps a wire code back to its sentinel.
func FromCode(code string) (error, bool) {
	if err, ok := ledger.FromCode(code); ok {
		return err, true
	}
	for _, c := range gatewayCodes {
		if c.code == code {
			return c.err, true
		}
	}
	return nil, false
}

package grpcapi

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"carevault.org/internal/ledger"
	"carevault.org/internal/submit"
)

// toStatus converts a ledger or gateway error to a gRPC status whose message
// starts with the wire code, so clients can recover the sentinel.
func toStatus(err error) error {
	code := submit.Code(err)
	if code == "" {
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(grpcCode(err), code+": "+err.Error())
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, submit.ErrInvalidArgs),
		errors.Is(err, submit.ErrUnknownOperation):
		return codes.InvalidArgument
	case errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, ledger.ErrNotRegistered),
		errors.Is(err, ledger.ErrOwnerNotPatient),
		errors.Is(err, ledger.ErrNotGranted),
		errors.Is(err, ledger.ErrExpired):
		return codes.PermissionDenied
	case errors.Is(err, ledger.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, submit.ErrDegraded):
		return codes.Unavailable
	default:
		return codes.FailedPrecondition
	}
}

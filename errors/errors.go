package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrIdentityMissing      = fmt.Errorf("identity missing")
	ErrUnauthenticatedSend  = fmt.Errorf("sender has no registered identity")
	ErrRecipientUnreachable = fmt.Errorf("recipient has no active connection")
	ErrRoomForbidden        = fmt.Errorf("room is private to other participants")
	ErrNotFound             = fmt.Errorf("not found")
	ErrMessageNotFound      = fmt.Errorf("message not found")
	ErrUnknownEvent         = fmt.Errorf("unknown event")
	ErrInvalidPayload       = fmt.Errorf("invalid payload")
	ErrInvalidToken         = fmt.Errorf("invalid identity token")
	ErrOutboxFull           = fmt.Errorf("connection outbox full")
	ErrOutboxClosed         = fmt.Errorf("connection outbox closed")
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrEmptyWords           = fmt.Errorf("no words have been found")
)

// IsBenign reports errors that are part of normal traffic and only worth a debug line.
func IsBenign(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrIdentityMissing) ||
		errors.Is(err, ErrRecipientUnreachable)
}

// MapToGRPCError converts domain errors to gRPC status errors.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMessageNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrIdentityMissing), errors.Is(err, ErrInvalidPayload):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrUnauthenticatedSend), errors.Is(err, ErrInvalidToken):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, ErrRoomForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrRecipientUnreachable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}

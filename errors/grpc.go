package errors

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MapToGRPCError translates domain errors into gRPC status errors at the server boundary.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case Is(err, ErrNotConnected), Is(err, ErrUnknownSession):
		return status.Error(codes.FailedPrecondition, err.Error())
	case Is(err, ErrIdentityRequired), Is(err, ErrInvalidIdentity):
		return status.Error(codes.Unauthenticated, err.Error())
	case Is(err, ErrChannelRequired), Is(err, ErrInvalidMessage):
		return status.Error(codes.InvalidArgument, err.Error())
	case Is(err, ErrSlowConsumer):
		return status.Error(codes.ResourceExhausted, err.Error())
	case Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromGRPCError is the client side counterpart of MapToGRPCError.
// The returned error keeps the server message and matches the closest sentinel.
func FromGRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return Failure(ErrTransport, err.Error())
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return Failure(ErrNotConnected, st.Message())
	case codes.Unauthenticated, codes.PermissionDenied:
		return Failure(ErrConnectionFailed, st.Message())
	case codes.InvalidArgument:
		return Failure(ErrInvalidMessage, st.Message())
	case codes.ResourceExhausted:
		return Failure(ErrSlowConsumer, st.Message())
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return Failure(ErrTransport, st.Message())
	}
}

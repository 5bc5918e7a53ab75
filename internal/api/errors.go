package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/bazaar/internal/auth"
	"github.com/matheus3301/bazaar/internal/backend"
	"github.com/matheus3301/bazaar/internal/chatws"
	"github.com/matheus3301/bazaar/internal/dispatch"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus converts a domain error into a gRPC status error.
func toStatus(op string, err error) error {
	return grpcstatus.Errorf(codeOf(err), "%s: %v", op, err)
}

func codeOf(err error) codes.Code {
	var (
		connErr   *chatws.ConnectionError
		statusErr *backend.StatusError
	)
	switch {
	case errors.Is(err, auth.ErrNoCredentials),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, backend.ErrUnauthorized),
		errors.Is(err, dispatch.ErrNoUser):
		return codes.Unauthenticated
	case errors.As(err, &connErr) && connErr.Status == http.StatusUnauthorized:
		return codes.Unauthenticated
	case errors.Is(err, chatws.ErrNotConnected):
		return codes.FailedPrecondition
	case errors.Is(err, dispatch.ErrEmptyMessage):
		return codes.InvalidArgument
	case errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound:
		return codes.NotFound
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Unavailable
	}
}

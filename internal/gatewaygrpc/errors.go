package gatewaygrpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	// ErrorUnknown is an uncategorized gateway failure.
	ErrorUnknown ErrorKind = "unknown"
	// ErrorUnavailable indicates the executor is unreachable.
	ErrorUnavailable ErrorKind = "unavailable"
	// ErrorUnauthorized indicates authentication failed.
	ErrorUnauthorized ErrorKind = "unauthorized"
	// ErrorPermissionDenied indicates authorization failed.
	ErrorPermissionDenied ErrorKind = "permission_denied"
	// ErrorTimeout indicates the executor timed out.
	ErrorTimeout ErrorKind = "timeout"
	// ErrorCanceled indicates the request was canceled.
	ErrorCanceled ErrorKind = "canceled"
	// ErrorClosed indicates the client was closed.
	ErrorClosed ErrorKind = "closed"
	// ErrorEncode indicates a message could not be encoded.
	ErrorEncode ErrorKind = "encode"
)

// GatewayError wraps gateway failures with a stable classification.
type GatewayError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "gateway error"
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("gateway %s failed (%s)", e.Op, e.Kind)
	}
	return "gateway error"
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *GatewayError
	if errors.As(err, &existing) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &GatewayError{Kind: ErrorCanceled, Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GatewayError{Kind: ErrorTimeout, Op: op, Err: err}
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated:
			return &GatewayError{Kind: ErrorUnauthorized, Op: op, Err: err}
		case codes.PermissionDenied:
			return &GatewayError{Kind: ErrorPermissionDenied, Op: op, Err: err}
		case codes.Unavailable:
			return &GatewayError{Kind: ErrorUnavailable, Op: op, Err: err}
		case codes.DeadlineExceeded:
			return &GatewayError{Kind: ErrorTimeout, Op: op, Err: err}
		case codes.Canceled:
			return &GatewayError{Kind: ErrorCanceled, Op: op, Err: err}
		}
	}
	return &GatewayError{Kind: ErrorUnknown, Op: op, Err: err}
}

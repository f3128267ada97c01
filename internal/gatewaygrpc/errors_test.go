package gatewaygrpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapGatewayError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{err: status.Error(codes.Unauthenticated, "no auth"), want: ErrorUnauthorized},
		{err: status.Error(codes.PermissionDenied, "nope"), want: ErrorPermissionDenied},
		{err: status.Error(codes.Unavailable, "down"), want: ErrorUnavailable},
		{err: status.Error(codes.DeadlineExceeded, "slow"), want: ErrorTimeout},
		{err: context.Canceled, want: ErrorCanceled},
		{err: context.DeadlineExceeded, want: ErrorTimeout},
		{err: errors.New("boom"), want: ErrorUnknown},
	}
	for _, tc := range cases {
		wrapped := wrapGatewayError("send", tc.err)
		var gwErr *GatewayError
		require.True(t, errors.As(wrapped, &gwErr), "expected GatewayError for %v", tc.err)
		require.Equal(t, tc.want, gwErr.Kind)
		require.Equal(t, "send", gwErr.Op)
		require.ErrorIs(t, wrapped, tc.err)
	}
	require.NoError(t, wrapGatewayError("send", nil))

	already := &GatewayError{Kind: ErrorClosed, Op: "connect"}
	require.Same(t, already, wrapGatewayError("send", already))
	require.Equal(t, "gateway connect failed (closed)", already.Error())
}

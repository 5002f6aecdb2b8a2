package api

import (
	"context"
	"errors"
	"strings"

	"github.com/cuemby/hamster/pkg/manager"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/hashicorp/raft"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorCodes maps provider errors to gRPC codes. The error text travels in
// the status message and FromStatus matches it back.
var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{provider.ErrInvalidResourceIndex, codes.NotFound},
	{provider.ErrInvalidDAppIndex, codes.NotFound},
	{provider.ErrInvalidDAppName, codes.InvalidArgument},
	{provider.ErrInvalidMethod, codes.InvalidArgument},
	{provider.ErrResourceNotOwnedByAccount, codes.PermissionDenied},
	{provider.ErrNotHaveDApp, codes.PermissionDenied},
	{provider.ErrRepeatDAppName, codes.AlreadyExists},
	{provider.ErrGenesisApplied, codes.AlreadyExists},
	{provider.ErrInstantiate, codes.ResourceExhausted},
	{provider.ErrDAppRedistribution, codes.Internal},
	{provider.ErrClearDownlineResourceInformation, codes.Internal},
	{manager.ErrNotBootstrapped, codes.Unavailable},
	{raft.ErrNotLeader, codes.Unavailable},
	{raft.ErrEnqueueTimeout, codes.Unavailable},
	{raft.ErrRaftShutdown, codes.Unavailable},
}

// ToStatus converts an operation error to a gRPC status error
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return status.Error(e.code, err.Error())
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// RemoteError is an error returned by the Provider service. It unwraps to the
// provider error it was created from, so callers can use errors.Is on both
// sides of the connection.
type RemoteError struct {
	Code    codes.Code
	Message string
	cause   error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.cause
}

// FromStatus converts a gRPC status error back to a RemoteError
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	remote := &RemoteError{Code: st.Code(), Message: st.Message()}
	for _, e := range errorCodes {
		if e.code == st.Code() && strings.Contains(st.Message(), e.err.Error()) {
			remote.cause = e.err
			break
		}
	}
	return remote
}

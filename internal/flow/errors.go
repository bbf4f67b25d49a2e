package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned by an Authorizer when the user dismissed the
	// authorization UI.
	ErrCancelled = errors.New("authorization cancelled")

	// ErrNotAuthorized means a refresh was requested without a usable refresh
	// token for the provider.
	ErrNotAuthorized = errors.New("no refresh token available")

	// ErrRefreshUnsupported means the provider's protocol has no refresh grant.
	ErrRefreshUnsupported = errors.New("provider does not support token refresh")

	errWorkerClosed = errors.New("flow worker stopped")
)

// ProtocolError is a provider response the flow could not use. The persisted
// state is left untouched.
type ProtocolError struct {
	Step   string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Step, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NetworkError is a transport failure during a flow step. It is never retried.
type NetworkError struct {
	Step string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Step, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

package mevshare

import (
	"errors"
	"fmt"
)

var (
	// ErrRelayRejected matches every *RelayError.
	ErrRelayRejected = errors.New("relay rejected request")
	// ErrTransportFailure matches every *TransportError.
	ErrTransportFailure     = errors.New("transport failure")
	ErrUnsupportedEventKind = errors.New("unsupported event kind")
	ErrInclusionTimeout     = errors.New("target transaction did not appear onchain before timeout")
)

// RelayError is a structured JSON-RPC error returned by the relay.
// Code and Message are exactly what the relay sent.
type RelayError struct {
	Code    int
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

func (e *RelayError) Is(target error) bool {
	return target == ErrRelayRejected
}

// TransportError wraps failures of the HTTP or stream transport.
type TransportError struct {
	Err error
}

func newTransportError(err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Err: err}
}

func (e *TransportError) Error() string {
	return "transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFailure
}

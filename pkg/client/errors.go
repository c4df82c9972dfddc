package client

import (
	"errors"
	"fmt"
)

// Transport error codes surfaced to callers.
const (
	// CodeTimeout marks a request cancelled by the per-request timeout.
	CodeTimeout = "TIMEOUT_ERROR"

	// CodeNetwork marks a transport failure with no HTTP status.
	CodeNetwork = "NETWORK_ERROR"
)

// HTTPError is a response with a non-2xx status. Data carries the raw
// response body.
type HTTPError struct {
	Status     int
	StatusText string
	Data       []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d %s", e.Status, e.StatusText)
}

// TransportError is a failure that produced no HTTP response: a
// timeout (Status 408) or a connectivity problem (Status 0).
type TransportError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// DefaultRetryCondition is the retry predicate used when a request
// supplies none: retry server errors (5xx) and connectivity failures.
// Client errors are never retried, and neither are timeouts — a
// timeout's 408 is a TransportError with CodeTimeout, which satisfies
// neither branch.
func DefaultRetryCondition(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= 500
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Code == CodeNetwork
	}

	return false
}

package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies every failure that can cross the gateway boundary. The
// workflow controller only ever sees one of these, never a raw error.
type Kind string

const (
	// KindNoFileSelected is a local, user-triggered failure; no network
	// call was attempted.
	KindNoFileSelected Kind = "no_file_selected"
	// KindMalformedInput means pasted or structured data failed to parse
	// before any network call.
	KindMalformedInput Kind = "malformed_input"
	// KindRateLimited maps HTTP 429; retryable after a pause.
	KindRateLimited Kind = "service_rate_limited"
	// KindRejected covers other 4xx/5xx responses from the service.
	KindRejected Kind = "service_rejected"
	// KindEmptyResult means the service answered successfully but supplied
	// no usable transactions or analysis.
	KindEmptyResult Kind = "empty_result"
	// KindTransport is a network-level failure with no structured response.
	KindTransport Kind = "transport_failure"
)

// Error is the classified gateway failure.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the caller may simply try again later.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransport
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// AsError extracts a classified gateway error from an error chain.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// KindOf returns the classification of err, defaulting to transport failure
// for anything unclassified.
func KindOf(err error) Kind {
	if ge, ok := AsError(err); ok {
		return ge.Kind
	}
	return KindTransport
}

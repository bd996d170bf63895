// Package apperr defines the error taxonomy shared by every tool operation.
//
// Four kinds exist: validation (bad arguments, caught before any network
// call), payload (image decoding/size/MIME failures), upstream (non-2xx
// response from the BookStack API, carrying status and body verbatim), and
// transport (timeout, connection failure, aborted request).
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind string

const (
	KindValidation Kind = "validation"
	KindPayload    Kind = "payload"
	KindUpstream   Kind = "upstream"
	KindTransport  Kind = "transport"
)

// Error is the structured failure type surfaced through the tool envelope.
type Error struct {
	Kind    Kind
	Message string

	// Status and Body are set for upstream errors only. Body is the raw
	// upstream response so callers can distinguish 404 from 422 from 403.
	Status int
	Body   string

	cause error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindUpstream && e.Status > 0:
		return fmt.Sprintf("upstream: HTTP %d: %s", e.Status, e.Message)
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Details returns the machine-readable part of the error for the envelope.
func (e *Error) Details() map[string]any {
	d := map[string]any{"kind": string(e.Kind)}
	if e.Status > 0 {
		d["status"] = e.Status
	}
	if e.Body != "" {
		d["upstream_body"] = e.Body
	}
	return d
}

// Validation builds a validation error. No network call may follow one.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Payload builds an image payload error.
func Payload(format string, args ...any) *Error {
	return &Error{Kind: KindPayload, Message: fmt.Sprintf(format, args...)}
}

// PayloadWrap wraps a decoding failure as a payload error.
func PayloadWrap(msg string, err error) *Error {
	return &Error{Kind: KindPayload, Message: msg, cause: err}
}

// Upstream builds an error from a non-2xx upstream response. The body is
// carried verbatim.
func Upstream(status int, body string) *Error {
	return &Error{
		Kind:    KindUpstream,
		Message: fmt.Sprintf("unexpected status %d", status),
		Status:  status,
		Body:    body,
	}
}

// Transport wraps a connection-level failure (dial, timeout, cancelled
// request). These may be transient; retrying is the caller's choice.
func Transport(msg string, err error) *Error {
	return &Error{Kind: KindTransport, Message: msg, cause: err}
}

// As extracts an *Error from err, or wraps err as a transport error so that
// nothing crosses the tool boundary untyped.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindTransport, Message: err.Error(), cause: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

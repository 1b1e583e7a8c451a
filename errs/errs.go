// Package errs defines the error kinds shared by every layer of
// shardframe, modeled on the apperr pattern: a single error type carrying
// a machine-readable kind, an HTTP status, a client-safe message, and an
// optional wrapped cause that is never exposed to callers.
package errs

import (
	"fmt"
	"net/http"
)

// Kind is a machine-readable error classification, independent of any
// particular transport.
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindIngest     Kind = "INGEST_ERROR"
	KindPeer       Kind = "PEER_ERROR"
	KindInternal   Kind = "INTERNAL_ERROR"
)

// Error is the canonical error type returned from every shardframe
// component. Cause is for server-side logging only.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Cause      error

	// PartialRows carries a best-effort row count for IngestError, per
	// spec: ingest failures surface with the partial progress made before
	// the failure.
	PartialRows int64
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, HTTPStatus: http.StatusBadRequest}
}

func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg, HTTPStatus: http.StatusNotFound}
}

func NotFoundf(format string, args ...any) *Error {
	return NotFound(fmt.Sprintf(format, args...))
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg, HTTPStatus: http.StatusConflict}
}

func Conflictf(format string, args ...any) *Error {
	return Conflict(fmt.Sprintf(format, args...))
}

func Ingest(msg string, cause error, partialRows int64) *Error {
	return &Error{
		Kind:        KindIngest,
		Message:     msg,
		HTTPStatus:  http.StatusUnprocessableEntity,
		Cause:       cause,
		PartialRows: partialRows,
	}
}

func Peer(msg string, cause error) *Error {
	return &Error{Kind: KindPeer, Message: msg, HTTPStatus: http.StatusBadGateway, Cause: cause}
}

func Internal(cause error) *Error {
	return &Error{
		Kind:       KindInternal,
		Message:    "an internal invariant was violated",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// As extracts a *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	if ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil, false
}

// Package errors defines the error taxonomy shared by the job manager,
// solver supervisor, and HTTP layer.
//
// Every error that can cross a component boundary carries a Kind. The HTTP
// layer maps kinds to status codes; everything else matches on kind via
// KindOf rather than string comparison.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers. Kinds are stable, machine-readable
// identifiers and double as the "code" field of HTTP error envelopes.
type Kind string

const (
	// KindInvalidInput marks a structurally malformed submission. No state
	// is created.
	KindInvalidInput Kind = "INVALID_INPUT"

	// KindNotFound marks an unknown job identifier.
	KindNotFound Kind = "NOT_FOUND"

	// KindStaleState marks a lost compare-and-transition race. Internal
	// only; never surfaced to API callers.
	KindStaleState Kind = "STALE_STATE"

	// KindCapacityExceeded marks a submission rejected by admission
	// control. Callers should retry later.
	KindCapacityExceeded Kind = "CAPACITY_EXCEEDED"

	// KindNotReady marks a result request for a job that is still queued
	// or running.
	KindNotReady Kind = "NOT_READY"

	// KindCancelled marks a result request for a cancelled job.
	KindCancelled Kind = "CANCELLED"

	// KindFailed marks a result request for a failed job. The error detail
	// carries the diagnostic log tail.
	KindFailed Kind = "FAILED"

	// KindResourceExhausted marks a registry allocation failure.
	KindResourceExhausted Kind = "RESOURCE_EXHAUSTED"

	// KindAlreadyRunning marks a start request for the singleton solver
	// service while it is not stopped.
	KindAlreadyRunning Kind = "ALREADY_RUNNING"

	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = "INTERNAL_ERROR"
)

// Error is a kinded error with an optional wrapped cause and optional
// diagnostic detail lines (used for failed-job payloads).
type Error struct {
	Kind    Kind
	Message string
	Detail  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a kinded error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Ef constructs a kinded error with a formatted message.
func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and a formatted message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetail returns a copy of e carrying diagnostic detail lines.
func (e *Error) WithDetail(lines ...string) *Error {
	out := *e
	out.Detail = append(append([]string(nil), e.Detail...), lines...)
	return &out
}

// KindOf extracts the Kind from err, walking the wrap chain. Unclassified
// errors report KindInternal; nil reports the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

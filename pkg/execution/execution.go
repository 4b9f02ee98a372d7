// Package execution wraps one running external computation behind a small
// capability interface, regardless of whether it is an out-of-process
// executable or an in-process function call.
//
// Callers drive a Handle by polling: Poll is non-blocking and returns the
// current state plus any diagnostic log lines produced since the previous
// call. Cancellation is cooperative - RequestStop signals the computation
// and the caller keeps polling until a terminal state is observed.
package execution

// State is the coarse lifecycle state reported by Poll.
type State string

const (
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// Status is a point-in-time observation of a Handle.
type Status struct {
	State State

	// Result holds the computation's output document. Set only when
	// State is StateFinished.
	Result []byte

	// LogLines are diagnostic lines produced since the previous Poll.
	LogLines []string

	// Err describes the failure when State is StateFailed.
	Err error
}

// Handle is one running external computation.
//
// Implementations guarantee that the underlying resource (process, file
// descriptors, goroutine) is released exactly once: either when Poll first
// observes a terminal state, or via Dispose, whichever happens first.
// Poll remains callable after release and keeps returning the final status.
type Handle interface {
	// Poll returns the current status without blocking.
	Poll() Status

	// RequestStop asks the computation to terminate early. Asynchronous
	// and idempotent; a no-op on finished handles.
	RequestStop()

	// Dispose releases the underlying resource if Poll has not already
	// done so. Idempotent.
	Dispose()
}

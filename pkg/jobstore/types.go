package jobstore

import (
	"time"

	"github.com/unitable/solverd/pkg/execution"
)

// State is the lifecycle state of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions can leave the state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Record is the registry entry for one submitted problem.
//
// Mutation happens only inside a Transition mutator or AppendLog; callers
// outside the store observe copies. Handle is owned by the runner while
// the job is running and is cleared by whichever transition leaves that
// state.
type Record struct {
	ID    string `json:"job_id"`
	Name  string `json:"name,omitempty"`
	State State  `json:"state"`

	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	// Input is the problem document in the solver's native XML form,
	// immutable after creation.
	Input []byte `json:"-"`

	// Result is the solution document, present iff State is completed.
	Result []byte `json:"-"`

	// Log is the append-only diagnostic log.
	Log []string `json:"-"`

	// Handle is the live execution, present iff State is running.
	Handle execution.Handle `json:"-"`
}

// Summary is the listing view of a record: identity and lifecycle only,
// no document bodies.
type Summary struct {
	ID          string     `json:"job_id"`
	Name        string     `json:"name,omitempty"`
	State       State      `json:"state"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

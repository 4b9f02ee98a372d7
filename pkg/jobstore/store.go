// Package jobstore is the in-memory registry of submitted jobs.
//
// All state mutation funnels through Transition, an atomic
// compare-and-transition: it verifies the record's current state before
// applying a mutator, and fails without side effect otherwise. That single
// primitive is what prevents double-start, double-cancel, and
// cancel-after-completion races.
//
// The registry is process-lifetime state. Durability across restarts is an
// external concern (see internal/archive for solution archival).
package jobstore

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound reports an unknown job id.
	ErrNotFound = errors.New("job not found")

	// ErrStaleState reports a compare-and-transition whose expected state
	// did not match. The losing side resolves it locally; it is never a
	// caller-visible error.
	ErrStaleState = errors.New("job state changed concurrently")

	// ErrExhausted reports that the registry refused a new record.
	ErrExhausted = errors.New("job registry is full")
)

// IsNotFound reports whether err means an unknown job id.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsStaleState reports whether err means a lost compare-and-transition.
func IsStaleState(err error) bool { return errors.Is(err, ErrStaleState) }

// IsExhausted reports whether err means the registry refused a record.
func IsExhausted(err error) bool { return errors.Is(err, ErrExhausted) }

// DefaultMaxRecords bounds the registry when no explicit cap is given.
const DefaultMaxRecords = 10000

// Store is a concurrency-safe map from job id to Record.
type Store struct {
	mu         sync.RWMutex
	records    map[string]*Record
	maxRecords int
}

// NewStore creates an empty registry. maxRecords <= 0 selects
// DefaultMaxRecords.
func NewStore(maxRecords int) *Store {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &Store{
		records:    make(map[string]*Record),
		maxRecords: maxRecords,
	}
}

// Create allocates a fresh id and inserts a queued record owning the given
// input document. Ids are uuids and never reused.
func (s *Store) Create(name string, input []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) >= s.maxRecords {
		return "", ErrExhausted
	}

	id := uuid.New().String()
	s.records[id] = &Record{
		ID:          id,
		Name:        name,
		State:       StateQueued,
		SubmittedAt: time.Now().UTC(),
		Input:       input,
	}
	return id, nil
}

// Get returns a snapshot of the record. The snapshot's Handle is always
// nil: the live handle is owned by the runner and reachable only inside a
// Transition mutator.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return snapshot(rec), nil
}

// Transition atomically moves the record from expected to next, applying
// mutate in between. If the current state differs from expected it fails
// with ErrStaleState and performs no mutation. If mutate returns an error
// the transition is abandoned with the record unchanged in state.
//
// The mutator runs under the store lock and sees the live record,
// including the execution handle; it must not block.
func (s *Store) Transition(id string, expected, next State, mutate func(*Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.State != expected {
		return ErrStaleState
	}

	if mutate != nil {
		if err := mutate(rec); err != nil {
			return err
		}
	}
	rec.State = next
	return nil
}

// AppendLog appends diagnostic lines to the record. Valid in any state;
// the log is append-only and never truncated while the record is retained.
func (s *Store) AppendLog(id string, lines ...string) {
	if len(lines) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.Log = append(rec.Log, lines...)
	}
}

// List returns summaries of all records, newest submission first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, Summary{
			ID:          rec.ID,
			Name:        rec.Name,
			State:       rec.State,
			SubmittedAt: rec.SubmittedAt,
			StartedAt:   rec.StartedAt,
			FinishedAt:  rec.FinishedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// Delete removes a terminal record from the registry. Running or queued
// records are kept; callers garbage-collect finished jobs only.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if !rec.State.Terminal() {
		return ErrStaleState
	}
	delete(s.records, id)
	return nil
}

func snapshot(rec *Record) Record {
	out := *rec
	out.Handle = nil
	out.Log = append([]string(nil), rec.Log...)
	// Input and Result are never mutated after being set, so sharing the
	// backing arrays is safe.
	return out
}

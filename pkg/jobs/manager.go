package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/unitable/solverd/internal/errors"
	"github.com/unitable/solverd/pkg/jobstore"
	"github.com/unitable/solverd/pkg/timetable"
)

// Archiver receives a copy of every completed solution. Implementations
// must tolerate concurrent calls.
type Archiver interface {
	Put(ctx context.Context, key string, contentType string, body []byte) error
}

const (
	// DefaultMaxConcurrent bounds simultaneously running jobs.
	DefaultMaxConcurrent = 4

	// DefaultPollInterval paces the per-job supervision loop.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultLogExcerptLines is how many trailing log lines status reports.
	DefaultLogExcerptLines = 20
)

// Config configures a Manager. Zero values fall back to package defaults.
type Config struct {
	Launcher Launcher
	Logger   *zap.Logger

	// Store holds job records. A fresh in-memory store is created when nil.
	Store *jobstore.Store

	// MaxConcurrent caps running jobs; submissions past the cap are
	// rejected, not queued.
	MaxConcurrent int

	// PollInterval is the pace of each job's supervision loop.
	PollInterval time.Duration

	// DefaultBudget is the wall-clock budget applied when a submission does
	// not carry its own. Zero leaves jobs unbounded and defers to the
	// solver's internal termination settings.
	DefaultBudget time.Duration

	// Archive, when set, receives completed solution documents.
	Archive Archiver

	// LogExcerptLines overrides DefaultLogExcerptLines.
	LogExcerptLines int
}

// Manager owns the asynchronous job lifecycle: it admits submissions,
// supervises one goroutine per running job, and serves status, cancel,
// and result reads against the job store.
type Manager struct {
	store    *jobstore.Store
	launcher Launcher
	log      *zap.Logger
	archive  Archiver

	maxConcurrent int
	pollInterval  time.Duration
	defaultBudget time.Duration
	excerptLines  int

	running atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager validates cfg and returns a ready manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Launcher == nil {
		return nil, fmt.Errorf("jobs: launcher is required")
	}
	if cfg.Store == nil {
		cfg.Store = jobstore.NewStore(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LogExcerptLines <= 0 {
		cfg.LogExcerptLines = DefaultLogExcerptLines
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:         cfg.Store,
		launcher:      cfg.Launcher,
		log:           cfg.Logger,
		archive:       cfg.Archive,
		maxConcurrent: cfg.MaxConcurrent,
		pollInterval:  cfg.PollInterval,
		defaultBudget: cfg.DefaultBudget,
		excerptLines:  cfg.LogExcerptLines,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// SubmitOptions carries per-submission parameters.
type SubmitOptions struct {
	// Name is a client-chosen label; defaults to the job id.
	Name string

	// Budget overrides the manager's default wall-clock budget.
	Budget time.Duration
}

// Submit validates a structured problem, converts it to the solver's
// document format, and admits it as a new job. It returns the job id
// without waiting for the solver.
func (m *Manager) Submit(p *timetable.Problem, opts SubmitOptions) (string, error) {
	if p == nil {
		return "", apperrors.E(apperrors.KindInvalidInput, "problem is required")
	}
	if err := p.Validate(); err != nil {
		return "", apperrors.Wrap(apperrors.KindInvalidInput, err, "invalid problem")
	}
	doc, err := p.SolverXML()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, err, "encode problem document")
	}
	return m.submit(doc, opts)
}

// SubmitXML admits a problem already in the solver's document format.
func (m *Manager) SubmitXML(doc []byte, opts SubmitOptions) (string, error) {
	if err := timetable.ValidateSolverXML(doc); err != nil {
		return "", apperrors.Wrap(apperrors.KindInvalidInput, err, "invalid problem document")
	}
	return m.submit(doc, opts)
}

func (m *Manager) submit(doc []byte, opts SubmitOptions) (string, error) {
	if err := m.launcher.Validate(); err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, err, "solver unavailable")
	}

	// Admission is an atomic reserve; the slot is released the moment the
	// job reaches a terminal state, not when its supervision goroutine
	// exits, so a cancelled solver lingering through its stop grace does
	// not hold capacity.
	if m.running.Add(1) > int64(m.maxConcurrent) {
		m.releaseSlot()
		return "", apperrors.Ef(apperrors.KindCapacityExceeded,
			"too many running jobs (limit %d)", m.maxConcurrent)
	}

	id, err := m.store.Create(opts.Name, doc)
	if err != nil {
		m.releaseSlot()
		if jobstore.IsExhausted(err) {
			return "", apperrors.Wrap(apperrors.KindResourceExhausted, err, "job store full")
		}
		return "", apperrors.Wrap(apperrors.KindInternal, err, "create job record")
	}

	budget := opts.Budget
	if budget <= 0 {
		budget = m.defaultBudget
	}

	m.store.AppendLog(id, "job accepted")
	m.log.Info("job accepted",
		zap.String("job_id", id),
		zap.Duration("budget", budget))

	m.wg.Add(1)
	go m.runJob(id, budget)
	return id, nil
}

// StatusInfo is a read-only view of one job.
type StatusInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	State       string     `json:"state"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	LogExcerpt  []string   `json:"log_excerpt,omitempty"`
}

// Status reports the current state of a job.
func (m *Manager) Status(id string) (*StatusInfo, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound, err, "job %s", id)
	}
	excerpt := rec.Log
	if len(excerpt) > m.excerptLines {
		excerpt = excerpt[len(excerpt)-m.excerptLines:]
	}
	return &StatusInfo{
		ID:          rec.ID,
		Name:        rec.Name,
		State:       string(rec.State),
		SubmittedAt: rec.SubmittedAt,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
		LogExcerpt:  excerpt,
	}, nil
}

// Log returns the full captured log of a job.
func (m *Manager) Log(id string) ([]string, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound, err, "job %s", id)
	}
	return rec.Log, nil
}

// List returns summaries of all known jobs, newest first.
func (m *Manager) List() []jobstore.Summary {
	return m.store.List()
}

// Cancel requests termination of a job. Cancelling a job that has not
// started yet prevents it from ever starting; cancelling a running job
// stops the solver. Cancelling a terminal job is a no-op.
func (m *Manager) Cancel(id string) error {
	now := time.Now().UTC()

	// Queued jobs flip straight to cancelled; the runner's start
	// transition then fails and the solver is never launched.
	err := m.store.Transition(id, jobstore.StateQueued, jobstore.StateCancelled,
		func(r *jobstore.Record) error {
			r.FinishedAt = &now
			return nil
		})
	if err == nil {
		m.releaseSlot()
		m.store.AppendLog(id, "cancelled before start")
		m.log.Info("job cancelled before start", zap.String("job_id", id))
		return nil
	}
	if jobstore.IsNotFound(err) {
		return apperrors.Wrap(apperrors.KindNotFound, err, "job %s", id)
	}

	err = m.store.Transition(id, jobstore.StateRunning, jobstore.StateCancelled,
		func(r *jobstore.Record) error {
			r.FinishedAt = &now
			if r.Handle != nil {
				r.Handle.RequestStop()
				r.Handle = nil
			}
			return nil
		})
	if err == nil {
		m.releaseSlot()
		m.store.AppendLog(id, "cancel requested by client")
		m.log.Info("job cancel requested", zap.String("job_id", id))
		return nil
	}
	if jobstore.IsNotFound(err) {
		return apperrors.Wrap(apperrors.KindNotFound, err, "job %s", id)
	}

	// Already terminal: cancel is idempotent.
	rec, gerr := m.store.Get(id)
	if gerr != nil {
		return apperrors.Wrap(apperrors.KindNotFound, gerr, "job %s", id)
	}
	if rec.State.Terminal() {
		return nil
	}
	return apperrors.Wrap(apperrors.KindStaleState, err, "cancel job %s", id)
}

// Delete removes a terminal job's record. Running or queued jobs must be
// cancelled first.
func (m *Manager) Delete(id string) error {
	err := m.store.Delete(id)
	switch {
	case err == nil:
		return nil
	case jobstore.IsNotFound(err):
		return apperrors.Wrap(apperrors.KindNotFound, err, "job %s", id)
	default:
		return apperrors.Wrap(apperrors.KindStaleState, err, "delete job %s", id)
	}
}

// Result returns the raw solution document of a completed job. Reading a
// result before completion, or of a cancelled or failed job, is an error
// carrying the corresponding kind.
func (m *Manager) Result(id string) ([]byte, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound, err, "job %s", id)
	}
	switch rec.State {
	case jobstore.StateCompleted:
		if len(rec.Result) == 0 {
			return nil, apperrors.Ef(apperrors.KindFailed, "job %s completed without a solution document", id)
		}
		return rec.Result, nil
	case jobstore.StateCancelled:
		return nil, apperrors.Ef(apperrors.KindCancelled, "job %s was cancelled", id)
	case jobstore.StateFailed:
		e := apperrors.Ef(apperrors.KindFailed, "job %s failed", id)
		excerpt := rec.Log
		if len(excerpt) > m.excerptLines {
			excerpt = excerpt[len(excerpt)-m.excerptLines:]
		}
		return nil, e.WithDetail(excerpt...)
	default:
		return nil, apperrors.Ef(apperrors.KindNotReady, "job %s is %s", id, rec.State)
	}
}

// ResultJSON returns the parsed solution of a completed job.
func (m *Manager) ResultJSON(id string) (*timetable.SolutionDocument, error) {
	raw, err := m.Result(id)
	if err != nil {
		return nil, err
	}
	sol, err := timetable.ParseSolution(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "parse solution for job %s", id)
	}
	return &timetable.SolutionDocument{Solution: *sol}, nil
}

// releaseSlot frees one admission slot. Called exactly once per job, by
// whichever writer wins the job's terminal transition.
func (m *Manager) releaseSlot() {
	m.running.Add(-1)
}

// RunningJobs reports how many jobs currently hold admission slots.
func (m *Manager) RunningJobs() int {
	return int(m.running.Load())
}

// Close stops admitting work, asks running solvers to stop, and waits for
// supervision goroutines to exit or ctx to expire.
func (m *Manager) Close(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs: shutdown wait interrupted: %w", ctx.Err())
	}
}

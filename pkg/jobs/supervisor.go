package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/unitable/solverd/internal/errors"
	"github.com/unitable/solverd/pkg/execution"
)

// ServiceState is the lifecycle state of the singleton solver service.
type ServiceState string

const (
	ServiceStopped  ServiceState = "stopped"
	ServiceStarting ServiceState = "starting"
	ServiceRunning  ServiceState = "running"
	ServiceStopping ServiceState = "stopping"
)

// ServiceStatus is a read-only view of the supervisor.
type ServiceStatus struct {
	State      ServiceState `json:"state"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	Message    string       `json:"message,omitempty"`
	LogExcerpt []string     `json:"log_excerpt,omitempty"`
}

// serviceLogTail bounds the retained tail of the service's output.
const serviceLogTail = 200

// Supervisor manages at most one long-lived solver execution alongside the
// per-job manager, for deployments that keep a resident solver warm. Start
// on an already-active service is rejected; Stop is idempotent.
type Supervisor struct {
	launch       func() (execution.Handle, error)
	pollInterval time.Duration
	log          *zap.Logger

	mu        sync.Mutex
	state     ServiceState
	handle    execution.Handle
	startedAt *time.Time
	message   string
	logTail   []string
	gen       int
}

// NewSupervisor creates a stopped supervisor. launch starts one solver
// service execution; pollInterval <= 0 selects DefaultPollInterval.
func NewSupervisor(launch func() (execution.Handle, error), pollInterval time.Duration, logger *zap.Logger) *Supervisor {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		launch:       launch,
		pollInterval: pollInterval,
		log:          logger,
		state:        ServiceStopped,
	}
}

// Start launches the solver service. A service that is already starting,
// running, or stopping rejects the request.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.state != ServiceStopped {
		state := s.state
		s.mu.Unlock()
		return apperrors.Ef(apperrors.KindAlreadyRunning, "solver service is %s", state)
	}
	s.state = ServiceStarting
	s.gen++
	gen := s.gen
	s.message = ""
	s.logTail = nil
	s.mu.Unlock()

	h, err := s.launch()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = ServiceStopped
		s.message = "launch failed: " + err.Error()
		s.log.Error("solver service launch failed", zap.Error(err))
		return apperrors.Wrap(apperrors.KindInternal, err, "start solver service")
	}
	now := time.Now().UTC()
	s.state = ServiceRunning
	s.handle = h
	s.startedAt = &now
	s.log.Info("solver service started")

	go s.monitor(h, gen)
	return nil
}

// Stop terminates the running service and waits for it to exit or for ctx
// to expire. Stopping a stopped service is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case ServiceStopped:
		s.mu.Unlock()
		return nil
	case ServiceStarting:
		s.mu.Unlock()
		return apperrors.E(apperrors.KindAlreadyRunning, "solver service is starting; retry shortly")
	case ServiceRunning:
		s.state = ServiceStopping
	}
	h := s.handle
	s.mu.Unlock()

	if h != nil {
		h.RequestStop()
	}
	s.log.Info("solver service stop requested")

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		stopped := s.state == ServiceStopped
		s.mu.Unlock()
		if stopped {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			if h != nil {
				h.Dispose()
			}
			s.mu.Lock()
			s.state = ServiceStopped
			s.handle = nil
			s.message = "stop timed out; service disposed"
			s.mu.Unlock()
			s.log.Warn("solver service stop timed out")
			return apperrors.Wrap(apperrors.KindInternal, ctx.Err(), "stop solver service")
		}
	}
}

// Status returns the current service state.
func (s *Supervisor) Status() ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServiceStatus{
		State:      s.state,
		StartedAt:  s.startedAt,
		Message:    s.message,
		LogExcerpt: append([]string(nil), s.logTail...),
	}
}

// monitor polls the service handle until it terminates, then returns the
// supervisor to stopped. gen guards against a monitor from a previous
// incarnation touching a restarted service's state.
func (s *Supervisor) monitor(h execution.Handle, gen int) {
	limiter := rate.NewLimiter(rate.Every(s.pollInterval), 1)
	for {
		_ = limiter.Wait(context.Background())

		st := h.Poll()

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			h.Dispose()
			return
		}
		if len(st.LogLines) > 0 {
			s.logTail = append(s.logTail, st.LogLines...)
			if len(s.logTail) > serviceLogTail {
				s.logTail = s.logTail[len(s.logTail)-serviceLogTail:]
			}
		}
		if !st.State.Terminal() {
			s.mu.Unlock()
			continue
		}

		wasStopping := s.state == ServiceStopping
		s.state = ServiceStopped
		s.handle = nil
		s.startedAt = nil
		switch {
		case wasStopping:
			s.message = "stopped"
		case st.State == execution.StateFailed && st.Err != nil:
			s.message = "exited: " + st.Err.Error()
		default:
			s.message = "exited"
		}
		s.mu.Unlock()

		h.Dispose()
		if wasStopping {
			s.log.Info("solver service stopped")
		} else {
			s.log.Warn("solver service exited on its own", zap.Error(st.Err))
		}
		return
	}
}

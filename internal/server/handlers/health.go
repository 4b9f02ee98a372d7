// Package handlers implements the HTTP handlers for the solverd API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/unitable/solverd/internal/errors"
)

// HealthChecker reports the health of one dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// checkTimeout bounds each individual health check.
const checkTimeout = 2 * time.Second

// HealthResponse is the body of a healthy /health reply.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthManager aggregates registered checkers into the health endpoints.
type HealthManager struct {
	version string
	started time.Time

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a manager with no checkers registered.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		started:  time.Now(),
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker adds or replaces a named checker.
func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	for name, checker := range checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checker.CheckHealth(cctx)
		cancel()
		switch {
		case err == nil:
			results[name] = "healthy"
		case cctx.Err() != nil:
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
	}
	return results
}

// determineOverallStatus folds per-check results: any unhealthy check is
// unhealthy, a timeout alone degrades, otherwise healthy.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, result := range checks {
		switch result {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler serves the full health report.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == "unhealthy" {
		envelope := gferrors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "one or more health checks failed")
		if enriched, err := envelope.WithContext(map[string]any{"checks": checks}); err == nil {
			envelope = enriched
		}
		apperrors.WriteEnvelope(w, http.StatusServiceUnavailable, envelope)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: m.version,
		Uptime:  time.Since(m.started).Round(time.Second).String(),
		Checks:  checks,
	})
}

// LivenessHandler answers as soon as the process can serve requests.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessHandler mirrors HealthHandler; readiness and health share the
// same checker set.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler answers once initialization has completed. Registration
// of the manager itself is the completion signal.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

var (
	globalMu            sync.RWMutex
	globalHealthManager *HealthManager
)

// InitHealthManager installs the process-wide manager used by the global
// handler functions.
func InitHealthManager(version string) *HealthManager {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHealthManager = NewHealthManager(version)
	return globalHealthManager
}

// GetHealthManager returns the process-wide manager, or nil before init.
func GetHealthManager() *HealthManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalHealthManager
}

func globalManagerOr503(w http.ResponseWriter) *HealthManager {
	m := GetHealthManager()
	if m == nil {
		apperrors.WriteEnvelope(w, http.StatusServiceUnavailable,
			gferrors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health manager not initialized"))
	}
	return m
}

// HealthHandler is the global-manager variant for route registration.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if m := globalManagerOr503(w); m != nil {
		m.HealthHandler(w, r)
	}
}

// LivenessHandler is the global-manager variant for route registration.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if m := globalManagerOr503(w); m != nil {
		m.LivenessHandler(w, r)
	}
}

// ReadinessHandler is the global-manager variant for route registration.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if m := globalManagerOr503(w); m != nil {
		m.ReadinessHandler(w, r)
	}
}

// StartupHandler is the global-manager variant for route registration.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if m := globalManagerOr503(w); m != nil {
		m.StartupHandler(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

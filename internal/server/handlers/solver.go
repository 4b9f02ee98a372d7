package handlers

import (
	"net/http"

	"github.com/unitable/solverd/pkg/jobs"
)

// SolverHandlers serves the singleton solver service resource.
type SolverHandlers struct {
	Supervisor *jobs.Supervisor
}

// Start handles POST /solver/start.
func (h *SolverHandlers) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.Supervisor.Start(); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Supervisor.Status())
}

// Status handles GET /solver/status.
func (h *SolverHandlers) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Supervisor.Status())
}

// Stop handles POST /solver/stop.
func (h *SolverHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.Supervisor.Stop(r.Context()); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Supervisor.Status())
}

package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/unitable/solverd/internal/errors"
	"github.com/unitable/solverd/pkg/jobs"
	"github.com/unitable/solverd/pkg/jobstore"
	"github.com/unitable/solverd/pkg/timetable"
)

// maxProblemBytes bounds submitted problem documents.
const maxProblemBytes = 32 << 20

// ProblemHandlers serves the asynchronous problem/job resource.
type ProblemHandlers struct {
	Manager *jobs.Manager
}

// SubmitRequest is the JSON submission body: the problem model plus
// optional job parameters.
type SubmitRequest struct {
	timetable.Problem

	// Budget is an optional wall-clock limit like "10m".
	Budget string `json:"budget,omitempty"`
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// Submit handles POST /problems.
func (h *ProblemHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxProblemBytes))
	if err != nil {
		respondWithError(w, r, apperrors.Wrap(apperrors.KindInvalidInput, err, "read request body"))
		return
	}

	var req SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, r, apperrors.Wrap(apperrors.KindInvalidInput, err, "invalid JSON body"))
		return
	}

	opts, err := submitOptions(req.Name, req.Budget, r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	id, err := h.Manager.Submit(&req.Problem, opts)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{ID: id, State: "queued"})
}

// SubmitXML handles POST /problems/xml: a raw solver problem document.
func (h *ProblemHandlers) SubmitXML(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxProblemBytes))
	if err != nil {
		respondWithError(w, r, apperrors.Wrap(apperrors.KindInvalidInput, err, "read request body"))
		return
	}

	opts, err := submitOptions(r.URL.Query().Get("name"), r.URL.Query().Get("budget"), r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	id, err := h.Manager.SubmitXML(body, opts)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{ID: id, State: "queued"})
}

func submitOptions(name, budget string, _ *http.Request) (jobs.SubmitOptions, error) {
	opts := jobs.SubmitOptions{Name: name}
	if budget != "" {
		d, err := time.ParseDuration(budget)
		if err != nil || d <= 0 {
			return opts, apperrors.Ef(apperrors.KindInvalidInput, "invalid budget %q", budget)
		}
		opts.Budget = d
	}
	return opts, nil
}

// Status handles GET /problems/{id}.
func (h *ProblemHandlers) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.Manager.Status(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// List handles GET /problems.
func (h *ProblemHandlers) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.Manager.List()})
}

// Cancel handles DELETE /problems/{id}. Cancelling a terminal job is an
// idempotent no-op, so the response echoes the job's actual state rather
// than assuming the cancel took effect.
func (h *ProblemHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Manager.Cancel(id); err != nil {
		respondWithError(w, r, err)
		return
	}
	state := string(jobstore.StateCancelled)
	if st, err := h.Manager.Status(id); err == nil {
		state = st.State
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "state": state})
}

// Result handles GET /problems/{id}/solution.
func (h *ProblemHandlers) Result(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Manager.ResultJSON(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ResultXML handles GET /problems/{id}/solution/xml, serving the solver's
// document verbatim.
func (h *ProblemHandlers) ResultXML(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Manager.Result(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

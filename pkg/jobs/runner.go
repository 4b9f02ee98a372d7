package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/unitable/solverd/pkg/execution"
	"github.com/unitable/solverd/pkg/jobstore"
)

// archivePutTimeout bounds the best-effort solution upload after a job
// completes. Runs on its own context so manager shutdown does not discard
// a finished solution.
const archivePutTimeout = 30 * time.Second

// runJob supervises one job from launch to terminal state. It is the only
// writer of the running-to-terminal transitions for jobs that actually
// execute; the cancel path in Manager.Cancel is its only competitor, and
// every race between them is resolved by the store's compare-and-transition.
// Whichever side wins a terminal transition also releases the admission
// slot, so a cancelled job frees capacity even while its solver lingers
// through the stop grace period.
func (m *Manager) runJob(id string, budget time.Duration) {
	defer m.wg.Done()

	log := m.log.With(zap.String("job_id", id))

	// Launch inside the queued-to-running transition so a cancel that
	// already flipped the record wins cleanly and the solver never starts.
	var handle execution.Handle
	err := m.store.Transition(id, jobstore.StateQueued, jobstore.StateRunning,
		func(r *jobstore.Record) error {
			h, lerr := m.launcher.Launch(id, r.Input)
			if lerr != nil {
				return lerr
			}
			now := time.Now().UTC()
			r.StartedAt = &now
			r.Handle = h
			handle = h
			return nil
		})
	if err != nil {
		if jobstore.IsStaleState(err) {
			log.Info("job cancelled before start; solver not launched")
			return
		}
		now := time.Now().UTC()
		terr := m.store.Transition(id, jobstore.StateQueued, jobstore.StateFailed,
			func(r *jobstore.Record) error {
				r.FinishedAt = &now
				return nil
			})
		if terr == nil {
			m.releaseSlot()
		}
		m.store.AppendLog(id, "failed to launch solver: "+err.Error())
		log.Error("job launch failed", zap.Error(err))
		return
	}
	defer handle.Dispose()

	log.Info("job started")
	m.store.AppendLog(id, "solver started")

	limiter := rate.NewLimiter(rate.Every(m.pollInterval), 1)
	var deadline time.Time
	if budget > 0 {
		deadline = time.Now().Add(budget)
	}
	stopRequested := false

	for {
		if err := limiter.Wait(m.ctx); err != nil {
			// Manager shutdown: stop the solver and mark the job
			// cancelled so no record is left dangling in running.
			handle.RequestStop()
			now := time.Now().UTC()
			terr := m.store.Transition(id, jobstore.StateRunning, jobstore.StateCancelled,
				func(r *jobstore.Record) error {
					r.FinishedAt = &now
					r.Handle = nil
					return nil
				})
			if terr == nil {
				m.releaseSlot()
				m.store.AppendLog(id, "cancelled by server shutdown")
				log.Warn("job cancelled by shutdown")
			}
			return
		}

		st := handle.Poll()
		if len(st.LogLines) > 0 {
			m.store.AppendLog(id, st.LogLines...)
		}

		switch st.State {
		case execution.StateFinished:
			now := time.Now().UTC()
			terr := m.store.Transition(id, jobstore.StateRunning, jobstore.StateCompleted,
				func(r *jobstore.Record) error {
					r.Result = st.Result
					r.FinishedAt = &now
					r.Handle = nil
					return nil
				})
			if terr != nil {
				// Cancel won the race after the solver already
				// finished; the cancellation stands.
				log.Info("job finished after cancellation; result discarded")
				return
			}
			m.releaseSlot()
			m.store.AppendLog(id, "solver finished")
			log.Info("job completed")
			m.archiveSolution(id, st.Result, log)
			return

		case execution.StateFailed:
			now := time.Now().UTC()
			msg := "solver failed"
			if st.Err != nil {
				msg = "solver failed: " + st.Err.Error()
			}
			terr := m.store.Transition(id, jobstore.StateRunning, jobstore.StateFailed,
				func(r *jobstore.Record) error {
					r.FinishedAt = &now
					r.Handle = nil
					return nil
				})
			if terr != nil {
				// The record is already cancelled; a stop-induced
				// process death is the expected way out.
				log.Info("job terminated after cancellation")
				return
			}
			m.releaseSlot()
			m.store.AppendLog(id, msg)
			log.Warn("job failed", zap.Error(st.Err))
			return
		}

		// Still running: check for an external cancel or a blown budget.
		rec, gerr := m.store.Get(id)
		if gerr != nil {
			handle.RequestStop()
			log.Error("job record vanished mid-run", zap.Error(gerr))
			return
		}

		if rec.State == jobstore.StateCancelled && !stopRequested {
			// Manager.Cancel already asked the handle to stop, but the
			// request is idempotent and repeating it here covers the
			// window where the handle was cleared first.
			handle.RequestStop()
			stopRequested = true
			continue
		}

		if !stopRequested && !deadline.IsZero() && time.Now().After(deadline) {
			now := time.Now().UTC()
			terr := m.store.Transition(id, jobstore.StateRunning, jobstore.StateCancelled,
				func(r *jobstore.Record) error {
					r.FinishedAt = &now
					r.Handle = nil
					return nil
				})
			if terr == nil {
				m.releaseSlot()
				m.store.AppendLog(id, "wall-clock budget exceeded; stopping solver")
				log.Warn("job exceeded budget", zap.Duration("budget", budget))
			}
			handle.RequestStop()
			stopRequested = true
		}
	}
}

func (m *Manager) archiveSolution(id string, doc []byte, log *zap.Logger) {
	if m.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archivePutTimeout)
	defer cancel()

	key := "jobs/" + id + "/solution.xml"
	if err := m.archive.Put(ctx, key, "application/xml", doc); err != nil {
		log.Warn("solution archive upload failed", zap.Error(err))
		return
	}
	if rec, err := m.store.Get(id); err == nil && len(rec.Input) > 0 {
		if err := m.archive.Put(ctx, "jobs/"+id+"/problem.xml", "application/xml", rec.Input); err != nil {
			log.Warn("problem archive upload failed", zap.Error(err))
		}
	}
	log.Info("solution archived", zap.String("key", key))
}

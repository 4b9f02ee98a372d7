package execution

import (
	"context"
	"sync"
)

// Func is an in-process computation. It should return the result document
// on success and honor ctx cancellation promptly. Log lines emitted via
// logf are delivered through Poll.
type Func func(ctx context.Context, logf func(line string)) ([]byte, error)

// Local runs a Func on its own goroutine and exposes it as a Handle.
// It backs embedded solver deployments and is the execution variant used
// by tests.
type Local struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	pending []string
	result  []byte
	err     error
	final   *Status

	disposeOnce sync.Once
}

var _ Handle = (*Local)(nil)

// StartFunc launches fn on a new goroutine and returns immediately.
func StartFunc(fn Func) *Local {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Local{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(l.done)
		result, err := fn(ctx, l.appendLog)
		l.mu.Lock()
		l.result = result
		l.err = err
		l.mu.Unlock()
	}()

	return l
}

func (l *Local) appendLog(line string) {
	l.mu.Lock()
	l.pending = append(l.pending, line)
	l.mu.Unlock()
}

// Poll implements Handle.
func (l *Local) Poll() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines := l.pending
	l.pending = nil

	if l.final != nil {
		st := *l.final
		st.LogLines = lines
		return st
	}

	select {
	case <-l.done:
	default:
		return Status{State: StateRunning, LogLines: lines}
	}

	st := Status{LogLines: lines}
	if l.err != nil {
		st.State = StateFailed
		st.Err = l.err
	} else {
		st.State = StateFinished
		st.Result = l.result
	}
	l.final = &st
	l.cancel()
	return st
}

// RequestStop implements Handle by cancelling the function's context.
func (l *Local) RequestStop() {
	l.cancel()
}

// Dispose implements Handle.
func (l *Local) Dispose() {
	l.disposeOnce.Do(l.cancel)
}

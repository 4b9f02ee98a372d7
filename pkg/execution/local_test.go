package execution

import (
	"context"
	"errors"
	"testing"
	"time"
)

// pollUntilTerminal polls h until a terminal state or the deadline, collecting
// log lines along the way.
func pollUntilTerminal(t *testing.T, h Handle) (Status, []string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var logs []string
	for time.Now().Before(deadline) {
		st := h.Poll()
		logs = append(logs, st.LogLines...)
		if st.State.Terminal() {
			return st, logs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("handle never reached a terminal state")
	return Status{}, nil
}

func TestLocal_Finishes(t *testing.T) {
	h := StartFunc(func(ctx context.Context, logf func(string)) ([]byte, error) {
		logf("working")
		return []byte("<result/>"), nil
	})

	st, logs := pollUntilTerminal(t, h)
	if st.State != StateFinished {
		t.Fatalf("state = %q, want finished", st.State)
	}
	if string(st.Result) != "<result/>" {
		t.Fatalf("unexpected result %q", st.Result)
	}
	found := false
	for _, line := range logs {
		if line == "working" {
			found = true
		}
	}
	if !found {
		t.Fatalf("log line lost: %v", logs)
	}
}

func TestLocal_FailurePropagatesError(t *testing.T) {
	boom := errors.New("solver blew up")
	h := StartFunc(func(ctx context.Context, logf func(string)) ([]byte, error) {
		return nil, boom
	})

	st, _ := pollUntilTerminal(t, h)
	if st.State != StateFailed {
		t.Fatalf("state = %q, want failed", st.State)
	}
	if !errors.Is(st.Err, boom) {
		t.Fatalf("err = %v, want %v", st.Err, boom)
	}
}

func TestLocal_PollAfterTerminalIsStable(t *testing.T) {
	h := StartFunc(func(ctx context.Context, logf func(string)) ([]byte, error) {
		return []byte("done"), nil
	})

	st, _ := pollUntilTerminal(t, h)
	again := h.Poll()
	if again.State != st.State || string(again.Result) != string(st.Result) {
		t.Fatalf("terminal status changed between polls: %+v vs %+v", st, again)
	}
}

func TestLocal_RequestStopCancelsContext(t *testing.T) {
	started := make(chan struct{})
	h := StartFunc(func(ctx context.Context, logf func(string)) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	h.RequestStop()

	st, _ := pollUntilTerminal(t, h)
	if st.State != StateFailed {
		t.Fatalf("state = %q, want failed", st.State)
	}
	if !errors.Is(st.Err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", st.Err)
	}
}

func TestLocal_DisposeUnblocksFunc(t *testing.T) {
	done := make(chan struct{})
	h := StartFunc(func(ctx context.Context, logf func(string)) ([]byte, error) {
		defer close(done)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	h.Dispose()
	h.Dispose() // idempotent

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("function still blocked after Dispose")
	}
}

func TestState_Terminal(t *testing.T) {
	if StateRunning.Terminal() {
		t.Fatal("running should not be terminal")
	}
	if !StateFinished.Terminal() || !StateFailed.Terminal() {
		t.Fatal("finished and failed should be terminal")
	}
}

package execution

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests spawn /bin/sh")
	}
}

func TestStartProcess_ValidatesConfig(t *testing.T) {
	if _, err := StartProcess(ProcessConfig{WorkDir: t.TempDir()}); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := StartProcess(ProcessConfig{Command: []string{"true"}}); err == nil {
		t.Fatal("expected error for empty work dir")
	}
	if _, err := StartProcess(ProcessConfig{
		Command:   []string{"true"},
		WorkDir:   t.TempDir(),
		ResultDir: t.TempDir(),
	}); err == nil {
		t.Fatal("expected error for result dir without glob")
	}
}

func TestStartProcess_MissingExecutableFailsSynchronously(t *testing.T) {
	_, err := StartProcess(ProcessConfig{
		Command: []string{"/no/such/binary"},
		WorkDir: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected start error for missing executable")
	}
}

func TestProcess_FinishReadsResult(t *testing.T) {
	requireShell(t)

	workDir := t.TempDir()
	resultPath := filepath.Join(workDir, "solution.xml")

	h, err := StartProcess(ProcessConfig{
		Command:    []string{"/bin/sh", "-c", "echo line one; echo '<solution/>' > " + resultPath},
		WorkDir:    workDir,
		ResultDir:  workDir,
		ResultGlob: "**/solution.xml",
	})
	if err != nil {
		t.Fatalf("StartProcess() error: %v", err)
	}

	st, logs := pollUntilTerminal(t, h)
	if st.State != StateFinished {
		t.Fatalf("state = %q, err = %v", st.State, st.Err)
	}
	if strings.TrimSpace(string(st.Result)) != "<solution/>" {
		t.Fatalf("unexpected result %q", st.Result)
	}
	found := false
	for _, line := range logs {
		if line == "line one" {
			found = true
		}
	}
	if !found {
		t.Fatalf("stdout line not surfaced: %v", logs)
	}
}

func TestProcess_FindsResultInRunSubdirectory(t *testing.T) {
	requireShell(t)

	workDir := t.TempDir()
	outputDir := filepath.Join(workDir, "output")
	runDir := filepath.Join(outputDir, "run-20260826")

	h, err := StartProcess(ProcessConfig{
		Command: []string{"/bin/sh", "-c",
			"mkdir -p " + runDir + " && echo '<solution/>' > " + filepath.Join(runDir, "solution.xml")},
		WorkDir:    workDir,
		ResultDir:  outputDir,
		ResultGlob: "**/solution.xml",
	})
	if err != nil {
		t.Fatalf("StartProcess() error: %v", err)
	}

	st, _ := pollUntilTerminal(t, h)
	if st.State != StateFinished {
		t.Fatalf("state = %q, err = %v", st.State, st.Err)
	}
	if strings.TrimSpace(string(st.Result)) != "<solution/>" {
		t.Fatalf("unexpected result %q", st.Result)
	}
}

func TestProcess_NewestResultWins(t *testing.T) {
	requireShell(t)

	workDir := t.TempDir()
	outputDir := filepath.Join(workDir, "output")
	firstRun := filepath.Join(outputDir, "run-1")
	secondRun := filepath.Join(outputDir, "run-2")

	script := "mkdir -p " + firstRun + " " + secondRun +
		" && echo '<solution id=\"stale\"/>' > " + filepath.Join(firstRun, "solution.xml") +
		" && sleep 0.05" +
		" && echo '<solution id=\"fresh\"/>' > " + filepath.Join(secondRun, "solution.xml")

	h, err := StartProcess(ProcessConfig{
		Command:    []string{"/bin/sh", "-c", script},
		WorkDir:    workDir,
		ResultDir:  outputDir,
		ResultGlob: "**/solution.xml",
	})
	if err != nil {
		t.Fatalf("StartProcess() error: %v", err)
	}

	st, _ := pollUntilTerminal(t, h)
	if st.State != StateFinished {
		t.Fatalf("state = %q, err = %v", st.State, st.Err)
	}
	if !strings.Contains(string(st.Result), "fresh") {
		t.Fatalf("expected newest solution, got %q", st.Result)
	}
}

func TestProcess_NonZeroExitFailsWithStderr(t *testing.T) {
	requireShell(t)

	h, err := StartProcess(ProcessConfig{
		Command: []string{"/bin/sh", "-c", "echo 'out of memory' >&2; exit 3"},
		WorkDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("StartProcess() error: %v", err)
	}

	st, _ := pollUntilTerminal(t, h)
	if st.State != StateFailed {
		t.Fatalf("state = %q, want failed", st.State)
	}
	if st.Err == nil || !strings.Contains(st.Err.Error(), "out of memory") {
		t.Fatalf("stderr tail missing from error: %v", st.Err)
	}
}

func TestProcess_CleanExitWithoutResultFails(t *testing.T) {
	requireShell(t)

	workDir := t.TempDir()
	h, err := StartProcess(ProcessConfig{
		Command:    []string{"/bin/sh", "-c", "exit 0"},
		WorkDir:    workDir,
		ResultDir:  workDir,
		ResultGlob: "**/solution.xml",
	})
	if err != nil {
		t.Fatalf("StartProcess() error: %v", err)
	}

	st, _ := pollUntilTerminal(t, h)
	if st.State != StateFailed {
		t.Fatalf("state = %q, want failed", st.State)
	}
	if st.Err == nil || !strings.Contains(st.Err.Error(), "produced no result") {
		t.Fatalf("unexpected error: %v", st.Err)
	}
}

func TestProcess_RequestStopTerminates(t *testing.T) {
	requireShell(t)

	h, err := StartProcess(ProcessConfig{
		Command:   []string{"/bin/sh", "-c", "trap 'exit 0' TERM; while true; do sleep 0.1; done"},
		WorkDir:   t.TempDir(),
		StopGrace: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("StartProcess() error: %v", err)
	}

	// Give the shell a moment to install its trap.
	time.Sleep(100 * time.Millisecond)
	h.RequestStop()
	h.RequestStop() // idempotent

	st, _ := pollUntilTerminal(t, h)
	if !st.State.Terminal() {
		t.Fatalf("process still running after stop: %q", st.State)
	}
}

func TestProcess_StopEscalatesToKill(t *testing.T) {
	requireShell(t)
	if testing.Short() {
		t.Skip("waits out the stop grace period")
	}

	h, err := StartProcess(ProcessConfig{
		Command:   []string{"/bin/sh", "-c", "trap '' TERM; while true; do sleep 0.1; done"},
		WorkDir:   t.TempDir(),
		StopGrace: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("StartProcess() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	h.RequestStop()

	st, _ := pollUntilTerminal(t, h)
	if st.State != StateFailed {
		t.Fatalf("state = %q, want failed after SIGKILL", st.State)
	}
}

func TestProcess_LogFilesWritten(t *testing.T) {
	requireShell(t)

	workDir := t.TempDir()
	h, err := StartProcess(ProcessConfig{
		Command: []string{"/bin/sh", "-c", "echo hello; echo oops >&2"},
		WorkDir: workDir,
	})
	if err != nil {
		t.Fatalf("StartProcess() error: %v", err)
	}
	pollUntilTerminal(t, h)

	stdout, err := os.ReadFile(filepath.Join(workDir, "stdout.log"))
	if err != nil {
		t.Fatalf("read stdout.log: %v", err)
	}
	if !strings.Contains(string(stdout), "hello") {
		t.Fatalf("stdout.log missing output: %q", stdout)
	}
	stderr, err := os.ReadFile(filepath.Join(workDir, "stderr.log"))
	if err != nil {
		t.Fatalf("read stderr.log: %v", err)
	}
	if !strings.Contains(string(stderr), "oops") {
		t.Fatalf("stderr.log missing output: %q", stderr)
	}
}

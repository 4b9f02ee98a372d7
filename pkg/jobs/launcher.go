package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/unitable/solverd/pkg/execution"
	"github.com/unitable/solverd/pkg/solver"
)

// Launcher starts one solver execution for a job. The manager depends only
// on this interface; the subprocess launcher is the production variant and
// FuncLauncher backs tests and embedded deployments.
type Launcher interface {
	// Validate checks launch preconditions (installation present, java
	// resolvable). Submissions fail synchronously on a validation error,
	// before any job state is created.
	Validate() error

	// Launch starts solving the given problem document and returns a live
	// handle without waiting for completion.
	Launch(jobID string, problemXML []byte) (execution.Handle, error)
}

// ProcessLauncher runs the cpsolver as one subprocess per job.
//
// Each job gets a scratch directory under WorkRoot holding the problem
// document, the solver's stdout/stderr, and the output directory the
// solver writes solution.xml into.
type ProcessLauncher struct {
	Installation *solver.Installation

	// WorkRoot is the parent of per-job scratch directories.
	WorkRoot string

	// StopGrace is the SIGTERM-to-SIGKILL grace period for cancellation.
	StopGrace time.Duration
}

var _ Launcher = (*ProcessLauncher)(nil)

// Validate implements Launcher.
func (l *ProcessLauncher) Validate() error {
	if l.Installation == nil {
		return fmt.Errorf("solver installation is not configured")
	}
	if l.WorkRoot == "" {
		return fmt.Errorf("job work root is not configured")
	}
	return l.Installation.CheckJava()
}

// Launch implements Launcher.
func (l *ProcessLauncher) Launch(jobID string, problemXML []byte) (execution.Handle, error) {
	workDir, err := filepath.Abs(filepath.Join(l.WorkRoot, jobID))
	if err != nil {
		return nil, fmt.Errorf("resolve job work dir: %w", err)
	}
	outputDir := filepath.Join(workDir, "output")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create job output dir: %w", err)
	}

	problemPath := filepath.Join(workDir, "problem.xml")
	if err := os.WriteFile(problemPath, problemXML, 0644); err != nil {
		return nil, fmt.Errorf("write problem document: %w", err)
	}

	// The solver nests its output in a per-run subdirectory, so the
	// solution is discovered by glob rather than at a fixed path.
	return execution.StartProcess(execution.ProcessConfig{
		Command:    l.Installation.Command(problemPath, outputDir),
		Dir:        l.Installation.Dir,
		WorkDir:    workDir,
		ResultDir:  outputDir,
		ResultGlob: "**/solution.xml",
		StopGrace:  l.StopGrace,
	})
}

// FuncLauncher runs jobs as in-process functions.
type FuncLauncher struct {
	// Solve produces the computation for a job. Required.
	Solve func(jobID string, problemXML []byte) execution.Func

	// ValidateErr, when set, is returned from Validate.
	ValidateErr error

	// LaunchErr, when set, is returned from every Launch.
	LaunchErr error
}

var _ Launcher = (*FuncLauncher)(nil)

// Validate implements Launcher.
func (l *FuncLauncher) Validate() error {
	if l.ValidateErr != nil {
		return l.ValidateErr
	}
	if l.Solve == nil {
		return fmt.Errorf("solve function is not configured")
	}
	return nil
}

// Launch implements Launcher.
func (l *FuncLauncher) Launch(jobID string, problemXML []byte) (execution.Handle, error) {
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	return execution.StartFunc(l.Solve(jobID, problemXML)), nil
}

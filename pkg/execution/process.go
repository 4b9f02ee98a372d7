package execution

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultStopGrace is how long RequestStop waits for the process to exit
// after SIGTERM before escalating to SIGKILL.
const DefaultStopGrace = 5 * time.Second

// ProcessConfig configures one subprocess execution.
type ProcessConfig struct {
	// Command is the full argv, Command[0] being the executable.
	Command []string

	// Dir is the working directory for the process. The solver resolves
	// its settings document and relative classpath entries against it.
	Dir string

	// WorkDir is the per-execution scratch directory. stdout.log and
	// stderr.log are created here. Created if missing.
	WorkDir string

	// ResultDir is the directory the computation writes its output under.
	// Searched once after a zero exit with ResultGlob; a zero exit that
	// leaves no match is a failure.
	ResultDir string

	// ResultGlob selects the result document inside ResultDir. Patterns
	// may span subdirectories ("**/solution.xml"); when several files
	// match, the most recently modified one wins.
	ResultGlob string

	// StopGrace overrides DefaultStopGrace when positive.
	StopGrace time.Duration
}

// Process supervises one spawned subprocess. It satisfies Handle.
type Process struct {
	cmd        *exec.Cmd
	workDir    string
	resultDir  string
	resultGlob string
	stopGrace  time.Duration

	stdoutFile *os.File
	stderrFile *os.File
	logReader  *os.File
	logBuf     []byte

	done    chan struct{}
	waitErr error

	stopOnce    sync.Once
	releaseOnce sync.Once

	mu        sync.Mutex
	final     *Status
	deadPolls int
}

var _ Handle = (*Process)(nil)

// StartProcess launches the configured command and returns immediately.
// The launch itself fails synchronously (missing executable, unwritable
// work dir); everything after a successful start is reported via Poll.
func StartProcess(cfg ProcessConfig) (*Process, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}
	if strings.TrimSpace(cfg.WorkDir) == "" {
		return nil, fmt.Errorf("work dir is required")
	}
	if cfg.ResultDir != "" && strings.TrimSpace(cfg.ResultGlob) == "" {
		return nil, fmt.Errorf("result glob is required when result dir is set")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	stdoutPath := filepath.Join(cfg.WorkDir, "stdout.log")
	stdoutFile, err := os.Create(stdoutPath)
	if err != nil {
		return nil, fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(filepath.Join(cfg.WorkDir, "stderr.log"))
	if err != nil {
		_ = stdoutFile.Close()
		return nil, fmt.Errorf("create stderr log: %w", err)
	}
	logReader, err := os.Open(stdoutPath)
	if err != nil {
		_ = stdoutFile.Close()
		_ = stderrFile.Close()
		return nil, fmt.Errorf("open stdout log for reading: %w", err)
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		_ = stdoutFile.Close()
		_ = stderrFile.Close()
		_ = logReader.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}

	grace := cfg.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}

	p := &Process{
		cmd:        cmd,
		workDir:    cfg.WorkDir,
		resultDir:  cfg.ResultDir,
		resultGlob: cfg.ResultGlob,
		stopGrace:  grace,
		stdoutFile: stdoutFile,
		stderrFile: stderrFile,
		logReader:  logReader,
		done:       make(chan struct{}),
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Pid returns the process id of the spawned process.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Poll implements Handle.
func (p *Process) Poll() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.final != nil {
		return *p.final
	}

	select {
	case <-p.done:
		return p.finalizeLocked()
	default:
	}

	lines := p.readNewLinesLocked()

	// The monitor goroutine reports exits promptly; a dead pid without a
	// wait result means the process record is gone underneath us (pid
	// reaped elsewhere). Two consecutive dead observations avoid flagging
	// the exit/wait window.
	if !isProcessAlive(p.Pid()) {
		p.deadPolls++
		if p.deadPolls >= 2 {
			st := Status{
				State:    StateFailed,
				LogLines: lines,
				Err:      fmt.Errorf("process %d vanished without reporting an exit status", p.Pid()),
			}
			p.final = &st
			p.releaseLocked()
			return st
		}
	} else {
		p.deadPolls = 0
	}

	return Status{State: StateRunning, LogLines: lines}
}

// RequestStop implements Handle. Sends SIGTERM, then SIGKILL after the
// grace period if the process is still alive.
func (p *Process) RequestStop() {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if p.cmd.Process == nil {
			return
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)

		go func() {
			select {
			case <-p.done:
			case <-time.After(p.stopGrace):
				_ = p.cmd.Process.Kill()
			}
		}()
	})
}

// Dispose implements Handle.
func (p *Process) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

// finalizeLocked builds the terminal status after the process has exited.
func (p *Process) finalizeLocked() Status {
	lines := p.readNewLinesLocked()

	st := Status{LogLines: lines}
	switch {
	case p.waitErr != nil:
		st.State = StateFailed
		st.Err = fmt.Errorf("process exited abnormally: %w", p.waitErr)
		if tail := p.stderrTail(); tail != "" {
			st.Err = fmt.Errorf("%v: %s", st.Err, tail)
		}
	case p.resultDir != "":
		result, err := p.discoverResult()
		if err != nil {
			st.State = StateFailed
			st.Err = err
		} else {
			st.State = StateFinished
			st.Result = result
		}
	default:
		st.State = StateFinished
	}

	p.final = &st
	p.releaseLocked()
	return st
}

// discoverResult locates the result document under resultDir. Solvers
// differ in where they place it: some write straight to the output
// directory, others nest it in a per-run subdirectory, so the glob is
// evaluated across the whole tree and the newest match wins.
func (p *Process) discoverResult() ([]byte, error) {
	matches, err := doublestar.Glob(os.DirFS(p.resultDir), p.resultGlob)
	if err != nil {
		return nil, fmt.Errorf("search results under %s: %w", p.resultDir, err)
	}

	var newest string
	var newestMod time.Time
	for _, m := range matches {
		full := filepath.Join(p.resultDir, filepath.FromSlash(m))
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = full
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return nil, fmt.Errorf("process exited cleanly but produced no result matching %s under %s", p.resultGlob, p.resultDir)
	}

	result, err := os.ReadFile(newest)
	if err != nil {
		return nil, fmt.Errorf("read result %s: %w", newest, err)
	}
	return result, nil
}

// releaseLocked closes file handles exactly once.
func (p *Process) releaseLocked() {
	p.releaseOnce.Do(func() {
		_ = p.stdoutFile.Close()
		_ = p.stderrFile.Close()
		_ = p.logReader.Close()
	})
}

// readNewLinesLocked returns complete lines appended to stdout.log since
// the previous read. A trailing partial line is buffered for the next call.
func (p *Process) readNewLinesLocked() []string {
	buf := make([]byte, 64*1024)
	for {
		n, err := p.logReader.Read(buf)
		if n > 0 {
			p.logBuf = append(p.logBuf, buf[:n]...)
		}
		if err != nil || n == 0 {
			break
		}
	}

	var lines []string
	for {
		i := bytes.IndexByte(p.logBuf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(p.logBuf[:i]), "\r")
		p.logBuf = p.logBuf[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// stderrTail returns the last chunk of stderr for failure detail.
func (p *Process) stderrTail() string {
	data, err := os.ReadFile(filepath.Join(p.workDir, "stderr.log"))
	if err != nil {
		return ""
	}
	const max = 2048
	if len(data) > max {
		data = data[len(data)-max:]
	}
	return strings.TrimSpace(string(data))
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks for existence without delivering a signal.
	return proc.Signal(syscall.Signal(0)) == nil
}

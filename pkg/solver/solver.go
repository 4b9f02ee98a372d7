// Package solver locates a UniTime cpsolver installation and builds the
// command lines that run it.
//
// An installation is a directory containing the solver jar
// (cpsolver-<version>.jar), its library jars under lib/, and a declarative
// settings document (config.cfg by default) that is passed through to the
// solver verbatim.
package solver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxHeapMB is the JVM heap ceiling used when none is configured.
const DefaultMaxHeapMB = 512

// DefaultSettingsFile is the settings document name resolved relative to
// the installation directory when no explicit path is configured.
const DefaultSettingsFile = "config.cfg"

// mainClass is the cpsolver course-timetabling entry point.
const mainClass = "org.cpsolver.coursett.Test"

// Installation describes a discovered cpsolver installation.
type Installation struct {
	// Dir is the installation root. Solver runs use it as their working
	// directory so relative classpath entries resolve.
	Dir string

	// SolverJar is the path of the cpsolver jar, relative to Dir.
	SolverJar string

	// LibJars are the library jars under lib/, relative to Dir.
	LibJars []string

	// SettingsPath is the declarative solver settings document, relative
	// to Dir unless configured absolute.
	SettingsPath string

	// JavaPath is the java executable. Empty means "java" from PATH.
	JavaPath string

	// MaxHeapMB caps the JVM heap (-Xmx).
	MaxHeapMB int
}

// Discover inspects dir and resolves an Installation. It fails if the
// directory, the solver jar, or the settings document is missing; this is
// the synchronous launch-precondition check, so submissions against a
// broken installation fail before any job state is created.
func Discover(dir, settingsPath, javaPath string, maxHeapMB int) (*Installation, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("solver installation dir is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("solver installation not found at %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("solver installation path %s is not a directory", dir)
	}

	fsys := os.DirFS(dir)

	solverJars, err := doublestar.Glob(fsys, "cpsolver-*.jar")
	if err != nil {
		return nil, fmt.Errorf("scan for solver jar: %w", err)
	}
	if len(solverJars) == 0 {
		return nil, fmt.Errorf("no cpsolver-*.jar found in %s", dir)
	}
	sort.Strings(solverJars)
	// Highest version wins when several jars are present.
	solverJar := solverJars[len(solverJars)-1]

	libJars, err := doublestar.Glob(fsys, "lib/**/*.jar")
	if err != nil {
		return nil, fmt.Errorf("scan for library jars: %w", err)
	}
	sort.Strings(libJars)

	if strings.TrimSpace(settingsPath) == "" {
		settingsPath = DefaultSettingsFile
	}
	settingsAbs := settingsPath
	if !filepath.IsAbs(settingsAbs) {
		settingsAbs = filepath.Join(dir, settingsPath)
	}
	if _, err := os.Stat(settingsAbs); err != nil {
		return nil, fmt.Errorf("solver settings document not found at %s: %w", settingsAbs, err)
	}

	if maxHeapMB <= 0 {
		maxHeapMB = DefaultMaxHeapMB
	}

	return &Installation{
		Dir:          dir,
		SolverJar:    solverJar,
		LibJars:      libJars,
		SettingsPath: settingsPath,
		JavaPath:     strings.TrimSpace(javaPath),
		MaxHeapMB:    maxHeapMB,
	}, nil
}

// Classpath joins the solver jar and library jars with the OS-specific
// separator (";" on Windows, ":" elsewhere).
func (inst *Installation) Classpath() string {
	sep := ":"
	if runtime.GOOS == "windows" {
		sep = ";"
	}
	return strings.Join(append([]string{inst.SolverJar}, inst.LibJars...), sep)
}

// Java returns the java executable to invoke.
func (inst *Installation) Java() string {
	if inst.JavaPath != "" {
		return inst.JavaPath
	}
	return "java"
}

// Command builds the argv that solves problemPath into outputDir:
//
//	java -Xmx<heap>m -cp <classpath> org.cpsolver.coursett.Test <settings> <problem> <outputDir>
//
// The command expects Installation.Dir as its working directory.
func (inst *Installation) Command(problemPath, outputDir string) []string {
	return []string{
		inst.Java(),
		fmt.Sprintf("-Xmx%dm", inst.MaxHeapMB),
		"-cp", inst.Classpath(),
		mainClass,
		inst.SettingsPath,
		problemPath,
		outputDir,
	}
}

// CheckJava verifies the java executable can be resolved. Used by doctor
// checks; solver runs fail at launch with the same root cause.
func (inst *Installation) CheckJava() error {
	if _, err := exec.LookPath(inst.Java()); err != nil {
		return fmt.Errorf("java executable not found: %w", err)
	}
	return nil
}

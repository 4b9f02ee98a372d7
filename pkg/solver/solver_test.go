package solver

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeInstall lays out a cpsolver installation under a temp dir.
func fakeInstall(t *testing.T, jars ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, jar := range jars {
		path := filepath.Join(dir, filepath.FromSlash(jar))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("jar"), 0644); err != nil {
			t.Fatalf("write %s: %v", jar, err)
		}
	}
	settings := "General.SolverWarnings=false\nTermination.TimeOut=300\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultSettingsFile), []byte(settings), 0644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return dir
}

func TestDiscover_ResolvesInstallation(t *testing.T) {
	dir := fakeInstall(t,
		"cpsolver-3.520.jar",
		"lib/log4j-core.jar",
		"lib/nested/dom4j.jar",
	)

	inst, err := Discover(dir, "", "", 0)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if inst.SolverJar != "cpsolver-3.520.jar" {
		t.Fatalf("solver jar = %q", inst.SolverJar)
	}
	if len(inst.LibJars) != 2 {
		t.Fatalf("lib jars = %v", inst.LibJars)
	}
	if inst.SettingsPath != DefaultSettingsFile {
		t.Fatalf("settings = %q", inst.SettingsPath)
	}
	if inst.MaxHeapMB != DefaultMaxHeapMB {
		t.Fatalf("heap = %d", inst.MaxHeapMB)
	}
}

func TestDiscover_PicksHighestVersion(t *testing.T) {
	dir := fakeInstall(t, "cpsolver-3.410.jar", "cpsolver-3.520.jar")

	inst, err := Discover(dir, "", "", 0)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if inst.SolverJar != "cpsolver-3.520.jar" {
		t.Fatalf("expected highest version, got %q", inst.SolverJar)
	}
}

func TestDiscover_Failures(t *testing.T) {
	t.Run("empty dir config", func(t *testing.T) {
		if _, err := Discover("  ", "", "", 0); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing dir", func(t *testing.T) {
		if _, err := Discover(filepath.Join(t.TempDir(), "nope"), "", "", 0); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("no solver jar", func(t *testing.T) {
		dir := fakeInstall(t, "lib/only-a-lib.jar")
		_, err := Discover(dir, "", "", 0)
		if err == nil || !strings.Contains(err.Error(), "cpsolver-*.jar") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing settings", func(t *testing.T) {
		dir := fakeInstall(t, "cpsolver-3.520.jar")
		_, err := Discover(dir, "other.cfg", "", 0)
		if err == nil || !strings.Contains(err.Error(), "settings document") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestDiscover_AbsoluteSettingsPath(t *testing.T) {
	dir := fakeInstall(t, "cpsolver-3.520.jar")
	settings := filepath.Join(t.TempDir(), "tuned.cfg")
	if err := os.WriteFile(settings, []byte("a=b\n"), 0644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	inst, err := Discover(dir, settings, "", 1024)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if inst.SettingsPath != settings {
		t.Fatalf("settings = %q", inst.SettingsPath)
	}
	if inst.MaxHeapMB != 1024 {
		t.Fatalf("heap = %d", inst.MaxHeapMB)
	}
}

func TestInstallation_Classpath(t *testing.T) {
	inst := &Installation{
		SolverJar: "cpsolver-3.520.jar",
		LibJars:   []string{"lib/a.jar", "lib/b.jar"},
	}

	sep := ":"
	if runtime.GOOS == "windows" {
		sep = ";"
	}
	want := strings.Join([]string{"cpsolver-3.520.jar", "lib/a.jar", "lib/b.jar"}, sep)
	if got := inst.Classpath(); got != want {
		t.Fatalf("classpath = %q, want %q", got, want)
	}
}

func TestInstallation_Command(t *testing.T) {
	inst := &Installation{
		SolverJar:    "cpsolver-3.520.jar",
		LibJars:      []string{"lib/a.jar"},
		SettingsPath: "config.cfg",
		MaxHeapMB:    768,
	}

	argv := inst.Command("/work/p1/problem.xml", "/work/p1/output")
	if argv[0] != "java" {
		t.Fatalf("argv[0] = %q", argv[0])
	}
	if argv[1] != "-Xmx768m" {
		t.Fatalf("argv[1] = %q", argv[1])
	}
	if argv[4] != "org.cpsolver.coursett.Test" {
		t.Fatalf("main class = %q", argv[4])
	}
	if argv[5] != "config.cfg" || argv[6] != "/work/p1/problem.xml" || argv[7] != "/work/p1/output" {
		t.Fatalf("trailing args = %v", argv[5:])
	}
}

func TestInstallation_JavaOverride(t *testing.T) {
	inst := &Installation{JavaPath: "/opt/jdk/bin/java"}
	if inst.Java() != "/opt/jdk/bin/java" {
		t.Fatalf("java = %q", inst.Java())
	}
	if argv := inst.Command("p", "o"); argv[0] != "/opt/jdk/bin/java" {
		t.Fatalf("argv[0] = %q", argv[0])
	}
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.cfg")
	doc := `# cpsolver tuning
! alternate comment style
General.SolverWarnings = false

Termination.TimeOut=300
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() error: %v", err)
	}
	if len(s) != 2 {
		t.Fatalf("settings = %v", s)
	}
	if s["General.SolverWarnings"] != "false" || s["Termination.TimeOut"] != "300" {
		t.Fatalf("settings = %v", s)
	}
	if keys := s.Keys(); keys[0] != "General.SolverWarnings" || keys[1] != "Termination.TimeOut" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestLoadSettings_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.cfg")
	if err := os.WriteFile(path, []byte("not a pair\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSettings(path); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "nope.cfg")); err == nil {
		t.Fatal("expected error")
	}
}

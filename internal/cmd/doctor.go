package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unitable/solverd/internal/config"
	"github.com/unitable/solverd/internal/observability"
	"github.com/unitable/solverd/pkg/solver"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the solver environment and suggest fixes
for common issues.

Examples:
  solverd doctor
  SOLVERD_SOLVER_DIR=/opt/cpsolver solverd doctor`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	log := observability.CLILogger
	log.Info("=== solverd doctor ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	cfg, err := config.Load(cmd.Context(), cfgFile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}

	allChecks := true
	checkNum := 1
	totalChecks := 5

	// Check 1: solver installation directory
	if cfg.Solver.InstallDir == "" {
		log.Warn(fmt.Sprintf("[%d/%d] Checking solver installation... ⚠️  solver.install_dir not set (set SOLVERD_SOLVER_DIR)", checkNum, totalChecks))
		allChecks = false
	} else if info, err := os.Stat(cfg.Solver.InstallDir); err != nil || !info.IsDir() {
		log.Error(fmt.Sprintf("[%d/%d] Checking solver installation... ❌ %s is not a directory", checkNum, totalChecks, cfg.Solver.InstallDir))
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking solver installation... ✅ %s", checkNum, totalChecks, cfg.Solver.InstallDir))
	}
	checkNum++

	// Check 2: solver jar + settings discovery
	var installation *solver.Installation
	if cfg.Solver.InstallDir != "" {
		installation, err = solver.Discover(cfg.Solver.InstallDir, cfg.Solver.SettingsPath, cfg.Solver.JavaPath, cfg.Solver.MaxHeapMB)
		if err != nil {
			log.Error(fmt.Sprintf("[%d/%d] Checking solver jars... ❌ %v", checkNum, totalChecks, err))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[%d/%d] Checking solver jars... ✅ %s (+%d lib jars)", checkNum, totalChecks, filepath.Base(installation.SolverJar), len(installation.LibJars)),
				zap.String("solver_jar", installation.SolverJar))
		}
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking solver jars... ⚠️  skipped (no install dir)", checkNum, totalChecks))
	}
	checkNum++

	// Check 3: java runtime
	if installation != nil {
		if err := installation.CheckJava(); err != nil {
			log.Error(fmt.Sprintf("[%d/%d] Checking java runtime... ❌ %v", checkNum, totalChecks, err))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[%d/%d] Checking java runtime... ✅ %s", checkNum, totalChecks, installation.Java()))
		}
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking java runtime... ⚠️  skipped (no installation)", checkNum, totalChecks))
	}
	checkNum++

	// Check 4: solver settings readable
	if installation != nil {
		settingsPath := installation.SettingsPath
		if !filepath.IsAbs(settingsPath) {
			settingsPath = filepath.Join(installation.Dir, settingsPath)
		}
		settings, err := solver.LoadSettings(settingsPath)
		if err != nil {
			log.Error(fmt.Sprintf("[%d/%d] Checking solver settings... ❌ %v", checkNum, totalChecks, err))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[%d/%d] Checking solver settings... ✅ %s (%d keys)", checkNum, totalChecks, installation.SettingsPath, len(settings)))
		}
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking solver settings... ⚠️  skipped (no installation)", checkNum, totalChecks))
	}
	checkNum++

	// Check 5: work directory writable
	workDir := cfg.Jobs.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "solverd")
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking work directory... ❌ %v", checkNum, totalChecks, err))
		allChecks = false
	} else if probe, err := os.CreateTemp(workDir, ".doctor-*"); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking work directory... ❌ %s not writable: %v", checkNum, totalChecks, workDir, err))
		allChecks = false
	} else {
		name := probe.Name()
		_ = probe.Close()
		_ = os.Remove(name)
		log.Info(fmt.Sprintf("[%d/%d] Checking work directory... ✅ %s", checkNum, totalChecks, workDir))
	}

	log.Info("")
	if !allChecks {
		log.Warn("Some checks failed. Fix the issues above before running 'solverd serve'.")
		return exitError(foundry.ExitExternalServiceUnavailable, "Environment checks failed", fmt.Errorf("doctor found problems"))
	}
	log.Info("All checks passed. ✅")
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unitable/solverd/internal/archive"
	"github.com/unitable/solverd/internal/config"
	"github.com/unitable/solverd/internal/observability"
	"github.com/unitable/solverd/internal/server"
	"github.com/unitable/solverd/internal/server/handlers"
	"github.com/unitable/solverd/pkg/execution"
	"github.com/unitable/solverd/pkg/jobs"
	"github.com/unitable/solverd/pkg/jobstore"
	"github.com/unitable/solverd/pkg/solver"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the solver HTTP service",
	Long: `Start the solverd HTTP server: the asynchronous problem/job API, the
singleton solver service, and the health endpoints.

Examples:
  solverd serve
  solverd serve --port 9090
  SOLVERD_SOLVER_DIR=/opt/cpsolver solverd serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Bind port (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	overrides := map[string]any{}
	if serveHost != "" {
		overrides["server"] = map[string]any{"host": serveHost}
	}
	if servePort != 0 {
		srv, _ := overrides["server"].(map[string]any)
		if srv == nil {
			srv = map[string]any{}
		}
		srv["port"] = servePort
		overrides["server"] = srv
	}

	cfg, err := config.Load(ctx, cfgFile, overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}

	// The config's logging section wins over the CLI defaults once the
	// server is up; flags passed explicitly already went through Init.
	if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("log-profile") {
		if err := observability.Init(cfg.Logging.Level, cfg.Logging.Profile); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
		}
	}
	log := observability.Logger()

	handlers.InitHealthManager(versionInfo.Version)
	handlers.SetVersion(versionInfo.Version, versionInfo.Commit)

	workDir := cfg.Jobs.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "solverd")
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot create work directory", err)
	}

	launcher, installation, err := buildLauncher(cfg, workDir)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Solver installation unusable", err)
	}
	if installation != nil {
		log.Info("solver installation discovered",
			zap.String("dir", installation.Dir),
			zap.String("jar", installation.SolverJar),
			zap.Int("lib_jars", len(installation.LibJars)))
		handlers.GetHealthManager().RegisterChecker("solver", solverHealthChecker{installation})
	}

	archiveStore, err := archive.New(ctx, archive.Config{
		Backend:         cfg.Archive.Backend,
		Dir:             cfg.Archive.Dir,
		Bucket:          cfg.Archive.Bucket,
		Region:          cfg.Archive.Region,
		Endpoint:        cfg.Archive.Endpoint,
		Profile:         cfg.Archive.Profile,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
		ForcePathStyle:  cfg.Archive.ForcePathStyle,
		Prefix:          cfg.Archive.Prefix,
	})
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Cannot initialize solution archive", err)
	}
	if archiveStore != nil {
		log.Info("solution archive enabled", zap.String("backend", cfg.Archive.Backend))
	}

	manager, err := jobs.NewManager(jobs.Config{
		Launcher:      launcher,
		Store:         jobstore.NewStore(cfg.Jobs.MaxRecords),
		Logger:        log.Named("jobs"),
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		PollInterval:  cfg.Jobs.PollInterval,
		DefaultBudget: cfg.Jobs.DefaultBudget,
		Archive:       archiveStore,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot build job manager", err)
	}

	supervisor := jobs.NewSupervisor(
		serviceLaunch(installation, cfg.Solver.ServiceProblem, workDir),
		cfg.Jobs.PollInterval,
		log.Named("solver-service"),
	)

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithManager(manager),
		server.WithSupervisor(supervisor),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	)

	log.Info("starting solverd",
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown incomplete", zap.Error(err))
		}
		if err := supervisor.Stop(shutdownCtx); err != nil {
			log.Warn("solver service stop incomplete", zap.Error(err))
		}
		if err := manager.Close(shutdownCtx); err != nil {
			log.Warn("job manager close incomplete", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server terminated", err)
	}
	log.Info("solverd stopped")
	return nil
}

// buildLauncher discovers the cpsolver installation when configured. With
// no install dir the server still runs; submissions then fail with a
// validation error naming the missing configuration.
func buildLauncher(cfg *config.Config, workDir string) (jobs.Launcher, *solver.Installation, error) {
	if cfg.Solver.InstallDir == "" {
		return &jobs.FuncLauncher{
			ValidateErr: fmt.Errorf("solver.install_dir is not configured"),
		}, nil, nil
	}

	installation, err := solver.Discover(
		cfg.Solver.InstallDir,
		cfg.Solver.SettingsPath,
		cfg.Solver.JavaPath,
		cfg.Solver.MaxHeapMB,
	)
	if err != nil {
		return nil, nil, err
	}

	return &jobs.ProcessLauncher{
		Installation: installation,
		WorkRoot:     filepath.Join(workDir, "jobs"),
	}, installation, nil
}

// serviceLaunch builds the singleton solver service launch function.
func serviceLaunch(installation *solver.Installation, problemPath, workDir string) func() (execution.Handle, error) {
	return func() (execution.Handle, error) {
		if installation == nil {
			return nil, fmt.Errorf("solver.install_dir is not configured")
		}
		if problemPath == "" {
			return nil, fmt.Errorf("solver.service_problem is not configured")
		}
		if _, err := os.Stat(problemPath); err != nil {
			return nil, fmt.Errorf("service problem document: %w", err)
		}

		runDir := filepath.Join(workDir, "service", time.Now().UTC().Format("20060102-150405"))
		outputDir := filepath.Join(runDir, "output")
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("create service output dir: %w", err)
		}

		return execution.StartProcess(execution.ProcessConfig{
			Command:    installation.Command(problemPath, outputDir),
			Dir:        installation.Dir,
			WorkDir:    runDir,
			ResultDir:  outputDir,
			ResultGlob: "**/solution.xml",
		})
	}
}

// solverHealthChecker reports whether the java runtime is still reachable.
type solverHealthChecker struct {
	installation *solver.Installation
}

func (c solverHealthChecker) CheckHealth(_ context.Context) error {
	return c.installation.CheckJava()
}

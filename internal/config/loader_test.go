package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx, "")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)

		assert.Equal(t, 512, cfg.Solver.MaxHeapMB)
		assert.Equal(t, 4, cfg.Jobs.MaxConcurrent)
		assert.Equal(t, 500*time.Millisecond, cfg.Jobs.PollInterval)
		assert.Equal(t, time.Duration(0), cfg.Jobs.DefaultBudget)

		assert.Equal(t, "none", cfg.Archive.Backend)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, "", overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Non-overridden values remain default.
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)
		assert.Equal(t, 4, cfg.Jobs.MaxConcurrent)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("SOLVERD_PORT", "3000")
		t.Setenv("SOLVERD_LOG_LEVEL", "warn")
		t.Setenv("SOLVERD_MAX_CONCURRENT", "8")

		cfg, err := Load(ctx, "")
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 8, cfg.Jobs.MaxConcurrent)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("SOLVERD_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, "", overrides)
		require.NoError(t, err)

		// Runtime override wins over the environment.
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "solverd.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
solver:
  install_dir: /opt/cpsolver
  max_heap_mb: 2048
jobs:
  default_budget: 10m
archive:
  backend: file
  dir: /var/lib/solverd/archive
`), 0644))

		cfg, err := Load(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "/opt/cpsolver", cfg.Solver.InstallDir)
		assert.Equal(t, 2048, cfg.Solver.MaxHeapMB)
		assert.Equal(t, 10*time.Minute, cfg.Jobs.DefaultBudget)
		assert.Equal(t, "file", cfg.Archive.Backend)
	})

	t.Run("MissingConfigFile", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	cfg, err := Load(ctx, "")
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	assert.NotEmpty(t, specs)

	envVarNames := make(map[string]bool)
	for _, spec := range specs {
		envVarNames[spec.Name] = true
	}

	assert.True(t, envVarNames["SOLVERD_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, envVarNames["SOLVERD_PORT"], "PORT env var must be mapped")
	assert.True(t, envVarNames["SOLVERD_HOST"], "HOST env var must be mapped")
	assert.True(t, envVarNames["SOLVERD_SOLVER_DIR"], "SOLVER_DIR env var must be mapped")
}

func TestDurationParsing(t *testing.T) {
	ctx := context.Background()

	t.Setenv("SOLVERD_READ_TIMEOUT", "45s")
	t.Setenv("SOLVERD_SHUTDOWN_TIMEOUT", "5m")
	t.Setenv("SOLVERD_DEFAULT_BUDGET", "1h")

	cfg, err := Load(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
	assert.Equal(t, time.Hour, cfg.Jobs.DefaultBudget)
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name      string
		overrides map[string]any
	}{
		{"PortOutOfRange", map[string]any{"server": map[string]any{"port": 70000}}},
		{"ZeroConcurrency", map[string]any{"jobs": map[string]any{"max_concurrent": 0}}},
		{"FileBackendWithoutDir", map[string]any{"archive": map[string]any{"backend": "file"}}},
		{"S3BackendWithoutBucket", map[string]any{"archive": map[string]any{"backend": "s3"}}},
		{"UnknownBackend", map[string]any{"archive": map[string]any{"backend": "ftp"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(ctx, "", tc.overrides)
			assert.Error(t, err)
		})
	}
}

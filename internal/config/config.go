// Package config loads solverd configuration with the precedence
// runtime overrides > environment > config file > defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the full solverd configuration tree.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Solver  SolverConfig  `mapstructure:"solver"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// SolverConfig locates the cpsolver installation.
type SolverConfig struct {
	// InstallDir is the cpsolver distribution directory holding the
	// solver jar, lib/, and the settings file.
	InstallDir string `mapstructure:"install_dir"`

	// SettingsPath overrides the default settings file inside InstallDir.
	SettingsPath string `mapstructure:"settings_path"`

	// JavaPath overrides java resolution via PATH.
	JavaPath string `mapstructure:"java_path"`

	// MaxHeapMB is the solver JVM heap cap.
	MaxHeapMB int `mapstructure:"max_heap_mb"`

	// ServiceProblem is the problem document the singleton solver service
	// runs on. The /solver routes stay registered without it; starting
	// the service then fails with a launch error.
	ServiceProblem string `mapstructure:"service_problem"`
}

// JobsConfig tunes the job manager.
type JobsConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`

	// DefaultBudget is the wall-clock budget applied to submissions that
	// do not carry one. Zero disables budgeting.
	DefaultBudget time.Duration `mapstructure:"default_budget"`

	// WorkDir is the parent of per-job scratch directories.
	WorkDir string `mapstructure:"work_dir"`

	// MaxRecords caps retained job records.
	MaxRecords int `mapstructure:"max_records"`
}

// ArchiveConfig configures solution archival.
type ArchiveConfig struct {
	// Backend is one of "none", "file", "s3".
	Backend string `mapstructure:"backend"`

	Dir string `mapstructure:"dir"`

	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`

	Prefix string `mapstructure:"prefix"`
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("jobs.max_concurrent must be at least 1")
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs.poll_interval must be positive")
	}
	switch c.Archive.Backend {
	case "", "none":
	case "file":
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir is required for the file backend")
		}
	case "s3":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	return nil
}

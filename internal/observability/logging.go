// Package observability provides process-wide logging setup.
//
// CLILogger is the logger used by command entry points; server components
// receive a child logger via dependency injection instead of reaching for
// the global.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger. It defaults to a no-op logger so
// library code and tests never hit a nil logger; Init replaces it.
var CLILogger = zap.NewNop()

// Init configures CLILogger from a level string ("debug", "info", "warn",
// "error") and a profile ("STRUCTURED" for JSON output, "CONSOLE" for
// human-readable output).
func Init(level, profile string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToUpper(strings.TrimSpace(profile)) {
	case "", "STRUCTURED":
		cfg = zap.NewProductionConfig()
	case "CONSOLE":
		cfg = zap.NewDevelopmentConfig()
	default:
		return fmt.Errorf("invalid log profile %q (expected STRUCTURED or CONSOLE)", profile)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	CLILogger = logger
	return nil
}

// Logger returns the current process-wide logger.
func Logger() *zap.Logger {
	return CLILogger
}

// Sync flushes buffered log entries. Safe to call on the no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}

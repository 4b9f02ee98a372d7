// Package cmd implements the solverd command line interface.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unitable/solverd/internal/observability"
	"github.com/unitable/solverd/internal/server/handlers"
)

var (
	cfgFile    string
	logLevel   string
	logProfile string
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected via ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersion(version, commit)
}

var rootCmd = &cobra.Command{
	Use:   "solverd",
	Short: "Course timetabling solver service",
	Long: `solverd exposes the UniTime constraint solver as an asynchronous REST
service: submit a timetabling problem, poll its status, fetch the
solution, cancel it mid-run.

The server needs a cpsolver distribution (solver jar, lib/, settings
file) and a java runtime; run 'solverd doctor' to verify both.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return observability.Init(logLevel, logProfile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: none, env + defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logProfile, "log-profile", "CONSOLE", "Log profile: STRUCTURED or CONSOLE")
}

// codedError carries a process exit code through cobra's error return.
type codedError struct {
	code int
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e *codedError) Unwrap() error { return e.err }

// exitError creates an error that causes the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, msg: message, err: err}
}

// ExitWithCode logs the error and terminates the process immediately.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	logger.Error(message, zap.Error(err))
	observability.Sync()
	os.Exit(code)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		observability.CLILogger.Error(err.Error())
		observability.Sync()

		code := 1
		var coded *codedError
		if errors.As(err, &coded) {
			code = coded.code
		}
		os.Exit(code)
	}
	observability.Sync()
}

package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		_, _ = fmt.Fprintf(os.Stdout, "solverd %s\n", versionInfo.Version)
		_, _ = fmt.Fprintf(os.Stdout, "  commit:     %s\n", versionInfo.Commit)
		_, _ = fmt.Fprintf(os.Stdout, "  built:      %s\n", versionInfo.BuildDate)
		_, _ = fmt.Fprintf(os.Stdout, "  go version: %s\n", runtime.Version())
		_, _ = fmt.Fprintf(os.Stdout, "  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

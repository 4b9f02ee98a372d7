// Command solverd runs the course timetabling solver service and its
// companion tooling.
package main

import (
	"github.com/unitable/solverd/internal/cmd"
)

// Populated at build time via -ldflags.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	cmd.Execute()
}

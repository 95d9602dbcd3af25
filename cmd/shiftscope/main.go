// Command shiftscope predicts NMR chemical shifts from the command line or
// serves predictions over HTTP.
package main

import (
	"os"

	"github.com/turtacn/ShiftScope/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

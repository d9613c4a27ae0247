// Command revsentry is the CLI wrapper around the review pipeline: it
// resolves a diff, runs the orchestrator, and prints a report in the
// requested format, exiting with a risk-derived status code per spec
// section 6.
package main

import (
	"os"

	"github.com/roasbeef/revsentry/cmd/revsentry/commands"
)

func main() {
	os.Exit(commands.Execute())
}

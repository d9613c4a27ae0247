package orchestrator

import "github.com/roasbeef/revsentry/internal/logutil"

var log = logutil.Disabled()

// UseLogger sets the package-level logger used by orchestrator runs.
func UseLogger(l logutil.Logger) {
	log = l
}

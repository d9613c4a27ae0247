package workspace

import "github.com/roasbeef/revsentry/internal/logutil"

// log is this package's structured logger. It discards output until
// UseLogger is called.
var log = logutil.Disabled()

// UseLogger sets the logger used by the workspace package.
func UseLogger(l logutil.Logger) {
	log = l
}

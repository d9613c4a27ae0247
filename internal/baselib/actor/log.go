package actor

import "github.com/roasbeef/revsentry/internal/logutil"

// log is this package's structured logger. It discards output until
// UseLogger is called, so the actor package is safe to import from
// code that never configures logging (e.g. unit tests).
var log = logutil.Disabled()

// UseLogger sets the logger used by the actor package. Callers
// typically wire this up once at process startup with the logger
// built for the "ACTR" subsystem.
func UseLogger(l logutil.Logger) {
	log = l
}

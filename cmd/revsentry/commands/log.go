package commands

import "github.com/roasbeef/revsentry/internal/logutil"

// log is this package's structured logger. It discards output by
// default; initLogging wires it to stderr only when --verbose is set.
var log = logutil.Disabled()

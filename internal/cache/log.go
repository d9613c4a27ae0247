package cache

import "github.com/roasbeef/revsentry/internal/logutil"

var log = logutil.Disabled()

// UseLogger overrides the package logger.
func UseLogger(l logutil.Logger) { log = l }

// Package logutil provides the structured, context-aware logging helper
// used by every package's log.go: a thin wrapper over btclog.Logger
// that accepts a context (carried for future trace propagation) plus a
// message and key/value pairs, rather than printf-style formatting.
package logutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btclog/v2"
)

// Logger is the structured logging interface every package's
// package-level log variable satisfies.
type Logger interface {
	TraceS(ctx context.Context, msg string, keyvals ...interface{})
	DebugS(ctx context.Context, msg string, keyvals ...interface{})
	InfoS(ctx context.Context, msg string, keyvals ...interface{})
	WarnS(ctx context.Context, msg string, err error, keyvals ...interface{})
	ErrorS(ctx context.Context, msg string, err error, keyvals ...interface{})

	// Backend returns the underlying btclog.Logger, for subsystems that
	// need SetLevel/Level or to pass into a HandlerSet.
	Backend() btclog.Logger
}

// New wraps a btclog.Logger, producing a context-and-keyval aware
// Logger for use as a package's log variable.
func New(backend btclog.Logger) Logger {
	return &wrapper{backend: backend}
}

// Disabled returns a Logger that discards everything, the default value
// of every package's log variable before UseLogger is called.
func Disabled() Logger {
	return New(btclog.Disabled)
}

type wrapper struct {
	backend btclog.Logger
}

func (w *wrapper) Backend() btclog.Logger { return w.backend }

func (w *wrapper) TraceS(_ context.Context, msg string, keyvals ...interface{}) {
	w.backend.Trace(render(msg, keyvals))
}

func (w *wrapper) DebugS(_ context.Context, msg string, keyvals ...interface{}) {
	w.backend.Debug(render(msg, keyvals))
}

func (w *wrapper) InfoS(_ context.Context, msg string, keyvals ...interface{}) {
	w.backend.Info(render(msg, keyvals))
}

func (w *wrapper) WarnS(_ context.Context, msg string, err error, keyvals ...interface{}) {
	w.backend.Warn(renderErr(msg, err, keyvals))
}

func (w *wrapper) ErrorS(_ context.Context, msg string, err error, keyvals ...interface{}) {
	w.backend.Error(renderErr(msg, err, keyvals))
}

func render(msg string, keyvals []interface{}) string {
	if len(keyvals) == 0 {
		return msg
	}

	var sb strings.Builder
	sb.WriteString(msg)

	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", keyvals[i], keyvals[i+1])
	}
	if len(keyvals)%2 == 1 {
		fmt.Fprintf(&sb, " %v", keyvals[len(keyvals)-1])
	}

	return sb.String()
}

func renderErr(msg string, err error, keyvals []interface{}) string {
	base := render(msg, keyvals)
	if err == nil {
		return base
	}
	return base + " err=" + err.Error()
}

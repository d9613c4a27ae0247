// Package progress defines the orchestrator's progress-stream contract
// from spec section 6: a typed event union plus an Observer interface,
// with a logging implementation and a no-op implementation usable by
// tests and callers that don't care.
package progress

import (
	"context"
	"time"

	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/logutil"
)

// EventType identifies the kind of progress event.
type EventType string

const (
	EventReviewStart      EventType = "reviewStart"
	EventPhaseStart       EventType = "phaseStart"
	EventPhaseComplete    EventType = "phaseComplete"
	EventAgentStart       EventType = "agentStart"
	EventAgentProgress    EventType = "agentProgress"
	EventAgentComplete    EventType = "agentComplete"
	EventValidationStart  EventType = "validationStart"
	EventValidationIssue  EventType = "validationIssue"
	EventValidationDone   EventType = "validationComplete"
	EventReviewComplete   EventType = "reviewComplete"
	EventReviewError      EventType = "reviewError"
	EventLog              EventType = "log"
)

// Event is a single progress-stream notification. Fields not relevant
// to Type are left zero.
type Event struct {
	Type      EventType
	Timestamp time.Time

	Phase   string
	Agent   issue.SourceAgent
	Status  issue.Status
	Message string
	Err     error

	// Completed/Total describe fractional progress for agent and
	// validation events ("X/Y validations done").
	Completed int
	Total     int
}

// Observer receives progress events during a review run.
type Observer interface {
	Notify(ctx context.Context, ev Event)
}

// NullObserver discards every event.
type NullObserver struct{}

func (NullObserver) Notify(context.Context, Event) {}

// LogObserver routes every event through the ambient structured
// logger, the same way the rest of the pipeline reports its progress.
type LogObserver struct {
	Log logutil.Logger
}

// NewLogObserver builds a LogObserver over log. A nil log uses a
// disabled logger, matching every other package's zero-value default.
func NewLogObserver(log logutil.Logger) *LogObserver {
	if log == nil {
		log = logutil.Disabled()
	}
	return &LogObserver{Log: log}
}

func (o *LogObserver) Notify(ctx context.Context, ev Event) {
	if ev.Type == EventReviewError {
		o.Log.ErrorS(ctx, string(ev.Type), ev.Err,
			"phase", ev.Phase, "message", ev.Message)
		return
	}

	o.Log.InfoS(ctx, string(ev.Type),
		"phase", ev.Phase, "agent", ev.Agent, "status", ev.Status,
		"message", ev.Message, "completed", ev.Completed, "total", ev.Total)
}

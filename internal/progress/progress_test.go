package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/revsentry/internal/logutil"
)

func TestNullObserverDiscardsEvents(t *testing.T) {
	var o NullObserver
	require.NotPanics(t, func() {
		o.Notify(context.Background(), Event{Type: EventReviewStart})
	})
}

func TestLogObserverHandlesErrorAndInfoEvents(t *testing.T) {
	o := NewLogObserver(logutil.Disabled())

	require.NotPanics(t, func() {
		o.Notify(context.Background(), Event{
			Type: EventReviewError, Err: errors.New("boom"), Phase: "fanout",
		})
		o.Notify(context.Background(), Event{
			Type: EventAgentComplete, Completed: 3, Total: 5,
		})
	})
}

func TestNewLogObserverDefaultsNilLogger(t *testing.T) {
	o := NewLogObserver(nil)
	require.NotNil(t, o.Log)
}

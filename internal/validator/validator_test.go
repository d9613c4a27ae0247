package validator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
)

func rawIssue(file string, start, end int, sev issue.Severity, confidence float64) issue.RawIssue {
	return issue.RawIssue{
		ID:          fmt.Sprintf("%s:%d", file, start),
		File:        file,
		LineStart:   start,
		LineEnd:     end,
		Category:    issue.CategoryLogic,
		Severity:    sev,
		Title:       "suspicious",
		Description: "looks wrong",
		Confidence:  confidence,
		SourceAgent: issue.AgentLogic,
	}
}

func pushReply(stub *llmclient.Stub, status string, confidence float64) {
	stub.PushJSON(challengeReply{Status: status, Confidence: confidence, Reasoning: "r"})
}

func TestLowConfidenceAutoRejectedWithoutLLM(t *testing.T) {
	stub := llmclient.NewStub()
	v := New(context.Background(), stub, DefaultConfig())

	result := v.Enqueue(rawIssue("a.go", 1, 1, issue.SeverityWarning, 0.1))
	require.NotNil(t, result)
	require.Equal(t, issue.StatusRejected, result.Status)
	require.Equal(t, "low confidence", result.RejectionReason)
	require.Empty(t, stub.Calls())
}

func TestCriticalBypassesConfidenceGate(t *testing.T) {
	stub := llmclient.NewStub()
	pushReply(stub, "confirmed", 0.9)

	v := New(context.Background(), stub, DefaultConfig())
	result := v.Enqueue(rawIssue("a.go", 1, 1, issue.SeverityCritical, 0.0))
	require.Nil(t, result)

	out, err := v.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Issues, 1)
	require.Equal(t, issue.StatusConfirmed, out.Issues[0].Status)
}

func TestSameFileSessionProcessesFIFO(t *testing.T) {
	stub := llmclient.NewStub()
	for i := 0; i < 7; i++ {
		pushReply(stub, "confirmed", 0.9)
	}

	cfg := DefaultConfig()
	cfg.MaxConcurrentSessions = 5
	v := New(context.Background(), stub, cfg)

	for i := 0; i < 7; i++ {
		r := v.Enqueue(rawIssue("a.go", i+1, i+1, issue.SeveritySuggestion, 0.9))
		require.Nil(t, r)
	}

	out, err := v.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Issues, 7)

	calls := stub.Calls()
	require.Len(t, calls, 7)
	for i, c := range calls {
		expected := fmt.Sprintf("a.go:%d..%d", i+1, i+1)
		require.Contains(t, c.Prompt, expected)
	}
}

func TestMultipleFilesEachGetOwnSession(t *testing.T) {
	stub := llmclient.NewStub()
	pushReply(stub, "confirmed", 0.9)
	pushReply(stub, "rejected", 0.9)

	v := New(context.Background(), stub, DefaultConfig())
	v.Enqueue(rawIssue("a.go", 1, 1, issue.SeveritySuggestion, 0.9))
	v.Enqueue(rawIssue("b.go", 1, 1, issue.SeveritySuggestion, 0.9))

	out, err := v.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Issues, 2)
}

func TestConcurrencyCapQueuesExtraFiles(t *testing.T) {
	stub := llmclient.NewStub()
	const files = 8
	for i := 0; i < files; i++ {
		pushReply(stub, "confirmed", 0.9)
	}

	cfg := DefaultConfig()
	cfg.MaxConcurrentSessions = 2
	v := New(context.Background(), stub, cfg)

	for i := 0; i < files; i++ {
		file := fmt.Sprintf("f%d.go", i)
		v.Enqueue(rawIssue(file, 1, 1, issue.SeveritySuggestion, 0.9))
	}

	out, err := v.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Issues, files)
}

func TestIdleTimeoutClosesSessionThenReopens(t *testing.T) {
	stub := llmclient.NewStub()
	pushReply(stub, "confirmed", 0.9)
	pushReply(stub, "confirmed", 0.9)

	cfg := DefaultConfig()
	cfg.IdleTimeout = 20 * time.Millisecond
	v := New(context.Background(), stub, cfg)

	v.Enqueue(rawIssue("a.go", 1, 1, issue.SeveritySuggestion, 0.9))

	// Give the session time to process the first issue and idle out.
	time.Sleep(100 * time.Millisecond)

	v.Enqueue(rawIssue("a.go", 2, 2, issue.SeveritySuggestion, 0.9))

	out, err := v.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Issues, 2)
}

func TestCancellationMarksQueuedIssuesUncertain(t *testing.T) {
	stub := llmclient.NewStub()
	stub.Err = fmt.Errorf("boom")

	ctx, cancel := context.WithCancel(context.Background())
	v := New(ctx, stub, DefaultConfig())
	cancel()

	v.Enqueue(rawIssue("a.go", 1, 1, issue.SeveritySuggestion, 0.9))

	out, err := v.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Issues, 1)
	require.Equal(t, issue.StatusUncertain, out.Issues[0].Status)
	require.Equal(t, "cancelled", out.Issues[0].RejectionReason)
}

func TestSessionErrorDegradesToUncertain(t *testing.T) {
	stub := &failingMultiTurnStub{Stub: llmclient.NewStub()}
	v := New(context.Background(), stub, DefaultConfig())

	v.Enqueue(rawIssue("a.go", 1, 1, issue.SeveritySuggestion, 0.9))

	out, err := v.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Issues, 1)
	require.Equal(t, issue.StatusUncertain, out.Issues[0].Status)
}

func TestStatsReflectProgress(t *testing.T) {
	stub := llmclient.NewStub()
	pushReply(stub, "confirmed", 0.9)

	v := New(context.Background(), stub, DefaultConfig())
	v.Enqueue(rawIssue("a.go", 1, 1, issue.SeveritySuggestion, 0.9))
	_, err := v.Flush(context.Background())
	require.NoError(t, err)

	stats := v.Stats()
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.Completed)
	require.Equal(t, 0, stats.ActiveSessions)
}

// failingMultiTurnStub forces MultiTurn to fail while leaving Chat/ChatJSON
// alone, exercising the "session could not be established" path.
type failingMultiTurnStub struct {
	*llmclient.Stub
}

func (f *failingMultiTurnStub) MultiTurn(
	_ context.Context, _ string,
) (llmclient.Session, error) {

	return nil, fmt.Errorf("connect failed")
}

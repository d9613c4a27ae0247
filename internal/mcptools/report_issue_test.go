package mcptools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/revsentry/internal/dedup"
	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
	"github.com/roasbeef/revsentry/internal/validator"
)

func newTestPipeline(t *testing.T, stub *llmclient.Stub) *Pipeline {
	t.Helper()
	ded := dedup.New(stub)
	t.Cleanup(func() { ded.Close(context.Background()) })
	val := validator.New(context.Background(), stub, validator.DefaultConfig())
	n := 0
	return NewPipeline(nil, ded, val, func() string {
		n++
		return "test-issue"
	})
}

func TestSubmitAcceptsHighConfidenceIssue(t *testing.T) {
	stub := llmclient.NewStub()
	stub.PushJSON(map[string]interface{}{
		"status": "confirmed", "confidence": 0.9, "reasoning": "looks real",
	})
	p := newTestPipeline(t, stub)

	result := p.Submit(context.Background(), issue.RawIssue{
		File: "src/x.go", LineStart: 1, LineEnd: 1,
		Severity: issue.SeverityWarning, Category: issue.CategoryLogic,
		Title: "bug", Description: "something is off", Confidence: 0.9,
	})
	require.Equal(t, "accepted", result.Status)
}

func TestSubmitAutoRejectsLowConfidenceIssue(t *testing.T) {
	stub := llmclient.NewStub()
	p := newTestPipeline(t, stub)

	result := p.Submit(context.Background(), issue.RawIssue{
		File: "src/x.go", LineStart: 1, LineEnd: 1,
		Severity: issue.SeverityWarning, Category: issue.CategoryLogic,
		Title: "maybe a bug", Description: "not sure", Confidence: 0.1,
	})
	require.Contains(t, result.Status, "auto-rejected")
}

func TestSubmitFiltersStyleIssueOutsideDiffContext(t *testing.T) {
	stub := llmclient.NewStub()
	p := newTestPipeline(t, stub)

	result := p.Submit(context.Background(), issue.RawIssue{
		File: "src/x.go", LineStart: 1, LineEnd: 1,
		Severity: issue.SeverityWarning, Category: issue.CategoryStyle,
		Title: "whitespace", Description: "trailing space", Confidence: 0.9,
		SourceAgent: issue.AgentStyle,
	})
	require.Contains(t, result.Status, "filtered")
}

func TestToSeverityAndCategoryDefaultOnUnknown(t *testing.T) {
	raw := toRawIssue(ReportIssueArgs{Severity: "bogus", Category: "bogus"})
	require.Equal(t, issue.SeverityWarning, raw.Severity)
	require.Equal(t, issue.CategoryLogic, raw.Category)
}

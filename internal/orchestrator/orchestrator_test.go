package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/revsentry/internal/diffmodel"
	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
)

const cssDiff = `diff --git a/style.css b/style.css
--- a/style.css
+++ b/style.css
@@ -1,2 +1,3 @@
 body {
+color: red;
 }
`

// TestRunStyleOnlyDiffEndToEnd exercises the full pipeline against a
// single style-only diff: the rule tier selects exactly the style
// reviewer (no LLM fallback needed), it reports one issue, and the
// validator confirms it in a single round because the issue's
// confidence crosses the one-round threshold. This keeps the stub's
// shared reply queue down to exactly two scripted entries.
func TestRunStyleOnlyDiffEndToEnd(t *testing.T) {
	stub := llmclient.NewStub()
	stub.PushJSON(agentIssueReply{Issues: []agentIssueJSON{
		{
			File: "style.css", LineStart: 2, LineEnd: 2,
			Severity: "warning", Category: "style",
			Title: "missing indentation", Description: "rule body not indented",
			Confidence: 0.9,
		},
	}})
	stub.PushJSON(map[string]interface{}{
		"status": "confirmed", "confidence": 0.9, "reasoning": "matches style guide",
	})

	o := New(stub, nil)

	cfg := DefaultConfig()
	cfg.Selector.DisableLLMFallback = true

	report, err := o.Run(context.Background(), Input{
		Diff: DiffSource{ExternalDiff: cssDiff},
	}, cfg)
	require.NoError(t, err)

	require.Len(t, report.Issues, 1)
	require.Equal(t, issue.StatusConfirmed, report.Issues[0].Status)
	require.Equal(t, issue.AgentStyle, report.Issues[0].SourceAgent)
	require.Equal(t, issue.RiskLow, report.RiskLevel)
	require.Equal(t, 1, report.Metrics.Confirmed)
	require.Equal(t, 1, report.Metrics.TotalScanned)
	require.Contains(t, report.Metadata.AgentsUsed, issue.AgentStyle)
	require.Positive(t, report.Metadata.TokensUsed)
}

// TestRunEmptyDiffProducesWellFormedReport covers invariant 9/10: an
// empty diff yields a well-formed, zero-issue, low-risk report rather
// than an error.
func TestRunEmptyDiffProducesWellFormedReport(t *testing.T) {
	stub := llmclient.NewStub()
	o := New(stub, nil)

	report, err := o.Run(context.Background(), Input{
		Diff: DiffSource{ExternalDiff: ""},
	}, DefaultConfig())
	require.NoError(t, err)

	require.Empty(t, report.Issues)
	require.Equal(t, issue.RiskLow, report.RiskLevel)
	require.Zero(t, report.Metrics.TotalScanned)
}

// TestRunMissingDiffSourceIsFatal covers a fatal input error in this
// phase: a repo path git itself cannot resolve a diff from.
func TestRunMissingDiffSourceIsFatal(t *testing.T) {
	o := New(llmclient.NewStub(), nil)

	_, err := o.Run(context.Background(), Input{
		Diff: DiffSource{RepoPath: "/nonexistent/revsentry-test-repo"},
	}, DefaultConfig())
	require.Error(t, err)
}

// TestMatchCustomAgentsPatternAndAlwaysOn covers both trigger forms: a
// file-pattern match and a pattern-less agent that always runs.
func TestMatchCustomAgentsPatternAndAlwaysOn(t *testing.T) {
	files := []*diffmodel.DiffFile{{Path: "api/handler.go"}}

	agents := []CustomAgent{
		{Name: "api-guard", FilePattern: "api/*.go"},
		{Name: "no-match", FilePattern: "db/*.go"},
		{Name: "always-on"},
	}

	triggered := matchCustomAgents(agents, files)

	var names []string
	for _, ca := range triggered {
		names = append(names, ca.Name)
	}
	require.ElementsMatch(t, []string{"api-guard", "always-on"}, names)
}

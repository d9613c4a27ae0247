package fixverify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
)

func prevIssue(id, file string) issue.PreviousIssue {
	return issue.PreviousIssue{
		ID:          id,
		File:        file,
		LineStart:   10,
		LineEnd:     12,
		Category:    issue.CategorySecurity,
		Severity:    issue.SeverityError,
		Title:       "unchecked error",
		Description: "return value ignored",
	}
}

// TestClassifiesMissedAndFixedS5 exercises spec scenario S5: one prior
// issue in a file that was never touched again classifies as missed;
// one in a file rewritten to remove the pattern classifies as fixed.
func TestClassifiesMissedAndFixedS5(t *testing.T) {
	stub := llmclient.NewStub()
	stub.PushJSON(verifyReply{Status: "missed", Confidence: 0.8, Reasoning: "still present"})
	stub.PushJSON(verifyReply{Status: "fixed", Confidence: 0.9, Reasoning: "pattern removed"})

	v := New(stub)
	prev := issue.PreviousReviewData{
		Issues: []issue.PreviousIssue{
			prevIssue("p1", "untouched.go"),
			prevIssue("p2", "rewritten.go"),
		},
	}

	summary, missed := v.Verify(context.Background(), prev)

	require.Equal(t, 1, summary.ByStatus[issue.FixStatusMissed])
	require.Equal(t, 1, summary.ByStatus[issue.FixStatusFixed])
	require.Len(t, summary.Verifications, 2)

	require.Len(t, missed, 1)
	require.Equal(t, "p1-missed", missed[0].ID)
	require.Equal(t, "untouched.go", missed[0].File)
	require.Equal(t, issue.AgentFixVerifier, missed[0].SourceAgent)
	require.InDelta(t, 0.8, missed[0].Confidence, 0.0001)
}

// TestRerunOnUnchangedDiffAllMissedInvariant8 checks invariant 8: if
// every previously reported issue is run back through verification
// against an unchanged diff, all classify as missed.
func TestRerunOnUnchangedDiffAllMissedInvariant8(t *testing.T) {
	stub := llmclient.NewStub()
	stub.PushJSON(verifyReply{Status: "missed", Confidence: 0.7})
	stub.PushJSON(verifyReply{Status: "missed", Confidence: 0.7})
	stub.PushJSON(verifyReply{Status: "missed", Confidence: 0.7})

	v := New(stub)
	prev := issue.PreviousReviewData{
		Issues: []issue.PreviousIssue{
			prevIssue("p1", "a.go"),
			prevIssue("p2", "b.go"),
			prevIssue("p3", "c.go"),
		},
	}

	summary, missed := v.Verify(context.Background(), prev)
	require.Equal(t, 3, summary.ByStatus[issue.FixStatusMissed])
	require.Len(t, missed, 3)
}

func TestUnknownStatusDefaultsToUncertain(t *testing.T) {
	stub := llmclient.NewStub()
	stub.PushJSON(verifyReply{Status: "not-a-real-status"})

	v := New(stub)
	summary, missed := v.Verify(context.Background(), issue.PreviousReviewData{
		Issues: []issue.PreviousIssue{prevIssue("p1", "a.go")},
	})

	require.Equal(t, 1, summary.ByStatus[issue.FixStatusUncertain])
	require.Empty(t, missed)
}

func TestParseFailureDegradesToUncertain(t *testing.T) {
	stub := llmclient.NewStub()
	stub.Push("not json")

	v := New(stub)
	summary, _ := v.Verify(context.Background(), issue.PreviousReviewData{
		Issues: []issue.PreviousIssue{prevIssue("p1", "a.go")},
	})

	require.Equal(t, 1, summary.ByStatus[issue.FixStatusUncertain])
	require.Equal(t, "parse failed", summary.Verifications[0].Evidence.Reasoning)
}

func TestNoPreviousIssuesReturnsEmptySummary(t *testing.T) {
	v := New(llmclient.NewStub())
	summary, missed := v.Verify(context.Background(), issue.PreviousReviewData{})
	require.Empty(t, summary.Verifications)
	require.Empty(t, missed)
}

func TestNilClientDegradesAllToUncertain(t *testing.T) {
	v := New(nil)
	summary, missed := v.Verify(context.Background(), issue.PreviousReviewData{
		Issues: []issue.PreviousIssue{prevIssue("p1", "a.go")},
	})

	require.Equal(t, 1, summary.ByStatus[issue.FixStatusUncertain])
	require.Empty(t, missed)
}

func TestCancelledContextDegradesRemainingToUncertain(t *testing.T) {
	stub := llmclient.NewStub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New(stub)
	summary, missed := v.Verify(ctx, issue.PreviousReviewData{
		Issues: []issue.PreviousIssue{prevIssue("p1", "a.go")},
	})

	require.Equal(t, 1, summary.ByStatus[issue.FixStatusUncertain])
	require.Equal(t, "cancelled", summary.Verifications[0].Evidence.Reasoning)
	require.Empty(t, missed)
}

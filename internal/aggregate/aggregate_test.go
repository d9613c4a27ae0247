package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/revsentry/internal/issue"
)

func confirmed(sev issue.Severity, cat issue.Category) issue.ValidatedIssue {
	return issue.ValidatedIssue{
		RawIssue: issue.RawIssue{Severity: sev, Category: cat},
		Status:   issue.StatusConfirmed,
	}
}

func TestEmptyInputIsLowRisk(t *testing.T) {
	metrics, risk := Compute(Input{})
	require.Equal(t, issue.RiskLow, risk)
	require.Zero(t, metrics.TotalScanned)
}

func TestAnyCriticalIsHighRisk(t *testing.T) {
	_, risk := Compute(Input{ValidatedIssues: []issue.ValidatedIssue{
		confirmed(issue.SeverityCritical, issue.CategoryLogic),
	}})
	require.Equal(t, issue.RiskHigh, risk)
}

func TestSecurityPlusErrorIsHighRisk(t *testing.T) {
	_, risk := Compute(Input{ValidatedIssues: []issue.ValidatedIssue{
		confirmed(issue.SeverityError, issue.CategorySecurity),
	}})
	require.Equal(t, issue.RiskHigh, risk)
}

func TestMoreThanTwoErrorsIsHighRisk(t *testing.T) {
	_, risk := Compute(Input{ValidatedIssues: []issue.ValidatedIssue{
		confirmed(issue.SeverityError, issue.CategoryLogic),
		confirmed(issue.SeverityError, issue.CategoryLogic),
		confirmed(issue.SeverityError, issue.CategoryLogic),
	}})
	require.Equal(t, issue.RiskHigh, risk)
}

func TestSingleErrorIsMediumRisk(t *testing.T) {
	_, risk := Compute(Input{ValidatedIssues: []issue.ValidatedIssue{
		confirmed(issue.SeverityError, issue.CategoryLogic),
	}})
	require.Equal(t, issue.RiskMedium, risk)
}

func TestMoreThanFiveWarningsIsMediumRisk(t *testing.T) {
	issues := make([]issue.ValidatedIssue, 6)
	for i := range issues {
		issues[i] = confirmed(issue.SeverityWarning, issue.CategoryStyle)
	}
	_, risk := Compute(Input{ValidatedIssues: issues})
	require.Equal(t, issue.RiskMedium, risk)
}

func TestMetricsCountByStatusInvariant1(t *testing.T) {
	metrics, _ := Compute(Input{
		Deduplicated:  2,
		FilesReviewed: 4,
		ValidatedIssues: []issue.ValidatedIssue{
			confirmed(issue.SeverityWarning, issue.CategoryStyle),
			{Status: issue.StatusRejected, RejectionReason: "low confidence"},
			{Status: issue.StatusRejected, RejectionReason: "round 1 challenge rejected"},
			{Status: issue.StatusUncertain},
		},
	})

	require.Equal(t, 4, metrics.TotalScanned)
	require.Equal(t, 1, metrics.Confirmed)
	require.Equal(t, 2, metrics.Rejected)
	require.Equal(t, 1, metrics.Uncertain)
	require.Equal(t, 1, metrics.AutoRejected)
	require.Equal(t, 2, metrics.Deduplicated)
	require.GreaterOrEqual(t, metrics.TotalScanned,
		metrics.Confirmed+metrics.Rejected+metrics.Uncertain)
}

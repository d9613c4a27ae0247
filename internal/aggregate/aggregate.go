// Package aggregate folds the validator's output, dedup statistics,
// and fix-verification summary into the final issue.Report: metrics,
// a compliance checklist, and the overall risk-level rule from spec
// section 4.F step 5.
package aggregate

import "github.com/roasbeef/revsentry/internal/issue"

// Input collects everything the orchestrator gathered over a run that
// aggregation needs.
type Input struct {
	ValidatedIssues []issue.ValidatedIssue
	Deduplicated    int
	FilesReviewed   int
	LinesAnalyzed   int
	Checklist       []issue.ChecklistItem
	FixVerify       *issue.FixVerificationSummary
}

// Compute folds in into a Metrics snapshot and the overall RiskLevel.
func Compute(in Input) (issue.Metrics, issue.RiskLevel) {
	metrics := issue.Metrics{
		Deduplicated:  in.Deduplicated,
		FilesReviewed: in.FilesReviewed,
		LinesAnalyzed: in.LinesAnalyzed,
	}

	for _, vi := range in.ValidatedIssues {
		metrics.TotalScanned++

		switch vi.Status {
		case issue.StatusConfirmed:
			metrics.Confirmed++
		case issue.StatusRejected:
			metrics.Rejected++
			if vi.RejectionReason == "low confidence" {
				metrics.AutoRejected++
			}
		case issue.StatusUncertain:
			metrics.Uncertain++
		}
	}

	return metrics, riskLevel(in.ValidatedIssues)
}

// riskLevel implements the fixed rule table from spec section 4.F:
// any critical confirmed issue, or a confirmed security issue paired
// with any confirmed error, or more than 2 confirmed errors, is high
// risk; any confirmed error, or more than 5 confirmed warnings, is
// medium; otherwise low.
func riskLevel(issues []issue.ValidatedIssue) issue.RiskLevel {
	var (
		criticals, errors, warnings int
		hasSecurity                 bool
	)

	for _, vi := range issues {
		if vi.Status != issue.StatusConfirmed {
			continue
		}
		if vi.Category == issue.CategorySecurity {
			hasSecurity = true
		}

		switch vi.EffectiveSeverity() {
		case issue.SeverityCritical:
			criticals++
		case issue.SeverityError:
			errors++
		case issue.SeverityWarning:
			warnings++
		}
	}

	switch {
	case criticals > 0:
		return issue.RiskHigh
	case hasSecurity && errors > 0:
		return issue.RiskHigh
	case errors > 2:
		return issue.RiskHigh
	case errors > 0:
		return issue.RiskMedium
	case warnings > 5:
		return issue.RiskMedium
	default:
		return issue.RiskLow
	}
}

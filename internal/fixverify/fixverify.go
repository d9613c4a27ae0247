// Package fixverify implements the fix verifier described in spec
// section 4.E: a single agent, holding one LLM session of its own,
// that classifies every issue from a prior review against the current
// diff. It runs as a sibling of the reviewer fan-out (section 4.F) and
// never aborts the run on failure: a verifier error degrades every
// issue to "uncertain" rather than failing the review.
package fixverify

import (
	"context"
	"fmt"

	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
)

// Verifier classifies previously reported issues against a new diff.
type Verifier struct {
	llm llmclient.Client
}

// New builds a Verifier. A nil client is permitted for orchestrator
// wiring convenience; Verify then degrades every issue to uncertain
// without making any calls.
func New(client llmclient.Client) *Verifier {
	return &Verifier{llm: client}
}

// Verify classifies every issue in prev.Issues and returns a summary
// plus any freshly surfaced RawIssues for issues classified "missed".
// A missed issue re-enters the normal pipeline as if a reviewer had
// just reported it.
func (v *Verifier) Verify(
	ctx context.Context, prev issue.PreviousReviewData,
) (issue.FixVerificationSummary, []issue.RawIssue) {

	summary := issue.FixVerificationSummary{ByStatus: map[issue.FixStatus]int{}}
	if len(prev.Issues) == 0 {
		return summary, nil
	}

	if v.llm == nil {
		return v.degradeAll(prev, "no LLM collaborator configured"), nil
	}

	sess, err := v.llm.MultiTurn(ctx, fixVerifierSystemPrompt)
	if err != nil {
		return v.degradeAll(prev, fmt.Sprintf("opening session: %v", err)), nil
	}
	defer sess.Close()

	var missed []issue.RawIssue
	for _, pi := range prev.Issues {
		var fv issue.FixVerification
		switch {
		case ctx.Err() != nil:
			fv = issue.FixVerification{
				OriginalID: pi.ID,
				Status:     issue.FixStatusUncertain,
				Evidence:   issue.Evidence{Reasoning: "cancelled"},
			}

		default:
			fv = v.classify(ctx, sess, pi)
		}

		summary.Verifications = append(summary.Verifications, fv)
		summary.ByStatus[fv.Status]++

		if fv.Status == issue.FixStatusMissed {
			missed = append(missed, missedRawIssue(pi, fv))
		}
	}

	return summary, missed
}

func (v *Verifier) classify(
	ctx context.Context, sess llmclient.Session, pi issue.PreviousIssue,
) issue.FixVerification {

	var reply verifyReply
	err := sess.SendJSON(ctx, classifyPrompt(pi), &reply)
	if err != nil {
		return issue.FixVerification{
			OriginalID: pi.ID,
			Status:     issue.FixStatusUncertain,
			Evidence:   issue.Evidence{Reasoning: "parse failed"},
		}
	}

	return reply.toVerification(pi)
}

// degradeAll implements the non-fatal-error policy from spec section
// 7: a verifier-level failure marks every previous issue uncertain
// instead of aborting the run.
func (v *Verifier) degradeAll(
	prev issue.PreviousReviewData, reason string,
) issue.FixVerificationSummary {

	summary := issue.FixVerificationSummary{ByStatus: map[issue.FixStatus]int{}}
	for _, pi := range prev.Issues {
		fv := issue.FixVerification{
			OriginalID: pi.ID,
			Status:     issue.FixStatusUncertain,
			Evidence:   issue.Evidence{Reasoning: reason},
		}
		summary.Verifications = append(summary.Verifications, fv)
		summary.ByStatus[fv.Status]++
	}
	return summary
}

// missedRawIssue resurfaces a missed prior issue as a fresh RawIssue
// so it re-enters dedup/validation like any reviewer-reported finding.
func missedRawIssue(pi issue.PreviousIssue, fv issue.FixVerification) issue.RawIssue {
	confidence := fv.Confidence
	if confidence == 0 {
		confidence = 0.9
	}

	return issue.RawIssue{
		ID:          pi.ID + "-missed",
		File:        pi.File,
		LineStart:   pi.LineStart,
		LineEnd:     pi.LineEnd,
		Category:    pi.Category,
		Severity:    pi.Severity,
		Title:       pi.Title,
		Description: pi.Description,
		Confidence:  confidence,
		SourceAgent: issue.AgentFixVerifier,
	}
}

// verifyReply is the loosely-typed JSON the model replies with for
// each classification, parsed permissively per spec section 9.
type verifyReply struct {
	Status              string   `json:"status"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning"`
	CheckedFiles        []string `json:"checked_files"`
	FalsePositiveReason string   `json:"false_positive_reason"`
}

func (r verifyReply) toVerification(pi issue.PreviousIssue) issue.FixVerification {
	status := issue.FixStatus(r.Status)
	switch status {
	case issue.FixStatusFixed, issue.FixStatusMissed, issue.FixStatusFalsePositive,
		issue.FixStatusObsolete, issue.FixStatusUncertain:
	default:
		status = issue.FixStatusUncertain
	}

	return issue.FixVerification{
		OriginalID: pi.ID,
		Status:     status,
		Confidence: clamp01(r.Confidence),
		Evidence: issue.Evidence{
			CheckedFiles: r.CheckedFiles,
			Reasoning:    r.Reasoning,
		},
		FalsePositiveReason: r.FalsePositiveReason,
	}
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func classifyPrompt(pi issue.PreviousIssue) string {
	return fmt.Sprintf(
		"A previous review reported this issue:\n"+
			"File: %s:%d..%d\nCategory: %s, severity: %s\n"+
			"Title: %s\nDescription: %s\n\n"+
			"Examine the current state of the file against the new diff "+
			"and classify this issue as exactly one of: fixed, missed, "+
			"false_positive, obsolete, uncertain.\n\n"+
			"Reply with JSON: {status, confidence, reasoning, "+
			"checked_files, false_positive_reason}.",
		pi.File, pi.LineStart, pi.LineEnd, pi.Category, pi.Severity,
		pi.Title, pi.Description,
	)
}

const fixVerifierSystemPrompt = `You are the fix verifier for a code review
pipeline. You are given issues from a prior review, one at a time, in a
single ongoing conversation, and must determine whether each has been
fixed, missed, was a false positive, is now obsolete, or remains
uncertain against the current diff.`

package validator

import (
	"context"
	"fmt"

	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
)

// maxRoundsFor implements the per-issue round budget table from spec
// section 4.D.4.
func maxRoundsFor(sev issue.Severity, confidence float64) int {
	switch sev {
	case issue.SeverityCritical:
		return 5
	case issue.SeverityError:
		return 3
	case issue.SeverityWarning:
		if confidence > 0.85 {
			return 1
		}
		return 2
	default:
		return 1
	}
}

// challengeReply is the loosely-typed JSON shape the model replies
// with each round; a permissive parser sits in front of it because the
// model's JSON is not guaranteed well-formed (spec section 9).
type challengeReply struct {
	Status          string   `json:"status"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	CheckedFiles    []string `json:"checked_files"`
	CheckedSymbols  []string `json:"checked_symbols"`
	RelatedContext  string   `json:"related_context"`
	RevisedSeverity string   `json:"revised_severity"`
}

func (r challengeReply) toResponse(fallbackConfidence float64) issue.ChallengeResponse {
	status := issue.Status(r.Status)
	switch status {
	case issue.StatusConfirmed, issue.StatusRejected, issue.StatusUncertain:
	default:
		status = issue.StatusUncertain
	}

	confidence := r.Confidence
	if confidence == 0 {
		confidence = fallbackConfidence
	}

	return issue.ChallengeResponse{
		Status:          status,
		FinalConfidence: clamp01(confidence),
		Evidence: issue.Evidence{
			CheckedFiles:   r.CheckedFiles,
			CheckedSymbols: r.CheckedSymbols,
			RelatedContext: r.RelatedContext,
			Reasoning:      r.Reasoning,
		},
		RevisedSeverity: issue.Severity(r.RevisedSeverity),
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

// runChallenge drives the multi-round challenge dialogue for a single
// issue over an already-open session, implementing the agreement,
// exhaustion, and parse-failure termination rules of spec 4.D.4.
func runChallenge(
	ctx context.Context, sess llmclient.Session, iss issue.RawIssue,
) issue.ChallengeResponse {

	maxRounds := maxRoundsFor(iss.Severity, iss.Confidence)

	var rounds []issue.ChallengeResponse
	for round := 1; round <= maxRounds; round++ {
		var reply challengeReply
		err := sess.SendJSON(ctx, roundPrompt(round, iss), &reply)
		if err != nil {
			if ctx.Err() != nil {
				return issue.ChallengeResponse{
					Status:          issue.StatusUncertain,
					FinalConfidence: iss.Confidence,
					RejectionReason: "cancelled",
				}
			}
			if round == 1 {
				return issue.ChallengeResponse{
					Status:          issue.StatusUncertain,
					FinalConfidence: iss.Confidence,
					RejectionReason: "parse failed",
				}
			}
			prev := rounds[len(rounds)-1]
			prev.Evidence.Reasoning = noteAppend(
				prev.Evidence.Reasoning,
				fmt.Sprintf("round %d parse failed, reusing previous decision", round),
			)
			return prev
		}

		resp := reply.toResponse(iss.Confidence)
		rounds = append(rounds, resp)

		if round >= 2 && rounds[round-1].Status == rounds[round-2].Status {
			final := rounds[round-1]
			final.Evidence.Reasoning = noteAppend(final.Evidence.Reasoning, "two rounds agree")
			return final
		}
	}

	return majorityVote(rounds)
}

// majorityVote resolves an exhausted challenge dialogue: the status
// with the most rounds wins, ties go to uncertain, confidence is
// penalised, and evidence is the union of every round.
func majorityVote(rounds []issue.ChallengeResponse) issue.ChallengeResponse {
	counts := make(map[issue.Status]int)
	for _, r := range rounds {
		counts[r.Status]++
	}

	var winner, runnerUp issue.Status
	winnerCount, runnerUpCount := -1, -1
	for _, s := range []issue.Status{
		issue.StatusConfirmed, issue.StatusRejected, issue.StatusUncertain,
	} {
		c := counts[s]
		if c > winnerCount {
			runnerUp, runnerUpCount = winner, winnerCount
			winner, winnerCount = s, c
		} else if c > runnerUpCount {
			runnerUp, runnerUpCount = s, c
		}
	}

	final := winner
	if winnerCount == runnerUpCount {
		final = issue.StatusUncertain
	}

	var evidence issue.Evidence
	for _, r := range rounds {
		evidence = evidence.Merge(r.Evidence)
	}

	last := rounds[len(rounds)-1]
	confidence := last.FinalConfidence - 0.3
	if confidence < 0.3 {
		confidence = 0.3
	}

	evidence.Reasoning = noteAppend(evidence.Reasoning, fmt.Sprintf(
		"majority vote: %d/%d (%s over %s) across %d rounds",
		winnerCount, runnerUpCount, winner, runnerUp, len(rounds),
	))

	return issue.ChallengeResponse{
		Status:          final,
		FinalConfidence: confidence,
		Evidence:        evidence,
	}
}

func noteAppend(reasoning, note string) string {
	if reasoning == "" {
		return note
	}
	return reasoning + "; " + note
}

// roundPrompt builds the progressive challenge prompt for round n, per
// spec section 4.D.4.
func roundPrompt(round int, iss issue.RawIssue) string {
	location := fmt.Sprintf("%s:%d..%d", iss.File, iss.LineStart, iss.LineEnd)

	switch round {
	case 1:
		return fmt.Sprintf(
			"Validate this reported issue by reading the code at %s.\n"+
				"Title: %s\nDescription: %s\nReported severity: %s, "+
				"confidence: %.2f\n\n"+
				"Reply with JSON: {status: confirmed|rejected|uncertain, "+
				"confidence, reasoning, checked_files, checked_symbols}.",
			location, iss.Title, iss.Description, iss.Severity, iss.Confidence,
		)
	case 2:
		return "Are you certain? Reconsider the evidence and reply with " +
			"the same JSON shape."
	case 3:
		return "Provide concrete line-level evidence for your decision: " +
			"cite exact lines and values. Reply with the same JSON shape."
	case 4:
		return "Play devil's advocate: argue the opposite position as " +
			"strongly as you can, then reconsider your decision in light " +
			"of that argument. Reply with the same JSON shape."
	default:
		return "This is the final round. Give a non-revisable decision. " +
			"Reply with the same JSON shape."
	}
}

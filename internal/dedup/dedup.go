// Package dedup implements the real-time issue deduplicator that sits
// between reviewer agents and the validator. Every newly reported issue
// is checked against issues already accepted for the same file before
// it is admitted to validation.
//
// Checks are serialized through a single actor so that two overlapping
// reports racing each other cannot both be admitted: the second report
// always sees the first's acceptance before it runs its own overlap
// test.
package dedup

import (
	"context"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/revsentry/internal/baselib/actor"
	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
)

// Decision is the outcome of a dedup check.
type Decision string

const (
	// DecisionAccepted means the issue is novel and should proceed to
	// validation.
	DecisionAccepted Decision = "accepted"

	// DecisionDuplicate means the issue overlaps a previously accepted
	// issue and describes the same underlying problem.
	DecisionDuplicate Decision = "duplicate"
)

// Result is returned for every dedup check.
type Result struct {
	Decision   Decision
	DuplicateOf string
	UsedLLM    bool
}

// Stats tracks running totals for a deduplicator instance.
type Stats struct {
	Accepted     int
	Deduplicated int
	LLMChecks    int
}

// checkRequest is the message sent to the serializing actor.
type checkRequest struct {
	actor.BaseMessage
	candidate issue.RawIssue
}

func (checkRequest) MessageType() string { return "dedup.checkRequest" }

// Deduplicator deduplicates issues within a single review run. It is
// not safe to share across independent reviews; construct one per run.
type Deduplicator struct {
	llm llmclient.Client

	system *actor.ActorSystem
	ref    actor.ActorRef[checkRequest, Result]

	mu       sync.Mutex
	accepted map[string][]issue.RawIssue
	stats    Stats
}

// New builds a Deduplicator. client may be nil, in which case overlap
// alone (without a semantic confirmation) never declares a duplicate.
// The rule table requires LLM confirmation, so a nil client means every
// overlapping candidate fails open as accepted.
func New(client llmclient.Client) *Deduplicator {
	d := &Deduplicator{
		llm:      client,
		system:   actor.NewActorSystem(),
		accepted: make(map[string][]issue.RawIssue),
	}

	behavior := actor.NewFunctionBehavior(
		func(ctx context.Context, req checkRequest) fn.Result[Result] {
			return fn.Ok(d.checkLocked(ctx, req.candidate))
		},
	)

	key := actor.NewServiceKey[checkRequest, Result]("issue-deduplicator")
	d.ref = key.Spawn(d.system, "deduplicator", behavior)

	return d
}

// Close shuts down the deduplicator's internal actor system.
func (d *Deduplicator) Close(ctx context.Context) {
	d.system.Shutdown(ctx)
}

// Check runs the deduplication pipeline for candidate. Per the
// cancellation policy, a context cancelled while a check is in flight
// results in DecisionAccepted rather than an error. In-flight work is
// never discarded as a rejection.
func (d *Deduplicator) Check(ctx context.Context, candidate issue.RawIssue) Result {
	future := d.ref.Ask(ctx, checkRequest{candidate: candidate})

	result := future.Await(ctx)

	var out Result
	result.WhenOk(func(r Result) { out = r })
	result.WhenErr(func(error) {
		out = Result{Decision: DecisionAccepted}
		d.mu.Lock()
		d.accepted[candidate.File] = append(d.accepted[candidate.File], candidate)
		d.stats.Accepted++
		d.mu.Unlock()
	})

	return out
}

// checkLocked runs the overlap pre-filter and, on a hit, the semantic
// confirmation. It executes inside the serializing actor's single
// goroutine, so accepted-set mutation here never races with another
// check.
func (d *Deduplicator) checkLocked(ctx context.Context, candidate issue.RawIssue) Result {
	d.mu.Lock()
	priors := append([]issue.RawIssue(nil), d.accepted[candidate.File]...)
	d.mu.Unlock()

	for _, prior := range priors {
		if !candidate.OverlapsRange(prior.LineStart, prior.LineEnd) {
			continue
		}
		if candidate.Category != prior.Category {
			continue
		}

		isDup, usedLLM := d.confirmDuplicate(ctx, candidate, prior)
		if isDup {
			d.mu.Lock()
			d.stats.Deduplicated++
			if usedLLM {
				d.stats.LLMChecks++
			}
			d.mu.Unlock()

			return Result{
				Decision:    DecisionDuplicate,
				DuplicateOf: prior.ID,
				UsedLLM:     usedLLM,
			}
		}
	}

	d.mu.Lock()
	d.accepted[candidate.File] = append(d.accepted[candidate.File], candidate)
	d.stats.Accepted++
	d.mu.Unlock()

	return Result{Decision: DecisionAccepted}
}

type semanticVerdict struct {
	SameIssue bool   `json:"same_issue"`
	Reasoning string `json:"reasoning"`
}

// confirmDuplicate asks the LLM whether two overlapping issues describe
// the same underlying problem. Any LLM failure fails open: the
// candidate is treated as distinct rather than silently dropped.
func (d *Deduplicator) confirmDuplicate(
	ctx context.Context, candidate, prior issue.RawIssue,
) (isDuplicate bool, usedLLM bool) {

	if d.llm == nil {
		return false, false
	}

	prompt := fmt.Sprintf(
		"Issue A (already accepted): %s — %s\n"+
			"Issue B (new candidate): %s — %s\n"+
			"Both are in %s at overlapping line ranges "+
			"[%d,%d] and [%d,%d]. Do they describe the same "+
			"underlying problem? Reply with JSON "+
			"{\"same_issue\": bool, \"reasoning\": \"...\"}.",
		prior.Title, prior.Description,
		candidate.Title, candidate.Description,
		candidate.File,
		prior.LineStart, prior.LineEnd,
		candidate.LineStart, candidate.LineEnd,
	)

	var verdict semanticVerdict
	err := d.llm.ChatJSON(ctx, dedupSystemPrompt, prompt, &verdict)
	if err != nil {
		return false, true
	}

	return verdict.SameIssue, true
}

// Stats returns a snapshot of the running counters.
func (d *Deduplicator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

const dedupSystemPrompt = `You compare two reported code review issues ` +
	`that overlap in location and category and decide whether they ` +
	`describe the same underlying problem. Favor treating issues as ` +
	`distinct unless you are confident they are the same.`

package validator

import (
	"fmt"
	"time"

	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
)

// runSession is the per-file worker goroutine: it owns one persistent
// LLM conversation and drains file's queue sequentially, never
// interleaving issues, until told to close.
func (v *Validator) runSession(file string) {
	defer v.wg.Done()

	sess, sessErr := v.llm.MultiTurn(v.ctx, sessionSystemPrompt(file))

	for {
		if v.ctx.Err() != nil {
			v.drainAsCancelled(file)
			v.closeSession(file, sess)
			return
		}

		v.mu.Lock()
		queue := v.queues[file]
		if len(queue) == 0 {
			if v.agentsComplete {
				v.mu.Unlock()
				v.closeSession(file, sess)
				return
			}

			waiter := make(chan struct{})
			v.idleWaiters[file] = waiter
			v.mu.Unlock()

			select {
			case <-waiter:
				continue

			case <-time.After(v.cfg.IdleTimeout):
				v.mu.Lock()
				// A new issue may have arrived in the instant
				// the timer fired; re-check before closing.
				if len(v.queues[file]) > 0 {
					delete(v.idleWaiters, file)
					v.mu.Unlock()
					continue
				}
				delete(v.idleWaiters, file)
				v.mu.Unlock()
				v.closeSession(file, sess)
				return

			case <-v.ctx.Done():
				v.mu.Lock()
				delete(v.idleWaiters, file)
				v.mu.Unlock()
				v.drainAsCancelled(file)
				v.closeSession(file, sess)
				return
			}
		}

		next := queue[0]
		v.queues[file] = queue[1:]
		v.mu.Unlock()

		var result issue.ValidatedIssue
		if sessErr != nil {
			result = sessionErrorResult(next, sessErr)
		} else {
			resp := runChallenge(v.ctx, sess, next)
			result = applyChallengeResponse(next, resp)
		}

		v.mu.Lock()
		v.results = append(v.results, result)
		v.stats.Completed++
		v.mu.Unlock()
	}
}

// closeSession tears down sess (if any) and frees its concurrency
// slot, handing it to the next pending file if one is waiting.
func (v *Validator) closeSession(file string, sess llmclient.Session) {
	if sess != nil {
		sess.Close()
	}
	v.releaseAndDispatchNext(file)
}

// drainAsCancelled empties file's queue, recording every remaining
// issue as uncertain/"cancelled" per spec section 5's cancellation
// policy, without consulting the model.
func (v *Validator) drainAsCancelled(file string) {
	v.mu.Lock()
	remaining := v.queues[file]
	v.queues[file] = nil
	v.mu.Unlock()

	if len(remaining) == 0 {
		return
	}

	cancelled := make([]issue.ValidatedIssue, len(remaining))
	for i, iss := range remaining {
		cancelled[i] = issue.ValidatedIssue{
			RawIssue:        iss,
			Status:          issue.StatusUncertain,
			FinalConfidence: iss.Confidence,
			RejectionReason: "cancelled",
		}
	}

	v.mu.Lock()
	v.results = append(v.results, cancelled...)
	v.stats.Completed += len(cancelled)
	v.mu.Unlock()
}

// sessionErrorResult degrades an issue to uncertain when the file's
// session could never be established, per the LLM-transport-error
// handling in spec section 7.
func sessionErrorResult(iss issue.RawIssue, err error) issue.ValidatedIssue {
	return issue.ValidatedIssue{
		RawIssue:        iss,
		Status:          issue.StatusUncertain,
		FinalConfidence: iss.Confidence,
		RejectionReason: fmt.Sprintf("session error: %v", err),
	}
}

// applyChallengeResponse folds a completed challenge dialogue's
// outcome into a ValidatedIssue.
func applyChallengeResponse(iss issue.RawIssue, resp issue.ChallengeResponse) issue.ValidatedIssue {
	return issue.ValidatedIssue{
		RawIssue:        iss,
		Status:          resp.Status,
		Evidence:        resp.Evidence,
		FinalConfidence: resp.FinalConfidence,
		RejectionReason: resp.RejectionReason,
		RevisedSeverity: resp.RevisedSeverity,
	}
}

func sessionSystemPrompt(file string) string {
	return fmt.Sprintf(validatorSystemPromptTemplate, file)
}

const validatorSystemPromptTemplate = `You are a meticulous code review validator. You are
examining reported issues in %s, one at a time, in a single ongoing
conversation. For each issue you will read the referenced lines,
decide whether the report is accurate, and reply with a single JSON
object describing your decision. Do not re-explain context you have
already established earlier in this conversation.`

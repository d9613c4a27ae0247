// Package validator implements the streaming multi-round validator: a
// work-stealing producer/consumer with one long-lived LLM session per
// file. Issues enqueued for the same file are validated sequentially,
// in FIFO order, inside a single conversation so the model never
// re-reads source it has already seen. At most a configurable number
// of file sessions run concurrently; the rest queue until a slot
// frees, one independent goroutine per unit of work, each driving its
// own LLM session.
package validator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
)

// Config tunes the validator's concurrency and gating behavior.
type Config struct {
	// MaxConcurrentSessions bounds how many per-file sessions may be
	// actively consuming LLM calls at once.
	MaxConcurrentSessions int

	// MinConfidence is the confidence gate: non-critical issues below
	// this are auto-rejected without consulting the model.
	MinConfidence float64

	// IdleTimeout is how long an empty session waits for new work
	// before closing.
	IdleTimeout time.Duration
}

// DefaultConfig returns the default validator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSessions: 5,
		MinConfidence:         0.5,
		IdleTimeout:           30 * time.Second,
	}
}

// Stats summarizes validator progress at a point in time.
type Stats struct {
	Completed      int
	Total          int
	ActiveSessions int
}

// FlushResult is returned once every session has drained.
type FlushResult struct {
	Issues     []issue.ValidatedIssue
	TokensUsed int64
}

// Validator is the streaming validator described in spec section 4.D.
// The zero value is not usable; construct with New.
type Validator struct {
	ctx context.Context
	llm llmclient.Client
	cfg Config
	sem *semaphore.Weighted

	mu           sync.Mutex
	queues       map[string][]issue.RawIssue
	active       map[string]struct{}
	closing      map[string]struct{}
	idleWaiters  map[string]chan struct{}
	pendingSet   map[string]struct{}
	pendingOrder []string

	agentsComplete bool
	results        []issue.ValidatedIssue
	stats          Stats

	wg sync.WaitGroup
}

// New builds a Validator bound to ctx: canceling ctx is the single
// cancellation token that propagates to every in-flight session and
// round, per spec section 5.
func New(ctx context.Context, client llmclient.Client, cfg Config) *Validator {
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = DefaultConfig().MaxConcurrentSessions
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}

	return &Validator{
		ctx:         ctx,
		llm:         client,
		cfg:         cfg,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentSessions)),
		queues:      make(map[string][]issue.RawIssue),
		active:      make(map[string]struct{}),
		closing:     make(map[string]struct{}),
		idleWaiters: make(map[string]chan struct{}),
		pendingSet:  make(map[string]struct{}),
	}
}

// Enqueue submits iss for validation. It returns a non-nil
// ValidatedIssue only when the confidence gate auto-rejects the issue
// immediately; otherwise it returns nil and the eventual result is
// collected by Flush. Enqueue never blocks the caller.
func (v *Validator) Enqueue(iss issue.RawIssue) *issue.ValidatedIssue {
	v.mu.Lock()
	v.stats.Total++

	if iss.Severity != issue.SeverityCritical && iss.Confidence < v.cfg.MinConfidence {
		v.stats.Completed++
		v.mu.Unlock()

		rejected := issue.ValidatedIssue{
			RawIssue:        iss,
			Status:          issue.StatusRejected,
			FinalConfidence: iss.Confidence,
			RejectionReason: "low confidence",
		}
		v.mu.Lock()
		v.results = append(v.results, rejected)
		v.mu.Unlock()
		return &rejected
	}

	// A session that already marked itself closing must not be
	// reused: the enqueue races the idle timer firing, and per spec
	// the loser of that race starts a fresh session.
	if _, ok := v.closing[iss.File]; ok {
		delete(v.closing, iss.File)
	}

	v.queues[iss.File] = append(v.queues[iss.File], iss)
	_, alreadyActive := v.active[iss.File]

	if waiter, ok := v.idleWaiters[iss.File]; ok {
		close(waiter)
		delete(v.idleWaiters, iss.File)
	}
	v.mu.Unlock()

	if !alreadyActive {
		v.dispatch(iss.File)
	}
	return nil
}

// MarkAgentsComplete signals that no more issues will be enqueued.
// Idle sessions with empty queues close immediately instead of waiting
// out their idle timer.
func (v *Validator) MarkAgentsComplete() {
	v.mu.Lock()
	v.agentsComplete = true
	for file, waiter := range v.idleWaiters {
		close(waiter)
		delete(v.idleWaiters, file)
	}
	v.mu.Unlock()
}

// Flush waits for every session, active and pending, to drain and
// returns all validated issues collected so far (including
// confidence-gate rejections recorded by Enqueue).
func (v *Validator) Flush(ctx context.Context) (FlushResult, error) {
	v.MarkAgentsComplete()

	done := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return FlushResult{}, ctx.Err()
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	issues := make([]issue.ValidatedIssue, len(v.results))
	copy(issues, v.results)

	return FlushResult{
		Issues:     issues,
		TokensUsed: v.llm.TokensUsed(),
	}, nil
}

// Stats returns a snapshot of validator progress.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.stats
	s.ActiveSessions = len(v.active)
	return s
}

// dispatch tries to start a session for file immediately; if every
// concurrency slot is taken, file is queued and picked up by
// closeSession once a slot frees.
func (v *Validator) dispatch(file string) {
	v.mu.Lock()
	if _, ok := v.active[file]; ok {
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()

	if v.sem.TryAcquire(1) {
		v.startSession(file)
		return
	}

	v.mu.Lock()
	if _, ok := v.pendingSet[file]; !ok {
		v.pendingSet[file] = struct{}{}
		v.pendingOrder = append(v.pendingOrder, file)
	}
	v.mu.Unlock()
}

// startSession marks file active and launches its goroutine. Caller
// must already hold the semaphore slot being consumed.
func (v *Validator) startSession(file string) {
	v.mu.Lock()
	v.active[file] = struct{}{}
	v.mu.Unlock()

	v.wg.Add(1)
	go v.runSession(file)
}

// releaseAndDispatchNext is called once a session has finished; it
// marks the file closing, frees the concurrency slot and, if any file
// is waiting, hands the freed slot straight to it.
func (v *Validator) releaseAndDispatchNext(file string) {
	v.mu.Lock()
	delete(v.active, file)
	v.closing[file] = struct{}{}

	var next string
	if len(v.pendingOrder) > 0 {
		next = v.pendingOrder[0]
		v.pendingOrder = v.pendingOrder[1:]
		delete(v.pendingSet, next)
	}
	v.mu.Unlock()

	v.sem.Release(1)

	if next != "" {
		if v.sem.TryAcquire(1) {
			v.startSession(next)
		} else {
			v.dispatch(next)
		}
	}
}

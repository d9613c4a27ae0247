// Package orchestrator sequences a full review run: context build,
// agent selection, reviewer fan-out, validator drain, and report
// assembly. Reviewer agents, custom agents, and the fix verifier run
// as sibling tasks via errgroup: run workers concurrently, collect
// settled results.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roasbeef/revsentry/internal/aggregate"
	"github.com/roasbeef/revsentry/internal/dedup"
	"github.com/roasbeef/revsentry/internal/diffmodel"
	"github.com/roasbeef/revsentry/internal/fixverify"
	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
	"github.com/roasbeef/revsentry/internal/progress"
	"github.com/roasbeef/revsentry/internal/selector"
	"github.com/roasbeef/revsentry/internal/validator"
	"github.com/roasbeef/revsentry/internal/workspace"
)

// CustomAgent is a user-defined reviewer triggered by a file-path
// pattern match against the diff, per spec section 4.F step 2.
type CustomAgent struct {
	Name         string
	SystemPrompt string
	FilePattern  string
}

// DiffSource describes where the diff under review comes from. Either
// ExternalDiff is set (bypassing ref resolution entirely) or RepoPath
// plus SourceRef/TargetRef identify refs to diff directly. The caller
// is responsible for having already prepared the checkout (see
// internal/workspace) if an isolated worktree is desired.
type DiffSource struct {
	RepoPath     string
	SourceRef    string
	TargetRef    string
	ExternalDiff string
}

// Input is everything one review run needs beyond static configuration.
type Input struct {
	Diff             DiffSource
	ProjectStandards string
	CustomAgents     []CustomAgent
	PreviousReview   *issue.PreviousReviewData
}

// Config tunes orchestrator behavior.
type Config struct {
	MaxConcurrentAgents int
	Selector            selector.Config
	Validator           validator.Config

	// Budget is the overall wall-clock budget for the run; zero means
	// no timeout. Exceeding it cancels everything in flight and the
	// partial report is still emitted.
	Budget time.Duration
}

// DefaultConfig returns spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentAgents: 8,
		Selector:            selector.DefaultConfig(),
		Validator:           validator.DefaultConfig(),
	}
}

// Orchestrator runs review pipelines. A single instance may run many
// reviews sequentially or concurrently; each Run call builds its own
// dedup/validator instances scoped to that run, per spec section 9's
// "session registry is scoped to the review invocation" note.
type Orchestrator struct {
	llm      llmclient.Client
	progress progress.Observer
}

// New builds an Orchestrator. A nil observer defaults to
// progress.NullObserver.
func New(llm llmclient.Client, obs progress.Observer) *Orchestrator {
	if obs == nil {
		obs = progress.NullObserver{}
	}
	return &Orchestrator{llm: llm, progress: obs}
}

// Run executes the full pipeline and returns the assembled report. A
// non-nil error means a fatal phase failed (malformed diff, missing
// ref, or the reviewer fan-out itself erroring out); everything else
// degrades locally per spec section 7 and still contributes to the
// report.
func (o *Orchestrator) Run(ctx context.Context, in Input, cfg Config) (issue.Report, error) {
	started := time.Now()

	if cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Budget)
		defer cancel()
	}

	o.emit(ctx, progress.Event{Type: progress.EventReviewStart})
	log.InfoS(ctx, "review started")

	files, _, err := o.buildContext(ctx, in)
	if err != nil {
		o.emitError(ctx, "context-build", err)
		return issue.Report{}, err
	}

	sel, triggered := o.selectAgents(ctx, files, in, cfg)

	ded := dedup.New(o.llm)
	defer ded.Close(ctx)
	val := validator.New(ctx, o.llm, cfg.Validator)

	fileByPath := make(map[string]*diffmodel.DiffFile, len(files))
	for _, f := range files {
		fileByPath[f.Path] = f
	}

	submit := o.submitFunc(ctx, fileByPath, ded, val)

	fixSummary, fanOutErr := o.fanOut(ctx, sel, triggered, files, in, cfg, submit)
	if fanOutErr != nil {
		o.emitError(ctx, "fan-out", fanOutErr)
		return issue.Report{}, fmt.Errorf("reviewer fan-out: %w", fanOutErr)
	}

	flush := o.drain(ctx, val)

	metrics, risk := aggregate.Compute(aggregate.Input{
		ValidatedIssues: flush.Issues,
		Deduplicated:    ded.Stats().Deduplicated,
		FilesReviewed:   len(files),
		LinesAnalyzed:   sumAdditions(files),
		FixVerify:       fixSummary,
	})

	agentsUsed := make([]issue.SourceAgent, 0, len(sel.Agents)+len(triggered))
	for _, a := range sel.Agents {
		agentsUsed = append(agentsUsed, issue.SourceAgent(a))
	}
	for _, ca := range triggered {
		agentsUsed = append(agentsUsed, issue.SourceAgent(ca.Name))
	}

	report := issue.Report{
		Summary:   summarize(metrics, risk),
		RiskLevel: risk,
		Issues:    flush.Issues,
		Metrics:   metrics,
		Metadata: issue.Metadata{
			ReviewID:    "review-" + uuid.New().String(),
			StartedAt:   started,
			CompletedAt: time.Now(),
			TokensUsed:  flush.TokensUsed,
			AgentsUsed:  agentsUsed,
		},
		FixVerify: fixSummary,
	}

	o.emit(ctx, progress.Event{
		Type: progress.EventReviewComplete, Status: issue.StatusConfirmed,
		Message: report.Summary,
	})
	log.InfoS(ctx, "review complete", "risk", risk, "confirmed", metrics.Confirmed)

	return report, nil
}

// buildContext is phase 1: resolve the diff text, parse it, and fail
// fatally on a malformed diff or unresolvable ref. These are the only
// input errors spec section 7 treats as fatal.
func (o *Orchestrator) buildContext(
	ctx context.Context, in Input,
) ([]*diffmodel.DiffFile, string, error) {

	o.emit(ctx, progress.Event{Type: progress.EventPhaseStart, Phase: "context-build"})

	diffText, repoRoot, err := o.resolveDiff(ctx, in.Diff)
	if err != nil {
		return nil, "", err
	}

	files, err := diffmodel.Parse(diffText, repoRoot)
	if err != nil {
		return nil, "", err
	}

	o.emit(ctx, progress.Event{Type: progress.EventPhaseComplete, Phase: "context-build"})
	return files, repoRoot, nil
}

func (o *Orchestrator) resolveDiff(ctx context.Context, d DiffSource) (string, string, error) {
	if d.ExternalDiff != "" {
		return d.ExternalDiff, d.RepoPath, nil
	}
	if d.RepoPath == "" {
		// No repo path and no external diff text: a legitimate empty
		// review, not a fatal input error. diffmodel.Parse treats an
		// empty string as zero files.
		return "", "", nil
	}

	ws := workspace.Existing(d.RepoPath)
	diffText, err := ws.Diff(ctx, d.SourceRef, d.TargetRef)
	if err != nil {
		return "", "", fmt.Errorf("computing diff: %w", err)
	}
	return diffText, d.RepoPath, nil
}

// selectAgents is phase 2.
func (o *Orchestrator) selectAgents(
	ctx context.Context, files []*diffmodel.DiffFile, in Input, cfg Config,
) (selector.Result, []CustomAgent) {

	o.emit(ctx, progress.Event{Type: progress.EventPhaseStart, Phase: "selection"})

	sel, err := selector.Select(ctx, files, o.llm, cfg.Selector)
	if err != nil {
		o.emitError(ctx, "selection", err)
	}

	triggered := matchCustomAgents(in.CustomAgents, files)

	o.emit(ctx, progress.Event{Type: progress.EventPhaseComplete, Phase: "selection"})
	return sel, triggered
}

func matchCustomAgents(agents []CustomAgent, files []*diffmodel.DiffFile) []CustomAgent {
	var triggered []CustomAgent
	for _, ca := range agents {
		if ca.FilePattern == "" {
			triggered = append(triggered, ca)
			continue
		}
		for _, f := range files {
			if ok, _ := filepath.Match(ca.FilePattern, f.Path); ok {
				triggered = append(triggered, ca)
				break
			}
		}
	}
	return triggered
}

// fanOut is phase 3: start every reviewer agent, triggered custom
// agent, and the fix verifier (if previous review data was supplied)
// as sibling tasks. A per-agent failure is captured and logged, never
// aborting the group. Every task returns nil, so g.Wait() reports no
// error either; a cancelled context does not abort the group.
func (o *Orchestrator) fanOut(
	ctx context.Context, sel selector.Result, custom []CustomAgent,
	files []*diffmodel.DiffFile, in Input, cfg Config,
	submit func(issue.RawIssue) string,
) (*issue.FixVerificationSummary, error) {

	o.emit(ctx, progress.Event{Type: progress.EventPhaseStart, Phase: "fan-out"})

	limit := cfg.MaxConcurrentAgents
	if limit <= 0 {
		limit = DefaultConfig().MaxConcurrentAgents
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, a := range sel.Agents {
		a := a
		g.Go(func() error {
			o.runReviewerAgent(gctx, issue.SourceAgent(a), files, in.ProjectStandards, submit)
			return nil
		})
	}

	for _, ca := range custom {
		ca := ca
		g.Go(func() error {
			o.runCustomAgent(gctx, ca, files, in.ProjectStandards, submit)
			return nil
		})
	}

	var fixSummary *issue.FixVerificationSummary
	if in.PreviousReview != nil {
		g.Go(func() error {
			fv := fixverify.New(o.llm)
			summary, missed := fv.Verify(gctx, *in.PreviousReview)
			fixSummary = &summary
			for _, m := range missed {
				submit(m)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.emit(ctx, progress.Event{Type: progress.EventPhaseComplete, Phase: "fan-out"})
	return fixSummary, nil
}

// drain is phase 4: wait for every validator session to close, polling
// Stats periodically so the progress stream reflects live counts
// while it waits.
func (o *Orchestrator) drain(ctx context.Context, val *validator.Validator) validator.FlushResult {
	o.emit(ctx, progress.Event{Type: progress.EventValidationStart})

	type outcome struct {
		res validator.FlushResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := val.Flush(ctx)
		done <- outcome{res, err}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case out := <-done:
			if out.err != nil {
				o.emitError(ctx, "drain", out.err)
			}
			o.emit(ctx, progress.Event{Type: progress.EventValidationDone})
			return out.res

		case <-ticker.C:
			stats := val.Stats()
			o.emit(ctx, progress.Event{
				Type:      progress.EventValidationIssue,
				Phase:     "drain",
				Completed: stats.Completed,
				Total:     stats.Total,
				Message: fmt.Sprintf(
					"%d/%d validations done, %d sessions active",
					stats.Completed, stats.Total, stats.ActiveSessions,
				),
			})
		}
	}
}

func sumAdditions(files []*diffmodel.DiffFile) int {
	total := 0
	for _, f := range files {
		total += f.Additions
	}
	return total
}

func summarize(metrics issue.Metrics, risk issue.RiskLevel) string {
	return fmt.Sprintf(
		"%d issue(s) confirmed, %d rejected, %d uncertain across %d file(s); risk=%s",
		metrics.Confirmed, metrics.Rejected, metrics.Uncertain,
		metrics.FilesReviewed, risk,
	)
}

func (o *Orchestrator) emit(ctx context.Context, ev progress.Event) {
	ev.Timestamp = time.Now()
	o.progress.Notify(ctx, ev)
}

func (o *Orchestrator) emitError(ctx context.Context, phase string, err error) {
	o.emit(ctx, progress.Event{Type: progress.EventReviewError, Phase: phase, Err: err})
}

func (o *Orchestrator) nextID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

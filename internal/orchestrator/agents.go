package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/roasbeef/revsentry/internal/dedup"
	"github.com/roasbeef/revsentry/internal/diffmodel"
	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/progress"
	"github.com/roasbeef/revsentry/internal/validator"
)

// agentIssueJSON is the wire shape a reviewer agent's ChatJSON reply
// must match, mirroring the report_issue tool schema from spec
// section 6 so the same conversion logic works for both real tool
// calls and this single-shot reply form.
type agentIssueJSON struct {
	File        string  `json:"file"`
	LineStart   int     `json:"lineStart"`
	LineEnd     int     `json:"lineEnd"`
	Severity    string  `json:"severity"`
	Category    string  `json:"category"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Suggestion  string  `json:"suggestion,omitempty"`
	CodeSnippet string  `json:"codeSnippet,omitempty"`
}

type agentIssueReply struct {
	Issues []agentIssueJSON `json:"issues"`
}

// submitFunc builds the shared style-filter -> dedup -> validator
// pipeline every reviewer agent, custom agent, and the fix verifier's
// missed-issue resubmissions funnel through. The returned string is
// one of the four spec section 6 report_issue response forms.
func (o *Orchestrator) submitFunc(
	ctx context.Context,
	fileByPath map[string]*diffmodel.DiffFile,
	ded *dedup.Deduplicator,
	val *validator.Validator,
) func(issue.RawIssue) string {

	return func(raw issue.RawIssue) string {
		if raw.ID == "" {
			raw.ID = o.nextID("issue")
		}

		if keep, reason := validator.FilterStyleIssue(raw, fileByPath[raw.File]); !keep {
			o.emit(ctx, progress.Event{
				Type: progress.EventAgentProgress, Agent: raw.SourceAgent,
				Message: "filtered: " + reason,
			})
			return "filtered: " + reason
		}

		dr := ded.Check(ctx, raw)
		if dr.Decision == dedup.DecisionDuplicate {
			o.emit(ctx, progress.Event{
				Type: progress.EventAgentProgress, Agent: raw.SourceAgent,
				Message: "deduplicated against " + dr.DuplicateOf,
			})
			return "deduplicated: duplicate of " + dr.DuplicateOf
		}

		if vi := val.Enqueue(raw); vi != nil {
			o.emit(ctx, progress.Event{
				Type: progress.EventAgentProgress, Agent: raw.SourceAgent,
				Message: "auto-rejected: " + vi.RejectionReason,
			})
			return "auto-rejected: " + vi.RejectionReason
		}

		return "accepted"
	}
}

// runReviewerAgent drives one built-in reviewer agent (security,
// logic, style, performance) over the full diff in a single ChatJSON
// call and submits every issue it reports. An LLM or parse failure is
// logged and contributes zero issues, per spec section 7's agent
// error handling -- it never aborts the run.
func (o *Orchestrator) runReviewerAgent(
	ctx context.Context, agent issue.SourceAgent, files []*diffmodel.DiffFile,
	standards string, submit func(issue.RawIssue) string,
) {
	o.emit(ctx, progress.Event{Type: progress.EventAgentStart, Agent: agent})

	reply, err := o.askAgent(ctx, reviewerSystemPrompt(agent, standards), files)
	if err != nil {
		o.emit(ctx, progress.Event{
			Type: progress.EventAgentComplete, Agent: agent,
			Err: err, Message: "agent error: " + err.Error(),
		})
		return
	}

	for _, ij := range reply.Issues {
		submit(toRawIssue(ij, agent))
	}

	o.emit(ctx, progress.Event{
		Type: progress.EventAgentComplete, Agent: agent,
		Completed: len(reply.Issues), Total: len(reply.Issues),
	})
}

// runCustomAgent is the same shape as runReviewerAgent for a
// user-defined agent with its own system prompt.
func (o *Orchestrator) runCustomAgent(
	ctx context.Context, ca CustomAgent, files []*diffmodel.DiffFile,
	standards string, submit func(issue.RawIssue) string,
) {
	agent := issue.SourceAgent(ca.Name)
	o.emit(ctx, progress.Event{Type: progress.EventAgentStart, Agent: agent})

	prompt := ca.SystemPrompt
	if standards != "" {
		prompt = prompt + "\n\nProject standards:\n" + standards
	}

	reply, err := o.askAgent(ctx, prompt, files)
	if err != nil {
		o.emit(ctx, progress.Event{
			Type: progress.EventAgentComplete, Agent: agent,
			Err: err, Message: "agent error: " + err.Error(),
		})
		return
	}

	for _, ij := range reply.Issues {
		submit(toRawIssue(ij, agent))
	}

	o.emit(ctx, progress.Event{
		Type: progress.EventAgentComplete, Agent: agent,
		Completed: len(reply.Issues), Total: len(reply.Issues),
	})
}

func (o *Orchestrator) askAgent(
	ctx context.Context, systemPrompt string, files []*diffmodel.DiffFile,
) (agentIssueReply, error) {
	if o.llm == nil {
		return agentIssueReply{}, fmt.Errorf("no LLM collaborator configured")
	}

	var reply agentIssueReply
	err := o.llm.ChatJSON(ctx, systemPrompt, diffPrompt(files), &reply)
	if err != nil {
		return agentIssueReply{}, err
	}
	return reply, nil
}

func diffPrompt(files []*diffmodel.DiffFile) string {
	var b strings.Builder
	b.WriteString("Review the following diff and report issues as JSON matching ")
	b.WriteString(`{"issues":[{"file","lineStart","lineEnd","severity","category",`)
	b.WriteString(`"title","description","confidence"}]}.` + "\n\n")
	for _, f := range files {
		b.WriteString(f.RawPatch)
		b.WriteString("\n")
	}
	return b.String()
}

func reviewerSystemPrompt(agent issue.SourceAgent, standards string) string {
	var focus string
	switch agent {
	case issue.AgentSecurity:
		focus = "security vulnerabilities: injection, auth bypass, secret exposure, unsafe deserialization"
	case issue.AgentLogic:
		focus = "logic errors: incorrect conditionals, off-by-one errors, unhandled edge cases, race conditions"
	case issue.AgentStyle:
		focus = "style and maintainability: naming, formatting, dead code, documentation"
	case issue.AgentPerformance:
		focus = "performance: unnecessary allocations, N+1 queries, blocking calls on hot paths"
	default:
		focus = "general code quality"
	}

	prompt := fmt.Sprintf(
		"You are a code reviewer focused on %s. Report only issues you are "+
			"confident are real problems introduced or exposed by this diff.",
		focus,
	)
	if standards != "" {
		prompt += "\n\nProject standards:\n" + standards
	}
	return prompt
}

func toRawIssue(ij agentIssueJSON, agent issue.SourceAgent) issue.RawIssue {
	return issue.RawIssue{
		File:        ij.File,
		LineStart:   ij.LineStart,
		LineEnd:     ij.LineEnd,
		Category:    toCategory(ij.Category),
		Severity:    toSeverity(ij.Severity),
		Title:       ij.Title,
		Description: ij.Description,
		Suggestion:  ij.Suggestion,
		CodeSnippet: ij.CodeSnippet,
		Confidence:  ij.Confidence,
		SourceAgent: agent,
	}
}

func toSeverity(s string) issue.Severity {
	switch strings.ToLower(s) {
	case "critical":
		return issue.SeverityCritical
	case "error":
		return issue.SeverityError
	case "warning":
		return issue.SeverityWarning
	case "suggestion":
		return issue.SeveritySuggestion
	default:
		return issue.SeverityWarning
	}
}

func toCategory(c string) issue.Category {
	switch strings.ToLower(c) {
	case "security":
		return issue.CategorySecurity
	case "logic":
		return issue.CategoryLogic
	case "performance":
		return issue.CategoryPerformance
	case "style":
		return issue.CategoryStyle
	case "maintainability":
		return issue.CategoryMaintainability
	default:
		return issue.CategoryLogic
	}
}

// Package selector implements the two-tier reviewer-agent selection
// algorithm: a fast rule table over file characteristics, with an LLM
// fallback consulted only when the rule tier's confidence is low.
package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roasbeef/revsentry/internal/diffmodel"
	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
)

// Agent is one of the fixed reviewer personas this selector can choose
// among. fix-verifier is deliberately excluded: it is never selected
// here, only scheduled directly by the orchestrator when prior review
// data is supplied.
type Agent string

const (
	AgentSecurity    Agent = Agent(issue.AgentSecurity)
	AgentLogic       Agent = Agent(issue.AgentLogic)
	AgentStyle       Agent = Agent(issue.AgentStyle)
	AgentPerformance Agent = Agent(issue.AgentPerformance)
)

// Universe is the fixed set of agents the rule and LLM tiers may choose
// from.
var Universe = []Agent{AgentSecurity, AgentLogic, AgentStyle, AgentPerformance}

// FileFlags summarizes file characteristics used by the rule tier.
type FileFlags struct {
	HasSourceCode        bool
	HasOnlyStyles        bool
	HasSecuritySensitive bool
	HasTests             bool
	HasConfig            bool
	HasDocs              bool
	HasDatabase          bool
	HasTemplates         bool

	// CategoryCount is the number of distinct categories touched,
	// used to detect "mixed" diffs that lower rule-tier confidence.
	CategoryCount int
}

// Result is the outcome of Select.
type Result struct {
	Agents   []Agent
	Reasons  map[Agent]string
	UsedLLM  bool
	Confidence float64
}

// Config tunes the selector's behavior.
type Config struct {
	// LLMFallbackThreshold is the rule-tier confidence below which the
	// LLM tier is consulted.
	LLMFallbackThreshold float64

	// DisableLLMFallback forces rule-tier-only selection regardless of
	// confidence, useful for tests and cost-capped runs.
	DisableLLMFallback bool
}

// DefaultConfig returns the spec-mandated default configuration.
func DefaultConfig() Config {
	return Config{LLMFallbackThreshold: 0.8}
}

// ComputeFlags derives FileFlags from a set of parsed diff files.
func ComputeFlags(files []*diffmodel.DiffFile) FileFlags {
	var flags FileFlags
	categories := make(map[diffmodel.Category]struct{})

	for _, f := range files {
		categories[f.Category] = struct{}{}

		switch f.Category {
		case diffmodel.CategorySource:
			flags.HasSourceCode = true
		case diffmodel.CategorySecuritySensitive:
			flags.HasSecuritySensitive = true
			flags.HasSourceCode = true
		case diffmodel.CategoryTest:
			flags.HasTests = true
		case diffmodel.CategoryConfig:
			flags.HasConfig = true
		case diffmodel.CategoryDocs:
			flags.HasDocs = true
		case diffmodel.CategoryDatabase:
			flags.HasDatabase = true
			flags.HasSourceCode = true
		case diffmodel.CategoryTemplate:
			flags.HasTemplates = true
			flags.HasSourceCode = true
		case diffmodel.CategoryStyle:
			// handled below via HasOnlyStyles
		}
	}

	flags.CategoryCount = len(categories)
	flags.HasOnlyStyles = flags.CategoryCount == 1 && !flags.HasSourceCode &&
		!flags.HasTests && !flags.HasConfig && !flags.HasDocs &&
		!flags.HasDatabase && !flags.HasTemplates

	return flags
}

// ruleTier applies the fixed rule table from spec section 4.B. It
// returns the chosen agents, a reason string per agent, and a
// confidence in [0,1].
func ruleTier(flags FileFlags) ([]Agent, map[Agent]string, float64) {
	agents := make(map[Agent]struct{})
	reasons := make(map[Agent]string)
	confidence := 1.0

	add := func(a Agent, reason string) {
		agents[a] = struct{}{}
		reasons[a] = reason
	}

	switch {
	case flags.HasSecuritySensitive:
		add(AgentSecurity, "security-sensitive file touched")
	case flags.HasDatabase:
		add(AgentSecurity, "database/migration file touched")
	case flags.HasTemplates:
		add(AgentSecurity, "template file touched (injection surface)")
	case flags.HasConfig:
		add(AgentSecurity, "config file touched (lower confidence fallback)")
		confidence -= 0.2
	}

	if flags.HasSourceCode {
		add(AgentLogic, "source code changed")
		add(AgentPerformance, "source code changed")
	}

	if flags.HasSourceCode || !flags.HasOnlyStyles {
		add(AgentStyle, "non-style-only changes present")
	} else {
		add(AgentStyle, "style-only diff")
	}

	if flags.HasOnlyStyles {
		confidence -= 0.25
	}
	if flags.HasDocs && flags.CategoryCount == 1 {
		add(AgentStyle, "docs-only diff")
		confidence -= 0.3
	}
	if flags.CategoryCount >= 3 {
		confidence -= 0.2
	}
	if len(agents) == 0 {
		add(AgentStyle, "no stronger signal, defaulting to style review")
		confidence -= 0.4
	}

	confidence = clamp01(confidence)

	out := make([]Agent, 0, len(agents))
	for a := range agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out, reasons, confidence
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// llmSelection is the structured reply requested from the LLM tier.
type llmSelection struct {
	Agents []string `json:"agents"`
	Reason string   `json:"reason"`
}

// Select runs the two-tier selection algorithm over the given diff
// files.
func Select(
	ctx context.Context, files []*diffmodel.DiffFile, client llmclient.Client,
	cfg Config,
) (Result, error) {

	flags := ComputeFlags(files)
	agents, reasons, confidence := ruleTier(flags)

	result := Result{
		Agents:     agents,
		Reasons:    reasons,
		Confidence: confidence,
	}

	if cfg.DisableLLMFallback || confidence >= cfg.LLMFallbackThreshold || client == nil {
		return result, nil
	}

	llmAgents, err := consultLLM(ctx, client, files, flags, agents)
	if err != nil {
		// Per spec 4.B: any LLM-tier error returns the rule-tier
		// result unchanged.
		return result, nil
	}

	result.Agents = llmAgents
	result.UsedLLM = true
	for _, a := range llmAgents {
		if _, ok := result.Reasons[a]; !ok {
			result.Reasons[a] = "selected by LLM fallback"
		}
	}

	return result, nil
}

func consultLLM(
	ctx context.Context, client llmclient.Client, files []*diffmodel.DiffFile,
	flags FileFlags, proposal []Agent,
) ([]Agent, error) {

	var sb strings.Builder
	fmt.Fprintf(&sb, "Files changed (%d):\n", len(files))
	for _, f := range files {
		fmt.Fprintf(&sb, "- %s (%s)\n", f.Path, f.Category)
	}
	fmt.Fprintf(&sb, "\nFlags: %+v\n", flags)
	fmt.Fprintf(&sb, "Rule-tier proposal: %v\n", proposal)
	sb.WriteString("\nWhich reviewer agents from {security-reviewer, " +
		"logic-reviewer, style-reviewer, performance-reviewer} should " +
		"run? Reply with JSON {\"agents\": [...], \"reason\": \"...\"}.")

	var sel llmSelection
	if err := client.ChatJSON(
		ctx, agentSelectionSystemPrompt, sb.String(), &sel,
	); err != nil {
		return nil, err
	}

	valid := make(map[Agent]struct{}, len(Universe))
	for _, a := range Universe {
		valid[a] = struct{}{}
	}

	out := make([]Agent, 0, len(sel.Agents))
	for _, raw := range sel.Agents {
		a := Agent(raw)
		if _, ok := valid[a]; ok {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("LLM selection contained no valid agents")
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

const agentSelectionSystemPrompt = `You route a code diff to the ` +
	`reviewer agents best suited to it. Only choose from the fixed ` +
	`agent universe. Prefer fewer agents when the diff is narrow in ` +
	`scope.`

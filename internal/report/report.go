// Package report formats an assembled issue.Report into the output
// forms spec section 6 names: full and evidence-stripped JSON,
// Markdown grouped by severity, a short CLI summary, and per-issue
// PR-comment objects.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/roasbeef/revsentry/internal/issue"
)

// evidenceDTO is the wire shape of issue.Evidence.
type evidenceDTO struct {
	CheckedFiles   []string `json:"checkedFiles,omitempty"`
	CheckedSymbols []string `json:"checkedSymbols,omitempty"`
	RelatedContext string   `json:"relatedContext,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`
}

// issueDTO is the wire shape of one issue.ValidatedIssue for the full
// JSON report. Stripped JSON reuses this shape with Evidence omitted.
type issueDTO struct {
	ID              string       `json:"id"`
	File            string       `json:"file"`
	LineStart       int          `json:"lineStart"`
	LineEnd         int          `json:"lineEnd"`
	Severity        issue.Severity `json:"severity"`
	Category        issue.Category `json:"category"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Suggestion      string       `json:"suggestion,omitempty"`
	CodeSnippet     string       `json:"codeSnippet,omitempty"`
	Confidence      float64      `json:"confidence"`
	SourceAgent     issue.SourceAgent `json:"sourceAgent"`
	Status          issue.Status `json:"status"`
	FinalConfidence float64      `json:"finalConfidence"`
	RejectionReason string       `json:"rejectionReason,omitempty"`
	RevisedSeverity issue.Severity `json:"revisedSeverity,omitempty"`
	Evidence        *evidenceDTO `json:"evidence,omitempty"`
}

type checklistDTO struct {
	Label   string `json:"label"`
	Passed  bool   `json:"passed"`
	Details string `json:"details,omitempty"`
}

type metricsDTO struct {
	TotalScanned  int `json:"totalScanned"`
	Confirmed     int `json:"confirmed"`
	Rejected      int `json:"rejected"`
	Uncertain     int `json:"uncertain"`
	Deduplicated  int `json:"deduplicated"`
	AutoRejected  int `json:"autoRejected"`
	FilesReviewed int `json:"filesReviewed"`
	LinesAnalyzed int `json:"linesAnalyzed"`
}

type metadataDTO struct {
	ReviewID    string              `json:"reviewId,omitempty"`
	StartedAt   string              `json:"startedAt"`
	CompletedAt string              `json:"completedAt"`
	TokensUsed  int64               `json:"tokensUsed"`
	AgentsUsed  []issue.SourceAgent `json:"agentsUsed"`
}

type fixVerificationDTO struct {
	OriginalID          string             `json:"originalId"`
	Status              issue.FixStatus    `json:"status"`
	Confidence          float64            `json:"confidence"`
	FalsePositiveReason string             `json:"falsePositiveReason,omitempty"`
}

type fixSummaryDTO struct {
	Verifications []fixVerificationDTO       `json:"verifications"`
	ByStatus      map[issue.FixStatus]int    `json:"byStatus"`
}

type reportDTO struct {
	Summary   string         `json:"summary"`
	RiskLevel issue.RiskLevel `json:"riskLevel"`
	Issues    []issueDTO     `json:"issues"`
	Checklist []checklistDTO `json:"checklist,omitempty"`
	Metrics   metricsDTO     `json:"metrics"`
	Metadata  metadataDTO    `json:"metadata"`
	FixVerify *fixSummaryDTO `json:"fixVerify,omitempty"`
}

// PRComment is one issue rendered as a per-line PR review comment.
type PRComment struct {
	ID          string            `json:"id"`
	File        string            `json:"file"`
	LineStart   int               `json:"lineStart"`
	LineEnd     int               `json:"lineEnd"`
	Severity    issue.Severity    `json:"severity"`
	Category    issue.Category    `json:"category"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Confidence  int               `json:"confidence"`
	SourceAgent issue.SourceAgent `json:"sourceAgent"`
}

func toIssueDTO(vi issue.ValidatedIssue, withEvidence bool) issueDTO {
	dto := issueDTO{
		ID:              vi.ID,
		File:            vi.File,
		LineStart:       vi.LineStart,
		LineEnd:         vi.LineEnd,
		Severity:        vi.Severity,
		Category:        vi.Category,
		Title:           vi.Title,
		Description:     vi.EffectiveDescription(),
		Suggestion:      vi.Suggestion,
		CodeSnippet:     vi.CodeSnippet,
		Confidence:      vi.Confidence,
		SourceAgent:     vi.SourceAgent,
		Status:          vi.Status,
		FinalConfidence: vi.FinalConfidence,
		RejectionReason: vi.RejectionReason,
		RevisedSeverity: vi.RevisedSeverity,
	}
	if withEvidence {
		dto.Evidence = &evidenceDTO{
			CheckedFiles:   vi.Evidence.CheckedFiles,
			CheckedSymbols: vi.Evidence.CheckedSymbols,
			RelatedContext: vi.Evidence.RelatedContext,
			Reasoning:      vi.Evidence.Reasoning,
		}
	}
	return dto
}

func toDTO(r issue.Report, withEvidence bool) reportDTO {
	dto := reportDTO{
		Summary:   r.Summary,
		RiskLevel: r.RiskLevel,
		Metrics: metricsDTO{
			TotalScanned:  r.Metrics.TotalScanned,
			Confirmed:     r.Metrics.Confirmed,
			Rejected:      r.Metrics.Rejected,
			Uncertain:     r.Metrics.Uncertain,
			Deduplicated:  r.Metrics.Deduplicated,
			AutoRejected:  r.Metrics.AutoRejected,
			FilesReviewed: r.Metrics.FilesReviewed,
			LinesAnalyzed: r.Metrics.LinesAnalyzed,
		},
		Metadata: metadataDTO{
			ReviewID:    r.Metadata.ReviewID,
			StartedAt:   r.Metadata.StartedAt.Format(timeLayout),
			CompletedAt: r.Metadata.CompletedAt.Format(timeLayout),
			TokensUsed:  r.Metadata.TokensUsed,
			AgentsUsed:  r.Metadata.AgentsUsed,
		},
	}

	for _, vi := range r.Issues {
		dto.Issues = append(dto.Issues, toIssueDTO(vi, withEvidence))
	}
	for _, c := range r.Checklist {
		dto.Checklist = append(dto.Checklist, checklistDTO{
			Label: c.Label, Passed: c.Passed, Details: c.Details,
		})
	}
	if r.FixVerify != nil {
		fv := &fixSummaryDTO{ByStatus: r.FixVerify.ByStatus}
		for _, v := range r.FixVerify.Verifications {
			fv.Verifications = append(fv.Verifications, fixVerificationDTO{
				OriginalID:          v.OriginalID,
				Status:              v.Status,
				Confidence:          v.Confidence,
				FalsePositiveReason: v.FalsePositiveReason,
			})
		}
		dto.FixVerify = fv
	}

	return dto
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FullJSON renders the report with every evidence field intact.
func FullJSON(r issue.Report) ([]byte, error) {
	return json.MarshalIndent(toDTO(r, true), "", "  ")
}

// StrippedJSON renders the report with validator evidence omitted, for
// callers (PR bots, dashboards) that only need the verdicts.
func StrippedJSON(r issue.Report) ([]byte, error) {
	return json.MarshalIndent(toDTO(r, false), "", "  ")
}

var severityOrder = []issue.Severity{
	issue.SeverityCritical, issue.SeverityError,
	issue.SeverityWarning, issue.SeveritySuggestion,
}

// Markdown renders the report as Markdown, confirmed issues grouped by
// severity in the fixed critical -> error -> warning -> suggestion
// order.
func Markdown(r issue.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Review report\n\n")
	fmt.Fprintf(&b, "**Risk level:** %s\n\n", strings.ToUpper(string(r.RiskLevel)))
	fmt.Fprintf(&b, "%s\n\n", r.Summary)

	fmt.Fprintf(&b, "| Metric | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Confirmed | %d |\n", r.Metrics.Confirmed)
	fmt.Fprintf(&b, "| Rejected | %d |\n", r.Metrics.Rejected)
	fmt.Fprintf(&b, "| Uncertain | %d |\n", r.Metrics.Uncertain)
	fmt.Fprintf(&b, "| Deduplicated | %d |\n", r.Metrics.Deduplicated)
	fmt.Fprintf(&b, "| Files reviewed | %d |\n\n", r.Metrics.FilesReviewed)

	bySeverity := make(map[issue.Severity][]issue.ValidatedIssue)
	for _, vi := range r.Issues {
		if vi.Status != issue.StatusConfirmed {
			continue
		}
		sev := vi.EffectiveSeverity()
		bySeverity[sev] = append(bySeverity[sev], vi)
	}

	for _, sev := range severityOrder {
		group := bySeverity[sev]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].File != group[j].File {
				return group[i].File < group[j].File
			}
			return group[i].LineStart < group[j].LineStart
		})

		fmt.Fprintf(&b, "## %s\n\n", capitalize(string(sev)))
		for _, vi := range group {
			fmt.Fprintf(&b, "- **%s:%d-%d** %s (%s, confidence %.0f%%)\n\n  %s\n\n",
				vi.File, vi.LineStart, vi.LineEnd, vi.Title, vi.Category,
				vi.FinalConfidence*100, vi.EffectiveDescription())
			if vi.Suggestion != "" {
				fmt.Fprintf(&b, "  *Suggestion:* %s\n\n", vi.Suggestion)
			}
		}
	}

	if len(r.Checklist) > 0 {
		fmt.Fprintf(&b, "## Checklist\n\n")
		for _, c := range r.Checklist {
			mark := "x"
			if !c.Passed {
				mark = " "
			}
			fmt.Fprintf(&b, "- [%s] %s", mark, c.Label)
			if c.Details != "" {
				fmt.Fprintf(&b, " — %s", c.Details)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// MarkdownHTML renders the report to HTML via goldmark, falling back
// to escaped plain text if the Markdown fails to convert.
func MarkdownHTML(r issue.Report) string {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	src := Markdown(r)
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return template.HTMLEscapeString(src)
	}
	return buf.String()
}

// Summary renders a short plain-text summary suitable for a CLI's
// final line of output.
func Summary(r issue.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "risk=%s confirmed=%d rejected=%d uncertain=%d deduplicated=%d files=%d\n",
		r.RiskLevel, r.Metrics.Confirmed, r.Metrics.Rejected, r.Metrics.Uncertain,
		r.Metrics.Deduplicated, r.Metrics.FilesReviewed)

	counts := make(map[issue.Severity]int)
	for _, vi := range r.Issues {
		if vi.Status == issue.StatusConfirmed {
			counts[vi.EffectiveSeverity()]++
		}
	}
	for _, sev := range severityOrder {
		if n := counts[sev]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", sev, n)
		}
	}
	return b.String()
}

// PRComments converts every confirmed issue into a per-line PR-comment
// object, per spec section 6.
func PRComments(r issue.Report) []PRComment {
	var out []PRComment
	for _, vi := range r.Issues {
		if vi.Status != issue.StatusConfirmed {
			continue
		}
		body := vi.EffectiveDescription()
		if vi.Suggestion != "" {
			body += "\n\nSuggestion: " + vi.Suggestion
		}
		out = append(out, PRComment{
			ID:          vi.ID,
			File:        vi.File,
			LineStart:   vi.LineStart,
			LineEnd:     vi.LineEnd,
			Severity:    vi.EffectiveSeverity(),
			Category:    vi.Category,
			Title:       vi.Title,
			Body:        body,
			Confidence:  int(vi.FinalConfidence*100 + 0.5),
			SourceAgent: vi.SourceAgent,
		})
	}
	return out
}

// Package mcptools exposes the report_issue tool endpoint described
// in spec section 6: the single interface reviewer agents call back
// into to submit findings. It is registered on an MCP server the same
// way a tool-registering mail server wires up its own callback tools,
// and funnels every call through the same style-filter -> dedup ->
// validator pipeline internal/orchestrator drives for its own
// single-shot agent replies.
package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/revsentry/internal/dedup"
	"github.com/roasbeef/revsentry/internal/diffmodel"
	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/validator"
)

// ReportIssueArgs are the report_issue tool's parameters, per spec
// section 6. File, LineStart, LineEnd, Severity, Category, Title,
// Description, and Confidence are required; Suggestion and
// CodeSnippet are optional.
type ReportIssueArgs struct {
	File        string  `json:"file" jsonschema:"Path of the file the issue is in"`
	LineStart   int     `json:"lineStart" jsonschema:"First line of the affected range"`
	LineEnd     int     `json:"lineEnd" jsonschema:"Last line of the affected range"`
	Severity    string  `json:"severity" jsonschema:"One of: critical, error, warning, suggestion"`
	Category    string  `json:"category" jsonschema:"One of: security, logic, performance, style, maintainability"`
	Title       string  `json:"title" jsonschema:"Short one-line issue title"`
	Description string  `json:"description" jsonschema:"Full explanation of the issue"`
	Suggestion  string  `json:"suggestion,omitempty" jsonschema:"Optional suggested fix"`
	CodeSnippet string  `json:"codeSnippet,omitempty" jsonschema:"Optional snippet illustrating the issue"`
	Confidence  float64 `json:"confidence" jsonschema:"Reporting agent's confidence in [0,1]"`
}

// ReportIssueResult is the tool's acknowledgement, one of the four
// response forms from spec section 6: accepted, auto-rejected,
// deduplicated, or filtered.
type ReportIssueResult struct {
	Status string `json:"status"`
}

// Pipeline is the style-filter -> dedup -> validator funnel every
// report_issue call passes through, scoped to one review run's diff
// context, deduplicator, and validator.
type Pipeline struct {
	FileByPath map[string]*diffmodel.DiffFile
	Dedup      *dedup.Deduplicator
	Validator  *validator.Validator

	nextID func() string
}

// NewPipeline builds a Pipeline bound to one run's diff context.
func NewPipeline(
	files []*diffmodel.DiffFile, ded *dedup.Deduplicator, val *validator.Validator,
	nextID func() string,
) *Pipeline {

	fileByPath := make(map[string]*diffmodel.DiffFile, len(files))
	for _, f := range files {
		fileByPath[f.Path] = f
	}

	return &Pipeline{
		FileByPath: fileByPath,
		Dedup:      ded,
		Validator:  val,
		nextID:     nextID,
	}
}

// Submit runs raw through the filter/dedup/validator pipeline and
// returns one of the four acknowledgement forms.
func (p *Pipeline) Submit(ctx context.Context, raw issue.RawIssue) ReportIssueResult {
	if raw.ID == "" && p.nextID != nil {
		raw.ID = p.nextID()
	}

	if keep, reason := validator.FilterStyleIssue(raw, p.FileByPath[raw.File]); !keep {
		return ReportIssueResult{Status: "filtered: " + reason}
	}

	dr := p.Dedup.Check(ctx, raw)
	if dr.Decision == dedup.DecisionDuplicate {
		return ReportIssueResult{Status: "deduplicated: duplicate of " + dr.DuplicateOf}
	}

	if vi := p.Validator.Enqueue(raw); vi != nil {
		return ReportIssueResult{Status: "auto-rejected: " + vi.RejectionReason}
	}

	return ReportIssueResult{Status: "accepted"}
}

func toRawIssue(args ReportIssueArgs) issue.RawIssue {
	return issue.RawIssue{
		File:        args.File,
		LineStart:   args.LineStart,
		LineEnd:     args.LineEnd,
		Severity:    toSeverity(args.Severity),
		Category:    toCategory(args.Category),
		Title:       args.Title,
		Description: args.Description,
		Suggestion:  args.Suggestion,
		CodeSnippet: args.CodeSnippet,
		Confidence:  args.Confidence,
	}
}

func toSeverity(s string) issue.Severity {
	switch issue.Severity(s) {
	case issue.SeverityCritical, issue.SeverityError,
		issue.SeverityWarning, issue.SeveritySuggestion:
		return issue.Severity(s)
	default:
		return issue.SeverityWarning
	}
}

func toCategory(c string) issue.Category {
	switch issue.Category(c) {
	case issue.CategorySecurity, issue.CategoryLogic, issue.CategoryPerformance,
		issue.CategoryStyle, issue.CategoryMaintainability:
		return issue.Category(c)
	default:
		return issue.CategoryLogic
	}
}

// Server wraps an MCP server with the report_issue tool registered
// against a Pipeline, a thin wrapper in the same shape as an
// mcp.Server wrapping a handful of callback tools.
type Server struct {
	server   *mcp.Server
	pipeline *Pipeline
}

// NewServer builds an MCP server exposing report_issue against
// pipeline.
func NewServer(pipeline *Pipeline) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "revsentry",
		Version: "0.1.0",
	}, nil)

	s := &Server{server: mcpServer, pipeline: pipeline}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "report_issue",
		Description: "Report a code review issue found in the current diff",
	}, s.handleReportIssue)
}

// Run starts the MCP server on transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func (s *Server) handleReportIssue(
	ctx context.Context, req *mcp.CallToolRequest, args ReportIssueArgs,
) (*mcp.CallToolResult, ReportIssueResult, error) {

	result := s.pipeline.Submit(ctx, toRawIssue(args))
	return nil, result, nil
}

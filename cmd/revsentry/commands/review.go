package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roasbeef/revsentry/internal/diffmodel"
	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/orchestrator"
	"github.com/roasbeef/revsentry/internal/progress"
	"github.com/roasbeef/revsentry/internal/workspace"
)

var (
	// runSourceRef and runTargetRef bound the diff `review run` sends
	// through the pipeline.
	runSourceRef string
	runTargetRef string

	// runBudget is the wall-clock budget for one review run; zero
	// means no timeout.
	runBudget time.Duration

	// runMaxAgents caps concurrent reviewer/custom agents.
	runMaxAgents int

	// diffFile is the unified-diff source for `review diff`; "-" reads
	// stdin.
	diffFile string

	// diffShowContext prints each changed file's full content (through
	// --cache) alongside the report.
	diffShowContext bool

	// fixPrevious points at a json-full report from a prior run,
	// supplying the issues `review fix-verify` reclassifies.
	fixPrevious string

	// fixSourceRef and fixTargetRef bound the new diff checked against
	// the previous review's issues.
	fixSourceRef string
	fixTargetRef string
)

// reviewCmd is the parent command for review operations.
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review operations",
	Long:  `Run a code review, review an externally supplied diff, or verify fixes from a prior review.`,
}

var reviewRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Review the diff between two refs",
	Long:  `Fetch the diff between --source and --target in --repo and run the full agent pipeline against it.`,
	RunE:  runReviewRun,
}

var reviewDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Review an externally supplied unified diff",
	Long:  `Run the full agent pipeline against a unified diff read from --diff-file (or stdin with "-"), bypassing ref resolution.`,
	RunE:  runReviewDiff,
}

var reviewFixVerifyCmd = &cobra.Command{
	Use:   "fix-verify",
	Short: "Reclassify a prior review's issues against a new diff",
	Long:  `Load a prior run's json-full report via --previous and check whether each confirmed issue was fixed, is still present, or no longer applies in the diff between --source and --target.`,
	RunE:  runReviewFixVerify,
}

func init() {
	reviewRunCmd.Flags().StringVar(&runSourceRef, "source", "HEAD~1", "Source ref (diff base)")
	reviewRunCmd.Flags().StringVar(&runTargetRef, "target", "HEAD", "Target ref (diff head)")
	reviewRunCmd.Flags().DurationVar(&runBudget, "budget", 0, "Wall-clock budget for the run (0 = no timeout)")
	reviewRunCmd.Flags().IntVar(&runMaxAgents, "max-agents", 0, "Max concurrent agents (0 = orchestrator default)")

	reviewDiffCmd.Flags().StringVar(&diffFile, "diff-file", "-", `Unified diff file, or "-" for stdin`)
	reviewDiffCmd.Flags().DurationVar(&runBudget, "budget", 0, "Wall-clock budget for the run (0 = no timeout)")
	reviewDiffCmd.Flags().BoolVar(&diffShowContext, "show-context", false,
		"Print each changed file's full content (read through --cache) before the report")

	reviewFixVerifyCmd.Flags().StringVar(&fixPrevious, "previous", "", "Path to a prior json-full report")
	reviewFixVerifyCmd.Flags().StringVar(&fixSourceRef, "source", "HEAD~1", "Source ref (diff base)")
	reviewFixVerifyCmd.Flags().StringVar(&fixTargetRef, "target", "HEAD", "Target ref (diff head)")
	reviewFixVerifyCmd.MarkFlagRequired("previous")

	reviewCmd.AddCommand(reviewRunCmd)
	reviewCmd.AddCommand(reviewDiffCmd)
	reviewCmd.AddCommand(reviewFixVerifyCmd)
}

func runReviewRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	agents, standards, err := loadCustomAgents(repoPath)
	if err != nil {
		return err
	}

	in := orchestrator.Input{
		Diff: orchestrator.DiffSource{
			RepoPath:  repoPath,
			SourceRef: runSourceRef,
			TargetRef: runTargetRef,
		},
		ProjectStandards: standards,
		CustomAgents:     agents,
	}

	rpt, err := runOrchestrator(ctx, in)
	if err != nil {
		return err
	}

	if outputFormat == "text" {
		if branch := currentBranch(repoPath); branch != "" {
			fmt.Printf("reviewing %s against %s (branch %s)\n", runTargetRef, runSourceRef, branch)
		}
	}

	if err := printReport(rpt); err != nil {
		return err
	}
	setExitCodeFromRisk(rpt)
	return nil
}

func runReviewDiff(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	diffText, err := readDiffInput(diffFile)
	if err != nil {
		return fmt.Errorf("reading diff: %w", err)
	}

	if diffShowContext {
		if err := printFileContext(ctx, diffText); err != nil {
			fmt.Fprintln(os.Stderr, "show-context: "+err.Error())
		}
	}

	agents, standards, err := loadCustomAgents(repoPath)
	if err != nil {
		return err
	}

	in := orchestrator.Input{
		Diff: orchestrator.DiffSource{
			RepoPath:     repoPath,
			ExternalDiff: diffText,
		},
		ProjectStandards: standards,
		CustomAgents:     agents,
	}

	rpt, err := runOrchestrator(ctx, in)
	if err != nil {
		return err
	}

	if err := printReport(rpt); err != nil {
		return err
	}
	setExitCodeFromRisk(rpt)
	return nil
}

func runReviewFixVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	prev, err := loadPreviousReview(fixPrevious, fixSourceRef, fixTargetRef)
	if err != nil {
		return fmt.Errorf("loading previous report %s: %w", fixPrevious, err)
	}

	agents, standards, err := loadCustomAgents(repoPath)
	if err != nil {
		return err
	}

	in := orchestrator.Input{
		Diff: orchestrator.DiffSource{
			RepoPath:  repoPath,
			SourceRef: fixSourceRef,
			TargetRef: fixTargetRef,
		},
		ProjectStandards: standards,
		CustomAgents:     agents,
		PreviousReview:   &prev,
	}

	rpt, err := runOrchestrator(ctx, in)
	if err != nil {
		return err
	}

	if err := printReport(rpt); err != nil {
		return err
	}
	setExitCodeFromRisk(rpt)
	return nil
}

// printFileContext prints the current full content of every file
// touched by diffText, reading each file through the cache opened from
// --cache. The cache lives only for this call: Close removes a
// file-backed database, so nothing carries over to a later run.
func printFileContext(ctx context.Context, diffText string) error {
	files, err := diffmodel.Parse(diffText, repoPath)
	if err != nil {
		return fmt.Errorf("parsing diff: %w", err)
	}

	c, err := openCache()
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer c.Close()

	ws := workspace.Existing(repoPath)
	for _, f := range files {
		content, err := ws.ReadFileCached(ctx, c, f.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "show-context: %s: %v\n", f.Path, err)
			continue
		}
		fmt.Printf("--- %s ---\n%s\n", f.Path, content)
	}
	return nil
}

// runOrchestrator wires up the LLM client, cache, and progress observer
// shared by every review subcommand and runs one pipeline pass.
func runOrchestrator(ctx context.Context, in orchestrator.Input) (issue.Report, error) {
	c, err := openCache()
	if err != nil {
		return issue.Report{}, fmt.Errorf("opening cache: %w", err)
	}
	defer c.Close()

	llm := buildLLMClient()
	obs := progress.NewLogObserver(log)
	orch := orchestrator.New(llm, obs)

	cfg := orchestrator.DefaultConfig()
	cfg.Budget = runBudget
	if runMaxAgents > 0 {
		cfg.MaxConcurrentAgents = runMaxAgents
	}

	return orch.Run(ctx, in, cfg)
}

// previousReportDTO is the subset of report.FullJSON's shape needed to
// reconstruct issue.PreviousReviewData for fix verification.
type previousReportDTO struct {
	Issues []struct {
		ID          string `json:"id"`
		File        string `json:"file"`
		LineStart   int    `json:"lineStart"`
		LineEnd     int    `json:"lineEnd"`
		Severity    string `json:"severity"`
		Category    string `json:"category"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Status      string `json:"status"`
	} `json:"issues"`
}

// loadPreviousReview reads a json-full report from path and keeps only
// its confirmed issues, per spec section 4.E: only confirmed findings
// from the prior run are worth reclassifying.
func loadPreviousReview(path, source, target string) (issue.PreviousReviewData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return issue.PreviousReviewData{}, err
	}

	var dto previousReportDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return issue.PreviousReviewData{}, fmt.Errorf("parsing report: %w", err)
	}

	prev := issue.PreviousReviewData{Source: source, Target: target}
	for _, i := range dto.Issues {
		if i.Status != string(issue.StatusConfirmed) {
			continue
		}
		prev.Issues = append(prev.Issues, issue.PreviousIssue{
			ID:          i.ID,
			File:        i.File,
			LineStart:   i.LineStart,
			LineEnd:     i.LineEnd,
			Category:    issue.Category(i.Category),
			Severity:    issue.Severity(i.Severity),
			Title:       i.Title,
			Description: i.Description,
		})
	}
	return prev, nil
}

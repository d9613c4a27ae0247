package commands

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog/v2"
	"github.com/spf13/cobra"

	"github.com/roasbeef/revsentry/internal/cache"
	"github.com/roasbeef/revsentry/internal/logutil"
	"github.com/roasbeef/revsentry/internal/orchestrator"
	"github.com/roasbeef/revsentry/internal/ruleconfig"
	"github.com/roasbeef/revsentry/internal/workspace"
)

var (
	// repoPath is the repository root operated on.
	repoPath string

	// cachePath is the on-disk cache database. Empty uses a disposable
	// in-memory cache scoped to this process.
	cachePath string

	// rulesPath points at an optional ruleconfig YAML file.
	rulesPath string

	// model names the LLM model used for every agent in the run.
	model string

	// outputFormat controls report rendering: text, json, json-full,
	// markdown, html.
	outputFormat string

	// verbose enables structured logging to stderr for the packages
	// initLogging wires (cache, orchestrator, ruleconfig, workspace and
	// this package).
	verbose bool
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "revsentry",
	Short: "Multi-agent LLM code review orchestrator",
	Long: `revsentry reviews a diff with a fan-out of specialized LLM reviewer
agents, deduplicates and validates their findings, and reports the
result as JSON, Markdown, or a short summary.`,
}

// exitCode is set by a subcommand's RunE before returning, and read by
// Execute once cobra has finished. It lets a successful run still
// signal a risk-derived non-zero status per spec section 6 without
// cobra treating it as a command error.
var exitCode int

// Execute runs the CLI and returns the process exit code: 0 if the
// review's risk level is not high, 1 if it is high, 2 on a fatal error
// (bad arguments, unresolvable diff, orchestrator failure).
func Execute() int {
	cobra.OnInitialize(initLogging)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return exitCode
}

// initLogging wires a console btclog logger into the cache,
// orchestrator, ruleconfig and workspace packages and this package's
// own log when --verbose is set. The actor, api/grpc and mcptools
// packages also expose UseLogger but are not wired here, so they stay
// at their default (disabled), as every package does without --verbose.
func initLogging() {
	if !verbose {
		return
	}

	handler := btclog.NewDefaultHandler(os.Stderr)
	l := logutil.New(btclog.NewSLogger(handler))

	cache.UseLogger(l)
	orchestrator.UseLogger(l)
	ruleconfig.UseLogger(l)
	workspace.UseLogger(l)
	log = l
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&repoPath, "repo", ".",
		"Repository root to review",
	)
	rootCmd.PersistentFlags().StringVar(
		&cachePath, "cache", "",
		"Path to the file-read/session cache database (default: disposable in-memory)",
	)
	rootCmd.PersistentFlags().StringVar(
		&rulesPath, "rules", "",
		"Path to a ruleconfig YAML file of project standards, custom agents, and custom rules",
	)
	rootCmd.PersistentFlags().StringVar(
		&model, "model", "",
		"LLM model to use (default: llmclient.DefaultConfig's model)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Report format: text, json, json-full, markdown, html",
	)
	rootCmd.PersistentFlags().BoolVar(
		&verbose, "verbose", false,
		"Log pipeline progress to stderr",
	)

	rootCmd.AddCommand(reviewCmd)
}

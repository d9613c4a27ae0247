package commands

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/roasbeef/revsentry/internal/cache"
	"github.com/roasbeef/revsentry/internal/issue"
	"github.com/roasbeef/revsentry/internal/llmclient"
	"github.com/roasbeef/revsentry/internal/orchestrator"
	"github.com/roasbeef/revsentry/internal/report"
	"github.com/roasbeef/revsentry/internal/ruleconfig"
)

// buildLLMClient constructs the production SDK client, honoring the
// --model persistent flag.
func buildLLMClient() llmclient.Client {
	cfg := llmclient.DefaultConfig()
	if model != "" {
		cfg.Model = model
	}
	return llmclient.NewSDKClient(cfg)
}

// loadCustomAgents resolves --rules, if set, into orchestrator custom
// agents plus any project-standards text to fold into the run.
func loadCustomAgents(repoRoot string) ([]orchestrator.CustomAgent, string, error) {
	if rulesPath == "" {
		return nil, "", nil
	}

	cfg, err := ruleconfig.Load(rulesPath, repoRoot)
	if err != nil {
		return nil, "", fmt.Errorf("loading rules %s: %w", rulesPath, err)
	}

	defs := cfg.ToCustomAgents()
	agents := make([]orchestrator.CustomAgent, 0, len(defs))
	for _, d := range defs {
		agents = append(agents, orchestrator.CustomAgent{
			Name:         d.Name,
			SystemPrompt: d.SystemPrompt,
			FilePattern:  d.FilePattern,
		})
	}
	return agents, cfg.ProjectStandards, nil
}

// openCache opens the --cache database, or a disposable in-memory one
// if unset.
func openCache() (*cache.Cache, error) {
	return cache.Open(cachePath)
}

// printReport renders r per --format and writes it to stdout.
func printReport(r issue.Report) error {
	switch outputFormat {
	case "json":
		data, err := report.StrippedJSON(r)
		if err != nil {
			return err
		}
		fmt.Println(string(data))

	case "json-full":
		data, err := report.FullJSON(r)
		if err != nil {
			return err
		}
		fmt.Println(string(data))

	case "markdown":
		fmt.Println(report.Markdown(r))

	case "html":
		fmt.Println(report.MarkdownHTML(r))

	default:
		fmt.Println(report.Summary(r))
	}
	return nil
}

// setExitCodeFromRisk records the process exit code per spec section 6:
// 1 if the review's risk level is high, 0 otherwise. Call sites that
// hit a fatal error before a report exists should return the error
// directly instead, which Execute maps to exit code 2.
func setExitCodeFromRisk(r issue.Report) {
	if r.RiskLevel == issue.RiskHigh {
		exitCode = 1
		return
	}
	exitCode = 0
}

// currentBranch shells out to git to derive the active branch for
// display.
func currentBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// readDiffInput reads diff text from path, or from stdin when path is
// "-".
func readDiffInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

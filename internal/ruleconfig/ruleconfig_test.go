package ruleconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesCustomAgentsAndRules(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "revsentry.yaml", `
custom_agents:
  - name: api-guard
    system_prompt: "Check API handlers for missing auth checks."
    file_pattern: "api/*.go"
custom_rules:
  - name: no-todo
    description: "code must not contain TODO comments"
    file_pattern: "**/*.go"
    severity: suggestion
`)

	cfg, err := Load(cfgPath, dir)
	require.NoError(t, err)
	require.Len(t, cfg.CustomAgents, 1)
	require.Len(t, cfg.CustomRules, 1)

	agents := cfg.ToCustomAgents()
	require.Len(t, agents, 2)
	require.Equal(t, "api-guard", agents[0].Name)
	require.Equal(t, "no-todo", agents[1].Name)
	require.Contains(t, agents[1].SystemPrompt, "code must not contain TODO comments")
	require.Contains(t, agents[1].SystemPrompt, "suggestion")
}

func TestLoadResolvesProjectStandardsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "STANDARDS.md", "Use early returns over nested ifs.")
	cfgPath := writeFile(t, dir, "revsentry.yaml", `
project_standards: "Inline prefix."
project_standards_file: "STANDARDS.md"
`)

	cfg, err := Load(cfgPath, dir)
	require.NoError(t, err)
	require.Contains(t, cfg.ProjectStandards, "Inline prefix.")
	require.Contains(t, cfg.ProjectStandards, "Use early returns over nested ifs.")
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "revsentry.yaml", `
custom_agents:
  - name: dup
    system_prompt: "a"
custom_rules:
  - name: dup
    description: "b"
`)

	_, err := Load(cfgPath, dir)
	require.Error(t, err)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "revsentry.yaml", `
custom_agents:
  - name: no-prompt
`)

	_, err := Load(cfgPath, dir)
	require.Error(t, err)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/revsentry.yaml", "/nonexistent")
	require.Error(t, err)
}

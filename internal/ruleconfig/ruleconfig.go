// Package ruleconfig loads the on-disk custom-rule and custom-agent
// definitions the orchestrator's context-build phase treats as opaque
// configuration input, using gopkg.in/yaml.v3: plain yaml-tagged
// structs, unmarshaled with no custom decoder.
package ruleconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CustomAgentDef is a user-defined reviewer agent: a name, a system
// prompt, and an optional file-glob trigger. An empty FilePattern
// means the agent always runs, matching orchestrator.CustomAgent's
// always-on semantics.
type CustomAgentDef struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	FilePattern  string `yaml:"file_pattern"`
}

// CustomRuleDef is a lighter-weight alternative to a full custom
// agent: a single natural-language constraint scoped to a file
// pattern. Rules are folded into synthesized custom agents by
// ToCustomAgents rather than given their own fan-out path, since a
// rule has no independent reviewing logic beyond "flag violations of
// this one sentence."
type CustomRuleDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	FilePattern string `yaml:"file_pattern"`
	Severity    string `yaml:"severity"`
}

// Config is the root of a custom-rule/custom-agent definition file.
type Config struct {
	ProjectStandards     string           `yaml:"project_standards"`
	ProjectStandardsFile string           `yaml:"project_standards_file"`
	CustomAgents         []CustomAgentDef `yaml:"custom_agents"`
	CustomRules          []CustomRuleDef  `yaml:"custom_rules"`
}

// Load reads and parses the YAML definition file at path. repoRoot
// resolves ProjectStandardsFile when it is a relative path.
func Load(path, repoRoot string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ruleconfig: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ruleconfig: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("ruleconfig: %s: %w", path, err)
	}

	if cfg.ProjectStandardsFile != "" {
		standardsPath := cfg.ProjectStandardsFile
		if !filepath.IsAbs(standardsPath) {
			standardsPath = filepath.Join(repoRoot, standardsPath)
		}
		text, err := os.ReadFile(standardsPath)
		if err != nil {
			return nil, fmt.Errorf(
				"ruleconfig: read project standards %s: %w",
				standardsPath, err,
			)
		}
		if cfg.ProjectStandards != "" {
			cfg.ProjectStandards += "\n\n"
		}
		cfg.ProjectStandards += string(text)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.CustomAgents)+len(c.CustomRules))
	for _, a := range c.CustomAgents {
		if a.Name == "" {
			return fmt.Errorf("custom agent missing name")
		}
		if a.SystemPrompt == "" {
			return fmt.Errorf("custom agent %q missing system_prompt", a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("duplicate agent/rule name %q", a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	for _, r := range c.CustomRules {
		if r.Name == "" {
			return fmt.Errorf("custom rule missing name")
		}
		if r.Description == "" {
			return fmt.Errorf("custom rule %q missing description", r.Name)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate agent/rule name %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}

// ToCustomAgents flattens the config's custom agents and custom rules
// into a single list of (name, system prompt, file pattern) triples,
// the shape orchestrator.CustomAgent expects. Each rule becomes its
// own single-purpose agent whose prompt is derived from its
// description.
func (c *Config) ToCustomAgents() []CustomAgentDef {
	out := make([]CustomAgentDef, 0, len(c.CustomAgents)+len(c.CustomRules))
	out = append(out, c.CustomAgents...)
	for _, r := range c.CustomRules {
		out = append(out, CustomAgentDef{
			Name:         r.Name,
			SystemPrompt: ruleSystemPrompt(r),
			FilePattern:  r.FilePattern,
		})
	}
	return out
}

func ruleSystemPrompt(r CustomRuleDef) string {
	var b strings.Builder
	b.WriteString("Enforce the following project rule against this diff: ")
	b.WriteString(r.Description)
	b.WriteString(". Report only lines that violate this rule.")
	if r.Severity != "" {
		b.WriteString(" Use severity \"" + r.Severity + "\" unless the violation clearly warrants a different one.")
	}
	return b.String()
}

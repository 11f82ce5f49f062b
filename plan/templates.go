package plan

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"agent-workspace/agents"
)

// DescriptionPlaceholder is substituted with the step description.
const DescriptionPlaceholder = "{{description}}"

// RoleTemplate is the system message and prompt used for one role.
type RoleTemplate struct {
	System string `yaml:"system"`
	Prompt string `yaml:"prompt"`
}

// RoleTemplates maps every role to its template.
type RoleTemplates map[agents.Role]RoleTemplate

// DefaultRoleTemplates returns the built-in prompt table.
func DefaultRoleTemplates() RoleTemplates {
	return RoleTemplates{
		agents.RolePlanner: {
			System: "You are a planning agent. Analyze requirements carefully and describe what has to be done.",
			Prompt: "Analyze the requirements for this step: " + DescriptionPlaceholder +
				"\n\nList the goals, constraints and open questions the rest of the team should know about.",
		},
		agents.RoleWorker: {
			System: "You are a worker agent. Produce concrete, working solutions.",
			Prompt: "Implement the following step: " + DescriptionPlaceholder +
				"\n\nThe requirements have already been analyzed. Provide the implementation and explain it briefly.",
		},
		agents.RoleSupervisor: {
			System: "You are a supervisor agent. Review work for quality, correctness and completeness.",
			Prompt: "Review the work done for this step: " + DescriptionPlaceholder +
				"\n\nThe implementation has been completed. Assess its quality and list improvements.",
		},
		agents.RoleErrorFixer: {
			System: "You are an error-fixer agent. Find and fix problems, then do a final check.",
			Prompt: "Debug and run a final check for this step: " + DescriptionPlaceholder +
				"\n\nThe work has been reviewed. Identify remaining issues, fix them and confirm the result.",
		},
	}
}

// Validate reports a missing role or a template without a placeholder.
func (t RoleTemplates) Validate() error {
	for _, role := range agents.Roles {
		tpl, ok := t[role]
		if !ok {
			return fmt.Errorf("missing template for role %s", role)
		}
		if strings.TrimSpace(tpl.System) == "" {
			return fmt.Errorf("template for role %s has empty system message", role)
		}
		if !strings.Contains(tpl.Prompt, DescriptionPlaceholder) {
			return fmt.Errorf("template for role %s must contain %s", role, DescriptionPlaceholder)
		}
	}
	return nil
}

// Render returns the system message and prompt for role with description
// substituted. Roles outside the table use the worker template.
func (t RoleTemplates) Render(role agents.Role, description string) (string, string) {
	tpl, ok := t[role]
	if !ok {
		tpl = t[agents.RoleWorker]
	}
	return tpl.System, strings.ReplaceAll(tpl.Prompt, DescriptionPlaceholder, description)
}

// LoadRoleTemplates reads a YAML file of per-role overrides and merges it
// over the defaults. An empty path returns the defaults.
//
//	worker:
//	  system: You are a senior Go engineer.
//	  prompt: "Implement: {{description}}"
func LoadRoleTemplates(path string) (RoleTemplates, error) {
	templates := DefaultRoleTemplates()
	if strings.TrimSpace(path) == "" {
		return templates, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role templates: %w", err)
	}

	var raw map[string]RoleTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse role templates: %w", err)
	}

	for key, override := range raw {
		role, ok := agents.ParseRole(key)
		if !ok {
			return nil, fmt.Errorf("unknown role %q in %s", key, path)
		}
		merged := templates[role]
		if strings.TrimSpace(override.System) != "" {
			merged.System = strings.TrimSpace(override.System)
		}
		if strings.TrimSpace(override.Prompt) != "" {
			merged.Prompt = strings.TrimSpace(override.Prompt)
		}
		templates[role] = merged
	}

	if err := templates.Validate(); err != nil {
		return nil, err
	}
	return templates, nil
}

package llm

import (
	"fmt"
	"strings"
)

type simulatedTemplate struct {
	keywords []string
	format   string
}

// Checked in order; the first family with a matching keyword wins.
var simulatedTemplates = []simulatedTemplate{
	{
		keywords: []string{"debug", "bug", "error", "fix", "final check"},
		format: "[Simulated response] Debugging pass for %q: reproduced the reported behaviour, " +
			"isolated the failing component, applied a minimal fix and re-ran the checks. " +
			"No blocking issues remain.",
	},
	{
		keywords: []string{"review", "quality", "test", "verify"},
		format: "[Simulated response] Quality review of %q: the work covers the stated requirements, " +
			"naming and structure are consistent, and edge cases are handled. " +
			"Recommend adding tests around error paths before release.",
	},
	{
		keywords: []string{"implement", "build", "code", "create", "write"},
		format: "[Simulated response] Implementation for %q: set up the core structure, " +
			"implemented the main logic step by step and wired the pieces together. " +
			"The result is ready for review.",
	},
	{
		keywords: []string{"plan", "analy", "requirement", "design"},
		format: "[Simulated response] Analysis of %q: identified the goal, the inputs and outputs, " +
			"the main constraints and the order in which the work should be done.",
	},
}

const genericSimulatedFormat = "[Simulated response] I received your request %q. " +
	"A live model is not available right now, so this is a placeholder answer."

// Simulate returns the deterministic keyword-driven stand-in for a prompt.
func Simulate(prompt string) string {
	excerpt := promptExcerpt(prompt, 80)
	lower := strings.ToLower(prompt)
	for _, tpl := range simulatedTemplates {
		for _, kw := range tpl.keywords {
			if strings.Contains(lower, kw) {
				return fmt.Sprintf(tpl.format, excerpt)
			}
		}
	}
	return fmt.Sprintf(genericSimulatedFormat, excerpt)
}

func simulatedCompletion(prompt string, source Source, reason string) Completion {
	return Completion{
		Text:   Simulate(prompt),
		Source: source,
		Reason: reason,
	}
}

// promptExcerpt takes the first non-blank line, capped at n runes.
func promptExcerpt(prompt string, n int) string {
	for _, line := range strings.Split(prompt, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return truncate(trimmed, n)
		}
	}
	return ""
}

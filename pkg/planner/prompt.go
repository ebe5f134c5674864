package planner

import (
	"fmt"
	"strings"

	"github.com/connexhq/connex/pkg/skill"
)

const searchPhrasePrompt = `Given the user's goal, respond with a short
phrase (a few words) describing what environmental information would
help, such as "current weather" or "current time". Respond with the
phrase only, or "none" if no environmental context is needed.`

const planInstructions = `Respond with a single JSON object:
{
  "goal": "<the goal>",
  "reasoning": "<one short paragraph>",
  "actions": [
    {
      "id": "action_1",
      "skill": "<skill name from the list>",
      "description": "<what this action does>",
      "inputs": {"<param>": <static value>},
      "input_refs": {"<param>": "action_<id>.<output_key>"},
      "depends_on": ["action_<id>"],
      "priority": "MAJOR" | "MINOR" | "SKIPPABLE"
    }
  ]
}

Rules:
- Use only the listed skills and only their declared inputs.
- Use input_refs to pass one action's output to another; never copy
  placeholder text into inputs.
- depends_on must list every action whose output the action consumes.
- Keep plans minimal: the fewest actions that achieve the goal.`

func buildSystemPrompt(candidates []*skill.Info) string {
	var sb strings.Builder
	sb.WriteString("You are a planning engine. Decompose the user's goal into a dependency-ordered plan of skill invocations.\n\nAvailable skills:\n")

	for _, info := range candidates {
		fmt.Fprintf(&sb, "\n### %s\n%s\n", info.Name, info.Description)
		if info.Inputs != nil && len(info.Inputs.Properties) > 0 {
			sb.WriteString("Inputs:\n")
			required := make(map[string]bool, len(info.Inputs.Required))
			for _, r := range info.Inputs.Required {
				required[r] = true
			}
			for name, param := range info.Inputs.Properties {
				line := fmt.Sprintf("- %s (%s", name, orAny(param.Type))
				if required[name] {
					line += ", required"
				}
				line += ")"
				if len(param.Enum) > 0 {
					line += fmt.Sprintf(" one of: %s", strings.Join(param.Enum, " | "))
				}
				if param.Description != "" {
					line += ": " + param.Description
				}
				sb.WriteString(line + "\n")
			}
		}
		if len(info.Outputs) > 0 {
			sb.WriteString("Outputs:\n")
			for name, typ := range info.Outputs {
				fmt.Fprintf(&sb, "- %s (%s)\n", name, orAny(typ))
			}
		}
	}

	sb.WriteString("\n")
	sb.WriteString(planInstructions)
	return sb.String()
}

func buildUserPrompt(goal, extraContext, gathered string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n", goal)
	if extraContext != "" {
		fmt.Fprintf(&sb, "\nContext:\n%s\n", extraContext)
	}
	if gathered != "" {
		fmt.Fprintf(&sb, "\nEnvironmental observations:\n%s\n", gathered)
	}
	return sb.String()
}

func orAny(t string) string {
	if t == "" {
		return "any"
	}
	return t
}

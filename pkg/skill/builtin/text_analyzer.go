package builtin

import (
	"context"
	"fmt"

	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/skill"
)

type textAnalyzerInputs struct {
	Text   string `json:"text" jsonschema:"required,description=Text to analyse"`
	Action string `json:"action,omitempty" jsonschema:"description=Analysis to perform,enum=summarize|sentiment|keywords|entities,default=summarize"`
}

// TextAnalyzer runs fast-model analyses over arbitrary text.
type TextAnalyzer struct {
	skill.Base
	models ModelClient
}

func NewTextAnalyzer(models ModelClient) *TextAnalyzer {
	return &TextAnalyzer{
		Base: skill.NewBase(&skill.Info{
			Name:        "text_analyzer",
			Description: "Summarizes text, extracts keywords and entities, detects sentiment",
			Category:    "analysis",
			SubCategory: "text",
			Inputs:      skill.SchemaFor[textAnalyzerInputs](),
			Outputs:     skill.OutputSchema{"analysis": "string"},
		}),
		models: models,
	}
}

var analyzerPrompts = map[string]string{
	"summarize": "Summarize the following text in a few sentences.",
	"sentiment": "Classify the sentiment of the following text as positive, negative or neutral, with one sentence of justification.",
	"keywords":  "List the most important keywords in the following text, comma separated.",
	"entities":  "List the named entities (people, places, organizations) in the following text.",
}

func (s *TextAnalyzer) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	text, _ := inputs["text"].(string)
	action, _ := inputs["action"].(string)
	if action == "" {
		action = "summarize"
	}

	instruction, ok := analyzerPrompts[action]
	if !ok {
		return nil, &skill.ValidationError{Skill: "text_analyzer", Field: "action", Message: fmt.Sprintf("unknown action %q", action)}
	}

	analysis, err := s.models.Chat(ctx, llm.TaskFast,
		[]llm.Message{{Role: llm.RoleUser, Content: instruction + "\n\n" + text}},
		llm.ChatOptions{})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"success": true, "analysis": analysis, "action": action}, nil
}

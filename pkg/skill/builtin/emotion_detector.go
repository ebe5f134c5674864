package builtin

import (
	"context"
	"strings"

	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/skill"
)

type emotionDetectorInputs struct {
	Text string `json:"text" jsonschema:"required,description=Text to classify"`
}

// EmotionDetector classifies the emotional tone of a message with a
// single fast-model call.
type EmotionDetector struct {
	skill.Base
	models ModelClient
}

func NewEmotionDetector(models ModelClient) *EmotionDetector {
	return &EmotionDetector{
		Base: skill.NewBase(&skill.Info{
			Name:        "emotion_detector",
			Description: "Detects the dominant emotion expressed in a piece of text",
			Category:    "analysis",
			SubCategory: "emotion",
			Inputs:      skill.SchemaFor[emotionDetectorInputs](),
			Outputs:     skill.OutputSchema{"emotion": "string"},
		}),
		models: models,
	}
}

const emotionPrompt = `Classify the dominant emotion of the user's text.
Respond with a single lowercase word such as: happy, sad, angry,
anxious, excited, frustrated, neutral.`

func (s *EmotionDetector) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	text, _ := inputs["text"].(string)

	emotion, err := s.models.Chat(ctx, llm.TaskFast,
		[]llm.Message{{Role: llm.RoleUser, Content: text}},
		llm.ChatOptions{SystemPrompt: emotionPrompt, MaxTokens: 8})
	if err != nil {
		return nil, err
	}

	emotion = strings.ToLower(strings.TrimSpace(emotion))
	if emotion == "" {
		emotion = "neutral"
	}
	return map[string]interface{}{"success": true, "emotion": emotion}, nil
}

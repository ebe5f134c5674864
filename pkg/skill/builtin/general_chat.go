package builtin

import (
	"context"
	"fmt"

	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/skill"
)

type generalChatInputs struct {
	Message string `json:"message" jsonschema:"required,description=The user's message"`
	History string `json:"history,omitempty" jsonschema:"description=Recent conversation turns"`
}

// GeneralChat answers conversational goals directly; the CHAT fast-path
// dispatches here without planning.
type GeneralChat struct {
	skill.Base
	models ModelClient
}

func NewGeneralChat(models ModelClient) *GeneralChat {
	return &GeneralChat{
		Base: skill.NewBase(&skill.Info{
			Name:        "general_chat",
			Description: "Responds conversationally to greetings, questions and casual dialogue",
			Category:    "conversation",
			SubCategory: "chat",
			Inputs:      skill.SchemaFor[generalChatInputs](),
			Outputs:     skill.OutputSchema{"reply": "string"},
		}),
		models: models,
	}
}

const chatSystemPrompt = `You are Connex, a helpful personal assistant.
Answer naturally and concisely. Use any provided conversation history
and context to stay consistent.`

func (s *GeneralChat) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	message, _ := inputs["message"].(string)
	if message == "" {
		return nil, &skill.ValidationError{Skill: "general_chat", Field: "message", Message: "required input is missing"}
	}

	prompt := message
	if history, _ := inputs["history"].(string); history != "" {
		prompt = fmt.Sprintf("Conversation so far:\n%s\n\nUser: %s", history, message)
	}

	reply, err := s.models.Chat(ctx, llm.TaskGeneral,
		[]llm.Message{{Role: llm.RoleUser, Content: prompt}},
		llm.ChatOptions{SystemPrompt: chatSystemPrompt})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"success": true, "reply": reply}, nil
}

package builtin

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/connexhq/connex/pkg/skill"
)

type speakInputs struct {
	Text string `json:"text" jsonschema:"required,description=Text to vocalise"`
}

// Speak vocalises text through the configured speaker. The shared
// speaking flag stays set for the duration so the voice ear can ignore
// the assistant's own output.
type Speak struct {
	skill.Base
	speaker  Speaker
	speaking *atomic.Bool
}

func NewSpeak(speaker Speaker, speaking *atomic.Bool) *Speak {
	return &Speak{
		Base: skill.NewBase(&skill.Info{
			Name:        "speak",
			Description: "Speaks text aloud through the text-to-speech output",
			Category:    "interaction",
			SubCategory: "voice",
			Inputs:      skill.SchemaFor[speakInputs](),
			Outputs:     skill.OutputSchema{"spoken": "boolean"},
		}),
		speaker:  speaker,
		speaking: speaking,
	}
}

func (s *Speak) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	text, _ := inputs["text"].(string)
	if text == "" {
		return map[string]interface{}{"success": true, "spoken": false}, nil
	}

	s.speaking.Store(true)
	defer s.speaking.Store(false)

	if err := s.speaker.Speak(ctx, text); err != nil {
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("speech failed: %v", err)}, nil
	}
	return map[string]interface{}{"success": true, "spoken": true}, nil
}

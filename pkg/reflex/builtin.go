package reflex

import (
	"fmt"

	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/plan"
)

// RegisterBuiltins installs the voice commander and scheduler reflexes.
func RegisterBuiltins(layer *Layer) {
	layer.Register(&voiceCommander{})
	layer.Register(&scheduler{})
}

// voiceCommander turns a debounced utterance into a spoken-response
// goal: first read the speaker's emotion, then run the utterance
// through the full pipeline with speech enabled.
type voiceCommander struct{}

func (v *voiceCommander) Meta() Meta {
	return Meta{Name: "voice_commander", Description: "Executes spoken commands with an emotion read first"}
}

func (v *voiceCommander) Evaluate(sig *event.Signal) bool {
	return sig.Type == event.SignalVoiceInput && sig.Text() != ""
}

func (v *voiceCommander) Plan(sig *event.Signal) ([]*plan.Action, error) {
	text := sig.Text()
	return []*plan.Action{
		{
			ID:          "action_1",
			Skill:       "emotion_detector",
			Description: "Read the speaker's emotional state",
			Inputs:      map[string]interface{}{"text": text},
			Priority:    plan.PrioritySkippable,
		},
		{
			ID:          "action_2",
			Skill:       "agi_brain",
			Description: fmt.Sprintf("Act on the spoken command: %s", text),
			Inputs:      map[string]interface{}{"goal": text, "speak": true},
			DependsOn:   []string{"action_1"},
			Priority:    plan.PriorityMajor,
		},
	}, nil
}

// scheduler runs due time events through the pipeline, using the
// event's description as the goal.
type scheduler struct{}

func (s *scheduler) Meta() Meta {
	return Meta{Name: "scheduler", Description: "Executes scheduled time events when they come due"}
}

func (s *scheduler) Evaluate(sig *event.Signal) bool {
	if sig.Type != event.SignalTimeEvent {
		return false
	}
	desc, _ := sig.Payload["description"].(string)
	return desc != ""
}

func (s *scheduler) Plan(sig *event.Signal) ([]*plan.Action, error) {
	desc, _ := sig.Payload["description"].(string)
	inputs := map[string]interface{}{"goal": desc}
	if extra, ok := sig.Payload["payload"].(map[string]interface{}); ok {
		for k, v := range extra {
			if k != "goal" {
				inputs[k] = v
			}
		}
	}
	return []*plan.Action{
		{
			ID:          "action_1",
			Skill:       "agi_brain",
			Description: fmt.Sprintf("Run scheduled task: %s", desc),
			Inputs:      inputs,
			Priority:    plan.PriorityMajor,
		},
	}, nil
}

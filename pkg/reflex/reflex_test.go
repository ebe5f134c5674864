package reflex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/plan"
)

type scriptedReflex struct {
	name    string
	accept  bool
	actions []*plan.Action
	planErr error
	panics  bool
}

func (s *scriptedReflex) Meta() Meta { return Meta{Name: s.name} }

func (s *scriptedReflex) Evaluate(*event.Signal) bool {
	if s.panics {
		panic("boom")
	}
	return s.accept
}

func (s *scriptedReflex) Plan(*event.Signal) ([]*plan.Action, error) {
	return s.actions, s.planErr
}

func action(id string) *plan.Action {
	return &plan.Action{ID: id, Skill: "general_chat", Inputs: map[string]interface{}{"message": "hi"}}
}

func TestProcessEventCollectsAcceptedPlans(t *testing.T) {
	layer := NewLayer()
	layer.Register(&scriptedReflex{name: "accepts", accept: true, actions: []*plan.Action{action("a1")}})
	layer.Register(&scriptedReflex{name: "declines", accept: false})

	plans := layer.ProcessEvent(event.NewSignal("custom", nil))
	require.Len(t, plans, 1)
	assert.Equal(t, "Reflex Trigger: accepts", plans[0].Goal)
	assert.Equal(t, "accepts", plans[0].Metadata["reflex"])
}

func TestProcessEventIsolatesFailures(t *testing.T) {
	layer := NewLayer()
	layer.Register(&scriptedReflex{name: "a_panics", panics: true})
	layer.Register(&scriptedReflex{name: "b_errors", accept: true, planErr: errors.New("no plan")})
	layer.Register(&scriptedReflex{name: "c_works", accept: true, actions: []*plan.Action{action("a1")}})

	plans := layer.ProcessEvent(event.NewSignal("custom", nil))
	require.Len(t, plans, 1)
	assert.Equal(t, "Reflex Trigger: c_works", plans[0].Goal)
}

func TestVoiceCommander(t *testing.T) {
	layer := NewLayer()
	RegisterBuiltins(layer)

	sig := event.NewSignal(event.SignalVoiceInput, map[string]interface{}{"text": "turn off the lights", "status": "success"})
	plans := layer.ProcessEvent(sig)
	require.Len(t, plans, 1)

	p := plans[0]
	assert.Equal(t, "Reflex Trigger: voice_commander", p.Goal)
	require.Len(t, p.Actions, 2)
	assert.Equal(t, "emotion_detector", p.Actions[0].Skill)
	assert.Equal(t, "agi_brain", p.Actions[1].Skill)
	assert.Equal(t, []string{"action_1"}, p.Actions[1].DependsOn)
	assert.Equal(t, "turn off the lights", p.Actions[1].Inputs["goal"])
	assert.Equal(t, true, p.Actions[1].Inputs["speak"])
	require.NoError(t, p.Validate())

	// empty utterances never fire
	empty := event.NewSignal(event.SignalVoiceInput, map[string]interface{}{"text": ""})
	assert.Empty(t, layer.ProcessEvent(empty))
}

func TestScheduler(t *testing.T) {
	layer := NewLayer()
	RegisterBuiltins(layer)

	sig := event.NewSignal(event.SignalTimeEvent, map[string]interface{}{
		"description": "water the plants",
		"payload":     map[string]interface{}{"speak": true},
	})
	plans := layer.ProcessEvent(sig)
	require.Len(t, plans, 1)

	p := plans[0]
	assert.Equal(t, "Reflex Trigger: scheduler", p.Goal)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, "agi_brain", p.Actions[0].Skill)
	assert.Equal(t, "water the plants", p.Actions[0].Inputs["goal"])
	assert.Equal(t, true, p.Actions[0].Inputs["speak"])
}

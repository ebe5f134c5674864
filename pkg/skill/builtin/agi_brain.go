package builtin

import (
	"context"

	"github.com/connexhq/connex/pkg/skill"
)

type agiBrainInputs struct {
	Goal  string `json:"goal" jsonschema:"required,description=Goal to hand to the runtime"`
	Speak bool   `json:"speak,omitempty" jsonschema:"description=Vocalise the result when done"`
}

// AGIBrain hands a goal back to the full runtime, letting plans and
// reflexes compose the whole pipeline as a single action.
type AGIBrain struct {
	skill.Base
	brain GoalExecutor
}

func NewAGIBrain(brain GoalExecutor) *AGIBrain {
	return &AGIBrain{
		Base: skill.NewBase(&skill.Info{
			Name:        "agi_brain",
			Description: "Runs a goal through the full reasoning pipeline, classification, planning and execution included",
			Category:    "core",
			SubCategory: "reasoning",
			Inputs:      skill.SchemaFor[agiBrainInputs](),
			Outputs:     skill.OutputSchema{"result": "object"},
		}),
		brain: brain,
	}
}

func (s *AGIBrain) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	goal, _ := inputs["goal"].(string)
	speak, _ := inputs["speak"].(bool)

	extra := make(map[string]interface{})
	for k, v := range inputs {
		if k != "goal" && k != "speak" {
			extra[k] = v
		}
	}

	result, err := s.brain.ExecuteGoal(ctx, goal, extra, speak)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = map[string]interface{}{}
	}
	if _, ok := result["success"]; !ok {
		result["success"] = true
	}
	return result, nil
}

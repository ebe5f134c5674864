package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority classifies how an action's failure affects the rest of the plan.
type Priority string

const (
	// PriorityMajor failures escalate to replanning when in-place repair fails.
	PriorityMajor Priority = "MAJOR"

	// PriorityMinor failures are logged; dependents are skipped implicitly
	// when their references fail to resolve.
	PriorityMinor Priority = "MINOR"

	// PrioritySkippable failures are ignored silently.
	PrioritySkippable Priority = "SKIPPABLE"
)

// ParsePriority normalizes a priority string, defaulting to MAJOR.
func ParsePriority(s string) Priority {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(PriorityMinor):
		return PriorityMinor
	case string(PrioritySkippable):
		return PrioritySkippable
	default:
		return PriorityMajor
	}
}

// Metadata carries optional per-action execution hints.
type Metadata struct {
	// TimeoutSeconds overrides the global action timeout when > 0.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Action is one unit of work dispatched to a single skill.
type Action struct {
	ID          string `json:"id"`
	Skill       string `json:"skill"`
	Description string `json:"description,omitempty"`

	// Inputs are static values passed to the skill.
	Inputs map[string]interface{} `json:"inputs,omitempty"`

	// InputRefs map parameter names to dotted "<action_id>.<output_key>"
	// references resolved from earlier actions' outputs.
	InputRefs map[string]string `json:"input_refs,omitempty"`

	// ExpectedOutput is a JSON-Schema fragment describing the output shape.
	ExpectedOutput map[string]interface{} `json:"expected_output,omitempty"`

	DependsOn []string `json:"depends_on,omitempty"`
	Priority  Priority `json:"priority,omitempty"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// UnmarshalJSON applies priority normalization so model output like
// "minor" or missing priorities decode to a valid value.
func (a *Action) UnmarshalJSON(data []byte) error {
	type alias Action
	var raw struct {
		alias
		Priority string `json:"priority,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Action(raw.alias)
	a.Priority = ParsePriority(raw.Priority)
	return nil
}

// Plan is a validated DAG of actions toward one goal.
type Plan struct {
	Goal      string                 `json:"goal"`
	Actions   []*Action              `json:"actions"`
	Reasoning string                 `json:"reasoning,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ValidationError reports a structurally invalid plan. Plans failing
// validation are returned to the caller and never retried.
type ValidationError struct {
	ActionID string
	Message  string
}

func (e *ValidationError) Error() string {
	if e.ActionID != "" {
		return fmt.Sprintf("invalid plan: action %q: %s", e.ActionID, e.Message)
	}
	return fmt.Sprintf("invalid plan: %s", e.Message)
}

// Validate checks structural invariants: unique action ids, dependencies
// that exist within the plan, and an acyclic dependency graph.
func (p *Plan) Validate() error {
	ids := make(map[string]*Action, len(p.Actions))
	for _, a := range p.Actions {
		if a.ID == "" {
			return &ValidationError{Message: "action with empty id"}
		}
		if a.Skill == "" {
			return &ValidationError{ActionID: a.ID, Message: "empty skill reference"}
		}
		if _, dup := ids[a.ID]; dup {
			return &ValidationError{ActionID: a.ID, Message: "duplicate action id"}
		}
		ids[a.ID] = a
	}

	for _, a := range p.Actions {
		for _, dep := range a.DependsOn {
			if _, ok := ids[dep]; !ok {
				return &ValidationError{ActionID: a.ID, Message: fmt.Sprintf("depends on unknown action %q", dep)}
			}
			if dep == a.ID {
				return &ValidationError{ActionID: a.ID, Message: "depends on itself"}
			}
		}
	}

	if _, err := p.Generations(); err != nil {
		return err
	}

	return nil
}

// Generations partitions the actions into topological levels: actions in
// one level are mutually independent and depend only on earlier levels.
// Returns a ValidationError when the graph contains a cycle.
func (p *Plan) Generations() ([][]*Action, error) {
	remaining := make(map[string]*Action, len(p.Actions))
	indegree := make(map[string]int, len(p.Actions))
	for _, a := range p.Actions {
		remaining[a.ID] = a
		indegree[a.ID] = 0
	}
	for _, a := range p.Actions {
		for _, dep := range a.DependsOn {
			if _, ok := remaining[dep]; ok {
				indegree[a.ID]++
			}
		}
	}

	var levels [][]*Action
	done := make(map[string]bool, len(p.Actions))

	for len(remaining) > 0 {
		var level []*Action
		// Preserve plan order within a level for stable traces
		for _, a := range p.Actions {
			if _, ok := remaining[a.ID]; !ok {
				continue
			}
			ready := true
			for _, dep := range a.DependsOn {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, a)
			}
		}

		if len(level) == 0 {
			return nil, &ValidationError{Message: "dependency cycle detected"}
		}

		for _, a := range level {
			done[a.ID] = true
			delete(remaining, a.ID)
		}
		levels = append(levels, level)
	}

	return levels, nil
}

// Get returns the action with the given id.
func (p *Plan) Get(id string) (*Action, bool) {
	for _, a := range p.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

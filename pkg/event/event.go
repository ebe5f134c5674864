package event

import (
	"time"

	"github.com/google/uuid"
)

// Phase tags an event with the pipeline stage that produced it.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseExecution  Phase = "execution"
	PhaseMotivation Phase = "motivation"
)

// Type discriminates event payloads.
type Type string

const (
	TypeIntentDetected     Type = "intent_detected"
	TypePlanStarted        Type = "plan_started"
	TypeReasoningToken     Type = "reasoning_token"
	TypeContextGathered    Type = "context_gathered"
	TypePlanComplete       Type = "plan_complete"
	TypePlanningError      Type = "planning_error"
	TypeExecutionStarted   Type = "execution_started"
	TypeLevelStarted       Type = "level_started"
	TypeActionStarted      Type = "action_started"
	TypeActionCompleted    Type = "action_completed"
	TypeActionFailed       Type = "action_failed"
	TypeCorrectionStarted  Type = "correction_started"
	TypeExecutionCompleted Type = "execution_completed"
	TypeError              Type = "error"
	TypeConfigRequired     Type = "config_required"
)

// Event is one record on the progress stream. Payload keys are
// type-specific; consumers switch on Type.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Phase     Phase                  `json:"phase"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// New creates an event with a generated id and current timestamp.
func New(phase Phase, typ Type, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Phase:     phase,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

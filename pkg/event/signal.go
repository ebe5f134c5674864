package event

import (
	"time"

	"github.com/google/uuid"
)

// Signal types produced by the sensor drivers.
const (
	SignalVoiceInput = "voice_input"
	SignalTimeEvent  = "time_event"
)

// Signal is one externally observed occurrence injected by a sensor
// driver. Reflexes evaluate signals; accepted signals become plans.
type Signal struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// NewSignal creates a signal with a generated id and current timestamp.
func NewSignal(typ string, payload map[string]interface{}) *Signal {
	return &Signal{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// Text returns the payload "text" field, empty when absent.
func (s *Signal) Text() string {
	if s == nil || s.Payload == nil {
		return ""
	}
	text, _ := s.Payload["text"].(string)
	return text
}

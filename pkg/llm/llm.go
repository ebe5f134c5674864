// Package llm provides the model router: a unified chat, streaming and
// embedding interface over multiple providers, with per-task-class
// model selection driven by which credentials are configured.
package llm

import (
	"context"
	"strings"
)

// TaskClass selects a routing priority table. Classes describe what the
// call is for, not which model serves it.
type TaskClass string

const (
	TaskPlanning TaskClass = "PLANNING"
	TaskCoding   TaskClass = "CODING"
	TaskCreative TaskClass = "CREATIVE"
	TaskFast     TaskClass = "FAST"
	TaskGeneral  TaskClass = "GENERAL"
)

// Intent is the classified disposition of an incoming goal.
type Intent string

const (
	IntentChat         Intent = "CHAT"
	IntentResearch     Intent = "RESEARCH"
	IntentSingleAction Intent = "SINGLE_ACTION"
	IntentPlan         Intent = "PLAN"
)

// ParseIntent normalizes classifier output to exactly one intent.
// Unrecognized output falls back to PLAN so the runtime errs on the
// side of doing the work rather than chatting past it.
func ParseIntent(s string) Intent {
	out := strings.ToUpper(strings.TrimSpace(s))
	for _, in := range []Intent{IntentChat, IntentResearch, IntentSingleAction, IntentPlan} {
		if strings.Contains(out, string(in)) {
			return in
		}
	}
	return IntentPlan
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOptions tune a single chat or streaming call.
type ChatOptions struct {
	// SystemPrompt is prepended as the system turn when non-empty.
	SystemPrompt string

	// Temperature in [0, 2]; providers clamp as needed. Zero means
	// provider default.
	Temperature float64

	// MaxTokens bounds the completion length when > 0.
	MaxTokens int
}

// StreamChunk is one unit of streamed model output.
type StreamChunk struct {
	// Type is "text", "done" or "error".
	Type string

	// Text carries the token delta for "text" chunks.
	Text string

	// Err is set on "error" chunks; the channel closes afterwards.
	Err error
}

const (
	ChunkText  = "text"
	ChunkDone  = "done"
	ChunkError = "error"
)

// Provider is a single model backend. Implementations are safe for
// concurrent use.
type Provider interface {
	// Name returns the provider identifier ("openai", "anthropic", ...).
	Name() string

	// Chat sends a conversation to the named model and returns the
	// complete assistant reply.
	Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error)

	// StreamChat is Chat with incremental delivery. The returned channel
	// is closed when the stream ends; a ChunkError entry precedes close
	// on failure.
	StreamChat(ctx context.Context, model string, messages []Message, opts ChatOptions) (<-chan StreamChunk, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

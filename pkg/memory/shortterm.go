// Package memory implements the two memory tiers: a bounded short-term
// conversation ring with a rolling summary, and embedding-backed
// long-term recall over the persistent store.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/utils"
)

// ModelClient is the slice of the model router the summarizer uses.
type ModelClient interface {
	Chat(ctx context.Context, class llm.TaskClass, messages []llm.Message, opts llm.ChatOptions) (string, error)
}

// Turn is one completed goal/result exchange.
type Turn struct {
	Goal      string
	Result    string
	Timestamp time.Time
}

// ShortTerm is a fixed-capacity ring of recent turns plus a rolling
// summary of what fell off the ring, and the last observed emotional
// state. Safe for concurrent use.
type ShortTerm struct {
	mu       sync.RWMutex
	capacity int
	turns    []Turn
	summary  string
	emotion  string
}

const defaultShortTermCapacity = 10

func NewShortTerm(capacity int) *ShortTerm {
	if capacity <= 0 {
		capacity = defaultShortTermCapacity
	}
	return &ShortTerm{capacity: capacity}
}

// Add appends a turn, evicting the oldest once capacity is reached.
// Evicted turns are returned so callers can fold them into the summary.
func (s *ShortTerm) Add(goal, result string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{Goal: goal, Result: result, Timestamp: time.Now().UTC()})
	if len(s.turns) <= s.capacity {
		return nil
	}
	evicted := make([]Turn, len(s.turns)-s.capacity)
	copy(evicted, s.turns[:len(evicted)])
	s.turns = s.turns[len(evicted):]
	return evicted
}

// Turns returns a copy of the current ring, oldest first.
func (s *ShortTerm) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *ShortTerm) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

func (s *ShortTerm) SetEmotion(emotion string) {
	s.mu.Lock()
	s.emotion = emotion
	s.mu.Unlock()
}

func (s *ShortTerm) Emotion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emotion
}

// workingTokenBudget bounds the context block Working renders; turns
// are dropped oldest-first once the block exceeds it.
const workingTokenBudget = 2000

var (
	tokenCounterOnce sync.Once
	tokenCounter     *utils.TokenCounter
)

func countTokens(text string) int {
	tokenCounterOnce.Do(func() {
		tokenCounter, _ = utils.NewTokenCounter("gpt-4o")
	})
	if tokenCounter == nil {
		return utils.EstimateTokens(text)
	}
	return tokenCounter.Count(text)
}

// Working renders the short-term state as a context block for prompts:
// rolling summary, recent turns and emotional state, in that order. The
// block is capped at workingTokenBudget by dropping the oldest turns;
// the newest turn always survives.
func (s *ShortTerm) Working() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns
	for {
		block := renderWorking(s.summary, turns, s.emotion)
		if len(turns) <= 1 || countTokens(block) <= workingTokenBudget {
			return block
		}
		turns = turns[1:]
	}
}

func renderWorking(summary string, turns []Turn, emotion string) string {
	var sb strings.Builder
	if summary != "" {
		sb.WriteString("Earlier conversation summary:\n")
		sb.WriteString(summary)
		sb.WriteString("\n\n")
	}
	if len(turns) > 0 {
		sb.WriteString("Recent exchanges:\n")
		for _, t := range turns {
			fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", t.Goal, t.Result)
		}
	}
	if emotion != "" {
		fmt.Fprintf(&sb, "\nUser's current emotional state: %s\n", emotion)
	}
	return sb.String()
}

const summaryPrompt = `Update the running conversation summary. Merge the
existing summary with the new exchanges into a short paragraph keeping
names, preferences and unresolved topics. Respond with the summary only.`

// Summarize folds evicted turns into the rolling summary with one
// fast-model call. A model failure leaves the previous summary intact.
func (s *ShortTerm) Summarize(ctx context.Context, models ModelClient, evicted []Turn) error {
	if models == nil || len(evicted) == 0 {
		return nil
	}

	var sb strings.Builder
	if prev := s.Summary(); prev != "" {
		sb.WriteString("Existing summary:\n")
		sb.WriteString(prev)
		sb.WriteString("\n\n")
	}
	sb.WriteString("New exchanges:\n")
	for _, t := range evicted {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", t.Goal, t.Result)
	}

	updated, err := models.Chat(ctx, llm.TaskFast,
		[]llm.Message{{Role: llm.RoleUser, Content: sb.String()}},
		llm.ChatOptions{SystemPrompt: summaryPrompt})
	if err != nil {
		return fmt.Errorf("failed to update conversation summary: %w", err)
	}

	s.mu.Lock()
	s.summary = strings.TrimSpace(updated)
	s.mu.Unlock()
	return nil
}

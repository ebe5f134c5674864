// Package planner turns a goal plus candidate skills into a validated
// plan DAG via the planning-tier model.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/logger"
	"github.com/connexhq/connex/pkg/perception"
	"github.com/connexhq/connex/pkg/plan"
	"github.com/connexhq/connex/pkg/skill"
	"github.com/connexhq/connex/pkg/utils"
)

// ModelClient is the slice of the model router the planner uses.
type ModelClient interface {
	Chat(ctx context.Context, class llm.TaskClass, messages []llm.Message, opts llm.ChatOptions) (string, error)
	StreamChat(ctx context.Context, class llm.TaskClass, messages []llm.Message, opts llm.ChatOptions) (<-chan llm.StreamChunk, error)
}

// SensorSource lets the planner gather environmental context before
// planning. Optional; a nil source skips context gathering.
type SensorSource interface {
	SearchSensors(ctx context.Context, query string, limit int) ([]perception.SensorMatch, error)
	Perceive(ctx context.Context, name, query string) (map[string]interface{}, error)
}

type Planner struct {
	models  ModelClient
	sensors SensorSource
	log     *slog.Logger
}

func New(models ModelClient) *Planner {
	return &Planner{models: models, log: logger.GetLogger()}
}

// SetSensors attaches the perception layer for pre-planning context.
func (p *Planner) SetSensors(s SensorSource) { p.sensors = s }

// CreatePlan builds and validates a plan for the goal. extraContext is
// folded into the user prompt verbatim.
func (p *Planner) CreatePlan(ctx context.Context, goal, extraContext string, candidates []*skill.Info) (*plan.Plan, error) {
	gathered := p.gatherContext(ctx, goal)
	userPrompt := buildUserPrompt(goal, extraContext, gathered)

	raw, err := p.models.Chat(ctx, llm.TaskPlanning,
		[]llm.Message{{Role: llm.RoleUser, Content: userPrompt}},
		llm.ChatOptions{SystemPrompt: buildSystemPrompt(candidates)})
	if err != nil {
		return nil, fmt.Errorf("planning model failed: %w", err)
	}

	return parsePlan(raw, goal, candidates)
}

// CreatePlanStreaming is CreatePlan with reasoning tokens emitted to
// the stream as they arrive, followed by plan_complete or
// planning_error. The stream stays open for the caller.
func (p *Planner) CreatePlanStreaming(ctx context.Context, goal, extraContext string, candidates []*skill.Info, stream *event.Stream) (*plan.Plan, error) {
	gathered := p.gatherContext(ctx, goal)
	if gathered != "" {
		stream.Emit(event.New(event.PhasePlanning, event.TypeContextGathered, map[string]interface{}{
			"context": gathered,
		}))
	}
	userPrompt := buildUserPrompt(goal, extraContext, gathered)

	chunks, err := p.models.StreamChat(ctx, llm.TaskPlanning,
		[]llm.Message{{Role: llm.RoleUser, Content: userPrompt}},
		llm.ChatOptions{SystemPrompt: buildSystemPrompt(candidates)})
	if err != nil {
		stream.Emit(event.New(event.PhasePlanning, event.TypePlanningError, map[string]interface{}{
			"error": err.Error(),
		}))
		return nil, err
	}

	var sb strings.Builder
	for chunk := range chunks {
		switch chunk.Type {
		case llm.ChunkText:
			sb.WriteString(chunk.Text)
			stream.Emit(event.New(event.PhasePlanning, event.TypeReasoningToken, map[string]interface{}{
				"token":           chunk.Text,
				"partial_content": sb.String(),
			}))
		case llm.ChunkError:
			stream.Emit(event.New(event.PhasePlanning, event.TypePlanningError, map[string]interface{}{
				"error": chunk.Err.Error(),
			}))
			return nil, chunk.Err
		}
	}

	built, err := parsePlan(sb.String(), goal, candidates)
	if err != nil {
		stream.Emit(event.New(event.PhasePlanning, event.TypePlanningError, map[string]interface{}{
			"error": err.Error(),
		}))
		return nil, err
	}

	stream.Emit(event.New(event.PhasePlanning, event.TypePlanComplete, map[string]interface{}{
		"plan": built,
	}))
	return built, nil
}

// Replan builds a continuation plan after a MAJOR failure: the prompt
// carries what already completed and what went wrong.
func (p *Planner) Replan(ctx context.Context, goal string, completed map[string]map[string]interface{}, failedAction, failureMessage string, candidates []*skill.Info) (*plan.Plan, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The original goal was: %s\n\n", goal)
	if len(completed) > 0 {
		sb.WriteString("These actions already completed; do not repeat them. Their outputs are available as action_<id>.<key> references:\n")
		for id, outputs := range completed {
			keys := make([]string, 0, len(outputs))
			for k := range outputs {
				keys = append(keys, k)
			}
			fmt.Fprintf(&sb, "- %s (outputs: %s)\n", id, strings.Join(keys, ", "))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Action %s failed with: %s\n", failedAction, failureMessage)
	sb.WriteString("Produce a new plan that completes the remaining work, avoiding the failure.")

	return p.CreatePlan(ctx, goal, sb.String(), candidates)
}

// gatherContext is best-effort: any failure degrades to empty context.
func (p *Planner) gatherContext(ctx context.Context, goal string) string {
	if p.sensors == nil {
		return ""
	}

	phrase, err := p.models.Chat(ctx, llm.TaskFast,
		[]llm.Message{{Role: llm.RoleUser, Content: goal}},
		llm.ChatOptions{SystemPrompt: searchPhrasePrompt, MaxTokens: 24})
	if err != nil {
		p.log.Debug("context gathering skipped", "error", err)
		return ""
	}
	phrase = strings.TrimSpace(strings.Trim(strings.TrimSpace(phrase), `"`))
	if phrase == "" || strings.EqualFold(phrase, "none") {
		return ""
	}

	matches, err := p.sensors.SearchSensors(ctx, phrase, 3)
	if err != nil || len(matches) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, m := range matches {
		observation, err := p.sensors.Perceive(ctx, m.Record.Name, phrase)
		if err != nil {
			p.log.Debug("sensor perceive failed during context gathering", "sensor", m.Record.Name, "error", err)
			continue
		}
		data, err := json.Marshal(observation)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", m.Record.Name, data)
	}
	return strings.TrimSpace(sb.String())
}

func parsePlan(raw, goal string, candidates []*skill.Info) (*plan.Plan, error) {
	extracted, err := utils.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("planning output was not JSON: %w", err)
	}

	var built plan.Plan
	if err := json.Unmarshal(extracted, &built); err != nil {
		return nil, fmt.Errorf("planning output did not match the plan schema: %w", err)
	}
	if built.Goal == "" {
		built.Goal = goal
	}

	if err := built.Validate(); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.Name] = true
	}
	for _, a := range built.Actions {
		if !known[a.Skill] {
			return nil, &plan.ValidationError{ActionID: a.ID, Message: fmt.Sprintf("references unknown skill %q", a.Skill)}
		}
	}
	return &built, nil
}

package agi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/orchestrator"
	"github.com/connexhq/connex/pkg/plan"
	"github.com/connexhq/connex/pkg/skill"
)

// ExecuteResult is the outcome of one goal.
type ExecuteResult struct {
	Success  bool                   `json:"success"`
	Reply    string                 `json:"reply"`
	Result   map[string]interface{} `json:"result,omitempty"`
	Plan     *plan.Plan             `json:"plan,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Errors   []string               `json:"errors,omitempty"`
}

// Execute runs one goal through the full pipeline: emotion read
// (fire-and-forget), context assembly, intent classification, then
// either the chat fast-path or retrieve-plan-execute.
func (a *AGI) Execute(ctx context.Context, goal string, extra map[string]interface{}, speak bool) (*ExecuteResult, error) {
	a.detectEmotionAsync(goal)

	promptContext := a.buildContext(ctx, goal, extra)
	history := a.recentHistory()

	intent := a.classify(ctx, goal, history)
	if intent == llm.IntentChat {
		return a.executeChat(ctx, goal, history, speak)
	}

	built, err := a.buildPlan(ctx, goal, promptContext)
	if err != nil {
		return &ExecuteResult{
			Success:  false,
			Reply:    fmt.Sprintf("I couldn't work out a plan for that: %v", err),
			Metadata: map[string]interface{}{"intent": string(intent)},
			Errors:   []string{err.Error()},
		}, nil
	}

	res, err := a.orch.Execute(ctx, built)
	if err != nil {
		return nil, err
	}

	out := a.finishExecution(goal, intent, built, res, speak)
	return out, nil
}

// ExecuteStreaming is Execute with every phase emitted to the stream.
// Failures are reported as events and in the result, never as errors.
func (a *AGI) ExecuteStreaming(ctx context.Context, goal string, extra map[string]interface{}, speak bool, stream *event.Stream) *ExecuteResult {
	a.detectEmotionAsync(goal)

	promptContext := a.buildContext(ctx, goal, extra)
	history := a.recentHistory()

	intent := a.classify(ctx, goal, history)
	stream.Emit(event.New(event.PhasePlanning, event.TypeIntentDetected, map[string]interface{}{
		"intent": string(intent),
	}))

	if intent == llm.IntentChat {
		res, err := a.executeChat(ctx, goal, history, speak)
		if err != nil {
			stream.Emit(event.New(event.PhaseExecution, event.TypeError, map[string]interface{}{
				"error": err.Error(),
			}))
			return &ExecuteResult{Success: false, Errors: []string{err.Error()},
				Metadata: map[string]interface{}{"intent": string(llm.IntentChat)}}
		}
		stream.Emit(event.New(event.PhaseExecution, event.TypeExecutionCompleted, map[string]interface{}{
			"success": true,
			"reply":   res.Reply,
		}))
		return res
	}

	stream.Emit(event.New(event.PhasePlanning, event.TypePlanStarted, map[string]interface{}{
		"goal": goal,
	}))
	candidates := a.candidateSkills(ctx, goal)
	built, err := a.planner.CreatePlanStreaming(ctx, goal, promptContext, candidates, stream)
	if err != nil {
		// planning_error already emitted by the planner
		return &ExecuteResult{Success: false, Errors: []string{err.Error()},
			Metadata: map[string]interface{}{"intent": string(intent)}}
	}

	res, err := a.orch.ExecuteStreaming(ctx, built, stream)
	if err != nil {
		stream.Emit(event.New(event.PhaseExecution, event.TypeError, map[string]interface{}{
			"error": err.Error(),
		}))
		return &ExecuteResult{Success: false, Plan: built, Errors: []string{err.Error()},
			Metadata: map[string]interface{}{"intent": string(intent)}}
	}

	return a.finishExecution(goal, intent, built, res, speak)
}

// ExecuteGoal lets the agi_brain skill recurse into the pipeline.
func (a *AGI) ExecuteGoal(ctx context.Context, goal string, extra map[string]interface{}, speak bool) (map[string]interface{}, error) {
	res, err := a.Execute(ctx, goal, extra, speak)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{
		"success": res.Success,
		"reply":   res.Reply,
	}
	if res.Result != nil {
		out["result"] = res.Result
	}
	if len(res.Errors) > 0 {
		out["error"] = strings.Join(res.Errors, "; ")
	}
	return out, nil
}

func (a *AGI) executeChat(ctx context.Context, goal, history string, speak bool) (*ExecuteResult, error) {
	chat, err := a.skills.GetSkill("general_chat")
	if err != nil {
		return nil, err
	}

	inputs := map[string]interface{}{"message": goal}
	if history != "" {
		inputs["history"] = history
	}
	outputs, err := chat.Execute(ctx, inputs)
	if err != nil {
		return nil, err
	}

	reply, _ := outputs["reply"].(string)
	a.rememberTurn(goal, reply)
	if speak {
		a.speakReply(ctx, reply)
	}
	return &ExecuteResult{
		Success:  true,
		Reply:    reply,
		Result:   outputs,
		Metadata: map[string]interface{}{"intent": string(llm.IntentChat)},
	}, nil
}

func (a *AGI) buildPlan(ctx context.Context, goal, promptContext string) (*plan.Plan, error) {
	return a.planner.CreatePlan(ctx, goal, promptContext, a.candidateSkills(ctx, goal))
}

// candidateSkills retrieves the most relevant skills, falling back to
// the full enabled set. An empty retrieval logs a skill request for the
// background review loop.
func (a *AGI) candidateSkills(ctx context.Context, goal string) []*skill.Info {
	matches, err := a.skills.RetrieveRelevant(ctx, goal, 5, "", "")
	if err != nil || len(matches) == 0 {
		if err == nil {
			if logErr := a.store.LogSkillRequest(ctx, goal); logErr != nil {
				a.log.Debug("failed to log skill request", "error", logErr)
			}
		}
		return a.skills.ListInfos(false)
	}
	infos := make([]*skill.Info, len(matches))
	for i, m := range matches {
		infos[i] = m.Skill.Info()
	}
	return infos
}

// finishExecution folds an orchestrator result into the facade result,
// records the turn and optionally vocalises the reply.
func (a *AGI) finishExecution(goal string, intent llm.Intent, built *plan.Plan, res *orchestrator.Result, speak bool) *ExecuteResult {
	out := &ExecuteResult{
		Success: res.Success,
		Result:  res.Output,
		Plan:    built,
		Errors:  res.Errors,
		Metadata: map[string]interface{}{
			"intent":    string(intent),
			"corrected": res.Corrected,
			"replanned": res.Replanned,
		},
	}

	switch {
	case res.ConfigRequired != nil:
		out.Reply = fmt.Sprintf("I need configuration for %s before I can do that: missing %s.",
			res.ConfigRequired.Skill, strings.Join(res.ConfigRequired.MissingKeys, ", "))
		out.Metadata["config_required"] = res.ConfigRequired
	case res.Success:
		out.Reply = extractReply(res.Output)
		if out.Reply == "" {
			out.Reply = "Done."
		}
	default:
		out.Reply = fmt.Sprintf("I'm sorry, that didn't work out: %s", strings.Join(res.Errors, "; "))
	}

	a.rememberTurn(goal, out.Reply)
	if speak {
		ctx, cancel := context.WithTimeout(a.bgCtx, 60*time.Second)
		defer cancel()
		a.speakReply(ctx, out.Reply)
	}
	return out
}

func (a *AGI) classify(ctx context.Context, goal, history string) llm.Intent {
	intent, err := a.models.ClassifyIntent(ctx, goal, history)
	if err != nil {
		a.log.Warn("intent classification failed, assuming PLAN", "error", err)
		return llm.IntentPlan
	}
	return intent
}

// buildContext assembles working memory, notable information and any
// caller-provided context into one prompt block.
func (a *AGI) buildContext(ctx context.Context, goal string, extra map[string]interface{}) string {
	var sb strings.Builder

	if working := a.shortTerm.Working(); working != "" {
		sb.WriteString(working)
		sb.WriteString("\n")
	}

	if notable, err := a.store.SearchNotable(ctx, goal, 3); err == nil && len(notable) > 0 {
		sb.WriteString("Notable information:\n")
		for _, n := range notable {
			fmt.Fprintf(&sb, "- %s: %s\n", n.Key, n.Value)
		}
	}

	if recalled, err := a.longTerm.Recall(ctx, goal, 3); err == nil && len(recalled) > 0 {
		sb.WriteString("Relevant memories:\n")
		for _, m := range recalled {
			fmt.Fprintf(&sb, "- %s\n", m.Content)
		}
	}

	for k, v := range extra {
		fmt.Fprintf(&sb, "%s: %v\n", k, v)
	}
	return strings.TrimSpace(sb.String())
}

func (a *AGI) recentHistory() string {
	turns := a.shortTerm.Turns()
	if len(turns) == 0 {
		return ""
	}
	if len(turns) > 4 {
		turns = turns[len(turns)-4:]
	}
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", t.Goal, t.Result)
	}
	return sb.String()
}

// detectEmotionAsync reads the goal's emotional tone off the hot path.
func (a *AGI) detectEmotionAsync(goal string) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		ctx, cancel := context.WithTimeout(a.bgCtx, 10*time.Second)
		defer cancel()

		detector, err := a.skills.GetSkill("emotion_detector")
		if err != nil {
			return
		}
		out, err := detector.Execute(ctx, map[string]interface{}{"text": goal})
		if err != nil {
			a.log.Debug("emotion detection failed", "error", err)
			return
		}
		if emotion, _ := out["emotion"].(string); emotion != "" {
			a.shortTerm.SetEmotion(emotion)
		}
	}()
}

func (a *AGI) speakReply(ctx context.Context, reply string) {
	if reply == "" {
		return
	}
	speakSkill, err := a.skills.GetSkill("speak")
	if err != nil {
		return
	}
	if _, err := speakSkill.Execute(ctx, map[string]interface{}{"text": reply}); err != nil {
		a.log.Warn("failed to speak reply", "error", err)
	}
}

// extractReply picks the human-facing text out of an action's output.
// "reply" is canonical; common alternates follow in fixed order.
func extractReply(outputs map[string]interface{}) string {
	for _, key := range []string{"reply", "content", "analysis", "output", "result", "text", "response"} {
		switch v := outputs[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]interface{}, []interface{}:
			if data, err := json.Marshal(v); err == nil {
				return string(data)
			}
		}
	}
	if len(outputs) > 0 {
		if data, err := json.Marshal(outputs); err == nil {
			return string(data)
		}
	}
	return ""
}

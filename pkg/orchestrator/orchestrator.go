// Package orchestrator executes plan DAGs level by level: actions
// within a topological level run concurrently, later levels see earlier
// outputs through the execution state, and failures walk the repair
// ladder (in-place correction, then replan for MAJOR priorities).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/iomapper"
	"github.com/connexhq/connex/pkg/logger"
	"github.com/connexhq/connex/pkg/plan"
	"github.com/connexhq/connex/pkg/skill"
)

// Corrector patches a failed action's inputs. Nil result means no
// repair is available.
type Corrector interface {
	Correct(ctx context.Context, skillName string, originalInputs map[string]interface{}, errorMessage string) map[string]interface{}
}

// Replanner builds a continuation plan after a MAJOR failure.
type Replanner interface {
	Replan(ctx context.Context, goal string, completed map[string]map[string]interface{}, failedAction, failureMessage string, candidates []*skill.Info) (*plan.Plan, error)
}

// SkillSource resolves skills and enumerates what is available.
type SkillSource interface {
	GetSkill(name string) (skill.Skill, error)
	ListInfos(includeDisabled bool) []*skill.Info
}

// Options tune execution behavior.
type Options struct {
	// DefaultTimeout bounds each action unless its metadata overrides it.
	DefaultTimeout time.Duration

	// SelfCorrection enables the corrector retry and replan escalation.
	SelfCorrection bool
}

const defaultActionTimeout = 60 * time.Second

type Orchestrator struct {
	skills    SkillSource
	corrector Corrector
	replanner Replanner
	opts      Options
	log       *slog.Logger
}

func New(skills SkillSource, opts Options) *Orchestrator {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultActionTimeout
	}
	return &Orchestrator{skills: skills, opts: opts, log: logger.GetLogger()}
}

func (o *Orchestrator) SetCorrector(c Corrector) { o.corrector = c }
func (o *Orchestrator) SetReplanner(r Replanner) { o.replanner = r }

// Result is the outcome of one plan execution.
type Result struct {
	Success bool

	// Output is the last completed action's mapped output.
	Output map[string]interface{}

	Completed map[string]map[string]interface{}
	Failed    map[string]string

	// Corrected lists actions that succeeded only after input repair.
	Corrected []string

	// Replanned is set when a MAJOR failure escalated to a new plan.
	Replanned bool

	// ConfigRequired halts execution; the caller must prompt the user.
	ConfigRequired *skill.MissingConfigError

	Errors []string
}

// Execute runs the plan with the full repair ladder enabled.
func (o *Orchestrator) Execute(ctx context.Context, p *plan.Plan) (*Result, error) {
	return o.run(ctx, p, NewExecutionState(), nil, true, 0)
}

// ExecuteStreaming runs the plan emitting lifecycle events. On a MAJOR
// failure it emits action_failed and stops without auto-repair; the
// caller decides whether to repair.
func (o *Orchestrator) ExecuteStreaming(ctx context.Context, p *plan.Plan, stream *event.Stream) (*Result, error) {
	return o.run(ctx, p, NewExecutionState(), stream, false, 0)
}

type actionOutcome struct {
	action    *plan.Action
	inputs    map[string]interface{}
	handle    skill.Skill
	failMsg   string
	configErr *skill.MissingConfigError
}

func (o *Orchestrator) run(ctx context.Context, p *plan.Plan, state *ExecutionState, stream *event.Stream, autoRepair bool, depth int) (*Result, error) {
	emit(stream, event.New(event.PhaseExecution, event.TypeExecutionStarted, map[string]interface{}{
		"goal":    p.Goal,
		"actions": len(p.Actions),
	}))

	result := &Result{Output: map[string]interface{}{}}

	if len(p.Actions) == 0 {
		result.Success = true
		result.Completed = state.Completed()
		result.Failed = state.Failed()
		emit(stream, event.New(event.PhaseExecution, event.TypeExecutionCompleted, map[string]interface{}{
			"success": true,
		}))
		return result, nil
	}

	levels, err := p.Generations()
	if err != nil {
		return nil, err
	}

	for levelIdx, level := range levels {
		ids := make([]string, len(level))
		for i, a := range level {
			ids[i] = a.ID
		}
		emit(stream, event.New(event.PhaseExecution, event.TypeLevelStarted, map[string]interface{}{
			"level":   levelIdx + 1,
			"actions": ids,
		}))

		outcomes := make([]*actionOutcome, len(level))
		var wg sync.WaitGroup
		for i, a := range level {
			wg.Add(1)
			go func(i int, a *plan.Action) {
				defer wg.Done()
				outcomes[i] = o.runAction(ctx, a, state, stream)
			}(i, a)
		}
		wg.Wait()

		for _, oc := range outcomes {
			if oc.configErr != nil {
				emit(stream, event.New(event.PhaseExecution, event.TypeConfigRequired, map[string]interface{}{
					"skill":        oc.configErr.Skill,
					"missing_keys": oc.configErr.MissingKeys,
					"schema":       oc.configErr.Schema,
				}))
				result.ConfigRequired = oc.configErr
				result.Completed = state.Completed()
				result.Failed = state.Failed()
				result.Errors = append(result.Errors, oc.configErr.Error())
				return result, nil
			}
		}

		for _, oc := range outcomes {
			if oc.failMsg == "" {
				continue
			}

			repaired := false
			if autoRepair && o.opts.SelfCorrection && o.corrector != nil && oc.handle != nil && oc.inputs != nil {
				repaired = o.tryCorrection(ctx, oc, state, stream, result)
			}
			if repaired {
				continue
			}

			switch oc.action.Priority {
			case plan.PrioritySkippable:
				continue
			case plan.PriorityMinor:
				o.log.Warn("minor action failed, continuing", "action", oc.action.ID, "error", oc.failMsg)
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", oc.action.ID, oc.failMsg))
				continue
			default: // MAJOR
				if autoRepair && o.opts.SelfCorrection && o.replanner != nil && depth == 0 {
					return o.replan(ctx, p, state, stream, result, oc)
				}
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", oc.action.ID, oc.failMsg))
				result.Completed = state.Completed()
				result.Failed = state.Failed()
				emit(stream, event.New(event.PhaseExecution, event.TypeExecutionCompleted, map[string]interface{}{
					"success": false,
					"errors":  result.Errors,
				}))
				return result, nil
			}
		}
	}

	result.Success = true
	result.Completed = state.Completed()
	result.Failed = state.Failed()
	if last, ok := state.LastCompleted(); ok {
		if out, ok := state.Outputs(last); ok {
			result.Output = out
		}
	}
	emit(stream, event.New(event.PhaseExecution, event.TypeExecutionCompleted, map[string]interface{}{
		"success": true,
		"output":  result.Output,
	}))
	return result, nil
}

func (o *Orchestrator) runAction(ctx context.Context, a *plan.Action, state *ExecutionState, stream *event.Stream) *actionOutcome {
	oc := &actionOutcome{action: a}
	emit(stream, event.New(event.PhaseExecution, event.TypeActionStarted, map[string]interface{}{
		"action_id": a.ID,
		"skill":     a.Skill,
	}))

	fail := func(msg string) *actionOutcome {
		oc.failMsg = msg
		state.Fail(a.ID, msg)
		emit(stream, event.New(event.PhaseExecution, event.TypeActionFailed, map[string]interface{}{
			"action_id": a.ID,
			"skill":     a.Skill,
			"error":     msg,
		}))
		return oc
	}

	s, err := o.skills.GetSkill(a.Skill)
	if err != nil {
		return fail(err.Error())
	}
	oc.handle = s

	if e, ok := s.(interface{ Enabled() bool }); ok && !e.Enabled() {
		return fail(fmt.Sprintf("skill %s is disabled", a.Skill))
	}

	if err := s.CheckConfig(); err != nil {
		var mce *skill.MissingConfigError
		if errors.As(err, &mce) {
			oc.configErr = mce
			state.Fail(a.ID, err.Error())
			return oc
		}
		return fail(err.Error())
	}

	inputs, warnings, err := iomapper.ResolveInputs(a, state.Lookup, s.Info())
	if err != nil {
		return fail(err.Error())
	}
	for _, w := range warnings {
		o.log.Debug("input mapping warning", "action", a.ID, "warning", w)
	}
	oc.inputs = inputs

	if err := s.ValidateInputs(inputs); err != nil {
		return fail(err.Error())
	}

	outputs, err := o.invoke(ctx, s, a, inputs)
	if err != nil {
		return fail(err.Error())
	}

	mapped, failMsg := o.mapOutputs(a, s, outputs)
	if failMsg != "" {
		return fail(failMsg)
	}

	state.Complete(a.ID, mapped)
	emit(stream, event.New(event.PhaseExecution, event.TypeActionCompleted, map[string]interface{}{
		"action_id": a.ID,
		"skill":     a.Skill,
		"outputs":   mapped,
	}))
	return oc
}

// invoke runs the skill body under the effective timeout. A deadline or
// cancellation becomes a timeout failure naming the budget.
func (o *Orchestrator) invoke(ctx context.Context, s skill.Skill, a *plan.Action, inputs map[string]interface{}) (map[string]interface{}, error) {
	timeout := o.opts.DefaultTimeout
	if a.Metadata.TimeoutSeconds > 0 {
		timeout = time.Duration(a.Metadata.TimeoutSeconds) * time.Second
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type execResult struct {
		outputs map[string]interface{}
		err     error
	}
	done := make(chan execResult, 1)
	go func() {
		prepared, err := s.PreExecute(tctx, inputs)
		if err != nil {
			done <- execResult{err: err}
			return
		}
		outputs, err := s.Execute(tctx, prepared)
		if err != nil {
			done <- execResult{err: err}
			return
		}
		outputs, err = s.PostExecute(tctx, outputs)
		done <- execResult{outputs: outputs, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && tctx.Err() != nil {
			return nil, fmt.Errorf("action %s timed out after %s", a.ID, timeout)
		}
		return r.outputs, r.err
	case <-tctx.Done():
		return nil, fmt.Errorf("action %s timed out after %s", a.ID, timeout)
	}
}

// mapOutputs smart-validates the output; an explicit success=false
// becomes a failure message.
func (o *Orchestrator) mapOutputs(a *plan.Action, s skill.Skill, outputs map[string]interface{}) (map[string]interface{}, string) {
	mapped, warnings, err := iomapper.MapOutputs(outputs, s.Info().Outputs)
	if err != nil {
		return nil, err.Error()
	}
	for _, w := range warnings {
		o.log.Debug("output mapping warning", "action", a.ID, "warning", w)
	}
	if success, ok := mapped["success"].(bool); ok && !success {
		msg, _ := mapped["error"].(string)
		if msg == "" {
			msg = fmt.Sprintf("skill %s reported failure", a.Skill)
		}
		return nil, msg
	}
	return mapped, ""
}

// tryCorrection asks the corrector for patched inputs and retries once.
func (o *Orchestrator) tryCorrection(ctx context.Context, oc *actionOutcome, state *ExecutionState, stream *event.Stream, result *Result) bool {
	emit(stream, event.New(event.PhaseExecution, event.TypeCorrectionStarted, map[string]interface{}{
		"action_id": oc.action.ID,
		"skill":     oc.action.Skill,
		"error":     oc.failMsg,
	}))

	patch := o.corrector.Correct(ctx, oc.action.Skill, oc.inputs, oc.failMsg)
	if patch == nil {
		return false
	}
	patch = sanitizePatch(patch, oc.handle.Info().Inputs)
	if len(patch) == 0 {
		return false
	}

	if err := oc.handle.ValidateInputs(patch); err != nil {
		o.log.Debug("corrected inputs failed validation", "action", oc.action.ID, "error", err)
		return false
	}

	outputs, err := o.invoke(ctx, oc.handle, oc.action, patch)
	if err != nil {
		o.log.Debug("corrected retry failed", "action", oc.action.ID, "error", err)
		return false
	}
	mapped, failMsg := o.mapOutputs(oc.action, oc.handle, outputs)
	if failMsg != "" {
		return false
	}

	state.Complete(oc.action.ID, mapped)
	result.Corrected = append(result.Corrected, oc.action.ID)
	emit(stream, event.New(event.PhaseExecution, event.TypeActionCompleted, map[string]interface{}{
		"action_id": oc.action.ID,
		"skill":     oc.action.Skill,
		"outputs":   mapped,
		"corrected": true,
	}))
	return true
}

// replan escalates a MAJOR failure: one continuation plan, executed
// over the same state, with no further replan attempts.
func (o *Orchestrator) replan(ctx context.Context, p *plan.Plan, state *ExecutionState, stream *event.Stream, result *Result, oc *actionOutcome) (*Result, error) {
	o.log.Info("escalating to replan", "action", oc.action.ID, "error", oc.failMsg)

	next, err := o.replanner.Replan(ctx, p.Goal, state.Completed(), oc.action.ID, oc.failMsg, o.skills.ListInfos(false))
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s: %s", oc.action.ID, oc.failMsg),
			fmt.Sprintf("replanning failed: %v", err))
		result.Completed = state.Completed()
		result.Failed = state.Failed()
		emit(stream, event.New(event.PhaseExecution, event.TypeExecutionCompleted, map[string]interface{}{
			"success": false,
			"errors":  result.Errors,
		}))
		return result, nil
	}

	sub, err := o.run(ctx, next, state, stream, true, 1)
	if err != nil {
		return nil, err
	}
	sub.Replanned = true
	sub.Corrected = append(result.Corrected, sub.Corrected...)
	sub.Errors = append(result.Errors, sub.Errors...)
	return sub, nil
}

// sanitizePatch drops patched keys the skill does not declare.
func sanitizePatch(patch map[string]interface{}, schema *skill.InputSchema) map[string]interface{} {
	if schema == nil || len(schema.Properties) == 0 {
		return patch
	}
	out := make(map[string]interface{}, len(patch))
	for k, v := range patch {
		if _, ok := schema.Properties[k]; ok {
			out[k] = v
		}
	}
	return out
}

func emit(stream *event.Stream, ev *event.Event) {
	if stream != nil {
		stream.Emit(ev)
	}
}

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/plan"
	"github.com/connexhq/connex/pkg/skill"
)

type scriptedSkill struct {
	skill.Base
	mu    sync.Mutex
	runs  []map[string]interface{}
	run   func(call int, inputs map[string]interface{}) (map[string]interface{}, error)
	delay time.Duration
}

func (s *scriptedSkill) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.runs = append(s.runs, inputs)
	call := len(s.runs)
	s.mu.Unlock()
	if s.run == nil {
		return map[string]interface{}{"success": true}, nil
	}
	return s.run(call, inputs)
}

func (s *scriptedSkill) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

type fakeSkills struct {
	skills map[string]skill.Skill
}

func (f *fakeSkills) GetSkill(name string) (skill.Skill, error) {
	s, ok := f.skills[name]
	if !ok {
		return nil, &skill.NotFoundError{Name: name}
	}
	return s, nil
}

func (f *fakeSkills) ListInfos(bool) []*skill.Info {
	var infos []*skill.Info
	for _, s := range f.skills {
		infos = append(infos, s.Info())
	}
	return infos
}

func newSkill(name string, outputs skill.OutputSchema, run func(int, map[string]interface{}) (map[string]interface{}, error)) *scriptedSkill {
	return &scriptedSkill{
		Base: skill.NewBase(&skill.Info{Name: name, Description: name, Outputs: outputs}),
		run:  run,
	}
}

type fixedCorrector struct {
	patch map[string]interface{}
	calls int
}

func (c *fixedCorrector) Correct(context.Context, string, map[string]interface{}, string) map[string]interface{} {
	c.calls++
	return c.patch
}

type fixedReplanner struct {
	next  *plan.Plan
	err   error
	calls int
}

func (r *fixedReplanner) Replan(_ context.Context, _ string, _ map[string]map[string]interface{}, _ string, _ string, _ []*skill.Info) (*plan.Plan, error) {
	r.calls++
	return r.next, r.err
}

func TestEmptyPlanSucceeds(t *testing.T) {
	o := New(&fakeSkills{}, Options{})
	res, err := o.Execute(context.Background(), &plan.Plan{Goal: "nothing"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Output)
}

func TestDependencyOrderedExecution(t *testing.T) {
	search := newSkill("web_search", skill.OutputSchema{"results": "string"}, func(int, map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"success": true, "results": "asyncio docs"}, nil
	})
	var analyzerSaw string
	analyzer := newSkill("text_analyzer", skill.OutputSchema{"analysis": "string"}, func(_ int, inputs map[string]interface{}) (map[string]interface{}, error) {
		analyzerSaw, _ = inputs["text"].(string)
		return map[string]interface{}{"success": true, "analysis": "summary"}, nil
	})
	skills := &fakeSkills{skills: map[string]skill.Skill{"web_search": search, "text_analyzer": analyzer}}

	p := &plan.Plan{
		Goal: "research asyncio",
		Actions: []*plan.Action{
			{ID: "action_1", Skill: "web_search", Inputs: map[string]interface{}{"query": "python asyncio"}},
			{ID: "action_2", Skill: "text_analyzer",
				InputRefs: map[string]string{"text": "action_1.results"},
				DependsOn: []string{"action_1"}},
		},
	}

	stream := event.NewStream(256)
	o := New(skills, Options{})
	res, err := o.ExecuteStreaming(context.Background(), p, stream)
	require.NoError(t, err)
	stream.Close()

	assert.True(t, res.Success)
	assert.Equal(t, "asyncio docs", analyzerSaw)
	assert.Equal(t, "summary", res.Output["analysis"])

	var types []event.Type
	for ev := range stream.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []event.Type{
		event.TypeExecutionStarted,
		event.TypeLevelStarted,
		event.TypeActionStarted,
		event.TypeActionCompleted,
		event.TypeLevelStarted,
		event.TypeActionStarted,
		event.TypeActionCompleted,
		event.TypeExecutionCompleted,
	}, types)
}

func TestSelfCorrectionRetriesOnce(t *testing.T) {
	executor := &scriptedSkill{
		Base: skill.NewBase(&skill.Info{
			Name: "code_executor",
			Inputs: &skill.InputSchema{
				Properties: map[string]*skill.Parameter{"code": {Type: "string"}},
				Required:   []string{"code"},
			},
			Outputs: skill.OutputSchema{"output": "string"},
		}),
		run: func(call int, inputs map[string]interface{}) (map[string]interface{}, error) {
			if code, _ := inputs["code"].(string); code == "print('Hi')" {
				return map[string]interface{}{"success": true, "output": "Hi"}, nil
			}
			return map[string]interface{}{"success": false, "error": "SyntaxError: unterminated string"}, nil
		},
	}
	skills := &fakeSkills{skills: map[string]skill.Skill{"code_executor": executor}}

	corrector := &fixedCorrector{patch: map[string]interface{}{"code": "print('Hi')", "bogus_key": 1}}
	o := New(skills, Options{SelfCorrection: true})
	o.SetCorrector(corrector)

	p := &plan.Plan{Goal: "run code", Actions: []*plan.Action{
		{ID: "action_1", Skill: "code_executor", Inputs: map[string]interface{}{"code": "print('Hi'"}},
	}}
	res, err := o.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, []string{"action_1"}, res.Corrected)
	assert.Equal(t, "Hi", res.Output["output"])
	assert.Equal(t, 1, corrector.calls)
	require.Equal(t, 2, executor.callCount())
	// sanitization drops keys outside the declared schema
	_, hasBogus := executor.runs[1]["bogus_key"]
	assert.False(t, hasBogus)
}

func TestMajorFailureWithoutSelfCorrectionAborts(t *testing.T) {
	failing := newSkill("web_search", nil, func(int, map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("network unreachable")
	})
	skills := &fakeSkills{skills: map[string]skill.Skill{"web_search": failing}}

	o := New(skills, Options{SelfCorrection: false})
	p := &plan.Plan{Goal: "search", Actions: []*plan.Action{
		{ID: "action_1", Skill: "web_search", Priority: plan.PriorityMajor},
	}}
	res, err := o.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "network unreachable")
}

func TestMajorFailureTriggersExactlyOneReplan(t *testing.T) {
	alwaysFails := newSkill("web_search", nil, func(int, map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"success": false, "error": "still broken"}, nil
	})
	skills := &fakeSkills{skills: map[string]skill.Skill{"web_search": alwaysFails}}

	replanner := &fixedReplanner{next: &plan.Plan{Goal: "retry", Actions: []*plan.Action{
		{ID: "action_1", Skill: "web_search", Priority: plan.PriorityMajor},
	}}}
	o := New(skills, Options{SelfCorrection: true})
	o.SetReplanner(replanner)

	p := &plan.Plan{Goal: "search", Actions: []*plan.Action{
		{ID: "action_1", Skill: "web_search", Priority: plan.PriorityMajor},
	}}
	res, err := o.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.Replanned)
	assert.Equal(t, 1, replanner.calls, "replanning must not loop")
}

func TestMinorAndSkippableFailuresContinue(t *testing.T) {
	flaky := newSkill("flaky", nil, func(int, map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("transient")
	})
	steady := newSkill("steady", skill.OutputSchema{"done": "boolean"}, func(int, map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"success": true, "done": true}, nil
	})
	skills := &fakeSkills{skills: map[string]skill.Skill{"flaky": flaky, "steady": steady}}

	o := New(skills, Options{})
	p := &plan.Plan{Goal: "mixed", Actions: []*plan.Action{
		{ID: "action_1", Skill: "flaky", Priority: plan.PriorityMinor},
		{ID: "action_2", Skill: "flaky", Priority: plan.PrioritySkippable},
		{ID: "action_3", Skill: "steady", DependsOn: []string{"action_1", "action_2"}, Priority: plan.PriorityMajor},
	}}
	res, err := o.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, true, res.Output["done"])
	assert.Len(t, res.Failed, 2)
	require.Len(t, res.Errors, 1, "only the minor failure is reported")
}

func TestConfigRequiredHaltsCleanly(t *testing.T) {
	search := &scriptedSkill{
		Base: skill.NewBase(&skill.Info{
			Name: "web_search",
			Config: skill.ConfigSchema{
				"api_key": {Description: "Search API key", Required: true},
			},
		}),
	}
	skills := &fakeSkills{skills: map[string]skill.Skill{"web_search": search}}

	stream := event.NewStream(256)
	o := New(skills, Options{})
	p := &plan.Plan{Goal: "search", Actions: []*plan.Action{
		{ID: "action_1", Skill: "web_search"},
	}}
	res, err := o.ExecuteStreaming(context.Background(), p, stream)
	require.NoError(t, err)
	stream.Close()

	assert.False(t, res.Success)
	require.NotNil(t, res.ConfigRequired)
	assert.Equal(t, "web_search", res.ConfigRequired.Skill)
	assert.Equal(t, []string{"api_key"}, res.ConfigRequired.MissingKeys)
	assert.Equal(t, 0, search.callCount())

	var sawConfigRequired, sawCompleted bool
	for ev := range stream.Events() {
		switch ev.Type {
		case event.TypeConfigRequired:
			sawConfigRequired = true
			assert.Equal(t, "web_search", ev.Payload["skill"])
		case event.TypeActionCompleted:
			sawCompleted = true
		}
	}
	assert.True(t, sawConfigRequired)
	assert.False(t, sawCompleted)
}

func TestTimeoutNamesTheBudget(t *testing.T) {
	slow := newSkill("slow", nil, nil)
	slow.delay = 200 * time.Millisecond
	skills := &fakeSkills{skills: map[string]skill.Skill{"slow": slow}}

	o := New(skills, Options{DefaultTimeout: 20 * time.Millisecond})
	p := &plan.Plan{Goal: "wait", Actions: []*plan.Action{
		{ID: "action_1", Skill: "slow", Priority: plan.PriorityMajor},
	}}
	res, err := o.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "timed out after 20ms")
}

func TestStreamingStopsAtFailureWithoutRepair(t *testing.T) {
	failing := newSkill("web_search", nil, func(int, map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("boom")
	})
	skills := &fakeSkills{skills: map[string]skill.Skill{"web_search": failing}}

	corrector := &fixedCorrector{patch: map[string]interface{}{"query": "fixed"}}
	o := New(skills, Options{SelfCorrection: true})
	o.SetCorrector(corrector)

	stream := event.NewStream(256)
	p := &plan.Plan{Goal: "search", Actions: []*plan.Action{
		{ID: "action_1", Skill: "web_search", Priority: plan.PriorityMajor},
	}}
	res, err := o.ExecuteStreaming(context.Background(), p, stream)
	require.NoError(t, err)
	stream.Close()

	assert.False(t, res.Success)
	assert.Equal(t, 0, corrector.calls, "streaming never auto-repairs")

	var sawFailed bool
	for ev := range stream.Events() {
		if ev.Type == event.TypeActionFailed {
			sawFailed = true
		}
	}
	assert.True(t, sawFailed)
}

func TestDisabledSkillFails(t *testing.T) {
	s := newSkill("off", nil, nil)
	s.Configure(map[string]interface{}{"enabled": false})
	skills := &fakeSkills{skills: map[string]skill.Skill{"off": s}}

	o := New(skills, Options{})
	p := &plan.Plan{Goal: "try", Actions: []*plan.Action{
		{ID: "action_1", Skill: "off", Priority: plan.PriorityMajor},
	}}
	res, err := o.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "disabled")
}

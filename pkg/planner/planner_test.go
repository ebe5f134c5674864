package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/perception"
	"github.com/connexhq/connex/pkg/skill"
	"github.com/connexhq/connex/pkg/store"
)

type scriptedModels struct {
	planOutput string
	fastOutput string
	fastErr    error
	lastSystem string
	lastUser   string
}

func (m *scriptedModels) Chat(_ context.Context, class llm.TaskClass, messages []llm.Message, opts llm.ChatOptions) (string, error) {
	if class == llm.TaskFast {
		return m.fastOutput, m.fastErr
	}
	m.lastSystem = opts.SystemPrompt
	m.lastUser = messages[len(messages)-1].Content
	return m.planOutput, nil
}

func (m *scriptedModels) StreamChat(_ context.Context, _ llm.TaskClass, _ []llm.Message, _ llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, len(m.planOutput)+1)
	for _, r := range m.planOutput {
		ch <- llm.StreamChunk{Type: llm.ChunkText, Text: string(r)}
	}
	ch <- llm.StreamChunk{Type: llm.ChunkDone}
	close(ch)
	return ch, nil
}

func candidates() []*skill.Info {
	return []*skill.Info{
		{
			Name:        "web_search",
			Description: "Searches the web",
			Inputs: &skill.InputSchema{
				Properties: map[string]*skill.Parameter{"query": {Type: "string"}},
				Required:   []string{"query"},
			},
			Outputs: skill.OutputSchema{"results": "array"},
		},
		{
			Name:        "text_analyzer",
			Description: "Analyzes text",
			Inputs: &skill.InputSchema{
				Properties: map[string]*skill.Parameter{
					"text":   {Type: "string"},
					"action": {Type: "string", Enum: []string{"summarize", "sentiment"}},
				},
				Required: []string{"text"},
			},
			Outputs: skill.OutputSchema{"analysis": "string"},
		},
	}
}

const twoActionPlan = "Here is the plan:\n```json\n" + `{
  "goal": "research asyncio",
  "actions": [
    {"id": "action_1", "skill": "web_search", "inputs": {"query": "python asyncio"}},
    {"id": "action_2", "skill": "text_analyzer",
     "input_refs": {"text": "action_1.results"},
     "depends_on": ["action_1"], "priority": "minor"}
  ]
}` + "\n```"

func TestCreatePlanParsesFencedJSON(t *testing.T) {
	models := &scriptedModels{planOutput: twoActionPlan}
	p := New(models)

	built, err := p.CreatePlan(context.Background(), "research asyncio", "", candidates())
	require.NoError(t, err)
	require.Len(t, built.Actions, 2)
	assert.Equal(t, "web_search", built.Actions[0].Skill)
	assert.Equal(t, []string{"action_1"}, built.Actions[1].DependsOn)

	// prompt enumerates candidate skills with enums
	assert.Contains(t, models.lastSystem, "web_search")
	assert.Contains(t, models.lastSystem, "summarize | sentiment")
	assert.Contains(t, models.lastUser, "research asyncio")
}

func TestCreatePlanRejectsUnknownSkill(t *testing.T) {
	models := &scriptedModels{planOutput: `{"actions":[{"id":"a1","skill":"teleport","inputs":{}}]}`}
	p := New(models)

	_, err := p.CreatePlan(context.Background(), "go somewhere", "", candidates())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

func TestCreatePlanRejectsCycle(t *testing.T) {
	models := &scriptedModels{planOutput: `{"actions":[
		{"id":"a1","skill":"web_search","depends_on":["a2"]},
		{"id":"a2","skill":"text_analyzer","depends_on":["a1"]}]}`}
	p := New(models)

	_, err := p.CreatePlan(context.Background(), "loop", "", candidates())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestCreatePlanStreamingEmitsTokensThenComplete(t *testing.T) {
	models := &scriptedModels{planOutput: `{"actions":[{"id":"a1","skill":"web_search","inputs":{"query":"x"}}]}`}
	p := New(models)
	stream := event.NewStream(4096)

	built, err := p.CreatePlanStreaming(context.Background(), "search", "", candidates(), stream)
	require.NoError(t, err)
	require.NotNil(t, built)
	stream.Close()

	var sawToken, sawComplete bool
	for ev := range stream.Events() {
		switch ev.Type {
		case event.TypeReasoningToken:
			sawToken = true
			assert.False(t, sawComplete, "tokens must precede plan_complete")
		case event.TypePlanComplete:
			sawComplete = true
		}
	}
	assert.True(t, sawToken)
	assert.True(t, sawComplete)
}

func TestCreatePlanStreamingEmitsPlanningError(t *testing.T) {
	models := &scriptedModels{planOutput: "I cannot produce a plan, sorry."}
	p := New(models)
	stream := event.NewStream(4096)

	_, err := p.CreatePlanStreaming(context.Background(), "search", "", candidates(), stream)
	require.Error(t, err)
	stream.Close()

	var sawError bool
	for ev := range stream.Events() {
		if ev.Type == event.TypePlanningError {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("no embedding provider")
}

func TestContextGatheringDegradesSilently(t *testing.T) {
	db, err := store.OpenSQLite(t.TempDir() + "/p.db")
	require.NoError(t, err)
	defer db.Close()
	layer := perception.NewLayer(db, failingEmbedder{})

	models := &scriptedModels{
		planOutput: `{"actions":[{"id":"a1","skill":"web_search","inputs":{"query":"x"}}]}`,
		fastErr:    errors.New("fast model down"),
	}
	p := New(models)
	p.SetSensors(layer)

	built, err := p.CreatePlan(context.Background(), "search the web", "", candidates())
	require.NoError(t, err)
	assert.Len(t, built.Actions, 1)
}

func TestReplanPromptCarriesContext(t *testing.T) {
	models := &scriptedModels{planOutput: `{"actions":[{"id":"a1","skill":"web_search","inputs":{"query":"retry"}}]}`}
	p := New(models)

	completed := map[string]map[string]interface{}{
		"action_1": {"results": []interface{}{}},
	}
	_, err := p.Replan(context.Background(), "research asyncio", completed, "action_2", "analyzer crashed", candidates())
	require.NoError(t, err)

	assert.Contains(t, models.lastUser, "action_1")
	assert.Contains(t, models.lastUser, "analyzer crashed")
	assert.Contains(t, models.lastUser, "do not repeat")
}

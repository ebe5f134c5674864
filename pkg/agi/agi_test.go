package agi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexhq/connex/pkg/config"
	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/llm"
	"github.com/connexhq/connex/pkg/skill"
)

// scriptedProvider answers each model call by recognizing the system
// prompt of the caller. Embeddings always fail so retrieval exercises
// its lexical fallback deterministically.
type scriptedProvider struct {
	mu        sync.Mutex
	intent    string
	chatReply string
	planJSON  string
	emotion   string
}

func (p *scriptedProvider) Name() string { return "openai" }

func (p *scriptedProvider) reply(opts llm.ChatOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case strings.Contains(opts.SystemPrompt, "intent classifier"):
		return p.intent, nil
	case strings.Contains(opts.SystemPrompt, "dominant emotion"):
		return p.emotion, nil
	case strings.Contains(opts.SystemPrompt, "environmental information"):
		return "none", nil
	case strings.Contains(opts.SystemPrompt, "You are Connex"):
		return p.chatReply, nil
	case strings.Contains(opts.SystemPrompt, "Write a new skill"):
		return "", fmt.Errorf("skill generation not scripted")
	case strings.Contains(opts.SystemPrompt, "single JSON object"):
		return p.planJSON, nil
	}
	return "", fmt.Errorf("unexpected system prompt: %.60q", opts.SystemPrompt)
}

func (p *scriptedProvider) Chat(_ context.Context, _ string, _ []llm.Message, opts llm.ChatOptions) (string, error) {
	return p.reply(opts)
}

func (p *scriptedProvider) StreamChat(_ context.Context, _ string, _ []llm.Message, opts llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	out, err := p.reply(opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, len(out)+1)
	for len(out) > 0 {
		n := 16
		if n > len(out) {
			n = len(out)
		}
		ch <- llm.StreamChunk{Type: llm.ChunkText, Text: out[:n]}
		out = out[n:]
	}
	ch <- llm.StreamChunk{Type: llm.ChunkDone}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Embed(context.Context, string, string) ([]float32, error) {
	return nil, fmt.Errorf("no embedding model")
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{intent: "CHAT", chatReply: "Hello!", emotion: "curious"}
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	return &config.Settings{
		DataDir:             dir,
		SkillDBPath:         filepath.Join(dir, "skills.db"),
		StoreDBPath:         filepath.Join(dir, "connex.db"),
		TimeEventsPath:      filepath.Join(dir, "time_events.json"),
		ActionTimeout:       5 * time.Second,
		SelfCorrection:      true,
		ShortTermCapacity:   10,
		RecallThreshold:     0.35,
		SkillReviewInterval: time.Hour,
	}
}

func newTestRuntime(t *testing.T, settings *config.Settings, p *scriptedProvider) *AGI {
	t.Helper()
	a, err := NewWithModels(settings, llm.NewRouterWithProviders(p))
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background()))
	t.Cleanup(a.Shutdown)
	return a
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// bannerSkill is a deterministic capability for plan-path tests. Its
// description carries the word "farewell" so lexical retrieval finds it.
type bannerSkill struct {
	skill.Base
}

func newBannerSkill() *bannerSkill {
	return &bannerSkill{Base: skill.NewBase(&skill.Info{
		Name:        "banner_writer",
		Description: "Renders farewell banners for team departures",
		Category:    "testing",
		Inputs: &skill.InputSchema{
			Properties: map[string]*skill.Parameter{
				"text": {Type: "string", Description: "Banner text"},
			},
			Required: []string{"text"},
		},
		Outputs: skill.OutputSchema{"content": "string"},
	})}
}

func (s *bannerSkill) Execute(_ context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	text, _ := inputs["text"].(string)
	return map[string]interface{}{"success": true, "content": strings.ToUpper(text)}, nil
}

func bannerPlanJSON(goal string) string {
	return fmt.Sprintf(`{
  "goal": %q,
  "reasoning": "One rendering step suffices.",
  "actions": [
    {"id": "action_1", "skill": "banner_writer", "description": "Render the farewell banner",
     "inputs": {"text": "So long, team"}, "priority": "MAJOR"}
  ]
}`, goal)
}

func TestChatFastPathSkipsPlanning(t *testing.T) {
	p := newScriptedProvider()
	p.chatReply = "Hi there! How can I help?"
	a := newTestRuntime(t, testSettings(t), p)

	res, err := a.Execute(context.Background(), "hello", nil, false)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Hi there! How can I help?", res.Reply)
	assert.Nil(t, res.Plan)
	assert.Equal(t, "CHAT", res.Metadata["intent"])

	turns := a.Memory().Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "hello", turns[0].Goal)
	assert.Equal(t, "Hi there! How can I help?", turns[0].Result)

	// The emotion read runs off the hot path.
	assert.True(t, waitFor(t, 2*time.Second, func() bool {
		return a.Memory().Emotion() == "curious"
	}))
}

func TestExecutePlansAndRunsActions(t *testing.T) {
	goal := "Compose a farewell banner for the team"
	p := newScriptedProvider()
	p.intent = "PLAN"
	p.planJSON = bannerPlanJSON(goal)

	a := newTestRuntime(t, testSettings(t), p)
	require.NoError(t, a.Skills().Register(context.Background(), newBannerSkill()))

	res, err := a.Execute(context.Background(), goal, nil, false)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "SO LONG, TEAM", res.Reply)
	require.NotNil(t, res.Plan)
	assert.Len(t, res.Plan.Actions, 1)
	assert.Equal(t, "PLAN", res.Metadata["intent"])
	assert.Equal(t, false, res.Metadata["replanned"])

	turns := a.Memory().Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, goal, turns[0].Goal)
	assert.Equal(t, "SO LONG, TEAM", turns[0].Result)
}

func TestExecuteReportsUnplannableGoal(t *testing.T) {
	p := newScriptedProvider()
	p.intent = "PLAN"
	p.planJSON = "I cannot help with that."

	a := newTestRuntime(t, testSettings(t), p)

	res, err := a.Execute(context.Background(), "do something impossible", nil, false)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Reply, "couldn't work out a plan")
	require.NotEmpty(t, res.Errors)
}

func TestInjectEventRunsVoiceCommand(t *testing.T) {
	p := newScriptedProvider()
	p.chatReply = "The lights are off."
	a := newTestRuntime(t, testSettings(t), p)

	a.InjectEvent(event.NewSignal(event.SignalVoiceInput, map[string]interface{}{
		"text":   "turn off the lights",
		"status": "success",
	}))

	// The spoken command recurses through the pipeline; its exchange and
	// the reflex plan's own turn both land in short-term memory.
	ok := waitFor(t, 3*time.Second, func() bool {
		goals := map[string]bool{}
		for _, turn := range a.Memory().Turns() {
			goals[turn.Goal] = true
		}
		return goals["turn off the lights"] && goals["Reflex Trigger: voice_commander"]
	})
	require.True(t, ok, "voice command did not reach the pipeline: %+v", a.Memory().Turns())
}

func TestExecuteStreamingEventOrder(t *testing.T) {
	goal := "Compose a farewell banner for the launch"
	p := newScriptedProvider()
	p.intent = "PLAN"
	p.planJSON = bannerPlanJSON(goal)

	a := newTestRuntime(t, testSettings(t), p)
	require.NoError(t, a.Skills().Register(context.Background(), newBannerSkill()))

	stream := event.NewStream(256)
	res := a.ExecuteStreaming(context.Background(), goal, nil, false, stream)
	stream.Close()

	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "SO LONG, TEAM", res.Reply)

	var types []event.Type
	var last *event.Event
	for ev := range stream.Events() {
		types = append(types, ev.Type)
		last = ev
	}

	index := func(typ event.Type) int {
		for i, got := range types {
			if got == typ {
				return i
			}
		}
		return -1
	}

	assert.Equal(t, event.TypeIntentDetected, types[0])
	assert.Less(t, index(event.TypePlanStarted), index(event.TypeReasoningToken))
	assert.Less(t, index(event.TypeReasoningToken), index(event.TypePlanComplete))
	assert.Less(t, index(event.TypePlanComplete), index(event.TypeExecutionStarted))
	assert.Less(t, index(event.TypeExecutionStarted), index(event.TypeActionCompleted))

	require.NotNil(t, last)
	assert.Equal(t, event.TypeExecutionCompleted, last.Type)
	assert.Equal(t, true, last.Payload["success"])
}

func TestReviewLoopInstallsRemoteSkill(t *testing.T) {
	manifest := `{"name": "pdf_splitter", "type": "command", "main": "agent.sh",
  "description": "Splits PDF documents into pages", "category": "documents"}`
	script := "#!/bin/sh\ncat >/dev/null\necho '{\"success\": true}'\n"

	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "split pdf documents", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"name": "low_rated", "rating": 2.1, "downloads": 9000,
				"files": map[string]string{"connex.json": manifest},
			},
			{
				"name": "pdf_splitter", "rating": 4.8, "downloads": 512,
				"files": map[string]string{"connex.json": manifest, "agent.sh": script},
			},
		})
	}))
	defer registry.Close()

	settings := testSettings(t)
	settings.SkillRegistryURL = registry.URL
	settings.SkillReviewInterval = 50 * time.Millisecond

	p := newScriptedProvider()
	a, err := NewWithModels(settings, llm.NewRouterWithProviders(p))
	require.NoError(t, err)
	require.NoError(t, a.Store().LogSkillRequest(context.Background(), "split pdf documents"))
	require.NoError(t, a.Initialize(context.Background()))
	t.Cleanup(a.Shutdown)

	ok := waitFor(t, 3*time.Second, func() bool {
		_, err := a.Skills().GetSkill("pdf_splitter")
		return err == nil
	})
	require.True(t, ok, "remote skill was not installed")

	requests, err := a.Store().ListSkillRequests(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "found_remote", requests[0].Status)
}

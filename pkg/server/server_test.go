package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexhq/connex/pkg/agi"
	"github.com/connexhq/connex/pkg/auth"
	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/skill"
)

type stubRuntime struct {
	skills *skill.Registry
	result *agi.ExecuteResult
	events []*event.Event
	err    error

	mu        sync.Mutex
	lastGoal  string
	lastSpeak bool
}

func (s *stubRuntime) Execute(_ context.Context, goal string, _ map[string]interface{}, speak bool) (*agi.ExecuteResult, error) {
	s.mu.Lock()
	s.lastGoal, s.lastSpeak = goal, speak
	s.mu.Unlock()
	return s.result, s.err
}

func (s *stubRuntime) ExecuteStreaming(_ context.Context, goal string, _ map[string]interface{}, speak bool, stream *event.Stream) *agi.ExecuteResult {
	s.mu.Lock()
	s.lastGoal, s.lastSpeak = goal, speak
	s.mu.Unlock()
	for _, ev := range s.events {
		stream.Emit(ev)
	}
	return s.result
}

func (s *stubRuntime) Skills() *skill.Registry { return s.skills }

type echoSkill struct{ skill.Base }

func newEchoSkill() *echoSkill {
	return &echoSkill{Base: skill.NewBase(&skill.Info{
		Name:        "echo",
		Description: "Echoes its inputs back",
		Category:    "testing",
	})}
}

func (e *echoSkill) Execute(_ context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{"success": true}
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil
}

func newStubRuntime(t *testing.T) *stubRuntime {
	t.Helper()
	st, err := skill.OpenStore(filepath.Join(t.TempDir(), "skills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := skill.NewRegistry(st, nil, "")
	require.NoError(t, reg.Register(context.Background(), newEchoSkill()))

	return &stubRuntime{
		skills: reg,
		result: &agi.ExecuteResult{
			Success:  true,
			Reply:    "All done.",
			Metadata: map[string]interface{}{"intent": "PLAN"},
		},
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(New(newStubRuntime(t), Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "connex_http_request_duration_seconds")
}

func TestRunEndpoint(t *testing.T) {
	rt := newStubRuntime(t)
	srv := httptest.NewServer(New(rt, Options{}).Handler())
	defer srv.Close()

	// "speak" arrives as a string; the decoder is lenient about it.
	body := strings.NewReader(`{"goal": "tidy the downloads folder", "speak": "true"}`)
	resp, err := http.Post(srv.URL+"/v1/run", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res agi.ExecuteResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.True(t, res.Success)
	assert.Equal(t, "All done.", res.Reply)
	assert.Equal(t, "tidy the downloads folder", rt.lastGoal)
	assert.True(t, rt.lastSpeak)
}

func TestRunRejectsMissingGoal(t *testing.T) {
	srv := httptest.NewServer(New(newStubRuntime(t), Options{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/run", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type sseFrame struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var f sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
		require.NotEmpty(t, f.name, "frame without event name: %q", block)
		frames = append(frames, f)
	}
	return frames
}

func TestExecuteStreamsEvents(t *testing.T) {
	rt := newStubRuntime(t)
	rt.events = []*event.Event{
		event.New(event.PhaseExecution, event.TypeExecutionStarted, map[string]interface{}{"actions": 1}),
		event.New(event.PhaseExecution, event.TypeExecutionCompleted, map[string]interface{}{"success": true}),
	}
	srv := httptest.NewServer(New(rt, Options{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/execute", "application/json",
		strings.NewReader(`{"goal": "water the plants"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	frames := parseSSE(t, string(body))
	require.Len(t, frames, 4)
	assert.Equal(t, "start", frames[0].name)
	assert.Equal(t, "update", frames[1].name)
	assert.Equal(t, "update", frames[2].name)
	assert.Equal(t, "done", frames[3].name)

	var done agi.ExecuteResult
	require.NoError(t, json.Unmarshal([]byte(frames[3].data), &done))
	assert.True(t, done.Success)
	assert.Equal(t, "All done.", done.Reply)

	var update event.Event
	require.NoError(t, json.Unmarshal([]byte(frames[1].data), &update))
	assert.Equal(t, event.TypeExecutionStarted, update.Type)
}

// brokenWriter accepts the first frame, then fails every write, the
// way a disconnected SSE client does.
type brokenWriter struct {
	header http.Header
	writes int
}

func (b *brokenWriter) Header() http.Header {
	if b.header == nil {
		b.header = http.Header{}
	}
	return b.header
}

func (b *brokenWriter) WriteHeader(int) {}
func (b *brokenWriter) Flush()          {}

func (b *brokenWriter) Write(p []byte) (int, error) {
	b.writes++
	if b.writes > 1 {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}

func TestExecuteFinishesAfterClientGone(t *testing.T) {
	rt := newStubRuntime(t)
	// well past the stream buffer, so an undrained stream would block
	// the runtime goroutine on Emit
	for i := 0; i < 300; i++ {
		rt.events = append(rt.events,
			event.New(event.PhaseExecution, event.TypeActionCompleted, map[string]interface{}{"index": i}))
	}
	srv := New(rt, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/execute",
		strings.NewReader(`{"goal": "narrate everything"}`))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		srv.handleExecute(&brokenWriter{}, req)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after the client disconnected")
	}
}

func TestSkillsEndpoints(t *testing.T) {
	rt := newStubRuntime(t)
	srv := httptest.NewServer(New(rt, Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/skills")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var infos []*skill.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "echo", infos[0].Name)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/skills/echo/config",
		strings.NewReader(`{"enabled": false}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Disabled skills drop out of the default listing.
	resp, err = http.Get(srv.URL + "/v1/skills")
	require.NoError(t, err)
	defer resp.Body.Close()
	infos = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	assert.Empty(t, infos)

	req, err = http.NewRequest(http.MethodPut, srv.URL+"/v1/skills/nonexistent/config",
		strings.NewReader(`{"enabled": false}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthGatesAPIButNotHealth(t *testing.T) {
	v := auth.NewValidator("server-secret")
	srv := httptest.NewServer(New(newStubRuntime(t), Options{Validator: v}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/run", "application/json",
		strings.NewReader(`{"goal": "hello"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := v.Issue("cli", time.Minute)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/run",
		strings.NewReader(`{"goal": "hello"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

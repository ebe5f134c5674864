package builtin

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexhq/connex/pkg/llm"
)

type stubModels struct {
	reply    string
	lastText string
}

func (s *stubModels) Chat(_ context.Context, _ llm.TaskClass, messages []llm.Message, _ llm.ChatOptions) (string, error) {
	if len(messages) > 0 {
		s.lastText = messages[len(messages)-1].Content
	}
	return s.reply, nil
}

func TestFileManagerLifecycle(t *testing.T) {
	fm := NewFileManager()
	fm.SetDataDir(t.TempDir())
	ctx := context.Background()

	out, err := fm.Execute(ctx, map[string]interface{}{"action": "write", "path": "notes.txt", "content": "hello"})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])

	out, err = fm.Execute(ctx, map[string]interface{}{"action": "append", "path": "notes.txt", "content": " world"})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])

	out, err = fm.Execute(ctx, map[string]interface{}{"action": "read", "path": "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out["content"])

	out, err = fm.Execute(ctx, map[string]interface{}{"action": "list", "path": "."})
	require.NoError(t, err)
	assert.Contains(t, out["files"], "notes.txt")

	out, err = fm.Execute(ctx, map[string]interface{}{"action": "exists", "path": "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, true, out["exists"])

	out, err = fm.Execute(ctx, map[string]interface{}{"action": "delete", "path": "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])

	out, err = fm.Execute(ctx, map[string]interface{}{"action": "exists", "path": "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, false, out["exists"])
}

func TestFileManagerReadMissingReportsFailure(t *testing.T) {
	fm := NewFileManager()
	fm.SetDataDir(t.TempDir())

	out, err := fm.Execute(context.Background(), map[string]interface{}{"action": "read", "path": "absent.txt"})
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "absent.txt")
}

func TestCodeExecutorBash(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	ce := NewCodeExecutor()
	ce.SetDataDir(t.TempDir())

	out, err := ce.Execute(context.Background(), map[string]interface{}{
		"code":     "echo running",
		"language": "bash",
	})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "running\n", out["output"])
}

func TestCodeExecutorFailureIsResult(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	ce := NewCodeExecutor()
	ce.SetDataDir(t.TempDir())

	out, err := ce.Execute(context.Background(), map[string]interface{}{
		"code":     "echo oops >&2; exit 3",
		"language": "bash",
	})
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "oops")
}

func TestGeneralChatIncludesHistory(t *testing.T) {
	models := &stubModels{reply: "hi there"}
	gc := NewGeneralChat(models)

	out, err := gc.Execute(context.Background(), map[string]interface{}{
		"message": "what did I just say?",
		"history": "User: my name is Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out["reply"])
	assert.Contains(t, models.lastText, "my name is Ada")
	assert.Contains(t, models.lastText, "what did I just say?")
}

func TestEmotionDetectorNormalizes(t *testing.T) {
	models := &stubModels{reply: "  Happy\n"}
	ed := NewEmotionDetector(models)

	out, err := ed.Execute(context.Background(), map[string]interface{}{"text": "this is great!"})
	require.NoError(t, err)
	assert.Equal(t, "happy", out["emotion"])
}

func TestTextAnalyzerUnknownAction(t *testing.T) {
	ta := NewTextAnalyzer(&stubModels{reply: "x"})

	_, err := ta.Execute(context.Background(), map[string]interface{}{"text": "abc", "action": "translate"})
	assert.Error(t, err)
}

type recordingSpeaker struct {
	spoke      string
	wasSetFlag bool
	flag       *atomic.Bool
}

func (r *recordingSpeaker) Speak(_ context.Context, text string) error {
	r.spoke = text
	r.wasSetFlag = r.flag.Load()
	return nil
}

func TestSpeakSetsSpeakingFlag(t *testing.T) {
	var flag atomic.Bool
	speaker := &recordingSpeaker{flag: &flag}
	sp := NewSpeak(speaker, &flag)

	out, err := sp.Execute(context.Background(), map[string]interface{}{"text": "done"})
	require.NoError(t, err)
	assert.Equal(t, true, out["spoken"])
	assert.Equal(t, "done", speaker.spoke)
	assert.True(t, speaker.wasSetFlag, "flag should be set while speaking")
	assert.False(t, flag.Load(), "flag should clear after speaking")
}

type stubBrain struct {
	goal  string
	speak bool
}

func (b *stubBrain) ExecuteGoal(_ context.Context, goal string, _ map[string]interface{}, speak bool) (map[string]interface{}, error) {
	b.goal = goal
	b.speak = speak
	return map[string]interface{}{"result": "ok"}, nil
}

func TestAGIBrainDelegates(t *testing.T) {
	brain := &stubBrain{}
	ab := NewAGIBrain(brain)

	out, err := ab.Execute(context.Background(), map[string]interface{}{"goal": "tidy up", "speak": true})
	require.NoError(t, err)
	assert.Equal(t, "tidy up", brain.goal)
	assert.True(t, brain.speak)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "ok", out["result"])
}

func TestDocumentReaderPlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memo.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain contents"), 0644))

	dr := NewDocumentReader()
	out, err := dr.Execute(context.Background(), map[string]interface{}{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "plain contents", out["content"])
}

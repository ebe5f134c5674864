package iomapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexhq/connex/pkg/plan"
	"github.com/connexhq/connex/pkg/skill"
)

func stateWith(values map[string]interface{}) StateLookup {
	return func(ref string) (interface{}, bool) {
		v, ok := values[ref]
		return v, ok
	}
}

func fileManagerSchema() *skill.Info {
	return &skill.Info{
		Name: "file_manager",
		Inputs: &skill.InputSchema{
			Properties: map[string]*skill.Parameter{
				"action":  {Type: "string", Enum: []string{"read_file", "write_file", "delete_file"}},
				"path":    {Type: "string"},
				"content": {Type: "string"},
			},
			Required: []string{"action", "path"},
		},
	}
}

func TestResolveInputsSoftReference(t *testing.T) {
	action := &plan.Action{
		ID: "action_2",
		Inputs: map[string]interface{}{
			"content": "action_1.content",
			"literal": "not_a_reference",
		},
	}
	state := stateWith(map[string]interface{}{"action_1.content": "resolved text"})

	inputs, _, err := ResolveInputs(action, state, nil)
	require.NoError(t, err)
	assert.Equal(t, "resolved text", inputs["content"])
	assert.Equal(t, "not_a_reference", inputs["literal"])
}

func TestResolveInputsSoftReferenceUnresolvedStaysLiteral(t *testing.T) {
	action := &plan.Action{
		ID:     "action_2",
		Inputs: map[string]interface{}{"content": "action_9.missing"},
	}

	inputs, _, err := ResolveInputs(action, stateWith(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "action_9.missing", inputs["content"])
}

func TestResolveInputsExplicitRefHardError(t *testing.T) {
	action := &plan.Action{
		ID:        "action_2",
		InputRefs: map[string]string{"content": "action_1.output"},
	}

	_, _, err := ResolveInputs(action, stateWith(nil), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action_1.output")
}

func TestFuzzySynonymFillsRequired(t *testing.T) {
	action := &plan.Action{
		ID: "action_1",
		Inputs: map[string]interface{}{
			"action":    "read_file",
			"file_path": "/tmp/notes.txt",
		},
	}

	inputs, warnings, err := ResolveInputs(action, stateWith(nil), fileManagerSchema())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "/tmp/notes.txt", inputs["path"])
}

func TestSemanticActionInference(t *testing.T) {
	action := &plan.Action{
		ID:          "action_1",
		Description: "Write the report to disk",
		Inputs:      map[string]interface{}{"path": "report.txt", "content": "hello"},
	}

	inputs, warnings, err := ResolveInputs(action, stateWith(nil), fileManagerSchema())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "write_file", inputs["action"])
}

func TestMissingRequiredWarns(t *testing.T) {
	action := &plan.Action{
		ID:     "action_1",
		Inputs: map[string]interface{}{"action": "read_file"},
	}

	_, warnings, err := ResolveInputs(action, stateWith(nil), fileManagerSchema())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "path")
}

func TestTypeCoercion(t *testing.T) {
	info := &skill.Info{
		Name: "web_search",
		Inputs: &skill.InputSchema{
			Properties: map[string]*skill.Parameter{
				"query":       {Type: "string"},
				"max_results": {Type: "integer"},
				"safe":        {Type: "boolean"},
			},
			Required: []string{"query"},
		},
	}
	action := &plan.Action{
		ID: "action_1",
		Inputs: map[string]interface{}{
			"query":       map[string]interface{}{"topic": "go"},
			"max_results": "7",
			"safe":        "yes",
		},
	}

	inputs, warnings, err := ResolveInputs(action, stateWith(nil), info)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 7, inputs["max_results"])
	assert.Equal(t, true, inputs["safe"])
	assert.JSONEq(t, `{"topic":"go"}`, inputs["query"].(string))
}

func TestMapOutputsFailurePassthrough(t *testing.T) {
	out := map[string]interface{}{"success": false, "error": "disk full"}

	mapped, warnings, err := MapOutputs(out, skill.OutputSchema{"content": "string"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, out, mapped)
}

func TestMapOutputsSynonymAlias(t *testing.T) {
	out := map[string]interface{}{"success": true, "data": "the file text"}

	mapped, warnings, err := MapOutputs(out, skill.OutputSchema{"content": "string"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "the file text", mapped["content"])
}

func TestMapOutputsMissingKeyWarns(t *testing.T) {
	out := map[string]interface{}{"success": true}

	_, warnings, err := MapOutputs(out, skill.OutputSchema{"reply": "string"})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "reply")
}

func TestMapOutputsDeclaredStatusMissingFails(t *testing.T) {
	out := map[string]interface{}{"unrelated": 1}

	_, _, err := MapOutputs(out, skill.OutputSchema{"success": "boolean"})
	assert.Error(t, err)
}

func TestMapOutputsSchemaSatisfiedWithoutStatus(t *testing.T) {
	out := map[string]interface{}{"greeting": "hi"}

	mapped, warnings, err := MapOutputs(out, skill.OutputSchema{"greeting": "string"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "hi", mapped["greeting"])
}

func TestMapOutputsStatusSubstitutesForDeclaredSuccess(t *testing.T) {
	out := map[string]interface{}{"status": "done"}

	_, _, err := MapOutputs(out, skill.OutputSchema{"success": "boolean"})
	require.NoError(t, err)
}

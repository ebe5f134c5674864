package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/connexhq/connex/pkg/skill"
)

type codeExecutorInputs struct {
	Code     string `json:"code" jsonschema:"required,description=Source code to run"`
	Language string `json:"language,omitempty" jsonschema:"description=Language of the code,enum=python|bash|javascript,default=python"`
}

// CodeExecutor runs a snippet in a subprocess and captures its output.
type CodeExecutor struct {
	skill.Base
}

func NewCodeExecutor() *CodeExecutor {
	return &CodeExecutor{
		Base: skill.NewBase(&skill.Info{
			Name:        "code_executor",
			Description: "Executes python, bash or javascript snippets and returns their output",
			Category:    "development",
			SubCategory: "execution",
			Inputs:      skill.SchemaFor[codeExecutorInputs](),
			Outputs:     skill.OutputSchema{"output": "string"},
		}),
	}
}

var codeRunners = map[string]struct {
	bin string
	ext string
}{
	"python":     {bin: "python3", ext: ".py"},
	"bash":       {bin: "bash", ext: ".sh"},
	"javascript": {bin: "node", ext: ".js"},
}

func (s *CodeExecutor) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	code, _ := inputs["code"].(string)
	language, _ := inputs["language"].(string)
	if language == "" {
		language = "python"
	}
	runner, ok := codeRunners[language]
	if !ok {
		return nil, &skill.ValidationError{Skill: "code_executor", Field: "language", Message: fmt.Sprintf("unsupported language %q", language)}
	}

	dir := s.DataDir()
	if dir == "" {
		dir = os.TempDir()
	}
	script := filepath.Join(dir, "snippet"+runner.ext)
	if err := os.WriteFile(script, []byte(code), 0644); err != nil {
		return nil, &skill.Error{Skill: "code_executor", Action: "write_script", Message: "failed to stage snippet", Err: err}
	}
	defer os.Remove(script)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, runner.bin, script)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return map[string]interface{}{"success": false, "error": msg, "output": stdout.String()}, nil
	}

	return map[string]interface{}{"success": true, "output": stdout.String()}, nil
}

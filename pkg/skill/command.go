package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// commandSkill is the subprocess template for dynamic components: the
// entry point runs as its own process, receives the input map as JSON on
// stdin and must print a JSON object on stdout.
type commandSkill struct {
	Base
	command string
	args    []string
	env     map[string]string
	workDir string
}

func newCommandSkill(info *Info, m *Manifest, entry string) *commandSkill {
	command := m.Command
	args := m.Args
	if command == "" {
		command, args = interpreterFor(entry)
	}
	return &commandSkill{
		Base:    NewBase(info),
		command: command,
		args:    args,
		env:     m.Env,
		workDir: filepath.Dir(entry),
	}
}

// interpreterFor picks a runner for the entry file by extension; unknown
// extensions are executed directly.
func interpreterFor(entry string) (string, []string) {
	switch strings.ToLower(filepath.Ext(entry)) {
	case ".py":
		return "python3", []string{entry}
	case ".js":
		return "node", []string{entry}
	case ".sh":
		return "sh", []string{entry}
	default:
		return entry, nil
	}
}

func (c *commandSkill) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	payload, err := json.Marshal(inputs)
	if err != nil {
		return nil, &Error{Skill: c.Info().Name, Action: "execute", Message: "failed to encode inputs", Err: err}
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Dir = c.workDir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = os.Environ()
	for k, v := range c.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return map[string]interface{}{"success": false, "error": msg}, nil
	}

	out := map[string]interface{}{}
	raw := bytes.TrimSpace(stdout.Bytes())
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			// Non-JSON output becomes the result verbatim
			out["result"] = string(raw)
		}
	}
	if _, ok := out["success"]; !ok {
		out["success"] = true
	}
	return out, nil
}

var _ Skill = (*commandSkill)(nil)

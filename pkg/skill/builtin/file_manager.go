package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/connexhq/connex/pkg/skill"
)

type fileManagerInputs struct {
	Action  string `json:"action" jsonschema:"required,description=File operation,enum=read|write|append|delete|list|exists"`
	Path    string `json:"path" jsonschema:"required,description=Target file or directory"`
	Content string `json:"content,omitempty" jsonschema:"description=Content for write and append"`
}

// FileManager performs local filesystem operations. Relative paths are
// resolved against the skill's data directory.
type FileManager struct {
	skill.Base
}

func NewFileManager() *FileManager {
	return &FileManager{
		Base: skill.NewBase(&skill.Info{
			Name:        "file_manager",
			Description: "Reads, writes, appends, deletes and lists local files",
			Category:    "io",
			SubCategory: "filesystem",
			Inputs:      skill.SchemaFor[fileManagerInputs](),
			Outputs:     skill.OutputSchema{"content": "string", "files": "array"},
		}),
	}
}

func (s *FileManager) resolve(path string) string {
	if filepath.IsAbs(path) || s.DataDir() == "" {
		return path
	}
	return filepath.Join(s.DataDir(), path)
}

func (s *FileManager) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	action, _ := inputs["action"].(string)
	path := s.resolve(fmt.Sprint(inputs["path"]))

	fail := func(format string, args ...interface{}) map[string]interface{} {
		return map[string]interface{}{"success": false, "error": fmt.Sprintf(format, args...)}
	}

	switch action {
	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			return fail("failed to read %s: %v", path, err), nil
		}
		return map[string]interface{}{"success": true, "content": string(data)}, nil

	case "write", "append":
		content, _ := inputs["content"].(string)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fail("failed to create directory for %s: %v", path, err), nil
		}
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if action == "append" {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := os.OpenFile(path, flags, 0644)
		if err != nil {
			return fail("failed to open %s: %v", path, err), nil
		}
		_, werr := f.WriteString(content)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			return fail("failed to write %s", path), nil
		}
		return map[string]interface{}{"success": true, "path": path}, nil

	case "delete":
		if err := os.Remove(path); err != nil {
			return fail("failed to delete %s: %v", path, err), nil
		}
		return map[string]interface{}{"success": true}, nil

	case "list":
		entries, err := os.ReadDir(path)
		if err != nil {
			return fail("failed to list %s: %v", path, err), nil
		}
		files := make([]interface{}, 0, len(entries))
		for _, e := range entries {
			files = append(files, e.Name())
		}
		return map[string]interface{}{"success": true, "files": files}, nil

	case "exists":
		_, err := os.Stat(path)
		return map[string]interface{}{"success": true, "exists": err == nil}, nil

	default:
		return nil, &skill.ValidationError{Skill: "file_manager", Field: "action", Message: fmt.Sprintf("unknown action %q", action)}
	}
}

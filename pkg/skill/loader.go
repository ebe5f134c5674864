package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestName is the file that marks a directory as a dynamic component.
const ManifestName = "connex.json"

// Manifest declares a dynamic component. The runtime never compiles or
// evaluates code; the type field selects a built-in template (command,
// mcp, plugin) that knows how to drive the declared entry point.
type Manifest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Main        string `json:"main,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	SubCategory string `json:"sub_category,omitempty"`
	Version     string `json:"version,omitempty"`

	// Command/Args/Env drive command and stdio-MCP templates.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// URL and Transport drive HTTP-based MCP servers.
	URL       string `json:"url,omitempty"`
	Transport string `json:"transport,omitempty"`

	Config ConfigSchema `json:"config,omitempty"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// frontmatter is the optional SKILL.md schema descriptor.
type frontmatter struct {
	Inputs  *InputSchema `yaml:"inputs"`
	Outputs OutputSchema `yaml:"outputs"`
}

// LoadDirectory scans root for component directories and registers each
// loadable skill. Individual failures are logged and skipped; the scan
// continues. Returns the number of skills registered.
func (r *Registry) LoadDirectory(ctx context.Context, root string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &Error{Action: "load_directory", Message: "failed to read " + root, Err: err}
	}

	loaded := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		s, err := LoadComponent(dir)
		if err != nil {
			r.log.Warn("skipping dynamic skill", "dir", dir, "error", err)
			continue
		}
		if s == nil {
			continue
		}
		if err := r.Register(ctx, s); err != nil {
			r.log.Warn("failed to register dynamic skill", "dir", dir, "error", err)
			continue
		}
		loaded++
	}

	if loaded > 0 {
		r.log.Info("loaded dynamic skills", "dir", root, "count", loaded)
	}
	return loaded, nil
}

// LoadComponent builds a skill from one component directory. Returns
// (nil, nil) when the directory holds no manifest.
func LoadComponent(dir string) (Skill, error) {
	manifestPath := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(dir)
	}

	info := &Info{
		Name:           m.Name,
		Description:    m.Description,
		Category:       m.Category,
		SubCategory:    m.SubCategory,
		Version:        m.Version,
		Config:         m.Config,
		TimeoutSeconds: m.TimeoutSeconds,
	}

	if fm, err := readFrontmatter(filepath.Join(dir, "SKILL.md")); err != nil {
		return nil, err
	} else if fm != nil {
		info.Inputs = fm.Inputs
		info.Outputs = fm.Outputs
	}

	entry, err := resolveEntryPoint(dir, m.Main)
	if err != nil && m.Type == "command" {
		return nil, err
	}

	switch m.Type {
	case "command", "":
		if entry == "" {
			return nil, fmt.Errorf("no entry point found in %s", dir)
		}
		return newCommandSkill(info, &m, entry), nil
	case "mcp":
		return newMCPSkill(info, &m)
	case "plugin":
		return newPluginSkill(info, &m, dir)
	default:
		return nil, fmt.Errorf("unknown component type %q", m.Type)
	}
}

// resolveEntryPoint finds the component's main file: the manifest's
// declared main, else agent.* at the top level or under scripts/.
func resolveEntryPoint(dir, declared string) (string, error) {
	if declared != "" {
		path := filepath.Join(dir, declared)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("declared main %q not found: %w", declared, err)
		}
		return path, nil
	}

	for _, pattern := range []string{"agent.*", filepath.Join("scripts", "agent.*")} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("no entry point found")
}

// readFrontmatter parses the YAML block between leading --- markers of
// SKILL.md. A missing file is not an error.
func readFrontmatter(path string) (*frontmatter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	content := bytes.TrimSpace(data)
	if !bytes.HasPrefix(content, []byte("---")) {
		return nil, nil
	}
	rest := content[3:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, fmt.Errorf("unterminated frontmatter in %s", path)
	}

	var fm frontmatter
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, fmt.Errorf("invalid frontmatter in %s: %w", path, err)
	}
	return &fm, nil
}

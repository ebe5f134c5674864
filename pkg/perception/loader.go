package perception

import (
	"context"
	"os"
	"path/filepath"

	"github.com/connexhq/connex/pkg/skill"
)

// skillModule adapts a dynamically loaded skill component into the
// perception contract. Dynamic perceptions use the same manifest and
// templates as dynamic skills.
type skillModule struct {
	s skill.Skill
}

func (m *skillModule) Meta() Meta {
	info := m.s.Info()
	return Meta{
		Name:        info.Name,
		Description: info.Description,
		Category:    info.Category,
		SubCategory: info.SubCategory,
		Type:        "dynamic",
		Version:     info.Version,
	}
}

func (m *skillModule) Connect(context.Context) error { return nil }

func (m *skillModule) Perceive(ctx context.Context, query string) (map[string]interface{}, error) {
	inputs := map[string]interface{}{}
	if query != "" {
		inputs["query"] = query
	}
	return m.s.Execute(ctx, inputs)
}

// LoadDirectory scans root for dynamic perception components. A missing
// root is not an error; broken components are logged and skipped.
func (l *Layer) LoadDirectory(ctx context.Context, root string) (int, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		s, err := skill.LoadComponent(dir)
		if err != nil {
			l.log.Warn("skipping broken perception component", "dir", dir, "error", err)
			continue
		}
		if s == nil {
			continue
		}
		if err := l.Register(ctx, &skillModule{s: s}); err != nil {
			l.log.Warn("failed to register dynamic perception", "dir", dir, "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

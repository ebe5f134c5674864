package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Base carries the shared behavior of concrete skills: metadata, merged
// runtime config and default schema validation. Concrete skills embed it
// and override what they need.
type Base struct {
	info *Info

	mu      sync.RWMutex
	config  map[string]interface{}
	dataDir string
}

// NewBase creates the embeddable core for a skill.
func NewBase(info *Info) Base {
	return Base{info: info, config: make(map[string]interface{})}
}

func (b *Base) Info() *Info { return b.info }

// Configure merges config entries; later entries win.
func (b *Base) Configure(config map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range config {
		b.config[k] = v
	}
}

// Config returns a copy of the merged runtime configuration.
func (b *Base) Config() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]interface{}, len(b.config))
	for k, v := range b.config {
		out[k] = v
	}
	return out
}

// ConfigString returns one config value as a string, or "".
func (b *Base) ConfigString(key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.config[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// Enabled reports the per-skill enabled flag; absent means enabled.
func (b *Base) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.config["enabled"]; ok {
		if enabled, ok := v.(bool); ok {
			return enabled
		}
	}
	return true
}

// SetDataDir assigns the skill's private storage directory.
func (b *Base) SetDataDir(dir string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dataDir = dir
}

// DataDir returns the skill's private storage directory.
func (b *Base) DataDir() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dataDir
}

// ValidateInputs enforces required fields, enum membership and scalar
// type compatibility against the declared schema.
func (b *Base) ValidateInputs(inputs map[string]interface{}) error {
	schema := b.info.Inputs
	if schema == nil {
		return nil
	}

	for _, req := range schema.Required {
		if _, ok := inputs[req]; !ok {
			return &ValidationError{Skill: b.info.Name, Field: req, Message: "required input is missing"}
		}
	}

	for name, value := range inputs {
		param, ok := schema.Properties[name]
		if !ok {
			continue
		}
		if len(param.Enum) > 0 {
			sv := fmt.Sprint(value)
			found := false
			for _, allowed := range param.Enum {
				if sv == allowed {
					found = true
					break
				}
			}
			if !found {
				return &ValidationError{
					Skill: b.info.Name, Field: name,
					Message: fmt.Sprintf("value %q not in allowed set [%s]", sv, strings.Join(param.Enum, ", ")),
				}
			}
		}
		if err := checkType(param.Type, value); err != nil {
			return &ValidationError{Skill: b.info.Name, Field: name, Message: err.Error()}
		}
	}
	return nil
}

func checkType(declared string, value interface{}) error {
	switch declared {
	case "", "any", "object", "array":
		return nil
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "integer", "number":
		switch value.(type) {
		case int, int32, int64, float32, float64, json.Number:
		default:
			return fmt.Errorf("expected %s, got %T", declared, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	}
	return nil
}

// CheckConfig verifies every required config field is satisfied by the
// merged config or the field's environment variable.
func (b *Base) CheckConfig() error {
	schema := b.info.Config
	if len(schema) == 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var missing []string
	for key, field := range schema {
		if !field.Required {
			continue
		}
		if v, ok := b.config[key]; ok && fmt.Sprint(v) != "" {
			continue
		}
		if field.EnvVar != "" && os.Getenv(field.EnvVar) != "" {
			continue
		}
		missing = append(missing, key)
	}

	if len(missing) > 0 {
		return &MissingConfigError{Skill: b.info.Name, MissingKeys: missing, Schema: schema}
	}
	return nil
}

// PreExecute is a no-op by default.
func (b *Base) PreExecute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	return inputs, nil
}

// PostExecute is a no-op by default.
func (b *Base) PostExecute(ctx context.Context, outputs map[string]interface{}) (map[string]interface{}, error) {
	return outputs, nil
}

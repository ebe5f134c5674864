// Package skill defines the capability contract of the runtime and the
// registry that loads, persists and retrieves skills.
package skill

import (
	"context"
	"fmt"
	"strings"
)

// Parameter describes one input of a skill.
type Parameter struct {
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// InputSchema is the JSON-Schema fragment a skill declares for inputs.
type InputSchema struct {
	Properties map[string]*Parameter `json:"properties"`
	Required   []string              `json:"required,omitempty"`
}

// OutputSchema maps output key names to simplified type strings.
type OutputSchema map[string]string

// ConfigField declares one runtime setting a skill needs.
type ConfigField struct {
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	// EnvVar names an environment variable that satisfies the field
	// when no stored config value exists.
	EnvVar string `json:"env_var,omitempty"`
	Secret bool   `json:"secret,omitempty"`
}

// ConfigSchema maps config key names to their declarations.
type ConfigSchema map[string]ConfigField

// Info is a skill's registered metadata.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	SubCategory string `json:"sub_category,omitempty"`
	Version     string `json:"version,omitempty"`

	Inputs  *InputSchema `json:"inputs,omitempty"`
	Outputs OutputSchema `json:"outputs,omitempty"`
	Config  ConfigSchema `json:"config,omitempty"`

	// Dependencies lists external packages or binaries the skill needs.
	Dependencies []string `json:"dependencies,omitempty"`

	// TimeoutSeconds overrides the global action timeout when > 0.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// EmbeddingText is the text embedded for semantic retrieval.
func (i *Info) EmbeddingText() string {
	parts := []string{i.Name, i.Description, i.Category, i.SubCategory}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Skill is a pluggable capability. Implementations must be safe for
// concurrent Execute calls; the registry serializes configuration.
type Skill interface {
	// Info returns the skill's metadata.
	Info() *Info

	// Execute performs the capability. Returned maps should carry a
	// "success" boolean; an error return always means failure.
	Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error)

	// ValidateInputs checks inputs against the declared schema.
	ValidateInputs(inputs map[string]interface{}) error

	// CheckConfig verifies required runtime settings are present.
	// Returns *MissingConfigError when they are not.
	CheckConfig() error

	// PreExecute runs before Execute; may rewrite inputs.
	PreExecute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error)

	// PostExecute runs after Execute; may rewrite outputs.
	PostExecute(ctx context.Context, outputs map[string]interface{}) (map[string]interface{}, error)

	// Configure merges runtime configuration into the skill.
	Configure(config map[string]interface{})
}

// Error is the typed error for registry and skill failures.
type Error struct {
	Skill   string
	Action  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skill %s: %s: %s: %v", e.Skill, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("skill %s: %s: %s", e.Skill, e.Action, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFoundError reports a lookup for an unregistered skill.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("skill %q is not registered", e.Name)
}

// MissingConfigError reports unsatisfied required configuration. The
// orchestrator converts it into a terminal config_required event.
type MissingConfigError struct {
	Skill       string
	MissingKeys []string
	Schema      ConfigSchema
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("skill %q requires configuration: %s", e.Skill, strings.Join(e.MissingKeys, ", "))
}

// ValidationError reports inputs that violate a skill's schema.
type ValidationError struct {
	Skill   string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("skill %q: invalid input %q: %s", e.Skill, e.Field, e.Message)
}

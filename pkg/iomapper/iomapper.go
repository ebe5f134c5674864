// Package iomapper reconciles model-authored action inputs and skill
// outputs with declared schemas. Models produce nearly-right parameter
// names and loosely typed values; the mapper's synonym tables, action
// inference and coercions absorb that slack before execution.
package iomapper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/connexhq/connex/pkg/plan"
	"github.com/connexhq/connex/pkg/skill"
)

// StateLookup resolves a dotted "action_<id>.<key>" reference from the
// global execution state.
type StateLookup func(ref string) (interface{}, bool)

// inputSynonyms maps a canonical parameter name to the alternate names
// models commonly emit, in lookup order.
var inputSynonyms = map[string][]string{
	"path":     {"file_path", "filename", "key", "target", "uri", "location"},
	"content":  {"data", "text", "body", "payload", "message", "value"},
	"action":   {"operation", "op", "method", "task", "mode", "act"},
	"query":    {"q", "search_term", "text", "prompt", "question"},
	"message":  {"text", "msg", "content", "query", "prompt"},
	"url":      {"uri", "link", "address", "website"},
	"location": {"city", "place", "address", "town", "region"},
}

var refPattern = regexp.MustCompile(`^action_[A-Za-z0-9_-]+\.[A-Za-z0-9_.]+$`)

// ResolveInputs builds the final input map for one action: static
// values, soft reference resolution on literals that look like
// references, hard resolution of the explicit reference map, then
// schema-driven auto-mapping when the target skill is known.
func ResolveInputs(action *plan.Action, lookup StateLookup, target *skill.Info) (map[string]interface{}, []string, error) {
	inputs := make(map[string]interface{}, len(action.Inputs))
	for k, v := range action.Inputs {
		inputs[k] = v
	}

	// Literals shaped like references resolve opportunistically and
	// stay literal otherwise.
	for k, v := range inputs {
		s, ok := v.(string)
		if !ok || !refPattern.MatchString(s) {
			continue
		}
		if resolved, ok := lookup(s); ok {
			inputs[k] = resolved
		}
	}

	for k, ref := range action.InputRefs {
		resolved, ok := lookup(ref)
		if !ok {
			return nil, nil, fmt.Errorf("action %s: input %q references unresolved %q", action.ID, k, ref)
		}
		inputs[k] = resolved
	}

	var warnings []string
	if target != nil && target.Inputs != nil {
		warnings = autoMap(inputs, action, target.Inputs)
	}
	return inputs, warnings, nil
}

func autoMap(inputs map[string]interface{}, action *plan.Action, schema *skill.InputSchema) []string {
	var warnings []string

	for _, required := range schema.Required {
		if _, ok := inputs[required]; ok {
			continue
		}
		if fillFromSynonym(inputs, required) {
			continue
		}
		if (required == "action" || required == "operation") && inferAction(inputs, action, schema, required) {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("required input %q could not be derived", required))
	}

	for name, param := range schema.Properties {
		v, ok := inputs[name]
		if !ok {
			continue
		}
		coerced, ok := coerce(v, param.Type)
		if ok {
			inputs[name] = coerced
		} else {
			warnings = append(warnings, fmt.Sprintf("input %q is not coercible to %s", name, param.Type))
		}
	}
	return warnings
}

func fillFromSynonym(inputs map[string]interface{}, required string) bool {
	for _, alt := range inputSynonyms[required] {
		if v, ok := inputs[alt]; ok {
			inputs[required] = v
			return true
		}
	}
	return false
}

// inferAction matches each enum value's stem (token before the first
// underscore) against the action description; first match wins.
func inferAction(inputs map[string]interface{}, action *plan.Action, schema *skill.InputSchema, key string) bool {
	if action.Description == "" {
		return false
	}
	param, ok := schema.Properties[key]
	if !ok || len(param.Enum) == 0 {
		return false
	}

	desc := strings.ToLower(action.Description)
	for _, value := range param.Enum {
		stem := value
		if i := strings.Index(value, "_"); i > 0 {
			stem = value[:i]
		}
		if stem != "" && strings.Contains(desc, strings.ToLower(stem)) {
			inputs[key] = value
			return true
		}
	}
	return false
}

func coerce(v interface{}, targetType string) (interface{}, bool) {
	switch targetType {
	case "integer":
		switch t := v.(type) {
		case int:
			return t, true
		case float64:
			return int(t), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n, true
			}
			return v, false
		}
	case "number":
		switch t := v.(type) {
		case float64, int:
			return t, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f, true
			}
			return v, false
		}
	case "boolean":
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "yes", "1", "on":
				return true, true
			case "false", "no", "0", "off":
				return false, true
			}
			return v, false
		case float64:
			return t != 0, true
		}
	case "string", "":
		switch t := v.(type) {
		case string:
			return t, true
		case map[string]interface{}, []interface{}:
			if data, err := json.Marshal(t); err == nil {
				return string(data), true
			}
			return v, false
		default:
			return fmt.Sprint(t), true
		}
	}
	return v, true
}

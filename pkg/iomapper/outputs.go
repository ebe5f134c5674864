package iomapper

import (
	"fmt"

	"github.com/connexhq/connex/pkg/skill"
)

// outputSynonyms maps a declared output key to the alternate names a
// skill may report it under.
var outputSynonyms = map[string][]string{
	"content": {"data", "text", "body", "file_content", "result", "message"},
	"reply":   {"response", "answer", "text", "message", "output"},
	"status":  {"success", "message", "result", "state"},
}

// statusKeys are the keys that let a consumer judge outcome at all.
var statusKeys = []string{"success", "error", "status"}

// MapOutputs validates a skill's output against its declared schema,
// aliasing declared keys from known synonyms. Explicit failures pass
// through untouched. Missing keys warn rather than fail; the one hard
// error is a schema that declares success or error while the output
// carries no status key at all.
func MapOutputs(outputs map[string]interface{}, schema skill.OutputSchema) (map[string]interface{}, []string, error) {
	if outputs == nil {
		outputs = map[string]interface{}{}
	}
	if success, ok := outputs["success"].(bool); ok && !success {
		return outputs, nil, nil
	}

	var warnings []string
	for key, declaredType := range schema {
		if _, ok := outputs[key]; !ok {
			if aliasFromSynonym(outputs, key) {
				continue
			}
			warnings = append(warnings, fmt.Sprintf("declared output %q is missing", key))
			continue
		}
		if coerced, ok := coerce(outputs[key], declaredType); ok {
			outputs[key] = coerced
		} else {
			warnings = append(warnings, fmt.Sprintf("output %q does not match declared type %s", key, declaredType))
		}
	}

	if statusDeclared(schema) && !hasStatusKey(outputs) {
		return outputs, warnings, fmt.Errorf("output carries no success, error or status key")
	}
	return outputs, warnings, nil
}

func statusDeclared(schema skill.OutputSchema) bool {
	for _, key := range []string{"success", "error"} {
		if _, ok := schema[key]; ok {
			return true
		}
	}
	return false
}

func aliasFromSynonym(outputs map[string]interface{}, key string) bool {
	for _, alt := range outputSynonyms[key] {
		if v, ok := outputs[alt]; ok {
			outputs[key] = v
			return true
		}
	}
	return false
}

func hasStatusKey(outputs map[string]interface{}) bool {
	for _, key := range statusKeys {
		if _, ok := outputs[key]; ok {
			return true
		}
	}
	return false
}

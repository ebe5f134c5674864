package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON value out of raw model output. Models wrap JSON
// in prose, markdown fences, or both, so extraction is staged: raw parse
// first, then the first balanced {...} block, then fenced code content.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty model output")
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	if block := firstBalancedObject(trimmed); block != "" && json.Valid([]byte(block)) {
		return json.RawMessage(block), nil
	}

	if fenced := fencedContent(trimmed); fenced != "" {
		fenced = strings.TrimSpace(fenced)
		if json.Valid([]byte(fenced)) {
			return json.RawMessage(fenced), nil
		}
		if block := firstBalancedObject(fenced); block != "" && json.Valid([]byte(block)) {
			return json.RawMessage(block), nil
		}
	}

	return nil, fmt.Errorf("no valid JSON found in model output")
}

// ExtractJSONMap is ExtractJSON plus unmarshal into a generic map.
func ExtractJSONMap(text string) (map[string]interface{}, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("extracted JSON is not an object: %w", err)
	}
	return result, nil
}

// firstBalancedObject returns the first {...} span with balanced braces,
// respecting string literals and escapes.
func firstBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// fencedContent returns the body of the first markdown code fence, if any.
func fencedContent(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return ""
	}
	rest := text[open+3:]

	// Skip an optional language tag on the fence line
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "json" || firstLine == "" || !strings.ContainsAny(firstLine, "{}") {
			rest = rest[nl+1:]
		}
	}

	closing := strings.Index(rest, "```")
	if closing < 0 {
		return rest
	}
	return rest[:closing]
}

package skill

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives an InputSchema from a Go struct type using its json
// and jsonschema tags. Built-in skills declare typed input structs and
// reflect them instead of hand-writing schema maps.
func SchemaFor[T any]() *InputSchema {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	out, err := convertSchema(schema)
	if err != nil {
		// Reflection over our own struct types only fails on a
		// programming error
		panic(fmt.Sprintf("schema reflection failed: %v", err))
	}
	return out
}

func convertSchema(schema *jsonschema.Schema) (*InputSchema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Properties map[string]struct {
			Type        string        `json:"type"`
			Description string        `json:"description"`
			Enum        []interface{} `json:"enum"`
			Default     interface{}   `json:"default"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := &InputSchema{
		Properties: make(map[string]*Parameter, len(raw.Properties)),
		Required:   raw.Required,
	}
	for name, prop := range raw.Properties {
		p := &Parameter{
			Type:        prop.Type,
			Description: prop.Description,
			Default:     prop.Default,
		}
		for _, e := range prop.Enum {
			p.Enum = append(p.Enum, fmt.Sprint(e))
		}
		out.Properties[name] = p
	}
	return out, nil
}

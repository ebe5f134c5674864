package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/connexhq/connex/pkg/skill"
)

const defaultSearchEndpoint = "https://google.serper.dev/search"

type webSearchInputs struct {
	Query      string `json:"query" jsonschema:"required,description=Search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum results to return,default=5"`
}

// WebSearch queries a search API. Requires an api_key config value.
type WebSearch struct {
	skill.Base
	client *http.Client
}

func NewWebSearch(client *http.Client) *WebSearch {
	return &WebSearch{
		Base: skill.NewBase(&skill.Info{
			Name:        "web_search",
			Description: "Searches the web and returns titles, links and snippets",
			Category:    "web",
			SubCategory: "search",
			Inputs:      skill.SchemaFor[webSearchInputs](),
			Outputs:     skill.OutputSchema{"results": "array"},
			Config: skill.ConfigSchema{
				"api_key":  {Description: "Search API key", Required: true, EnvVar: "SERPER_API_KEY", Secret: true},
				"endpoint": {Description: "Search API endpoint"},
			},
		}),
		client: client,
	}
}

type searchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

func (s *WebSearch) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	query, _ := inputs["query"].(string)
	maxResults := 5
	if v, ok := inputs["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}

	apiKey := s.ConfigString("api_key")
	if apiKey == "" {
		apiKey = os.Getenv("SERPER_API_KEY")
	}
	endpoint := s.ConfigString("endpoint")
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}

	body, err := json.Marshal(map[string]interface{}{"q": query, "num": maxResults})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("search request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return map[string]interface{}{"success": false, "error": "failed to read search response"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("search API returned status %d", resp.StatusCode)}, nil
	}

	var parsed struct {
		Organic []searchResult `json:"organic"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return map[string]interface{}{"success": false, "error": "failed to decode search response"}, nil
	}

	results := make([]interface{}, 0, len(parsed.Organic))
	for i, r := range parsed.Organic {
		if i >= maxResults {
			break
		}
		results = append(results, map[string]interface{}{
			"title":   r.Title,
			"link":    r.Link,
			"snippet": r.Snippet,
		})
	}

	return map[string]interface{}{"success": true, "results": results}, nil
}

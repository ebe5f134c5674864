package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"time"
)

// Deps are the collaborators builtin modules may need. Modules whose
// collaborator is absent are not registered.
type Deps struct {
	HTTPClient *http.Client
}

// RegisterBuiltins installs every builtin module whose collaborators
// are present.
func RegisterBuiltins(ctx context.Context, layer *Layer, deps Deps) error {
	modules := []Module{
		&clockModule{},
		&systemModule{},
	}
	if deps.HTTPClient != nil {
		modules = append(modules, &weatherModule{client: deps.HTTPClient})
	}

	for _, m := range modules {
		if err := layer.Register(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

type clockModule struct{}

func (c *clockModule) Meta() Meta {
	return Meta{
		Name:        "clock",
		Description: "Reports the current date, time and weekday",
		Category:    "time",
		SubCategory: "clock",
		Type:        "builtin",
		Version:     "1.0.0",
	}
}

func (c *clockModule) Connect(context.Context) error { return nil }

func (c *clockModule) Perceive(_ context.Context, _ string) (map[string]interface{}, error) {
	now := time.Now()
	return map[string]interface{}{
		"time":    now.Format(time.RFC3339),
		"date":    now.Format("2006-01-02"),
		"weekday": now.Weekday().String(),
	}, nil
}

type systemModule struct{}

func (s *systemModule) Meta() Meta {
	return Meta{
		Name:        "system_status",
		Description: "Reports host name, operating system and hardware characteristics",
		Category:    "system",
		SubCategory: "host",
		Type:        "builtin",
		Version:     "1.0.0",
	}
}

func (s *systemModule) Connect(context.Context) error { return nil }

func (s *systemModule) Perceive(_ context.Context, _ string) (map[string]interface{}, error) {
	hostname, _ := os.Hostname()
	return map[string]interface{}{
		"hostname":   hostname,
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
	}, nil
}

// weatherModule queries wttr.in, which needs no API key. The perceive
// query names the location; empty means "current location" per wttr.
type weatherModule struct {
	client *http.Client
}

func (w *weatherModule) Meta() Meta {
	return Meta{
		Name:        "weather",
		Description: "Reports current weather conditions and temperature for a location",
		Category:    "environment",
		SubCategory: "weather",
		Type:        "builtin",
		Version:     "1.0.0",
	}
}

func (w *weatherModule) Connect(context.Context) error { return nil }

func (w *weatherModule) Perceive(ctx context.Context, query string) (map[string]interface{}, error) {
	endpoint := "https://wttr.in/" + url.PathEscape(query) + "?format=j1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather lookup failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather service returned status %d", resp.StatusCode)
	}

	var parsed struct {
		CurrentCondition []struct {
			TempC       string `json:"temp_C"`
			Humidity    string `json:"humidity"`
			WeatherDesc []struct {
				Value string `json:"value"`
			} `json:"weatherDesc"`
		} `json:"current_condition"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}
	if len(parsed.CurrentCondition) == 0 {
		return nil, fmt.Errorf("weather response had no current conditions")
	}

	cur := parsed.CurrentCondition[0]
	desc := ""
	if len(cur.WeatherDesc) > 0 {
		desc = cur.WeatherDesc[0].Value
	}
	return map[string]interface{}{
		"location":    query,
		"temperature": cur.TempC,
		"humidity":    cur.Humidity,
		"conditions":  desc,
	}, nil
}

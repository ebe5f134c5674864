package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/connexhq/connex/pkg/config"
	"github.com/connexhq/connex/pkg/logger"
)

// Route is one (provider, model) candidate in a priority table.
type Route struct {
	Provider string
	Model    string
}

// defaultRoutes order candidates per task class. Selection walks the
// table and takes the first route whose provider is configured.
var defaultRoutes = map[TaskClass][]Route{
	TaskPlanning: {
		{"anthropic", "claude-sonnet-4-20250514"},
		{"openai", "gpt-4.1"},
		{"gemini", "gemini-2.5-pro"},
		{"ollama", "llama3.1"},
	},
	TaskCoding: {
		{"anthropic", "claude-sonnet-4-20250514"},
		{"openai", "gpt-4.1"},
		{"gemini", "gemini-2.5-pro"},
		{"ollama", "qwen2.5-coder"},
	},
	TaskCreative: {
		{"openai", "gpt-4.1"},
		{"anthropic", "claude-sonnet-4-20250514"},
		{"gemini", "gemini-2.5-pro"},
		{"ollama", "llama3.1"},
	},
	TaskFast: {
		{"gemini", "gemini-2.5-flash"},
		{"openai", "gpt-4.1-mini"},
		{"anthropic", "claude-3-5-haiku-20241022"},
		{"ollama", "llama3.1"},
	},
	TaskGeneral: {
		{"openai", "gpt-4.1"},
		{"anthropic", "claude-sonnet-4-20250514"},
		{"gemini", "gemini-2.5-flash"},
		{"ollama", "llama3.1"},
	},
}

// embedRoutes are the embedding candidates, in preference order.
// Anthropic is absent; it exposes no embeddings endpoint.
var embedRoutes = []Route{
	{"openai", "text-embedding-3-small"},
	{"gemini", "gemini-embedding-001"},
	{"ollama", "nomic-embed-text"},
}

// Router selects a provider and model per task class and exposes the
// unified chat, streaming, embedding and intent-classification surface.
type Router struct {
	providers map[string]Provider
	routes    map[TaskClass][]Route
	embeds    []Route
	log       *slog.Logger
}

// NewRouter builds a router over every provider whose credentials are
// present in the environment. At least one provider must be configured.
func NewRouter() (*Router, error) {
	r := &Router{
		providers: make(map[string]Provider),
		routes:    overriddenRoutes(),
		embeds:    embedRoutes,
		log:       logger.GetLogger(),
	}

	if key := config.GetProviderAPIKey("openai"); key != "" {
		r.providers["openai"] = NewOpenAIProvider(key)
	}
	if key := config.GetProviderAPIKey("anthropic"); key != "" {
		r.providers["anthropic"] = NewAnthropicProvider(key)
	}
	if key := config.GetProviderAPIKey("gemini"); key != "" {
		p, err := NewGeminiProvider(key)
		if err != nil {
			r.log.Warn("gemini provider unavailable", "error", err)
		} else {
			r.providers["gemini"] = p
		}
	}
	if host := config.GetProviderAPIKey("ollama"); host != "" {
		r.providers["ollama"] = NewOllamaProvider(host)
	}

	if len(r.providers) == 0 {
		return nil, NewUnavailableError("router", "no model provider is configured", nil)
	}
	return r, nil
}

// NewRouterWithProviders builds a router over explicit providers.
// Route tables still apply; providers missing from them are unreachable.
func NewRouterWithProviders(providers ...Provider) *Router {
	r := &Router{
		providers: make(map[string]Provider, len(providers)),
		routes:    overriddenRoutes(),
		embeds:    embedRoutes,
		log:       logger.GetLogger(),
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// overriddenRoutes copies the default tables, applying
// CONNEX_MODEL_<CLASS>=provider:model overrides from the environment.
func overriddenRoutes() map[TaskClass][]Route {
	routes := make(map[TaskClass][]Route, len(defaultRoutes))
	for class, table := range defaultRoutes {
		if v := os.Getenv("CONNEX_MODEL_" + string(class)); v != "" {
			if provider, model, ok := strings.Cut(v, ":"); ok {
				routes[class] = append([]Route{{provider, model}}, table...)
				continue
			}
		}
		routes[class] = table
	}
	return routes
}

// Resolve returns the first configured (provider, model) for the class.
func (r *Router) Resolve(class TaskClass) (Provider, string, error) {
	table, ok := r.routes[class]
	if !ok {
		table = r.routes[TaskGeneral]
	}
	for _, route := range table {
		if p, ok := r.providers[route.Provider]; ok {
			return p, route.Model, nil
		}
	}
	return nil, "", NewUnavailableError("router",
		fmt.Sprintf("no configured provider for task class %s", class), nil)
}

// Chat routes a conversation through the class's selected model.
func (r *Router) Chat(ctx context.Context, class TaskClass, messages []Message, opts ChatOptions) (string, error) {
	p, model, err := r.Resolve(class)
	if err != nil {
		return "", err
	}
	r.log.Debug("routing chat", "class", class, "provider", p.Name(), "model", model)
	return p.Chat(ctx, model, messages, opts)
}

// StreamChat routes a streaming conversation through the class's model.
func (r *Router) StreamChat(ctx context.Context, class TaskClass, messages []Message, opts ChatOptions) (<-chan StreamChunk, error) {
	p, model, err := r.Resolve(class)
	if err != nil {
		return nil, err
	}
	r.log.Debug("routing stream", "class", class, "provider", p.Name(), "model", model)
	return p.StreamChat(ctx, model, messages, opts)
}

// Embed returns the embedding for text using the first configured
// embedding-capable provider.
func (r *Router) Embed(ctx context.Context, text string) ([]float32, error) {
	for _, route := range r.embeds {
		p, ok := r.providers[route.Provider]
		if !ok {
			continue
		}
		return p.Embed(ctx, route.Model, text)
	}
	return nil, NewUnavailableError("router", "no embedding provider is configured", nil)
}

const intentSystemPrompt = `You are an intent classifier for an autonomous agent.
Classify the user's goal into exactly one of:
CHAT - casual conversation, greetings, questions answerable directly
RESEARCH - requests to look up, investigate or gather information
SINGLE_ACTION - one concrete operation a single tool can perform
PLAN - multi-step goals requiring several coordinated actions
Respond with the single classification word and nothing else.`

// ClassifyIntent classifies a goal with the fast model. The reply is
// normalized; anything unrecognized maps to PLAN.
func (r *Router) ClassifyIntent(ctx context.Context, goal, recentHistory string) (Intent, error) {
	prompt := goal
	if recentHistory != "" {
		prompt = fmt.Sprintf("Recent conversation:\n%s\n\nGoal: %s", recentHistory, goal)
	}

	out, err := r.Chat(ctx, TaskFast, []Message{{Role: RoleUser, Content: prompt}}, ChatOptions{
		SystemPrompt: intentSystemPrompt,
		MaxTokens:    8,
	})
	if err != nil {
		return "", err
	}
	return ParseIntent(out), nil
}

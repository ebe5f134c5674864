package llm

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider talks to the Gemini API through the official SDK.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewUnavailableError("gemini", "failed to create client", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// toContents converts conversation turns, splitting off the system turn
// which Gemini takes as a separate instruction.
func toContents(messages []Message, opts ChatOptions) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, turns := splitSystem(messages, opts.SystemPrompt)

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	return contents, cfg
}

func (p *GeminiProvider) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	contents, cfg := toContents(messages, opts)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", NewUnavailableError(p.Name(), "generate content failed", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", NewProtocolError(p.Name(), "response has no text content", nil)
	}
	return text, nil
}

func (p *GeminiProvider) StreamChat(ctx context.Context, model string, messages []Message, opts ChatOptions) (<-chan StreamChunk, error) {
	contents, cfg := toContents(messages, opts)

	out := make(chan StreamChunk, 100)
	go func() {
		defer close(out)

		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				out <- StreamChunk{Type: ChunkError, Err: NewUnavailableError(p.Name(), "stream failed", err)}
				return
			}
			if text := resp.Text(); text != "" {
				select {
				case out <- StreamChunk{Type: ChunkText, Text: text}:
				case <-ctx.Done():
					return
				}
			}
		}
		out <- StreamChunk{Type: ChunkDone}
	}()

	return out, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	resp, err := p.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, NewUnavailableError(p.Name(), "embed content failed", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, NewProtocolError(p.Name(), "embedding response is empty", nil)
	}
	return resp.Embeddings[0].Values, nil
}

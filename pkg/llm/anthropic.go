package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAnthropicHost    = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
	anthropicDefaultMaxToks = 4096
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey string
	host   string
	client *http.Client
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey: apiKey,
		host:   defaultAnthropicHost,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// splitSystem separates a leading system turn, since the Messages API
// takes system text as a top-level field.
func splitSystem(messages []Message, system string) (string, []Message) {
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		if system == "" {
			system = messages[0].Content
		}
		messages = messages[1:]
	}
	return system, messages
}

func (p *AnthropicProvider) buildRequest(model string, messages []Message, opts ChatOptions, stream bool) anthropicRequest {
	system, turns := splitSystem(messages, opts.SystemPrompt)
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxToks
	}
	return anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    turns,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
}

func (p *AnthropicProvider) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	resp, err := p.send(ctx, p.buildRequest(model, messages, opts, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewUnavailableError(p.Name(), "failed to read response body", err)
	}

	var msgResp anthropicResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return "", NewProtocolError(p.Name(), "failed to decode response", err)
	}
	if msgResp.Error != nil {
		return "", NewProtocolError(p.Name(), msgResp.Error.Message, nil)
	}

	var sb strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", NewProtocolError(p.Name(), "response has no text content", nil)
	}
	return sb.String(), nil
}

func (p *AnthropicProvider) StreamChat(ctx context.Context, model string, messages []Message, opts ChatOptions) (<-chan StreamChunk, error) {
	resp, err := p.send(ctx, p.buildRequest(model, messages, opts, true))
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 100)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					out <- StreamChunk{Type: ChunkError, Err: NewUnavailableError(p.Name(), "stream read failed", err)}
				}
				return
			}

			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var ev anthropicStreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}

			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
					select {
					case out <- StreamChunk{Type: ChunkText, Text: ev.Delta.Text}:
					case <-ctx.Done():
						return
					}
				}
			case "message_stop":
				out <- StreamChunk{Type: ChunkDone}
				return
			}
		}
	}()

	return out, nil
}

// Embed is unsupported; Anthropic exposes no embeddings endpoint.
func (p *AnthropicProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, NewProtocolError(p.Name(), "embeddings are not supported", nil)
}

func (p *AnthropicProvider) send(ctx context.Context, req anthropicRequest) (*http.Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, NewProtocolError(p.Name(), "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, NewProtocolError(p.Name(), "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewUnavailableError(p.Name(), "request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		var errResp anthropicResponse
		msg := fmt.Sprintf("API error (status %d)", resp.StatusCode)
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
			msg = fmt.Sprintf("API error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, NewUnavailableError(p.Name(), msg, nil)
		}
		return nil, NewProtocolError(p.Name(), msg, nil)
	}

	return resp, nil
}

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

const defaultOpenAIHost = "https://api.openai.com/v1"

// OpenAIProvider talks to the OpenAI chat and embeddings endpoints, or
// any compatible gateway reachable at Host.
type OpenAIProvider struct {
	apiKey string
	host   string
	client *http.Client
}

// NewOpenAIProvider creates a provider against api.openai.com.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return NewOpenAIProviderWithHost(apiKey, defaultOpenAIHost)
}

// NewOpenAIProviderWithHost creates a provider against a custom host.
func NewOpenAIProviderWithHost(apiKey, host string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey: apiKey,
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *openAIError `json:"error,omitempty"`
}

func (p *OpenAIProvider) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	req := openAIChatRequest{
		Model:       model,
		Messages:    withSystem(messages, opts.SystemPrompt),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	body, err := p.post(ctx, "/chat/completions", req)
	if err != nil {
		return "", err
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", NewProtocolError(p.Name(), "failed to decode chat response", err)
	}
	if chatResp.Error != nil {
		return "", NewProtocolError(p.Name(), chatResp.Error.Message, nil)
	}
	if len(chatResp.Choices) == 0 {
		return "", NewProtocolError(p.Name(), "chat response has no choices", nil)
	}
	return chatResp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) StreamChat(ctx context.Context, model string, messages []Message, opts ChatOptions) (<-chan StreamChunk, error) {
	req := openAIChatRequest{
		Model:       model,
		Messages:    withSystem(messages, opts.SystemPrompt),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	}

	resp, err := p.send(ctx, "/chat/completions", req)
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
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				out <- StreamChunk{Type: ChunkDone}
				return
			}

			var delta openAIStreamResponse
			if err := json.Unmarshal([]byte(data), &delta); err != nil {
				continue
			}
			if len(delta.Choices) > 0 && delta.Choices[0].Delta.Content != "" {
				select {
				case out <- StreamChunk{Type: ChunkText, Text: delta.Choices[0].Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	req := openAIEmbeddingRequest{Model: model, Input: []string{text}}

	body, err := p.post(ctx, "/embeddings", req)
	if err != nil {
		return nil, err
	}

	var embResp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, NewProtocolError(p.Name(), "failed to decode embedding response", err)
	}
	if embResp.Error != nil {
		return nil, NewProtocolError(p.Name(), embResp.Error.Message, nil)
	}
	if len(embResp.Data) == 0 {
		return nil, NewProtocolError(p.Name(), "embedding response has no data", nil)
	}
	return embResp.Data[0].Embedding, nil
}

// post sends a JSON request and returns the full response body.
func (p *OpenAIProvider) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	resp, err := p.send(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewUnavailableError(p.Name(), "failed to read response body", err)
	}
	return body, nil
}

func (p *OpenAIProvider) send(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProtocolError(p.Name(), "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(data))
	if err != nil {
		return nil, NewProtocolError(p.Name(), "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewUnavailableError(p.Name(), "request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		msg := parseOpenAIError(body, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, NewUnavailableError(p.Name(), msg, nil)
		}
		return nil, NewProtocolError(p.Name(), msg, nil)
	}

	return resp, nil
}

func parseOpenAIError(body []byte, status int) string {
	var errResp struct {
		Error openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("API error (status %d): %s", status, errResp.Error.Message)
	}
	return fmt.Sprintf("API error (status %d)", status)
}

// withSystem prepends a system turn unless one is already present.
func withSystem(messages []Message, system string) []Message {
	if system == "" {
		return messages
	}
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: system})
	return append(out, messages...)
}

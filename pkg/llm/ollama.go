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

const defaultOllamaHost = "http://localhost:11434"

// OllamaProvider talks to a local Ollama server over its native API.
// No credentials are needed; a reachable host counts as configured.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

func NewOllamaProvider(host string) *OllamaProvider {
	if host == "" {
		host = defaultOllamaHost
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(host, "/"),
		client:  &http.Client{Timeout: 300 * time.Second},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (p *OllamaProvider) buildChatRequest(model string, messages []Message, opts ChatOptions, stream bool) ollamaChatRequest {
	req := ollamaChatRequest{
		Model:    model,
		Messages: withSystem(messages, opts.SystemPrompt),
		Stream:   stream,
	}
	options := map[string]interface{}{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		req.Options = options
	}
	return req
}

func (p *OllamaProvider) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	resp, err := p.send(ctx, "/api/chat", p.buildChatRequest(model, messages, opts, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", NewProtocolError(p.Name(), "failed to decode chat response", err)
	}
	if chatResp.Error != "" {
		return "", NewProtocolError(p.Name(), chatResp.Error, nil)
	}
	return chatResp.Message.Content, nil
}

func (p *OllamaProvider) StreamChat(ctx context.Context, model string, messages []Message, opts ChatOptions) (<-chan StreamChunk, error) {
	resp, err := p.send(ctx, "/api/chat", p.buildChatRequest(model, messages, opts, true))
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 100)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		// Ollama streams newline-delimited JSON objects, not SSE.
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var chunk ollamaChatResponse
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				continue
			}
			if chunk.Error != "" {
				out <- StreamChunk{Type: ChunkError, Err: NewProtocolError(p.Name(), chunk.Error, nil)}
				return
			}
			if chunk.Message.Content != "" {
				select {
				case out <- StreamChunk{Type: ChunkText, Text: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				out <- StreamChunk{Type: ChunkDone}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Type: ChunkError, Err: NewUnavailableError(p.Name(), "stream read failed", err)}
		}
	}()

	return out, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	resp, err := p.send(ctx, "/api/embed", ollamaEmbedRequest{Model: model, Input: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var embResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, NewProtocolError(p.Name(), "failed to decode embedding response", err)
	}
	if embResp.Error != "" {
		return nil, NewProtocolError(p.Name(), embResp.Error, nil)
	}
	if len(embResp.Embeddings) == 0 {
		return nil, NewProtocolError(p.Name(), "embedding response is empty", nil)
	}
	return embResp.Embeddings[0], nil
}

func (p *OllamaProvider) send(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProtocolError(p.Name(), "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, NewProtocolError(p.Name(), "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewUnavailableError(p.Name(), "request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 500 {
			return nil, NewUnavailableError(p.Name(), msg, nil)
		}
		return nil, NewProtocolError(p.Name(), msg, nil)
	}
	return resp, nil
}

package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hello back"}}]}`))
	}))
	defer server.Close()

	p := NewOpenAIProviderWithHost("test-key", server.URL)
	out, err := p.Chat(context.Background(), "gpt-4.1", []Message{{Role: RoleUser, Content: "hello"}}, ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)
}

func TestOpenAIChatServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProviderWithHost("test-key", server.URL)
	_, err := p.Chat(context.Background(), "gpt-4.1", nil, ChatOptions{})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestOpenAIChatBadRequestIsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"unknown model"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProviderWithHost("test-key", server.URL)
	_, err := p.Chat(context.Background(), "nope", nil, ChatOptions{})
	require.Error(t, err)
	assert.False(t, IsUnavailable(err))
}

func TestOpenAIStreamChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	p := NewOpenAIProviderWithHost("test-key", server.URL)
	ch, err := p.StreamChat(context.Background(), "gpt-4.1", []Message{{Role: RoleUser, Content: "hello"}}, ChatOptions{})
	require.NoError(t, err)

	var text string
	var done bool
	for chunk := range ch {
		switch chunk.Type {
		case ChunkText:
			text += chunk.Text
		case ChunkDone:
			done = true
		case ChunkError:
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
	}
	assert.Equal(t, "hello", text)
	assert.True(t, done)
}

func TestOpenAIEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Write([]byte(`{"data":[{"embedding":[0.25,-0.5]}]}`))
	}))
	defer server.Close()

	p := NewOpenAIProviderWithHost("test-key", server.URL)
	vec, err := p.Embed(context.Background(), "text-embedding-3-small", "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5}, vec)
}

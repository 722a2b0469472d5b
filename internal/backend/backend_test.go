package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"PhindChat/internal/provider"
	"PhindChat/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var chat = []session.Message{
	{Role: session.RoleSystem, Content: "be brief"},
	{Role: session.RoleUser, Content: "hi"},
}

func TestOllamaGenerateStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req OllamaRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "llama3:latest", req.Model)
		assert.Len(t, req.Messages, 2)

		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer server.Close()

	o := NewOllama(server.URL, "llama3:latest", server.Client())

	var updates []string
	err := o.Generate(context.Background(), chat, func(text string) { updates = append(updates, text) })

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "Hello", "Hello"}, updates)
}

func TestOllamaStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"model not found"}`)
	}))
	defer server.Close()

	err := NewOllama(server.URL, "missing", server.Client()).Generate(context.Background(), chat, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllamaListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"llama3:latest","size":4661224676}]}`)
	}))
	defer server.Close()

	models, err := NewOllama(server.URL, "", server.Client()).ListModels(context.Background())

	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "llama3:latest", models[0].Name)
}

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hello"}}],"usage":{"total_tokens":7}}`)
	}))
	defer server.Close()

	o := NewOpenAI("grok", server.URL+"/v1", "grok-1", "secret", server.Client())
	var usage map[string]interface{}
	o.OnUsage(func(ctx context.Context, u map[string]interface{}) { usage = u })

	answer, err := provider.Collect(context.Background(), o, chat)

	require.NoError(t, err)
	assert.Equal(t, "Hello", answer)
	assert.Equal(t, float64(7), usage["total_tokens"])
	assert.Equal(t, "grok", o.Name())
}

func TestOpenAIMissingKey(t *testing.T) {
	err := NewOpenAI("openai", "http://127.0.0.1:0", "gpt", "", nil).Generate(context.Background(), chat, nil)

	require.ErrorIs(t, err, provider.ErrMissingAPIKey)
}

func TestOpenAIStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewOpenAI("openai", server.URL, "gpt", "key", server.Client()).Generate(context.Background(), chat, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAnthropicGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req AnthropicRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be brief", req.System)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, session.RoleUser, req.Messages[0].Role)
		}

		fmt.Fprint(w, `{"content":[{"type":"text","text":"Hi there"}],"stop_reason":"end_turn"}`)
	}))
	defer server.Close()

	answer, err := provider.Collect(context.Background(), NewAnthropic(server.URL, "claude", "key", server.Client()), chat)

	require.NoError(t, err)
	assert.Equal(t, "Hi there", answer)
}

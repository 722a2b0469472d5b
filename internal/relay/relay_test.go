package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PhindChat/internal/phind"
	"PhindChat/internal/provider"
	"PhindChat/internal/session"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoProvider struct {
	name string
	err  error
}

func (p *echoProvider) Name() string { return p.name }

// Generate answers with the last message, one word per update
func (p *echoProvider) Generate(ctx context.Context, messages []session.Message, update provider.UpdateFunc) error {
	if len(messages) == 0 || messages[len(messages)-1].Role != session.RoleUser {
		return phind.ErrNoQuestion
	}
	var text string
	for i, word := range strings.Fields(messages[len(messages)-1].Content) {
		if i > 0 {
			text += " "
		}
		text += word
		update(text)
	}
	return p.err
}

type blockingProvider struct {
	started chan struct{}
	done    chan error
}

func (p *blockingProvider) Name() string { return "slow" }

func (p *blockingProvider) Generate(ctx context.Context, messages []session.Message, update provider.UpdateFunc) error {
	update("thinking")
	close(p.started)
	<-ctx.Done()
	p.done <- ctx.Err()
	return ctx.Err()
}

func newTestServer(t *testing.T, providers ...provider.Provider) *httptest.Server {
	t.Helper()
	registry := provider.NewRegistry()
	for _, p := range providers {
		registry.Register(p.Name(), p)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := httptest.NewServer(New(registry, providers[0].Name(), logger).Router())
	t.Cleanup(server.Close)
	return server
}

func postGenerate(t *testing.T, url string, req GenerateRequest) (*http.Response, map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(url+"/v1/generate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func dialStream(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	server := newTestServer(t, &echoProvider{name: "phind"})
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/stream"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Nil(t, conn)

	conn, _, err = websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {server.URL}})
	require.NoError(t, err)
	conn.Close()
}

func TestGenerateRejectsForeignOrigin(t *testing.T) {
	server := newTestServer(t, &echoProvider{name: "phind"})

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/generate", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://evil.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, server.URL+"/v1/generate", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", server.URL)

	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, &echoProvider{name: "phind"}, &echoProvider{name: "ollama"})

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []interface{}{"ollama", "phind"}, body["backends"])
}

func TestGenerate(t *testing.T) {
	server := newTestServer(t, &echoProvider{name: "phind"})

	resp, body := postGenerate(t, server.URL, GenerateRequest{
		Messages: []session.Message{{Role: "user", Content: "hello there"}},
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello there", body["text"])
}

func TestGenerateErrors(t *testing.T) {
	server := newTestServer(t,
		&echoProvider{name: "phind"},
		&echoProvider{name: "broken", err: &phind.StreamError{Partial: "half", Err: phind.ErrBackend}},
	)

	tests := []struct {
		name       string
		req        GenerateRequest
		wantStatus int
		wantText   interface{}
	}{
		{
			name:       "unknown backend",
			req:        GenerateRequest{Backend: "bard", Messages: []session.Message{{Role: "user", Content: "hi"}}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no question",
			req:        GenerateRequest{Messages: []session.Message{{Role: "assistant", Content: "hi"}}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "backend error keeps partial text",
			req:        GenerateRequest{Backend: "broken", Messages: []session.Message{{Role: "user", Content: "half"}}},
			wantStatus: http.StatusBadGateway,
			wantText:   "half",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := postGenerate(t, server.URL, tc.req)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, tc.wantText, body["text"])
		})
	}
}

func TestGenerateEmptyLastMessage(t *testing.T) {
	server := newTestServer(t, phind.New())

	resp, body := postGenerate(t, server.URL, GenerateRequest{Messages: []session.Message{
		{Role: "user", Content: "q1"},
		{Role: "user", Content: ""},
	}})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, phind.ErrNoQuestion.Error(), body["error"])
}

func TestGenerateBadBody(t *testing.T) {
	server := newTestServer(t, &echoProvider{name: "phind"})

	resp, err := http.Post(server.URL+"/v1/generate", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStream(t *testing.T) {
	server := newTestServer(t, &echoProvider{name: "phind"})
	conn := dialStream(t, server)

	require.NoError(t, conn.WriteJSON(GenerateRequest{
		Messages: []session.Message{{Role: "user", Content: "one two three"}},
	}))

	var got []StreamMessage
	for {
		var msg StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		got = append(got, msg)
		if msg.Type != "update" {
			break
		}
	}

	assert.Equal(t, []StreamMessage{
		{Type: "update", Text: "one"},
		{Type: "update", Text: "one two"},
		{Type: "update", Text: "one two three"},
		{Type: "done", Text: "one two three"},
	}, got)
}

func TestStreamError(t *testing.T) {
	server := newTestServer(t, &echoProvider{name: "phind"})
	conn := dialStream(t, server)

	require.NoError(t, conn.WriteJSON(GenerateRequest{Backend: "bard"}))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "unknown backend")
}

func TestStreamClientCloseCancels(t *testing.T) {
	slow := &blockingProvider{started: make(chan struct{}), done: make(chan error, 1)}
	server := newTestServer(t, slow)
	conn := dialStream(t, server)

	require.NoError(t, conn.WriteJSON(GenerateRequest{
		Messages: []session.Message{{Role: "user", Content: "hi"}},
	}))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, StreamMessage{Type: "update", Text: "thinking"}, msg)
	<-slow.started

	require.NoError(t, conn.Close())

	select {
	case err := <-slow.done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("generation was not cancelled after the client disconnected")
	}
}

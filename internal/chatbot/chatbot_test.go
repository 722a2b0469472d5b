package chatbot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"PhindChat/internal/backend"
	"PhindChat/internal/config"
	"PhindChat/internal/phind"
	"PhindChat/internal/provider"
	"PhindChat/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	name    string
	updates []string
	err     error
	calls   atomic.Int32
	seen    [][]session.Message
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(ctx context.Context, messages []session.Message, update provider.UpdateFunc) error {
	p.calls.Add(1)
	p.seen = append(p.seen, messages)
	for _, u := range p.updates {
		update(u)
	}
	return p.err
}

type fixture struct {
	bot   *ChatBot
	store *session.Store
	out   *bytes.Buffer
}

func newFixture(t *testing.T, input string, providers ...*scriptedProvider) fixture {
	t.Helper()

	store, err := session.OpenStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := provider.NewRegistry()
	for _, p := range providers {
		registry.Register(p.name, p)
	}

	out := &bytes.Buffer{}
	cfg := config.Config{Backend: providers[0].name}
	bot, err := NewChatBot(context.Background(), cfg, Options{
		Store:    store,
		Registry: registry,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		In:       strings.NewReader(input),
		Out:      out,
	})
	require.NoError(t, err)

	return fixture{bot: bot, store: store, out: out}
}

func TestRunChatsAndSaves(t *testing.T) {
	p := &scriptedProvider{name: "phind", updates: []string{"Hel", "Hello!"}}
	f := newFixture(t, "hi\n\n/quit\n", p)

	require.NoError(t, f.bot.Run(context.Background()))

	assert.Contains(t, f.out.String(), "Bot: Hello!")
	assert.NotContains(t, f.out.String(), "Bot: Hel\n")
	assert.Contains(t, f.out.String(), "Goodbye!")

	stored, err := f.store.Load(context.Background(), f.bot.Session().ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, session.RoleUser, stored.Messages[0].Role)
	assert.Equal(t, "hi", stored.Messages[0].Content)
	assert.Equal(t, "Hello!", stored.Messages[1].Content)
}

func TestSendCarriesHistory(t *testing.T) {
	p := &scriptedProvider{name: "phind", updates: []string{"ok"}}
	f := newFixture(t, "", p)
	ctx := context.Background()

	_, err := f.bot.Send(ctx, "first")
	require.NoError(t, err)
	_, err = f.bot.Send(ctx, "second")
	require.NoError(t, err)

	require.Len(t, p.seen, 2)
	last := p.seen[1]
	require.Len(t, last, 3)
	assert.Equal(t, "first", last[0].Content)
	assert.Equal(t, "ok", last[1].Content)
	assert.Equal(t, "second", last[2].Content)
}

func TestSendFailureKeepsHistoryClean(t *testing.T) {
	p := &scriptedProvider{
		name:    "phind",
		updates: []string{"partial"},
		err:     &phind.StreamError{Partial: "partial", Err: phind.ErrBackend},
	}
	f := newFixture(t, "", p)

	answer, err := f.bot.Send(context.Background(), "hi")

	require.ErrorIs(t, err, phind.ErrBackend)
	assert.Equal(t, "partial", answer)
	assert.Contains(t, f.out.String(), "Bot: partial")
	assert.Empty(t, f.bot.Session().Messages)
}

func TestSendUsesCache(t *testing.T) {
	p := &scriptedProvider{name: "phind", updates: []string{"cached answer"}}
	f := newFixture(t, "", p)
	ctx := context.Background()

	_, err := f.bot.Send(ctx, "hi")
	require.NoError(t, err)

	_, err = f.bot.handleCommand(ctx, "/new-session")
	require.NoError(t, err)

	answer, err := f.bot.Send(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "cached answer", answer)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Len(t, f.bot.Session().Messages, 2)
}

func TestSwitchBackend(t *testing.T) {
	phindP := &scriptedProvider{name: "phind", updates: []string{"from phind"}}
	ollamaP := &scriptedProvider{name: "ollama", updates: []string{"from ollama"}}
	f := newFixture(t, "", phindP, ollamaP)
	ctx := context.Background()

	_, err := f.bot.handleCommand(ctx, "/switch OLLAMA")
	require.NoError(t, err)
	assert.Equal(t, "ollama", f.bot.Session().Backend)

	answer, err := f.bot.Send(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "from ollama", answer)
	assert.Zero(t, phindP.calls.Load())

	_, err = f.bot.handleCommand(ctx, "/switch bard")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)

	_, err = f.bot.handleCommand(ctx, "/switch")
	assert.ErrorContains(t, err, "usage")
}

func TestCommands(t *testing.T) {
	p := &scriptedProvider{name: "phind", updates: []string{"ok"}}
	f := newFixture(t, "", p)
	ctx := context.Background()

	quit, err := f.bot.handleCommand(ctx, "/exit")
	require.NoError(t, err)
	assert.True(t, quit)

	quit, err = f.bot.handleCommand(ctx, "/help")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, f.out.String(), "/set-ollama-model")

	_, err = f.bot.handleCommand(ctx, "/bogus")
	assert.Error(t, err)

	_, err = f.bot.handleCommand(ctx, "/list-ollama-models")
	assert.ErrorContains(t, err, "not configured")
}

func TestSessionsCommand(t *testing.T) {
	p := &scriptedProvider{name: "phind", updates: []string{"ok"}}
	f := newFixture(t, "", p)
	ctx := context.Background()

	_, err := f.bot.handleCommand(ctx, "/sessions")
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "No sessions found")

	_, err = f.bot.Send(ctx, "hi")
	require.NoError(t, err)

	f.out.Reset()
	_, err = f.bot.handleCommand(ctx, "/sessions 5")
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), f.bot.Session().ID)

	_, err = f.bot.handleCommand(ctx, "/sessions zero")
	assert.Error(t, err)
}

func TestResumeSession(t *testing.T) {
	p := &scriptedProvider{name: "phind", updates: []string{"ok"}}
	f := newFixture(t, "", p)
	ctx := context.Background()

	_, err := f.bot.Send(ctx, "remember me")
	require.NoError(t, err)
	id := f.bot.Session().ID

	registry := provider.NewRegistry()
	registry.Register("phind", p)
	resumed, err := NewChatBot(ctx, config.Config{Backend: "phind", SessionID: id}, Options{
		Store:    f.store,
		Registry: registry,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Out:      io.Discard,
	})
	require.NoError(t, err)
	assert.Equal(t, id, resumed.Session().ID)
	assert.Len(t, resumed.Session().Messages, 2)

	fresh, err := NewChatBot(ctx, config.Config{Backend: "phind", SessionID: "missing"}, Options{
		Store:    f.store,
		Registry: registry,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Out:      io.Discard,
	})
	require.NoError(t, err)
	assert.NotEqual(t, "missing", fresh.Session().ID)
}

func TestOllamaModelCommands(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"llama3:latest","size":1073741824},{"name":"qwen2:7b","size":0}]}`)
	}))
	defer server.Close()

	p := &scriptedProvider{name: "phind"}
	f := newFixture(t, "", p)
	f.bot.ollama = backend.NewOllama(server.URL, "llama3:latest", server.Client())
	ctx := context.Background()

	_, err := f.bot.handleCommand(ctx, "/list-ollama-models")
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "1. llama3:latest - 1.00 GB (current)")
	assert.Contains(t, f.out.String(), "2. qwen2:7b")

	_, err = f.bot.handleCommand(ctx, "/set-ollama-model qwen2:7b")
	require.NoError(t, err)
	assert.Equal(t, "qwen2:7b", f.bot.ollama.Model())
}

func TestNewChatBotRequiresDeps(t *testing.T) {
	_, err := NewChatBot(context.Background(), config.Config{}, Options{})
	assert.ErrorContains(t, err, "session store is required")
}

package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"PhindChat/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestBuildRegistry(t *testing.T) {
	cfg := config.Load()
	registry, ollama := buildRegistry(cfg, slog.Default(), otel.Tracer("test"), func(context.Context, map[string]interface{}) {})

	assert.Equal(t, []string{"anthropic", "grok", "ollama", "openai", "phind"}, registry.Names())
	require.NotNil(t, ollama)

	p, err := registry.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	p, err = registry.Get("phind")
	require.NoError(t, err)
	assert.Equal(t, "phind", p.Name())
}

func TestLoadConfigFlags(t *testing.T) {
	t.Setenv("PHINDCHAT_BACKEND", "ollama")

	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{}
		addConfigFlags(cmd)
		return cmd
	}

	cmd := newCmd()
	require.NoError(t, loadConfig(cmd))
	assert.Equal(t, "ollama", cfg.Backend)

	cmd = newCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--backend", "Phind", "--ollama-model", "qwen2:7b"}))
	require.NoError(t, loadConfig(cmd))
	assert.Equal(t, "phind", cfg.Backend)
	assert.Equal(t, "qwen2:7b", cfg.OllamaModel)

	cmd = newCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--backend", "bard"}))
	assert.Error(t, loadConfig(cmd))
}

func TestNewAppWithoutRedis(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Load()
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.DBPath = filepath.Join(dir, "chat.db")
	cfg.RedisURL = ""

	prev := slog.Default()
	defer slog.SetDefault(prev)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.store)
	assert.NotNil(t, a.cache)
	assert.Contains(t, a.registry.Names(), "phind")
}

func TestRootCommandLeavesErrorReportingToMain(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--backend", "bard", "sessions"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs([]string{})
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
	assert.NotContains(t, out.String(), "Error:")
	assert.NotContains(t, out.String(), "Usage:")
}

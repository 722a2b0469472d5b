package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "PHINDCHAT_TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "PHINDCHAT_TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envValue)
			assert.Equal(t, tc.expected, getEnvOrDefault(tc.key, tc.defaultVal))
		})
	}
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected time.Duration
	}{
		{"go duration", "90s", 90 * time.Second},
		{"plain seconds", "30", 30 * time.Second},
		{"empty uses default", "", time.Minute},
		{"garbage uses default", "soon", time.Minute},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("PHINDCHAT_TEST_DURATION", tc.envValue)
			assert.Equal(t, tc.expected, getEnvAsDurationOrDefault("PHINDCHAT_TEST_DURATION", time.Minute))
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("PHINDCHAT_BACKEND", "ollama")
	t.Setenv("PHIND_MODEL", "Phind-405B")
	t.Setenv("PHINDCHAT_TIMEOUT", "2m")
	t.Setenv("REDIS_URL", "")

	cfg := Load()

	assert.Equal(t, BackendOllama, cfg.Backend)
	assert.Equal(t, "Phind-405B", cfg.Phind.Model)
	assert.Equal(t, "https://https.api.phind.com/infer/", cfg.Phind.APIURL)
	assert.Equal(t, 2*time.Minute, cfg.RequestTimeout)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
}

func TestValidBackend(t *testing.T) {
	assert.True(t, ValidBackend("phind"))
	assert.True(t, ValidBackend(" OpenAI "))
	assert.False(t, ValidBackend("bard"))
}

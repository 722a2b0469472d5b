package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPhind     = "phind"
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
)

// Backends lists every backend name accepted by --backend and /switch
var Backends = []string{BackendPhind, BackendOllama, BackendAnthropic, BackendGrok, BackendOpenAI}

// PhindConfig holds the endpoint and option overrides for the Phind backend
type PhindConfig struct {
	Origin       string
	HomeURL      string
	APIURL       string
	Model        string
	SearchMode   string
	ThoughtsMode string
	UserAgent    string
}

// Config holds application configuration
type Config struct {
	Backend     string
	SessionID   string
	Debug       bool
	OllamaModel string // Model specification in format "model:version" (e.g., "llama3:latest")
	OllamaURL   string

	AnthropicKey   string
	AnthropicModel string
	OpenAIKey      string
	OpenAIURL      string
	OpenAIModel    string
	GrokKey        string
	GrokURL        string
	GrokModel      string

	Phind PhindConfig

	DBPath         string
	LogDir         string
	ListenAddr     string
	RequestTimeout time.Duration // 0 leaves streaming requests unbounded

	// Response cache; RedisURL empty selects the in-memory cache
	RedisURL string
	CacheTTL time.Duration
}

// Load reads configuration from the environment, after loading a .env file if present
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Backend:     getEnvOrDefault("PHINDCHAT_BACKEND", BackendPhind),
		OllamaModel: getEnvOrDefault("OLLAMA_MODEL", "llama3:latest"),
		OllamaURL:   getEnvOrDefault("OLLAMA_URL", "http://localhost:11434"),

		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel: getEnvOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIURL:      getEnvOrDefault("OPENAI_URL", "https://api.openai.com/v1"),
		OpenAIModel:    getEnvOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
		GrokKey:        os.Getenv("GROK_API_KEY"),
		GrokURL:        getEnvOrDefault("GROK_URL", "https://api.grok.x.ai/v1"),
		GrokModel:      getEnvOrDefault("GROK_MODEL", "grok-1"),

		Phind: PhindConfig{
			Origin:       getEnvOrDefault("PHIND_ORIGIN", "https://www.phind.com"),
			HomeURL:      getEnvOrDefault("PHIND_HOME_URL", "https://www.phind.com/search?home=true"),
			APIURL:       getEnvOrDefault("PHIND_API_URL", "https://https.api.phind.com/infer/"),
			Model:        getEnvOrDefault("PHIND_MODEL", "Phind-70B"),
			SearchMode:   getEnvOrDefault("PHIND_SEARCH_MODE", "auto"),
			ThoughtsMode: getEnvOrDefault("PHIND_THOUGHTS_MODE", "auto"),
			UserAgent:    os.Getenv("PHIND_USER_AGENT"),
		},

		DBPath:         getEnvOrDefault("PHINDCHAT_DB", "chatbot.db"),
		LogDir:         getEnvOrDefault("PHINDCHAT_LOG_DIR", "logs"),
		ListenAddr:     getEnvOrDefault("PHINDCHAT_LISTEN", "127.0.0.1:8080"),
		RequestTimeout: getEnvAsDurationOrDefault("PHINDCHAT_TIMEOUT", 0),

		RedisURL: os.Getenv("REDIS_URL"),
		CacheTTL: getEnvAsDurationOrDefault("CACHE_TTL", time.Hour),
	}
}

// ValidBackend reports whether name is a known backend
func ValidBackend(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, b := range Backends {
		if b == name {
			return true
		}
	}
	return false
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvAsDurationOrDefault accepts Go durations ("30s") or plain seconds ("30")
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

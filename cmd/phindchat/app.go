package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"PhindChat/internal/backend"
	"PhindChat/internal/cache"
	"PhindChat/internal/chatbot"
	"PhindChat/internal/config"
	"PhindChat/internal/phind"
	"PhindChat/internal/provider"
	"PhindChat/internal/session"
	"PhindChat/internal/telemetry"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// app holds the process-wide resources shared by every command
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	store    *session.Store
	cache    cache.Store
	registry *provider.Registry
	ollama   *backend.Ollama

	closers []func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	a.closers = append(a.closers, func() { logFile.Close() })

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.tracer, a.meter = tracer, meter
	a.closers = append(a.closers, shutdown)

	store, err := session.OpenStore(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() { store.Close() })

	if cfg.RedisURL != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			logger.Warn("redis cache unavailable, using in-memory cache", "error", err)
		} else {
			a.cache = rs
			a.closers = append(a.closers, func() { rs.Close() })
		}
	}
	if a.cache == nil {
		a.cache = cache.NewMemoryStore(cfg.CacheTTL)
	}

	a.registry, a.ollama = buildRegistry(cfg, logger, tracer, telemetry.UsageRecorder(meter, logger))
	logger.Info("application initialized", "backend", cfg.Backend, "backends", a.registry.Names())
	return a, nil
}

// buildRegistry registers every backend; hosted ones without a key still register and fail on use
func buildRegistry(cfg config.Config, logger *slog.Logger, tracer trace.Tracer, onUsage func(context.Context, map[string]interface{})) (*provider.Registry, *backend.Ollama) {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	registry := provider.NewRegistry()

	opts := phind.DefaultOptions()
	opts.AnswerModel = cfg.Phind.Model
	opts.SearchMode = cfg.Phind.SearchMode
	opts.ThoughtsMode = cfg.Phind.ThoughtsMode

	phindOpts := []phind.Option{
		phind.WithHTTPClient(httpClient),
		phind.WithOptions(opts),
		phind.WithEndpoints(phind.Endpoints{
			Origin: cfg.Phind.Origin,
			Home:   cfg.Phind.HomeURL,
			API:    cfg.Phind.APIURL,
		}),
		phind.WithLogger(logger),
		phind.WithTracer(tracer),
	}
	if cfg.Phind.UserAgent != "" {
		phindOpts = append(phindOpts, phind.WithUserAgent(cfg.Phind.UserAgent))
	}
	registry.Register(config.BackendPhind, phind.New(phindOpts...))

	ollama := backend.NewOllama(cfg.OllamaURL, cfg.OllamaModel, httpClient)
	registry.Register(config.BackendOllama, ollama)

	anthropic := backend.NewAnthropic("https://api.anthropic.com", cfg.AnthropicModel, cfg.AnthropicKey, httpClient)
	anthropic.OnUsage(onUsage)
	registry.Register(config.BackendAnthropic, anthropic, "claude")

	openai := backend.NewOpenAI(config.BackendOpenAI, cfg.OpenAIURL, cfg.OpenAIModel, cfg.OpenAIKey, httpClient)
	openai.OnUsage(onUsage)
	registry.Register(config.BackendOpenAI, openai, "gpt")

	grok := backend.NewOpenAI(config.BackendGrok, cfg.GrokURL, cfg.GrokModel, cfg.GrokKey, httpClient)
	grok.OnUsage(onUsage)
	registry.Register(config.BackendGrok, grok)

	return registry, ollama
}

func (a *app) newChatBot(ctx context.Context, out io.Writer) (*chatbot.ChatBot, error) {
	return chatbot.NewChatBot(ctx, a.cfg, chatbot.Options{
		Store:    a.store,
		Cache:    a.cache,
		Registry: a.registry,
		Ollama:   a.ollama,
		Logger:   a.logger,
		Tracer:   a.tracer,
		Meter:    a.meter,
		Out:      out,
	})
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

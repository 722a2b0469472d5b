package chatbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"PhindChat/internal/backend"
	"PhindChat/internal/cache"
	"PhindChat/internal/config"
	"PhindChat/internal/phind"
	"PhindChat/internal/provider"
	"PhindChat/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Options carries the dependencies of a ChatBot. A nil Cache falls back to an
// in-memory cache with cfg.CacheTTL, Ollama enables the Ollama model commands when
// set, and a nil Out renders to the terminal through a live area.
type Options struct {
	Store    *session.Store
	Cache    cache.Store
	Registry *provider.Registry
	Ollama   *backend.Ollama
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
	In       io.Reader
	Out      io.Writer
}

// ChatBot represents the main application
type ChatBot struct {
	config   config.Config
	store    *session.Store
	cache    cache.Store
	registry *provider.Registry
	ollama   *backend.Ollama
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	in       io.Reader
	out      io.Writer
	terminal bool

	updates   metric.Int64Counter
	cacheHits metric.Int64Counter
	duration  metric.Float64Histogram

	session *session.Session
	mu      sync.Mutex
}

// NewChatBot creates a new ChatBot instance
func NewChatBot(ctx context.Context, cfg config.Config, opts Options) (*ChatBot, error) {
	if opts.Store == nil {
		return nil, errors.New("chatbot: session store is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("chatbot: provider registry is required")
	}

	cb := &ChatBot{
		config:   cfg,
		store:    opts.Store,
		cache:    opts.Cache,
		registry: opts.Registry,
		ollama:   opts.Ollama,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		meter:    opts.Meter,
		in:       opts.In,
		out:      opts.Out,
	}
	if cb.cache == nil {
		cb.cache = cache.NewMemoryStore(cfg.CacheTTL)
	}
	if cb.logger == nil {
		cb.logger = slog.Default()
	}
	if cb.tracer == nil {
		cb.tracer = otel.Tracer("PhindChat/chatbot")
	}
	if cb.meter == nil {
		cb.meter = otel.Meter("PhindChat/chatbot")
	}
	if cb.in == nil {
		cb.in = os.Stdin
	}
	if cb.out == nil {
		cb.out = os.Stdout
		cb.terminal = true
	}

	var err error
	if cb.updates, err = cb.meter.Int64Counter("chat.stream.updates",
		metric.WithDescription("Answer updates delivered by backends")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if cb.cacheHits, err = cb.meter.Int64Counter("chat.cache.hits",
		metric.WithDescription("Answers served from the response cache")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if cb.duration, err = cb.meter.Float64Histogram("http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds")); err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}

	if cfg.Debug {
		cb.logger.Info("Debug mode enabled")
	}

	if cfg.SessionID != "" {
		sess, err := cb.store.Load(ctx, cfg.SessionID)
		if err != nil {
			cb.logger.Warn("failed to load session, creating new one", "error", err)
			cb.session = cb.newSession()
		} else {
			cb.session = sess
			cb.logger.Info("loaded existing session", "session_id", sess.ID)
		}
	} else {
		cb.session = cb.newSession()
	}

	return cb, nil
}

// Session returns a copy of the current session
func (cb *ChatBot) Session() session.Session {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	sess := *cb.session
	sess.Messages = cb.session.Snapshot()
	return sess
}

func (cb *ChatBot) newSession() *session.Session {
	sess := session.New(cb.config.Backend)
	cb.logger.Info("created new session", "session_id", sess.ID, "backend", sess.Backend)
	return sess
}

func (cb *ChatBot) saveSession(ctx context.Context) error {
	sess := cb.Session()
	if err := cb.store.Save(ctx, &sess); err != nil {
		return err
	}
	cb.logger.Info("session saved", "session_id", sess.ID, "message_count", len(sess.Messages))
	return nil
}

func (cb *ChatBot) startDisplay() display {
	if cb.terminal {
		d, err := newAreaDisplay()
		if err == nil {
			return d
		}
		cb.logger.Warn("falling back to plain output", "error", err)
	}
	return &textDisplay{w: cb.out}
}

// Send appends the user message, streams the answer from the session's backend and
// records it. A failed call leaves the history as it was before Send.
func (cb *ChatBot) Send(ctx context.Context, userMessage string) (string, error) {
	cb.mu.Lock()
	before := len(cb.session.Messages)
	cb.session.Append(session.RoleUser, userMessage)
	messages := cb.session.Snapshot()
	backendName := cb.session.Backend
	sessionID := cb.session.ID
	cb.mu.Unlock()

	rollback := func() {
		cb.mu.Lock()
		if len(cb.session.Messages) > before {
			cb.session.Messages = cb.session.Messages[:before]
		}
		cb.mu.Unlock()
	}

	cacheKey := cache.GenerateCacheKey(backendName, messages)
	if cached, err := cb.cache.Get(ctx, cacheKey); err == nil {
		cb.logger.Info("cache hit", "key", cacheKey[:16])
		cb.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backendName)))
		d := cb.startDisplay()
		d.Update(cached)
		d.Stop()
		cb.finish(ctx, cached)
		return cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		cb.logger.Warn("cache lookup failed", "error", err)
	}

	p, err := cb.registry.Get(backendName)
	if err != nil {
		rollback()
		return "", err
	}

	ctx, span := cb.tracer.Start(ctx, backendName+"_generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("message_count", len(messages)),
	)

	attrs := metric.WithAttributes(attribute.String("backend", backendName))
	start := time.Now()

	var answer string
	d := cb.startDisplay()
	err = p.Generate(ctx, messages, func(text string) {
		answer = text
		d.Update(text)
		cb.updates.Add(ctx, 1, attrs)
	})
	d.Stop()

	cb.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	if err != nil {
		rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var streamErr *phind.StreamError
		if errors.As(err, &streamErr) && streamErr.Partial != "" {
			cb.logger.Warn("stream aborted", "backend", backendName, "partial_len", len(streamErr.Partial), "error", err)
		}
		return answer, err
	}

	if err := cb.cache.Set(ctx, cacheKey, answer); err != nil {
		cb.logger.Warn("failed to cache response", "error", err)
	} else {
		cb.logger.Info("cached response", "key", cacheKey[:16])
	}

	cb.finish(ctx, answer)
	return answer, nil
}

func (cb *ChatBot) finish(ctx context.Context, answer string) {
	cb.mu.Lock()
	cb.session.Append(session.RoleAssistant, answer)
	cb.mu.Unlock()

	if err := cb.saveSession(ctx); err != nil {
		cb.logger.Error("failed to save session", "error", err)
	}
}

// Ask sends a single question in the current session and returns the answer
func (cb *ChatBot) Ask(ctx context.Context, question string) (string, error) {
	answer, err := cb.Send(ctx, question)
	if err != nil {
		cb.logger.Error("failed to send message", "error", err)
	}
	return answer, err
}

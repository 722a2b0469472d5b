// Package phind talks to Phind's unofficial streaming inference endpoint: it scrapes the
// per-session challenge seeds, signs the request with the challenge and interprets the
// tagged token stream into a plain-text answer.
package phind

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"PhindChat/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Endpoints are the URLs the provider talks to
type Endpoints struct {
	Origin string
	Home   string
	API    string
}

// DefaultEndpoints returns the public Phind URLs
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Origin: "https://www.phind.com",
		Home:   "https://www.phind.com/search?home=true",
		API:    "https://https.api.phind.com/infer/",
	}
}

// DefaultUserAgent is sent when no other user agent is configured
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Provider generates answers through the Phind endpoint
type Provider struct {
	transport Transport
	extractor SeedExtractor
	tags      TagConfig
	options   Options
	endpoints Endpoints
	userAgent string
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures a Provider
type Option func(*Provider)

// WithTransport replaces the HTTP transport used for the page and API requests
func WithTransport(t Transport) Option { return func(p *Provider) { p.transport = t } }

// WithSeedExtractor replaces the extractor that finds the challenge seeds in the home page
func WithSeedExtractor(e SeedExtractor) Option { return func(p *Provider) { p.extractor = e } }

// WithTagConfig sets the tag substitutions and ignored tags used while streaming
func WithTagConfig(cfg TagConfig) Option { return func(p *Provider) { p.tags = cfg } }

// WithOptions sets the model and mode options sent with every question
func WithOptions(opts Options) Option { return func(p *Provider) { p.options = opts } }

// WithEndpoints overrides the origin, home page and API URLs
func WithEndpoints(e Endpoints) Option { return func(p *Provider) { p.endpoints = e } }

// WithUserAgent sets the User-Agent header sent on every request
func WithUserAgent(ua string) Option { return func(p *Provider) { p.userAgent = ua } }

// WithLogger sets the logger; the default is slog.Default()
func WithLogger(logger *slog.Logger) Option { return func(p *Provider) { p.logger = logger } }

// WithTracer sets the tracer used for the seed fetch and stream spans
func WithTracer(tracer trace.Tracer) Option { return func(p *Provider) { p.tracer = tracer } }

// WithHTTPClient is WithTransport over an HTTP transport built from client
func WithHTTPClient(client *http.Client) Option { return WithTransport(NewHTTPTransport(client, 0)) }

// New creates a provider with the public endpoints and default stream configuration
func New(opts ...Option) *Provider {
	p := &Provider{
		extractor: NewRegexSeedExtractor(nil),
		tags:      DefaultTagConfig(),
		options:   DefaultOptions(),
		endpoints: DefaultEndpoints(),
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
		tracer:    otel.Tracer("PhindChat/phind"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.transport == nil {
		p.transport = NewHTTPTransport(nil, 0)
	}
	return p
}

// Name returns the backend name
func (p *Provider) Name() string {
	return "phind"
}

// Generate asks the last user message with the rest of messages as history. update
// receives the full answer so far after every processed line; the last call before a nil
// return holds the final answer.
func (p *Provider) Generate(ctx context.Context, messages []session.Message, update func(text string)) error {
	// an empty final message would be dropped by Turns, promoting an earlier one to the question
	if len(messages) > 0 && messages[len(messages)-1].Content == "" {
		return ErrNoQuestion
	}

	payload, err := BuildPayload(session.Turns(messages), p.options)
	if err != nil {
		return err
	}

	seeds, err := p.fetchSeeds(ctx)
	if err != nil {
		return err
	}

	if err := payload.Seal(seeds); err != nil {
		return fmt.Errorf("failed to compute challenge: %w", err)
	}
	body, err := payload.Body()
	if err != nil {
		return err
	}

	return p.stream(ctx, body, len(payload.History), update)
}

func (p *Provider) fetchSeeds(ctx context.Context) (Seeds, error) {
	ctx, span := p.tracer.Start(ctx, "phind.fetch_seeds")
	defer span.End()

	page, err := p.transport.Fetch(ctx, Request{
		Method:  http.MethodGet,
		URL:     p.endpoints.Home,
		Headers: DefaultHeaders(p.endpoints.Origin, p.userAgent),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return Seeds{}, fmt.Errorf("failed to fetch landing page: %w", err)
	}

	seeds, err := p.extractor.ExtractSeeds(page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no seeds")
		p.logger.Warn("challenge seeds not found", "url", p.endpoints.Home, "page_bytes", len(page))
		return Seeds{}, err
	}

	span.SetAttributes(attribute.Int64("phind.seeds.modulus", seeds.Modulus))
	return seeds, nil
}

func (p *Provider) stream(ctx context.Context, body []byte, historyLen int, update func(text string)) error {
	ctx, span := p.tracer.Start(ctx, "phind.stream")
	defer span.End()

	start := time.Now()

	headers := DefaultHeaders(p.endpoints.Origin, p.userAgent)
	headers.Set("Content-Type", "application/json")

	respBody, err := p.transport.Stream(ctx, Request{
		Method:  http.MethodPost,
		URL:     p.endpoints.API,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("failed to start stream: %w", err)
	}
	defer respBody.Close()

	updates := 0
	interp := NewInterpreter(p.tags, func(text string) {
		updates++
		if update != nil {
			update(text)
		}
	})

	err = interp.Run(ctx, respBody)

	span.SetAttributes(
		attribute.Int("phind.history_turns", historyLen),
		attribute.Int("phind.updates", updates),
		attribute.Int("phind.answer_bytes", len(interp.Text())),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		p.logger.Error("phind stream failed", "error", err, "updates", updates, "duration", time.Since(start))
		return err
	}

	p.logger.Info("phind stream finished", "updates", updates, "answer_bytes", len(interp.Text()), "duration", time.Since(start))
	return nil
}

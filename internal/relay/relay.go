// Package relay exposes the registered backends over HTTP: a one-shot JSON endpoint and a
// websocket that forwards every answer update as it arrives.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"PhindChat/internal/phind"
	"PhindChat/internal/provider"
	"PhindChat/internal/session"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GenerateRequest is the body of POST /v1/generate and the first websocket message
type GenerateRequest struct {
	Backend  string            `json:"backend,omitempty"`
	Messages []session.Message `json:"messages"`
}

// GenerateResponse is the body of a successful POST /v1/generate
type GenerateResponse struct {
	Text string `json:"text"`
}

// StreamMessage is sent over /v1/stream; Type is "update", "done" or "error"
type StreamMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Text  string `json:"text,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header (non-browser clients) and
// browser requests whose origin host matches the Host they were sent to
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Server relays chat requests to a provider registry
type Server struct {
	registry       *provider.Registry
	defaultBackend string
	logger         *slog.Logger
	tracer         trace.Tracer
}

// New creates a relay server; requests without a backend use defaultBackend
func New(registry *provider.Registry, defaultBackend string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:       registry,
		defaultBackend: defaultBackend,
		logger:         logger,
		tracer:         otel.Tracer("PhindChat/relay"),
	}
}

// Router builds the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"backends": s.registry.Names(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(rejectCrossOrigin)
		r.Post("/generate", s.handleGenerate)
		r.Get("/stream", s.handleStream)
	})

	return r
}

func rejectCrossOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sameOrigin(r) {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "cross-origin request rejected"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) resolve(req GenerateRequest) (provider.Provider, error) {
	name := req.Backend
	if name == "" {
		name = s.defaultBackend
	}
	return s.registry.Get(name)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	p, err := s.resolve(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	text, err := s.generate(r.Context(), p, req.Messages, nil)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Text: text})
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{Text: text})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req GenerateRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Warn("failed to read stream request", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// any further read, including a close frame, ends the generation
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	final := StreamMessage{Type: "done"}
	p, err := s.resolve(req)
	if err == nil {
		var writeErr error
		final.Text, err = s.generate(ctx, p, req.Messages, func(text string) {
			if writeErr != nil {
				return
			}
			if writeErr = conn.WriteJSON(StreamMessage{Type: "update", Text: text}); writeErr != nil {
				cancel()
			}
		})
		if writeErr != nil {
			s.logger.Warn("stream client went away", "error", writeErr)
			return
		}
	}
	if err != nil {
		final = StreamMessage{Type: "error", Error: err.Error()}
	}

	if err := conn.WriteJSON(final); err != nil {
		s.logger.Warn("failed to write final stream message", "error", err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// generate runs one backend call; on failure the returned text is the partial answer
func (s *Server) generate(ctx context.Context, p provider.Provider, messages []session.Message, update provider.UpdateFunc) (string, error) {
	ctx, span := s.tracer.Start(ctx, p.Name()+"_generate")
	defer span.End()
	span.SetAttributes(attribute.Int("message_count", len(messages)))

	var text string
	err := p.Generate(ctx, messages, func(t string) {
		text = t
		if update != nil {
			update(t)
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("generate failed", "backend", p.Name(), "error", err)
	}
	return text, err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, phind.ErrNoQuestion), errors.Is(err, provider.ErrMissingAPIKey):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

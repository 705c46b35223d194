package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LordAkkarin/DeadCodeBot/internal/metrics"
	"github.com/LordAkkarin/DeadCodeBot/internal/secret"
	"github.com/LordAkkarin/DeadCodeBot/internal/verify"
)

// Server represents the webhook HTTP server.
type Server struct {
	config  Config
	sender  Sender
	secrets secret.Store
	logger  *slog.Logger
	server  *http.Server

	github verify.HMAC
	token  verify.Token

	metrics  *metrics.Metrics
	registry *prometheus.Registry
	ircState func() string
	canSend  func() bool

	// installMu serialises the installation check-and-store.
	installMu sync.Mutex
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves reg on /metrics when the
// configuration enables it.
func WithMetrics(m *metrics.Metrics, reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = m
		s.registry = reg
	}
}

// WithHealth reports the IRC connection state on /healthz.
func WithHealth(state func() string, canSend func() bool) Option {
	return func(s *Server) {
		s.ircState = state
		s.canSend = canSend
	}
}

// New creates a new webhook server instance. secrets may be nil when the
// Atlassian Connect integration is disabled.
func New(config Config, sender Sender, secrets secret.Store, logger *slog.Logger, opts ...Option) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.GitHub.Path == "" {
		config.GitHub.Path = DefaultGitHubPath
	}
	if secrets == nil {
		config.AtlassianConnect.Enabled = false
	}

	s := &Server{
		config:  config,
		sender:  sender,
		secrets: secrets,
		logger:  logger,
		github:  verify.HMAC{Secret: config.GitHub.Secret},
		token:   verify.Token{Secrets: secrets},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting",
		"listen", s.config.Listen,
		"github", s.config.GitHub.Enabled,
		"github_path", s.config.GitHub.Path,
		"atlassian_connect", s.config.AtlassianConnect.Enabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the routed gateway.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Post(s.config.GitHub.Path, s.handleGitHub)
	r.Post(JiraPath, s.handleJira)
	r.Post(InstallationPath, s.handleInstallation)
	r.Get("/healthz", s.handleHealth)
	if s.config.Metrics && s.registry != nil {
		r.Handle("/metrics", metrics.Handler(s.registry))
	}

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", IRCState: "unknown"}
	if s.ircState != nil {
		resp.IRCState = s.ircState()
	}
	if s.canSend != nil && !s.canSend() {
		resp.Status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// requestLogger tags a logger with the request's correlation fields.
func (s *Server) requestLogger(r *http.Request, provider, deliveryID string) *slog.Logger {
	return s.logger.With(
		"provider", provider,
		"request_id", middleware.GetReqID(r.Context()),
		"delivery_id", deliveryID,
		"remote_addr", r.RemoteAddr,
	)
}

func deliveryID(r *http.Request) string {
	if id := r.Header.Get(HeaderGitHubDeliver); id != "" {
		return id
	}
	return uuid.NewString()
}

var errBodyTooLarge = errors.New("request body too large")

// readBody reads at most MaxBodySize bytes of the request body.
func (s *Server) readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) > s.config.MaxBodySize {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// respondBodyError writes the response for a readBody failure.
func (s *Server) respondBodyError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, errBodyTooLarge) {
		logger.Warn("request body too large", "limit", s.config.MaxBodySize)
		respondText(w, http.StatusRequestEntityTooLarge, bodyPayloadTooLarge)
		return
	}
	logger.Error("failed to read request body", "error", err)
	respondText(w, http.StatusInternalServerError, bodyInternal)
}

// respondText sends a short text/plain response. An empty body sends headers only.
func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != "" && status != http.StatusNoContent {
		_, _ = io.WriteString(w, body)
	}
}

// Package httpapi exposes the reconciler over a JSON REST API. Routing uses
// gorilla/mux; every handler validates its payload, delegates to the
// application layer, and maps domain and port sentinels onto HTTP status
// codes. Cross-cutting concerns (request IDs, logging, Prometheus metrics,
// rate limiting, body caps) live in the middleware chain.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rkonrad/go-concord/internal/application"
)

// validate is the package-level validator shared by all request DTOs.
var validate = validator.New()

// ServerConfig tunes the HTTP server.
type ServerConfig struct {
	// Addr is the listen address, for example ":8080".
	Addr string `validate:"required"`

	// MaxBodyBytes caps request payload size for the API routes.
	MaxBodyBytes int64 `validate:"gte=1"`

	// RateLimit is the sustained request rate (per second) allowed on the
	// API routes; RateBurst is the bucket depth.
	RateLimit float64 `validate:"gt=0"`
	RateBurst int     `validate:"gte=1"`

	// ConflictLimit is the default number of conflicts returned by the
	// consensus endpoint when the caller does not pass conflict_limit.
	ConflictLimit int `validate:"gte=0"`

	// ReadTimeout, WriteTimeout, and IdleTimeout configure the underlying
	// http.Server; ShutdownTimeout bounds graceful drain.
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	IdleTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// DefaultServerConfig returns production-ready defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodyBytes:    1 << 20,
		RateLimit:       50,
		RateBurst:       100,
		ConflictLimit:   5,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server wraps the HTTP listener and handlers backing the REST API.
type Server struct {
	config     ServerConfig
	reconciler *application.Reconciler
	logger     *log.Logger
	router     *mux.Router

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	startTime time.Time
}

// NewServer builds a server around the given reconciler. A nil logger
// falls back to the process-wide default.
func NewServer(config ServerConfig, reconciler *application.Reconciler, logger *log.Logger) (*Server, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("httpapi: reconciler must not be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("httpapi: invalid server config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		config:     config,
		reconciler: reconciler,
		logger:     logger,
	}
	s.router = s.routes()
	return s, nil
}

// routes wires every endpoint and the middleware chain. The API subrouter
// carries the rate limiter and body cap so /healthz and /metrics stay
// reachable for probes and scrapes even under load.
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, s.loggingMiddleware, metricsMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(rateLimitMiddleware(s.config.RateLimit, s.config.RateBurst),
		maxBodyMiddleware(s.config.MaxBodyBytes))

	api.HandleFunc("/reviews", s.handleCreateReview).Methods(http.MethodPost)
	api.HandleFunc("/reviews", s.handleListReviews).Methods(http.MethodGet)
	api.HandleFunc("/reviews/{id}/orderings", s.handlePutOrdering).Methods(http.MethodPut)
	api.HandleFunc("/reviews/{id}/orderings/{participant}", s.handleDeleteOrdering).Methods(http.MethodDelete)
	api.HandleFunc("/reviews/{id}/consensus", s.handleConsensus).Methods(http.MethodGet)
	api.HandleFunc("/reviews/{id}/validation", s.handleValidation).Methods(http.MethodGet)
	api.HandleFunc("/reviews/{id}/merge", s.handleMerge).Methods(http.MethodPost)
	api.HandleFunc("/diff", s.handleDiff).Methods(http.MethodPost)
	api.HandleFunc("/reconcile", s.handleReconcile).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Handler returns the fully wired router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("httpapi: server already started")
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.config.Addr, err)
	}
	s.listener = listener
	s.startTime = time.Now()

	server := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("httpapi: serve error: %v", err)
		}
	}()
	s.logger.Printf("httpapi: listening on %s", listener.Addr())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight
// requests to finish, bounded by ShutdownTimeout when the caller's context
// has no deadline of its own.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.server = nil
	s.listener = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

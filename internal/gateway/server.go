// Package gateway exposes the relay's HTTP surface: send a text, send a file,
// and report session readiness.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"warelay/internal/domain"
	"warelay/internal/metrics"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const defaultMaxBodyBytes = 1 << 20 // 1MB

// Config configures the gateway server.
type Config struct {
	Host               string
	Port               int
	Session            domain.Session
	Readiness          domain.Readiness
	RateLimitPerMinute int    // per client IP on send routes; 0 disables
	MaxBodyBytes       int64  // request body cap
	MetricsPath        string // empty disables /metrics
	Logger             *slog.Logger
}

// Server is the HTTP gateway.
type Server struct {
	addr         string
	session      domain.Session
	readiness    domain.Readiness
	rateLimit    int
	maxBodyBytes int64
	metricsPath  string
	logger       *slog.Logger
	server       *http.Server
}

func New(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		session:      cfg.Session,
		readiness:    cfg.Readiness,
		rateLimit:    cfg.RateLimitPerMinute,
		maxBodyBytes: cfg.MaxBodyBytes,
		metricsPath:  cfg.MetricsPath,
		logger:       cfg.Logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestID)
	r.Use(observe(s.logger))

	r.Group(func(r chi.Router) {
		// Readiness is answered before the limiter so a cold session always yields 503.
		r.Use(s.requireReady)
		if s.rateLimit > 0 {
			r.Use(rateLimit(s.rateLimit, time.Minute))
		}
		r.Post("/send-message", s.handleSendMessage)
		r.Post("/send-file", s.handleSendFile)
	})
	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealth)
	if s.metricsPath != "" {
		r.Handle(s.metricsPath, metrics.Handler())
	}
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.logger.Info("gateway listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("gateway shutdown", "err", err)
		}
	}()

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

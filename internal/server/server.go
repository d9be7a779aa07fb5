// Package server exposes an Assistant over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/casualjim/parley"
	"github.com/casualjim/parley/pkg/slogx"
	"github.com/casualjim/parley/trace"
	"github.com/fogfish/opts"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"

	maxBodyBytes        = 4 << 20
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Asker is the part of *parley.Assistant the server calls.
type Asker interface {
	Ask(ctx context.Context, message string, options ...parley.AskOption) (parley.Result, error)
}

var _ Asker = &parley.Assistant{}

// Config holds the server settings.
type Config struct {
	Addr string
	// Traces serves GET /v1/traces/:id when set.
	Traces trace.Loader
}

// Option configures a Server.
type Option = opts.Option[Config]

var (
	// WithAddr sets the listen address.
	WithAddr = opts.ForName[Config, string]("Addr")
	// WithTraces enables the trace endpoint.
	WithTraces = opts.ForName[Config, trace.Loader]("Traces")
)

// Server routes HTTP requests to an Asker.
type Server struct {
	assistant Asker
	traces    trace.Loader
	app       *echo.Echo
	addr      string
	logger    *slog.Logger
}

// New creates a server for assistant.
func New(assistant Asker, options ...Option) (*Server, error) {
	if assistant == nil {
		return nil, errors.New("assistant must not be nil")
	}
	cfg := Config{Addr: DefaultAddr}
	if err := opts.Apply(&cfg, options); err != nil {
		return nil, err
	}

	srv := &Server{
		assistant: assistant,
		traces:    cfg.Traces,
		app:       echo.New(),
		addr:      cfg.Addr,
		logger:    slogx.Component("server"),
	}

	e := srv.app
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = srv.errorHandler
	e.JSONSerializer = jsonSerializer{}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Int64("latency_ms", v.Latency.Milliseconds()),
			}
			if v.Error != nil {
				attrs = append(attrs, slogx.Error(v.Error))
			}
			srv.logger.InfoContext(c.Request().Context(), "request", attrs...)
			return nil
		},
	}))

	srv.registerRoutes()
	return srv, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting server", slog.String("addr", s.addr))

	httpServer := &http.Server{
		Addr:        s.addr,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.InfoContext(ctx, "server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.POST("/v1/ask", s.handleAsk)
	if s.traces != nil {
		s.app.GET("/v1/traces/:id", s.handleTrace)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

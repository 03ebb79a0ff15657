// Package server assembles the echo HTTP server around the session
// coordinator and the WebSocket gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/handlers"
	appmw "github.com/nfrund/chatroom/internal/middleware"
	"github.com/nfrund/chatroom/internal/pubsub"
	"github.com/nfrund/chatroom/internal/rendering"
	"github.com/nfrund/chatroom/internal/session"
	"github.com/nfrund/chatroom/internal/storage"
	"github.com/nfrund/chatroom/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// shutdownTimeout bounds how long Start waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// Deps holds everything the server needs. Registry receives the HTTP metrics
// and is what /metrics exposes.
type Deps struct {
	Config      config.Provider
	Coordinator *session.Coordinator
	Gateway     *websocket.Gateway
	Sweeper     *session.Sweeper
	Bus         *pubsub.WatermillBridge
	Store       storage.Store
	Registry    *prometheus.Registry
	Version     string
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E   *echo.Echo
	Cfg config.Provider

	coordinator *session.Coordinator
	gateway     *websocket.Gateway
	sweeper     *session.Sweeper
	bus         *pubsub.WatermillBridge
	audit       *session.AuditSubscriber
	registry    *prometheus.Registry

	homeHandler   *handlers.HomeHandler
	healthHandler *handlers.HealthHandler
	fileHandler   *handlers.FileHandler

	logger *slog.Logger
}

// New creates a new Server with its middleware and routes registered.
func New(deps Deps) *Server {
	cfg := deps.Config
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = rendering.NewUniversalRenderer()
	e.Validator = handlers.NewValidator()

	e.Use(middleware.RequestID())
	e.Use(appmw.Logger)
	e.Use(appmw.AccessLog())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.GetAllowedOrigins(),
	}))
	setupErrorHandling(e)

	s := &Server{
		E:             e,
		Cfg:           cfg,
		coordinator:   deps.Coordinator,
		gateway:       deps.Gateway,
		sweeper:       deps.Sweeper,
		bus:           deps.Bus,
		audit:         session.NewAuditSubscriber(deps.Bus),
		registry:      deps.Registry,
		homeHandler:   handlers.NewHomeHandler(deps.Version),
		healthHandler: handlers.NewHealthHandler(deps.Coordinator),
		fileHandler:   handlers.NewFileHandler(deps.Store, cfg.GetUploadMaxBytes(), cfg.GetUploadAllowedTypes()),
		logger:        slog.Default().With("component", "server"),
	}
	s.RegisterRoutes()
	return s
}

// setupErrorHandling logs errors that no handler turned into an HTTP error,
// with a stack trace, before echo writes the 500.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			appmw.FromContext(c.Request().Context()).Error("Internal Server Error (Unhandled)",
				"error", err.Error(),
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"stack_trace", string(debug.Stack()),
			)
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}

// Boot starts the background work the server depends on: the audit log,
// idle connection closing, and the sweeper.
func (s *Server) Boot(ctx context.Context) error {
	if err := s.audit.Start(ctx); err != nil {
		return fmt.Errorf("start audit subscriber: %w", err)
	}
	if err := s.gateway.WatchStale(ctx, s.bus); err != nil {
		return fmt.Errorf("watch stale connections: %w", err)
	}
	s.sweeper.Start(ctx)
	return nil
}

// Start boots the server, listens on addr, and blocks until ctx is cancelled
// or the listener fails. It then shuts everything down.
func (s *Server) Start(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Boot(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", addr)
		if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := s.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown stops the sweeper, closes every WebSocket, stops the HTTP server,
// and closes the bus.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sweeper.Stop()
	s.gateway.Close()

	var errs []error
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := s.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	return errors.Join(errs...)
}

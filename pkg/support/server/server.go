// Package server exposes the chat backend's JSON API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/christried/GilgesBA/pkg/support/assistant"
	"github.com/christried/GilgesBA/pkg/support/escalate"
	"github.com/christried/GilgesBA/pkg/support/store"
)

// ChatService is the bridge surface the API uses. Narrow interface so
// handlers can be tested against a fake.
type ChatService interface {
	Send(ctx context.Context, conversationID, text string) (*assistant.Reply, error)
}

// EscalationService is the dispatcher surface the API uses.
type EscalationService interface {
	Escalate(ctx context.Context, conversationID string) (*escalate.Outcome, error)
	SyncAll(ctx context.Context) (*escalate.Report, error)
	ManualEscalate(ctx context.Context, conversationID, lastMessage, reporterEmail string) error
}

// Options configures the API server.
type Options struct {
	// Address is the listen address (default ":5000").
	Address string

	// Version is reported by the health endpoint.
	Version string

	// CORSOrigins restricts allowed origins; empty allows all.
	CORSOrigins []string
}

// Server is the JSON API server.
type Server struct {
	opts   Options
	chat   ChatService
	disp   EscalationService
	store  *store.Store
	logger *slog.Logger
	echo   *echo.Echo
	srv    *http.Server
}

// New creates the API server and registers all routes.
func New(opts Options, chat ChatService, disp EscalationService, st *store.Store, logger *slog.Logger) *Server {
	if opts.Address == "" {
		opts.Address = ":5000"
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		opts:   opts,
		chat:   chat,
		disp:   disp,
		store:  st,
		logger: logger.With("component", "server"),
	}

	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(s.requestLogger)
	if len(opts.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: opts.CORSOrigins}))
	} else {
		e.Use(middleware.CORS("*"))
	}

	s.registerRoutes(e)
	s.echo = e

	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/chat", s.handleChat)
	g.GET("/messages", s.listMessages)
	g.GET("/conversations/:id", s.getConversation)
	g.POST("/conversations/:id/finalize", s.finalizeConversation)
	g.POST("/sync/trello", s.syncTracker)
	g.POST("/escalate", s.manualEscalate)
	g.GET("/health", s.health)
}

// requestLogger emits one slog line per request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		err := next(c)
		status := 0
		if resp, rerr := echo.UnwrapResponse(c.Response()); rerr == nil {
			status = resp.Status
		}
		s.logger.Debug("request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.logger.Info("API server starting", "address", s.opts.Address)
	s.srv = &http.Server{Addr: s.opts.Address, Handler: s.echo}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
	}
	s.logger.Info("API server stopped")
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Package api exposes the chat pipeline and chat history over HTTP and
// websockets.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/history"
	"github.com/genegpt-server/internal/metrics"
	"github.com/genegpt-server/internal/middleware"
)

const (
	maxBodyBytes          = 1 << 20
	defaultReplayTurns    = 10
	defaultShutdownPeriod = 30 * time.Second
)

// ChatProcessor answers one message given its history.
type ChatProcessor interface {
	ProcessQuery(ctx context.Context, message string, history []domain.Turn) *domain.ChatResponse
}

// HealthReporter describes the state of the database collaborators.
type HealthReporter interface {
	BreakerStates() map[string]string
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the HTTP surface is built on. History,
// Health and Metrics are optional.
type Dependencies struct {
	Processor   ChatProcessor
	History     history.Store
	Health      HealthReporter
	Metrics     *metrics.Metrics
	Logger      *logrus.Logger
	Version     string
	ReplayTurns int
}

// Server represents the HTTP server
type Server struct {
	config   *domain.Config
	deps     Dependencies
	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.ReplayTurns <= 0 {
		deps.ReplayTurns = defaultReplayTurns
	}
	if deps.Version == "" {
		deps.Version = cfg.MCP.ServerVersion
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationID(),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Server.CORSOrigins),
		middleware.AuditLogger(deps.Logger),
		middleware.HTTPMetrics(deps.Metrics),
		middleware.BodyLimit(maxBodyBytes),
	)

	s := &Server{
		config: cfg,
		deps:   deps,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.Server.CORSOrigins),
		},
	}
	s.setupRoutes()
	return s
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownPeriod)
	defer cancel()

	s.deps.Logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.config.Metrics.Enabled && s.deps.Metrics != nil {
		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.deps.Metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		// Websocket connections outlive the per-request timeout.
		v1.GET("/chat/ws", s.handleChatWebSocket)

		timed := v1.Group("", middleware.RequestTimeout(s.config.Server.RequestTimeout))
		timed.POST("/chat", s.handleChat)

		chats := timed.Group("/users/:user_id/chats")
		chats.POST("", s.handleCreateChat)
		chats.GET("", s.handleListChats)
		chats.GET("/:chat_id", s.handleGetChat)
		chats.PATCH("/:chat_id", s.handleRenameChat)
		chats.DELETE("/:chat_id", s.handleDeleteChat)
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return allowAll || origin == "" || allowed[origin]
	}
}

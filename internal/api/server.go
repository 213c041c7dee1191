// Package api exposes the passive status and control HTTP surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server is the status/control HTTP server.
type Server struct {
	engine *gin.Engine
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a server listening on addr. /health reports degraded
// once the engine has not completed a cycle within heartbeat; zero disables
// the check.
func NewServer(addr string, ctl Controller, journal Journal, heartbeat time.Duration, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggerMiddleware(logger))

	s := &Server{
		engine: engine,
		logger: logger.With().Str("component", "api").Logger(),
		server: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	s.setupRoutes(NewHandler(ctl, journal, heartbeat))
	return s
}

func (s *Server) setupRoutes(h *Handler) {
	api := s.engine.Group("/api")
	{
		api.GET("/status", h.GetStatus)
		api.GET("/events", h.StreamStatus)
		api.GET("/orders", h.GetOrders)
		api.GET("/positions", h.GetPositions)
		api.GET("/summary", h.GetSummary)

		api.POST("/start", h.Start)
		api.POST("/stop", h.Stop)
		api.POST("/squareoff", h.SquareOff)
	}

	s.engine.GET("/health", h.Health)
}

// Handler returns the HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Status server listening")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func loggerMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

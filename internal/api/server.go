// Package api provides the HTTP server for the gateway. It wires the
// gin engine, logging and recovery middleware and mounts the gateway
// filter as the handler for every proxied path.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/apimart/gateway/internal/config"
	"github.com/apimart/gateway/internal/gateway"
	"github.com/apimart/gateway/internal/logging"
)

// Server represents the gateway HTTP server. It encapsulates the gin
// engine, the underlying http.Server and the filter.
type Server struct {
	engine *gin.Engine
	server *http.Server
	filter *gateway.Filter
	cfg    *config.Config
}

// NewServer creates and initializes the gateway server around a built
// filter.
func NewServer(cfg *config.Config, filter *gateway.Filter) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(corsMiddleware())

	s := &Server{
		engine: engine,
		filter: filter,
		cfg:    cfg,
	}

	// The gateway owns no routes of its own beyond health; every other
	// path runs through the filter.
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.NoRoute(filter.Handle)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}

	return s
}

// Start begins listening for and serving HTTP requests. It blocks until
// the server stops.
func (s *Server) Start() error {
	log.Infof("starting gateway on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server without interrupting active
// connections.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the configured engine for in-process serving in tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// corsMiddleware handles cross-origin requests for browser-driven
// platform routes.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", c.GetHeader("Origin"))
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, accessKey, nonce, timestamp, sign, body")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

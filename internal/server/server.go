// Package server wires the HTTP API onto gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/soundcrowd/internal/apiroutes"
	"github.com/mantonx/soundcrowd/internal/config"
	"github.com/mantonx/soundcrowd/internal/events"
	"github.com/mantonx/soundcrowd/internal/middleware"
	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule"
	"github.com/mantonx/soundcrowd/internal/server/handlers"
)

// Dependencies are the components served over HTTP. Bus, Hub, Stream,
// History and DB are optional.
type Dependencies struct {
	Catalog  *catalogmodule.Catalog
	Resolver *catalogmodule.Resolver
	Plugins  handlers.PluginDirectory
	History  handlers.SearchHistory
	DB       handlers.Pinger
	Bus      *events.Bus
	Hub      *events.Hub
	Stream   *events.Stream
}

// Server is the host HTTP server.
type Server struct {
	cfg    config.ServerConfig
	deps   Dependencies
	engine *gin.Engine
	routes *apiroutes.Registry
	logger hclog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New builds the router. Nothing listens until Start.
func New(cfg config.ServerConfig, deps Dependencies, logger hclog.Logger) *Server {
	logger = logger.Named("server")

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.ErrorLogger(logger))
	engine.Use(cors())

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		engine: engine,
		routes: apiroutes.New(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Routes lists the mounted API routes.
func (s *Server) Routes() []apiroutes.APIRoute {
	return s.routes.Get()
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:     s.engine,
		ReadTimeout: s.cfg.ReadTimeout,
		// WriteTimeout stays unset: event streams are long-lived
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	s.logger.Info("http server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

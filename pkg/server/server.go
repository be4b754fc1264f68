// Package server exposes the relationship engine over HTTP using gin.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	rolodex "github.com/soundprediction/go-rolodex"
	"github.com/soundprediction/go-rolodex/pkg/config"
	"github.com/soundprediction/go-rolodex/pkg/server/handlers"
)

// Server wraps the gin engine and the HTTP listener.
type Server struct {
	cfg    *config.Config
	engine rolodex.Rolodex
	router *gin.Engine
	http   *http.Server
}

// New creates a server for the given engine.
func New(cfg *config.Config, engine rolodex.Rolodex) *Server {
	return &Server{cfg: cfg, engine: engine}
}

// Setup installs middleware and routes. Call once before Start.
func (s *Server) Setup() {
	gin.SetMode(s.cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	health := handlers.NewHealthHandler()
	entities := handlers.NewEntityHandler(s.engine)
	syncHandler := handlers.NewSyncHandler(s.engine)

	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)

	router.POST("/resolve/person", entities.ResolvePerson)
	router.POST("/resolve/organization", entities.ResolveOrganization)
	router.GET("/people/:id/strength", entities.Strength)
	router.GET("/people/:id/connections", entities.Connections)
	router.GET("/organizations/:id/domains", entities.DomainCandidates)
	router.POST("/organizations/:id/domains", entities.PromoteDomain)

	router.POST("/sync/:connectionID", syncHandler.RunSync)
	router.POST("/webhooks/:provider", syncHandler.Webhook)

	s.router = router
	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler: router,
	}
}

// Router returns the configured gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start blocks serving HTTP until the listener fails or Stop is called.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

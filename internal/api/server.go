// Package api implements the REST administration and monitoring API
// for the Arclight relay.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/arclight-project/arclight/internal/config"
	"github.com/arclight-project/arclight/internal/registry"
	"github.com/arclight-project/arclight/internal/relay"
	"github.com/arclight-project/arclight/internal/storage"
	"github.com/arclight-project/arclight/internal/symbol"
)

// Server is the admin API server. It holds explicit references to the
// relay components it exposes; there is no process-global way to reach
// the running core.
type Server struct {
	cfg      *config.Config
	store    storage.Store
	registry *registry.Registry
	relay    *relay.Server
	symbols  *symbol.Cache

	httpServer *http.Server
	router     *gin.Engine
}

func NewServer(cfg *config.Config, store storage.Store, reg *registry.Registry, rly *relay.Server, symbols *symbol.Cache) *Server {
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		store:    store,
		registry: reg,
		relay:    rly,
		symbols:  symbols,
	}
}

// Start serves the API until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf(":%d", s.cfg.GetRelayData().APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("admin API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Api-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/serverinfo", s.handleServerInfo)
		public.GET("/peerstats", s.handlePeerStats)
		public.GET("/sessions", s.handleListSessions)
	}

	protected := router.Group("/api")
	protected.Use(APIKeyAuth(s.cfg.GetRelayData().APIKey))
	{
		protected.GET("/accounts", s.handleListAccounts)
		protected.POST("/accounts", s.handleCreateAccount)
		protected.GET("/accounts/:id", s.handleGetAccount)
		protected.POST("/accounts/:id", s.handlePatchAccount)
		protected.DELETE("/accounts/:id", s.handleDeleteAccount)

		protected.GET("/servers", s.handleListServers)
		protected.GET("/servers/:serverId", s.handleGetServer)

		protected.GET("/sessions", s.handleListSessions)
		protected.GET("/sessions/:sessionId", s.handleGetSession)
	}

	return router
}

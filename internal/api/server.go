package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"netlynx/internal/api/handlers"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	server *http.Server
	logger *pterm.Logger
	port   int
}

// Config holds server configuration
type Config struct {
	Host       string
	Port       int
	Production bool
}

// Handlers groups the route handlers. Maintenance and Metrics may be nil.
type Handlers struct {
	Dashboard   *handlers.DashboardHandler
	Captures    *handlers.CaptureHandler
	Sources     *handlers.SourceHandler
	Views       *handlers.ViewsHandler
	Realtime    *handlers.RealtimeHandler
	Ingest      *handlers.IngestHandler
	Maintenance *handlers.MaintenanceHandler
	Metrics     http.Handler
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config, h Handlers, logger *pterm.Logger) *Server {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := NewRouter(h, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		router: router,
		server: &http.Server{
			Addr:           addr,
			Handler:        router,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   300 * time.Second, // Long timeout for SSE streams
			MaxHeaderBytes: 1 << 20,
		},
		logger: logger,
		port:   cfg.Port,
	}
}

// NewRouter builds the routes
func NewRouter(h Handlers, logger *pterm.Logger) *gin.Engine {
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "NetLynx API Server",
			"api":     "/api/v1",
			"health":  "/health",
		})
	})

	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics))
		logger.Debug("Prometheus metrics enabled", logger.Args("path", "/metrics"))
	}

	api := router.Group("/api/v1")
	{
		// Captures
		api.GET("/captures", h.Captures.ListCaptures)
		api.POST("/captures", h.Captures.CreateLiveCapture)
		api.DELETE("/captures/:capture", h.Captures.DeleteCapture)

		// Sources
		api.GET("/captures/:capture/sources", h.Sources.ListSources)
		api.DELETE("/captures/:capture/sources", h.Sources.DeleteSources)
		api.GET("/captures/:capture/sources/:id", h.Sources.GetSource)
		api.GET("/captures/:capture/sources/:id/text", h.Sources.GetSourceText)

		// Status views
		api.GET("/captures/:capture/proxy", h.Views.GetProxy)
		api.GET("/captures/:capture/httpcache", h.Views.GetHTTPCache)

		// Aggregates
		api.GET("/stats/summary", h.Dashboard.GetSummary)
		api.GET("/stats/captures", h.Dashboard.GetCaptureStats)
		api.GET("/stats/distribution/source-types", h.Dashboard.GetSourceTypeDistribution)
		api.GET("/stats/top/descriptions", h.Dashboard.GetTopDescriptions)

		// Real-time metrics
		api.GET("/realtime/metrics", h.Realtime.GetCurrentMetrics)
		api.GET("/realtime/stream", h.Realtime.StreamMetrics)
		api.GET("/realtime/captures", h.Realtime.GetPerCaptureMetrics)

		// Live ingest
		api.GET("/ingest/:capture", h.Ingest.Ingest)

		if h.Maintenance != nil {
			api.GET("/maintenance/cleanup", h.Maintenance.GetCleanupStats)
			api.POST("/maintenance/cleanup", h.Maintenance.TriggerCleanup)
		}
	}

	return router
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.logger.Info("Starting web server", s.logger.Args("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.WithCaller().Error("Web server failed", s.logger.Args("error", err))
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down web server...")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

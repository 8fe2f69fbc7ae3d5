package http

import (
	"time"

	"livebridge/internal/core/ports"
	"livebridge/internal/core/services"
	"livebridge/internal/infrastructure/middleware"
	"livebridge/internal/infrastructure/monitoring"
	"livebridge/internal/infrastructure/signal"
	"livebridge/pkg/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Config        *config.Config
	StreamManager ports.StreamManagerService
	EventManager  ports.EventManagerService
	SyncServer    *signal.WebSocketServer
	Health        *monitoring.HealthChecker
	Auth          services.AuthService // nil when auth is disabled
	Gatherer      prometheus.Gatherer  // nil disables /metrics
	Logger        *zap.SugaredLogger
}

// NewRouter assembles the HTTP surface: probes, metrics, the sync websocket
// and the /api/v1 routes.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(deps.Logger),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(),
		cors.New(corsConfig(deps.Config.CORS.AllowedOrigins)),
		middleware.ErrorHandlerMiddleware(deps.Logger),
	)

	NewHealthHandler(deps.Health, 2*time.Second).SetupRoutes(router)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	limited := router.Group("")
	limited.Use(middleware.NewHTTPRateLimitMiddleware(deps.Config))
	if deps.Auth != nil {
		limited.Use(middleware.AuthMiddleware(deps.Auth))
	}

	NewSyncHandler(deps.SyncServer).SetupRoutes(limited)

	api := limited.Group("/api/v1")
	NewStreamHandler(deps.StreamManager).SetupRoutes(api)
	NewEventHandler(deps.EventManager).SetupRoutes(api)
	if deps.Auth != nil {
		NewAuthHandler(deps.Auth).SetupRoutes(api)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader}
	cfg.ExposeHeaders = []string{middleware.RequestIDHeader}
	cfg.MaxAge = 12 * time.Hour

	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		// cors.New rejects a config that allows no origin at all
		cfg.AllowOriginFunc = func(string) bool { return false }
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

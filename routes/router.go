package routes

import (
	"legal-ai-assistant/internal/app"
	"legal-ai-assistant/middleware"

	"github.com/gin-gonic/gin"
)

const serviceName = "legal-ai-assistant"

// SetupRouter builds the gin engine with the shared middleware chain and all
// route groups.
func SetupRouter(a *app.App) *gin.Engine {
	cfg := a.Config
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	}
	if cfg.OTelEnabled {
		router.Use(middleware.TracingMiddleware(serviceName))
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(a.Metrics))

	if a.Redis != nil {
		router.Use(middleware.RateLimitMiddleware(a.Redis, cfg))
	} else {
		router.Use(middleware.LocalRateLimit(cfg.RateLimitReqs, cfg.RateLimitWindow))
	}

	SetupMonitoringRoutes(router, a)
	SetupChatRoutes(router, a)
	SetupDocumentRoutes(router, a)
	SetupUpdateRoutes(router, a)

	return router
}

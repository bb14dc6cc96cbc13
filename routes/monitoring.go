package routes

import (
	"net/http"
	"strconv"
	"time"

	"legal-ai-assistant/internal/app"
	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/models"
	"legal-ai-assistant/services"
	"legal-ai-assistant/utils"

	"github.com/gin-gonic/gin"
)

const version = "1.0.0"

func SetupMonitoringRoutes(router *gin.Engine, a *app.App) {
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		resp := models.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   version,
			Services:  map[string]string{},
		}

		if _, err := a.Documents.Stats(ctx); err != nil {
			resp.Services["vector_store"] = "unavailable"
			resp.Status = "degraded"
		} else {
			resp.Services["vector_store"] = "ok"
		}

		resp.Services["orchestrator"] = a.Orchestrator.State().String()
		if a.Orchestrator.State() != services.StateReady {
			resp.Status = "degraded"
		}

		switch {
		case a.Redis == nil:
			resp.Services["redis"] = "disabled"
		case a.Redis.Ping(ctx).Err() != nil:
			resp.Services["redis"] = "unavailable"
			resp.Status = "degraded"
		default:
			resp.Services["redis"] = "ok"
		}

		if a.Feed != nil {
			resp.Services["legal_updates"] = "enabled"
		} else {
			resp.Services["legal_updates"] = "disabled"
		}

		c.JSON(http.StatusOK, resp)
	})

	router.GET("/metrics", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		resp := models.MetricsResponse{
			Monitoring:   a.Recorder.Metrics(),
			Orchestrator: a.Orchestrator.State().String(),
			Sessions:     a.Orchestrator.Sessions(),
		}
		if stats, err := a.Documents.Stats(ctx); err == nil {
			resp.Documents = &stats
		} else {
			logger.Warn("Document stats unavailable", "error", err)
		}
		if stats, err := a.Updates.Stats(ctx); err == nil {
			resp.Updates = &stats
		}

		c.JSON(http.StatusOK, resp)
	})

	monitoring := router.Group("/monitoring")

	monitoring.GET("/interactions", func(c *gin.Context) {
		entries, err := a.Recorder.GetInteractions()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read interaction log", gin.H{"error": err.Error()})
			return
		}
		entries, ok := tail(c, entries)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"interactions": entries, "count": len(entries)})
	})

	monitoring.GET("/errors", func(c *gin.Context) {
		entries, err := a.Recorder.GetErrors()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read error log", gin.H{"error": err.Error()})
			return
		}
		entries, ok := tail(c, entries)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"errors": entries, "count": len(entries)})
	})

	monitoring.GET("/interactions/export", func(c *gin.Context) {
		format := c.DefaultQuery("format", "json")
		if format != "json" && format != "excel" && format != "xlsx" {
			utils.RespondWithBadRequest(c, "format must be json or excel", gin.H{"format": format})
			return
		}

		interactions, err := a.Recorder.GetInteractions()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read interaction log", gin.H{"error": err.Error()})
			return
		}
		errs, err := a.Recorder.GetErrors()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read error log", gin.H{"error": err.Error()})
			return
		}

		data := services.BuildInteractionExport(interactions, errs, format)
		if err := services.StreamExport(c, data, format); err != nil {
			logger.Error("Interaction export failed", "format", format, "error", err)
			utils.RespondWithInternalError(c, "Failed to export interactions", nil)
		}
	})
}

// tail keeps the newest ?limit= entries (all when limit is absent). It
// writes the 400 itself and reports false on a bad limit.
func tail[T any](c *gin.Context, entries []T) ([]T, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return entries, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		utils.RespondWithBadRequest(c, "limit must be a non-negative integer", gin.H{"limit": raw})
		return nil, false
	}
	if n < len(entries) {
		entries = entries[len(entries)-n:]
	}
	return entries, true
}

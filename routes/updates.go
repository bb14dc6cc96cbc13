package routes

import (
	"net/http"
	"strings"

	"legal-ai-assistant/internal/app"
	"legal-ai-assistant/internal/legalupdates"
	"legal-ai-assistant/utils"

	"github.com/gin-gonic/gin"
)

func SetupUpdateRoutes(router *gin.Engine, a *app.App) {
	updates := router.Group("/updates")

	// Updates already ingested into the legal_updates collection
	updates.GET("/search", handleSearch(a.Updates))

	// Live scrape of the configured sources, ranked against q
	updates.GET("/latest", func(c *gin.Context) {
		if a.Feed == nil {
			utils.RespondWithUnavailable(c, "Legal updates feed is disabled")
			return
		}

		query := strings.TrimSpace(c.Query("q"))
		records := a.Feed.CollectFor(c.Request.Context(), query)
		ranked := legalupdates.Rank(records, query, a.Config.UpdatesMaxResults)

		c.JSON(http.StatusOK, gin.H{
			"query":   query,
			"updates": ranked,
			"count":   len(ranked),
			"sources": a.Feed.SourceNames(),
		})
	})

	updates.POST("/refresh", func(c *gin.Context) {
		if a.Scheduler == nil {
			utils.RespondWithUnavailable(c, "Legal updates feed is disabled")
			return
		}

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		stored, err := a.Scheduler.RefreshNow(ctx)
		if err != nil {
			utils.RespondWithInternalError(c, "Legal updates refresh failed", gin.H{"error": err.Error(), "stored": stored})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Legal updates refreshed", "stored": stored})
	})
}

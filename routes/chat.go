package routes

import (
	"net/http"
	"time"

	"legal-ai-assistant/internal/app"
	"legal-ai-assistant/middleware"
	"legal-ai-assistant/models"
	"legal-ai-assistant/services"

	"github.com/gin-gonic/gin"
)

func SetupChatRoutes(router *gin.Engine, a *app.App) {
	chat := router.Group("/chat")

	// Degraded turns still answer 200; the response text explains them.
	chat.POST("", middleware.RequestSizeLimit(a.Config.MaxRequestSize), func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid request data",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		sessionID := services.SessionKey(req.SessionID)
		result := a.Orchestrator.GetResponse(c.Request.Context(), sessionID, req.Message, req.Context)

		c.JSON(http.StatusOK, models.ChatResponse{
			Response:   result.Answer,
			Sources:    result.Sources,
			Confidence: result.Confidence,
			SessionID:  sessionID,
			Timestamp:  time.Now().UTC(),
		})
	})

	chat.GET("/history", func(c *gin.Context) {
		sessionID := services.SessionKey(c.Query("session_id"))
		history := a.Orchestrator.History(sessionID)

		turns := make([]models.ChatTurn, len(history))
		for i, t := range history {
			turns[i] = models.ChatTurn{Role: string(t.Role), Content: t.Content, Timestamp: t.At}
		}

		c.JSON(http.StatusOK, models.ChatHistoryResponse{
			SessionID: sessionID,
			Turns:     turns,
			Count:     len(turns),
		})
	})

	chat.DELETE("/history", func(c *gin.Context) {
		sessionID := services.SessionKey(c.Query("session_id"))
		a.Orchestrator.ClearHistory(sessionID)

		c.JSON(http.StatusOK, gin.H{
			"message":    "Conversation history cleared",
			"session_id": sessionID,
		})
	})
}

package chat

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	registryllm "github.com/corval/docqa-service/internal/registry/llm"
	"github.com/corval/docqa-service/internal/security"
	"github.com/corval/docqa-service/internal/service"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the question-answering route.
func MountRoutes(r *gin.Engine, orchestrator *service.ChatOrchestrator, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/chat", func(c *gin.Context) {
		ask(c, orchestrator)
	})
}

func ask(c *gin.Context, orchestrator *service.ChatOrchestrator) {
	identity := security.GetIdentity(c)

	var req struct {
		Question string `json:"question" binding:"required"`
		Template string `json:"template"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := orchestrator.Ask(c.Request.Context(), *identity, req.Question, req.Template)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func handleError(c *gin.Context, err error) {
	var utErr *service.UnknownTemplateError
	var upErr *registryllm.UpstreamError
	switch {
	case errors.As(err, &utErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": utErr.Error()})
	case errors.As(err, &upErr):
		// Surface the provider's message; it carries no internals.
		log.Error("Chat provider failed", "provider", upErr.Provider, "error", upErr.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": upErr.Error()})
	default:
		log.Error("Chat failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unexpected error during chat"})
	}
}

package access

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/config"
	registrynotify "github.com/corval/docqa-service/internal/registry/notify"
	registrystore "github.com/corval/docqa-service/internal/registry/store"
	"github.com/corval/docqa-service/internal/security"
	"github.com/corval/docqa-service/internal/service"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts access-request creation and decision routes. The
// decision route is reachable by GET as well as POST so the links embedded in
// notification emails work from a mail client.
func MountRoutes(r *gin.Engine, store registrystore.DocumentStore, propagator *service.AccessGrantPropagator, notifier registrynotify.Notifier, cfg *config.Config, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)
	g.POST("/access-requests", func(c *gin.Context) {
		create(c, store, notifier, cfg)
	})

	// Decisions arrive from emailed admin links, outside any session.
	r.GET("/v1/access-requests/:id/:action", func(c *gin.Context) {
		decide(c, propagator)
	})
	r.POST("/v1/access-requests/:id/:action", func(c *gin.Context) {
		decide(c, propagator)
	})
}

func create(c *gin.Context, store registrystore.DocumentStore, notifier registrynotify.Notifier, cfg *config.Config) {
	identity := security.GetIdentity(c)

	var req struct {
		DocID      string `json:"docId"`
		OwnerEmail string `json:"ownerEmail"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.DocID == "" || req.OwnerEmail == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Must include docId and ownerEmail"})
		return
	}

	// Title is cosmetic for the notification; fall back to the id.
	docTitle := req.DocID
	if doc, err := store.GetDocument(c.Request.Context(), req.DocID); err == nil {
		docTitle = doc.Title
	}

	ar, err := store.CreateAccessRequest(c.Request.Context(), req.DocID, identity.Email)
	if err != nil {
		log.Error("Access request creation failed", "doc", req.DocID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send access request"})
		return
	}

	to := []string{req.OwnerEmail}
	if cfg.NotifyAdminEmail != "" {
		to = append(to, cfg.NotifyAdminEmail)
	}
	msg := registrynotify.Message{
		To:      to,
		Subject: fmt.Sprintf("Access Request: %q", docTitle),
		HTML:    decisionEmail(cfg.PublicBaseURL, identity.Email, docTitle, req.DocID, ar.ID),
	}
	if err := notifier.Send(c.Request.Context(), msg); err != nil {
		// The request is recorded; an admin can still decide it directly.
		log.Error("Access request notification failed", "request", ar.ID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "requestId": ar.ID})
}

func decisionEmail(baseURL, requestor, docTitle, docID, requestID string) string {
	return fmt.Sprintf(`
        <p>Hi there,</p>
        <p><strong>%s</strong> has requested access to the document: <em>%s</em> (ID: %s).</p>
        <p>
        <a href="%s/v1/access-requests/%s/approve">Approve</a> |
        <a href="%s/v1/access-requests/%s/deny">Deny</a>
        </p>
        <p>You can review and grant access in the admin panel, or reply to this email to follow up.</p>
        <br/>
        <p>Thanks!</p>`,
		requestor, docTitle, docID, baseURL, requestID, baseURL, requestID)
}

func decide(c *gin.Context, propagator *service.AccessGrantPropagator) {
	id := c.Param("id")
	action := c.Param("action")
	if action != "approve" && action != "deny" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}

	ar, err := propagator.Decide(c.Request.Context(), id, action)
	if err != nil {
		var notFound *registrystore.NotFoundError
		var invalid *registrystore.ValidationError
		switch {
		case errors.As(err, &notFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		case errors.As(err, &invalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Message})
		default:
			log.Error("Access decision failed", "request", id, "action", action, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": ar.Status})
}

package docs

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/acl"
	registryfilestore "github.com/corval/docqa-service/internal/registry/filestore"
	registrystore "github.com/corval/docqa-service/internal/registry/store"
	"github.com/corval/docqa-service/internal/security"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the document fetch route.
func MountRoutes(r *gin.Engine, store registrystore.DocumentStore, files registryfilestore.FileStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/docs/:id", func(c *gin.Context) {
		fetch(c, store, files)
	})
}

// fetch checks the caller's visibility of the document and redirects to a
// time-limited provider download link.
func fetch(c *gin.Context, store registrystore.DocumentStore, files registryfilestore.FileStore) {
	identity := security.GetIdentity(c)

	docID := strings.TrimSpace(c.Param("id"))
	if docID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad request"})
		return
	}

	doc, err := store.GetDocument(c.Request.Context(), docID)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		log.Error("Document lookup failed", "doc", docID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	if !acl.Allows(identity.Email, identity.Roles, identity.Projects, doc.RolesAllowed, doc.Projects, doc.EmailsAllowed) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	link, err := files.TemporaryLink(c.Request.Context(), doc.StoragePath)
	if err != nil {
		log.Error("Temporary link failed", "doc", docID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not get link"})
		return
	}
	c.Redirect(http.StatusFound, link)
}

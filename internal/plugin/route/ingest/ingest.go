package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/service"
	"github.com/gin-gonic/gin"
)

// signatureHeader carries the provider's HMAC-SHA256 of the raw request body.
const signatureHeader = "X-Dropbox-Signature"

// MountRoutes mounts the ingestion webhook. No bearer auth here: the GET
// handshake echoes a challenge, the POST is authenticated by body HMAC.
func MountRoutes(r *gin.Engine, scheduler *service.ScanScheduler, secret string) {
	r.GET("/v1/ingest", challenge)
	r.POST("/v1/ingest", func(c *gin.Context) {
		notify(c, scheduler, secret)
	})
}

// challenge echoes the provider's verification parameter verbatim.
func challenge(c *gin.Context) {
	c.String(http.StatusOK, c.Query("challenge"))
}

// notify validates the signature and enqueues a scan, acknowledging before
// any ingestion work happens so the provider never retries on slowness.
func notify(c *gin.Context, scheduler *service.ScanScheduler, secret string) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !ValidSignature(secret, raw, c.GetHeader(signatureHeader)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "bad sig"})
		return
	}

	if !scheduler.Trigger() {
		// Queue saturated; a queued scan already covers this delivery.
		log.Warn("Ingest notification dropped, scan queue full")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ValidSignature reports whether sig is the hex HMAC-SHA256 of body under
// secret, compared in constant time.
func ValidSignature(secret string, body []byte, sig string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(sig))
}

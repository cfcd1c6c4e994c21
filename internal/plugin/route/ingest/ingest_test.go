package ingest_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/corval/docqa-service/internal/plugin/extract/plain"
	"github.com/corval/docqa-service/internal/plugin/route/ingest"
	"github.com/corval/docqa-service/internal/service"
	"github.com/corval/docqa-service/internal/testutil/mem"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "test-secret"

func setupIngestRouter(t *testing.T, files *mem.FileStore, store *mem.DocStore, vs *mem.VectorStore) *gin.Engine {
	t.Helper()

	ingestor := service.NewIngestor(files, store, &mem.Embedder{}, vs, 1000, 10, "fallback@example.com")
	scheduler := service.NewScanScheduler(ingestor, 4, 2)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go scheduler.Run(ctx)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	ingest.MountRoutes(router, scheduler, webhookSecret)
	return router
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookChallengeEcho(t *testing.T) {
	router := setupIngestRouter(t, mem.NewFileStore(), mem.NewDocStore(), mem.NewVectorStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/ingest?challenge=abc123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "abc123", w.Body.String())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	router := setupIngestRouter(t, mem.NewFileStore(), mem.NewDocStore(), mem.NewVectorStore())

	body := []byte(`{"list_folder":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewReader(body))
	req.Header.Set("X-Dropbox-Signature", "deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	router := setupIngestRouter(t, mem.NewFileStore(), mem.NewDocStore(), mem.NewVectorStore())

	body := []byte(`{"list_folder":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookAcksAndScansInBackground(t *testing.T) {
	files := mem.NewFileStore()
	files.Add("f1", "notes.txt", "/notes.txt", []byte("meeting notes from tuesday"))
	store := mem.NewDocStore()
	vs := mem.NewVectorStore()
	router := setupIngestRouter(t, files, store, vs)

	body := []byte(`{"list_folder":{"accounts":["dbid:abc"]}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewReader(body))
	req.Header.Set("X-Dropbox-Signature", sign(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ok":true}`, w.Body.String())

	// The ack returns before the scan runs; wait for it to land.
	require.Eventually(t, func() bool {
		return len(vs.Chunks()) > 0
	}, 3*time.Second, 10*time.Millisecond)

	_, err := store.GetDocument(context.Background(), "f1")
	require.NoError(t, err)
}

func TestValidSignature(t *testing.T) {
	body := []byte("payload")
	require.True(t, ingest.ValidSignature(webhookSecret, body, sign(body)))
	require.False(t, ingest.ValidSignature(webhookSecret, body, ""))
	require.False(t, ingest.ValidSignature("other-secret", body, sign(body)))
}

package access_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corval/docqa-service/internal/config"
	"github.com/corval/docqa-service/internal/model"
	"github.com/corval/docqa-service/internal/plugin/route/access"
	"github.com/corval/docqa-service/internal/security"
	"github.com/corval/docqa-service/internal/service"
	"github.com/corval/docqa-service/internal/testutil/mem"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func setupAccessRouter(t *testing.T, store *mem.DocStore, vs *mem.VectorStore, notifier *mem.Notifier) *gin.Engine {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.PublicBaseURL = "https://docqa.example.com"
	cfg.NotifyAdminEmail = "admin@example.com"
	auth := security.AuthMiddleware(security.NewTokenResolver(&cfg))

	propagator := service.NewAccessGrantPropagator(store, vs, 100)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	access.MountRoutes(router, store, propagator, notifier, &cfg, auth)
	return router
}

func postRequest(t *testing.T, router *gin.Engine, email string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/access-requests", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedRestrictedDoc(t *testing.T, store *mem.DocStore, vs *mem.VectorStore, docID string) {
	t.Helper()
	_, err := store.UpsertDocument(context.Background(), model.Document{
		ID: docID, Title: "Board Deck", OwnerEmail: "owner@example.com",
		RolesAllowed: []string{"Partner"},
	})
	require.NoError(t, err)
	vs.Seed(service.ChunkID(docID, 0), docID, "restricted content", 0.9, []string{"Partner"}, nil, nil)
	vs.Seed(service.ChunkID(docID, 1000), docID, "more restricted content", 0.8, []string{"Partner"}, nil, nil)
}

func TestCreateAccessRequestValidation(t *testing.T) {
	router := setupAccessRouter(t, mem.NewDocStore(), mem.NewVectorStore(), &mem.Notifier{})

	w := postRequest(t, router, "a@example.com", map[string]any{"docId": "D1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = postRequest(t, router, "a@example.com", map[string]any{"ownerEmail": "owner@example.com"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAccessRequestNotifiesOwnerAndAdmin(t *testing.T) {
	store := mem.NewDocStore()
	vs := mem.NewVectorStore()
	notifier := &mem.Notifier{}
	seedRestrictedDoc(t, store, vs, "D1")
	router := setupAccessRouter(t, store, vs, notifier)

	w := postRequest(t, router, "a@example.com", map[string]any{
		"docId": "D1", "ownerEmail": "owner@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["ok"])
	requestID, _ := resp["requestId"].(string)
	require.NotEmpty(t, requestID)

	require.Len(t, notifier.Sent, 1)
	msg := notifier.Sent[0]
	require.Equal(t, []string{"owner@example.com", "admin@example.com"}, msg.To)
	require.Contains(t, msg.Subject, "Board Deck")
	require.Contains(t, msg.HTML, "https://docqa.example.com/v1/access-requests/"+requestID+"/approve")
	require.Contains(t, msg.HTML, "https://docqa.example.com/v1/access-requests/"+requestID+"/deny")
}

func TestCreateAccessRequestSurvivesNotifierFailure(t *testing.T) {
	store := mem.NewDocStore()
	vs := mem.NewVectorStore()
	seedRestrictedDoc(t, store, vs, "D1")
	router := setupAccessRouter(t, store, vs, &mem.Notifier{Err: context.DeadlineExceeded})

	w := postRequest(t, router, "a@example.com", map[string]any{
		"docId": "D1", "ownerEmail": "owner@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestApproveLinkGrantsAccess(t *testing.T) {
	store := mem.NewDocStore()
	vs := mem.NewVectorStore()
	seedRestrictedDoc(t, store, vs, "D1")
	router := setupAccessRouter(t, store, vs, &mem.Notifier{})

	ar, err := store.CreateAccessRequest(context.Background(), "D1", "a@example.com")
	require.NoError(t, err)

	// Mail clients follow the emailed link with a plain GET.
	req := httptest.NewRequest(http.MethodGet, "/v1/access-requests/"+ar.ID+"/approve", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, model.AccessRequestApproved, resp["status"])

	doc, err := store.GetDocument(context.Background(), "D1")
	require.NoError(t, err)
	require.Contains(t, doc.EmailsAllowed, "a@example.com")
	for _, chunk := range vs.Chunks() {
		require.Contains(t, chunk.Payload.EmailsAllowed, "a@example.com")
	}
}

func TestDenyLinkLeavesACLUntouched(t *testing.T) {
	store := mem.NewDocStore()
	vs := mem.NewVectorStore()
	seedRestrictedDoc(t, store, vs, "D1")
	router := setupAccessRouter(t, store, vs, &mem.Notifier{})

	ar, err := store.CreateAccessRequest(context.Background(), "D1", "a@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/access-requests/"+ar.ID+"/deny", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	doc, err := store.GetDocument(context.Background(), "D1")
	require.NoError(t, err)
	require.NotContains(t, doc.EmailsAllowed, "a@example.com")
}

func TestDecideInvalidAction(t *testing.T) {
	router := setupAccessRouter(t, mem.NewDocStore(), mem.NewVectorStore(), &mem.Notifier{})

	req := httptest.NewRequest(http.MethodGet, "/v1/access-requests/r1/escalate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecideUnknownRequest(t *testing.T) {
	router := setupAccessRouter(t, mem.NewDocStore(), mem.NewVectorStore(), &mem.Notifier{})

	req := httptest.NewRequest(http.MethodGet, "/v1/access-requests/missing/approve", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecideConflictingDecision(t *testing.T) {
	store := mem.NewDocStore()
	vs := mem.NewVectorStore()
	seedRestrictedDoc(t, store, vs, "D1")
	router := setupAccessRouter(t, store, vs, &mem.Notifier{})

	ar, err := store.CreateAccessRequest(context.Background(), "D1", "a@example.com")
	require.NoError(t, err)

	approve := httptest.NewRequest(http.MethodGet, "/v1/access-requests/"+ar.ID+"/approve", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, approve)
	require.Equal(t, http.StatusOK, w.Code)

	deny := httptest.NewRequest(http.MethodGet, "/v1/access-requests/"+ar.ID+"/deny", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, deny)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

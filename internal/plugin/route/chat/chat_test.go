package chat_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corval/docqa-service/internal/config"
	"github.com/corval/docqa-service/internal/model"
	"github.com/corval/docqa-service/internal/plugin/route/chat"
	"github.com/corval/docqa-service/internal/security"
	"github.com/corval/docqa-service/internal/service"
	"github.com/corval/docqa-service/internal/testutil/mem"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func setupChatRouter(t *testing.T, vs *mem.VectorStore, store *mem.DocStore, llm *mem.Chat) *gin.Engine {
	t.Helper()

	assembler, err := service.NewContextAssembler(store)
	require.NoError(t, err)
	retriever := service.NewDualRetriever(&mem.Embedder{}, vs, 5, 0.3)
	orchestrator := service.NewChatOrchestrator(retriever, assembler, llm)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	auth := security.AuthMiddleware(security.NewTokenResolver(&cfg))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	chat.MountRoutes(router, orchestrator, auth)
	return router
}

func postChat(t *testing.T, router *gin.Engine, email, roles string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChatRequiresAuth(t *testing.T) {
	router := setupChatRouter(t, mem.NewVectorStore(), mem.NewDocStore(), &mem.Chat{Answer: "x"})

	w := postChat(t, router, "", "", map[string]any{"question": "hello"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatRequiresQuestion(t *testing.T) {
	router := setupChatRouter(t, mem.NewVectorStore(), mem.NewDocStore(), &mem.Chat{Answer: "x"})

	w := postChat(t, router, "a@example.com", "", map[string]any{"template": "plain"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatAnswersWithCitations(t *testing.T) {
	vs := mem.NewVectorStore()
	vs.Seed("c1", "D1", "revenue was up", 0.9, nil, nil, nil)
	store := mem.NewDocStore()
	_, err := store.UpsertDocument(context.Background(), model.Document{ID: "D1", Title: "Q3 Report", OwnerEmail: "cfo@example.com"})
	require.NoError(t, err)

	router := setupChatRouter(t, vs, store, &mem.Chat{Answer: "Revenue was up."})

	w := postChat(t, router, "a@example.com", "", map[string]any{"question": "how was revenue?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Revenue was up.", resp["answer"])
	citations, ok := resp["citations"].([]any)
	require.True(t, ok)
	require.Len(t, citations, 1)
	first, _ := citations[0].(map[string]any)
	require.Equal(t, "Q3 Report", first["title"])
	require.Equal(t, "/v1/docs/D1", first["url"])
}

func TestChatHiddenDocumentsAppendNote(t *testing.T) {
	vs := mem.NewVectorStore()
	vs.Seed("c1", "D1", "partner-only detail", 0.9, []string{"Partner"}, nil, nil)
	store := mem.NewDocStore()
	_, err := store.UpsertDocument(context.Background(), model.Document{
		ID: "D1", Title: "Partner Brief", OwnerEmail: "partner@example.com",
		RolesAllowed: []string{"Partner"},
	})
	require.NoError(t, err)

	router := setupChatRouter(t, vs, store, &mem.Chat{Answer: "Cannot say."})

	w := postChat(t, router, "a@example.com", "Associate", map[string]any{"question": "what is the detail?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	answer, _ := resp["answer"].(string)
	require.Contains(t, answer, "additional document")
	require.Contains(t, answer, "partner@example.com")
	hidden, ok := resp["hidden"].([]any)
	require.True(t, ok)
	require.Len(t, hidden, 1)
}

func TestChatUnknownTemplate(t *testing.T) {
	vs := mem.NewVectorStore()
	vs.Seed("c1", "D1", "content", 0.9, nil, nil, nil)
	router := setupChatRouter(t, vs, mem.NewDocStore(), &mem.Chat{Answer: "x"})

	w := postChat(t, router, "a@example.com", "", map[string]any{"question": "q", "template": "haiku"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

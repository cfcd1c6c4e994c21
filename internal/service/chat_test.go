package service_test

import (
	"context"
	"testing"

	"github.com/corval/docqa-service/internal/model"
	"github.com/corval/docqa-service/internal/security"
	"github.com/corval/docqa-service/internal/service"
	"github.com/corval/docqa-service/internal/testutil/mem"
	"github.com/stretchr/testify/require"
)

func newOrchestrator(t *testing.T, vs *mem.VectorStore, store *mem.DocStore, chat *mem.Chat) *service.ChatOrchestrator {
	t.Helper()
	assembler, err := service.NewContextAssembler(store)
	require.NoError(t, err)
	retriever := service.NewDualRetriever(&mem.Embedder{}, vs, 5, 0.3)
	return service.NewChatOrchestrator(retriever, assembler, chat)
}

func TestAskNoResults(t *testing.T) {
	o := newOrchestrator(t, mem.NewVectorStore(), mem.NewDocStore(), &mem.Chat{Answer: "unused"})

	resp, err := o.Ask(context.Background(), security.Identity{Email: "a@example.com"}, "anything", "")
	require.NoError(t, err)
	require.Equal(t, service.NoResultsAnswer, resp.Answer)
	require.Empty(t, resp.Citations)
	require.Empty(t, resp.Hidden)
}

func TestAskAnswersFromAccessibleContext(t *testing.T) {
	vs := mem.NewVectorStore()
	store := mem.NewDocStore()
	_, err := store.UpsertDocument(context.Background(), model.Document{ID: "D1", Title: "Handbook", OwnerEmail: "hr@example.com"})
	require.NoError(t, err)
	seedChunk(vs, "c1", "D1", 0.9, nil, nil, nil)

	chat := &mem.Chat{Answer: "The policy is X."}
	o := newOrchestrator(t, vs, store, chat)

	resp, err := o.Ask(context.Background(), security.Identity{Email: "a@example.com"}, "what is the policy?", service.TemplatePlain)
	require.NoError(t, err)
	require.Equal(t, "The policy is X.", resp.Answer)
	require.Len(t, resp.Citations, 1)
	require.Equal(t, "Handbook", resp.Citations[0].Title)
	require.Empty(t, resp.Hidden)

	// The rendered prompt carries the numbered context and the question.
	require.Contains(t, chat.Prompt, "[[1]] content of c1")
	require.Contains(t, chat.Prompt, "what is the policy?")
}

func TestAskAppendsHiddenNote(t *testing.T) {
	vs := mem.NewVectorStore()
	store := mem.NewDocStore()
	_, err := store.UpsertDocument(context.Background(), model.Document{ID: "D1", Title: "Public Doc", OwnerEmail: "pub@example.com"})
	require.NoError(t, err)
	_, err = store.UpsertDocument(context.Background(), model.Document{ID: "D2", Title: "Partner Doc", OwnerEmail: "partner@example.com"})
	require.NoError(t, err)
	seedChunk(vs, "c1", "D1", 0.9, nil, nil, nil)
	seedChunk(vs, "c2", "D2", 0.8, []string{"Partner"}, nil, nil)

	o := newOrchestrator(t, vs, store, &mem.Chat{Answer: "Answer."})

	resp, err := o.Ask(context.Background(), security.Identity{Email: "a@example.com", Roles: []string{"Associate"}}, "q", "")
	require.NoError(t, err)
	require.Contains(t, resp.Answer, "Answer.")
	require.Contains(t, resp.Answer, "partner@example.com")
	require.Equal(t, []model.HiddenDoc{{DocID: "D2", OwnerEmail: "partner@example.com"}}, resp.Hidden)
}

func TestAskUnknownTemplate(t *testing.T) {
	o := newOrchestrator(t, mem.NewVectorStore(), mem.NewDocStore(), &mem.Chat{})

	_, err := o.Ask(context.Background(), security.Identity{}, "q", "haiku")
	var utErr *service.UnknownTemplateError
	require.ErrorAs(t, err, &utErr)
	require.Equal(t, "haiku", utErr.Name)
}

func TestAskFinancialTemplate(t *testing.T) {
	vs := mem.NewVectorStore()
	store := mem.NewDocStore()
	_, err := store.UpsertDocument(context.Background(), model.Document{ID: "D1", Title: "10-K"})
	require.NoError(t, err)
	seedChunk(vs, "c1", "D1", 0.9, nil, nil, nil)

	chat := &mem.Chat{Answer: "# Memo"}
	o := newOrchestrator(t, vs, store, chat)

	_, err = o.Ask(context.Background(), security.Identity{Email: "a@example.com"}, "summarize revenue", service.TemplateFinancial)
	require.NoError(t, err)
	require.Contains(t, chat.Prompt, "<CONTEXT>")
	require.Contains(t, chat.Prompt, "financial memo")
}

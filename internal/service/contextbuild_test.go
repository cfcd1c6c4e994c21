package service_test

import (
	"context"
	"testing"

	"github.com/corval/docqa-service/internal/model"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
	"github.com/corval/docqa-service/internal/service"
	"github.com/corval/docqa-service/internal/testutil/mem"
	"github.com/stretchr/testify/require"
)

func TestBuildContextNumbering(t *testing.T) {
	a, err := service.NewContextAssembler(mem.NewDocStore())
	require.NoError(t, err)

	hits := []registryvector.SearchHit{
		{ChunkID: "c1", Payload: registryvector.ChunkPayload{DocID: "D1", Content: "first"}},
		{ChunkID: "c2", Payload: registryvector.ChunkPayload{DocID: "D2", Content: "second"}},
	}
	require.Equal(t, "[[1]] first\n---\n[[2]] second", a.BuildContext(hits))
	require.Equal(t, "", a.BuildContext(nil))
}

func TestCitationsResolveTitles(t *testing.T) {
	store := mem.NewDocStore()
	_, err := store.UpsertDocument(context.Background(), model.Document{ID: "D1", Title: "Annual Report"})
	require.NoError(t, err)
	_, err = store.UpsertDocument(context.Background(), model.Document{ID: "D2", Title: "Board Minutes"})
	require.NoError(t, err)

	a, err := service.NewContextAssembler(store)
	require.NoError(t, err)

	citations, err := a.Citations(context.Background(), []string{"D1", "D2"})
	require.NoError(t, err)
	require.Len(t, citations, 2)
	require.Equal(t, model.Citation{N: 1, Title: "Annual Report", URL: "/v1/docs/D1"}, citations[0])
	require.Equal(t, model.Citation{N: 2, Title: "Board Minutes", URL: "/v1/docs/D2"}, citations[1])

	// Unknown ids are skipped, not cited.
	citations, err = a.Citations(context.Background(), []string{"D1", "missing"})
	require.NoError(t, err)
	require.Len(t, citations, 1)
}

func TestHiddenDocsResolveOwners(t *testing.T) {
	store := mem.NewDocStore()
	_, err := store.UpsertDocument(context.Background(), model.Document{ID: "D2", Title: "Secret", OwnerEmail: "owner@example.com"})
	require.NoError(t, err)

	a, err := service.NewContextAssembler(store)
	require.NoError(t, err)

	hidden, err := a.HiddenDocs(context.Background(), []string{"D2"})
	require.NoError(t, err)
	require.Equal(t, []model.HiddenDoc{{DocID: "D2", OwnerEmail: "owner@example.com"}}, hidden)

	hidden, err = a.HiddenDocs(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, hidden)
}

func TestHiddenNoteWording(t *testing.T) {
	require.Equal(t, "", service.HiddenNote(nil))

	one := service.HiddenNote([]model.HiddenDoc{{DocID: "D1", OwnerEmail: "a@example.com"}})
	require.Contains(t, one, "There is 1 additional document relevant")
	require.Contains(t, one, "**a@example.com**")

	two := service.HiddenNote([]model.HiddenDoc{
		{DocID: "D1", OwnerEmail: "b@example.com"},
		{DocID: "D2", OwnerEmail: "a@example.com"},
	})
	require.Contains(t, two, "There are 2 additional documents relevant")
	require.Contains(t, two, "**a@example.com, b@example.com**")
}

func TestHiddenNoteDeduplicatesOwners(t *testing.T) {
	note := service.HiddenNote([]model.HiddenDoc{
		{DocID: "D1", OwnerEmail: "owner@example.com"},
		{DocID: "D2", OwnerEmail: "owner@example.com"},
	})
	require.Contains(t, note, "There are 2 additional documents")
	require.Contains(t, note, "**owner@example.com**")
}

package service_test

import (
	"context"
	"testing"

	"github.com/corval/docqa-service/internal/security"
	"github.com/corval/docqa-service/internal/service"
	"github.com/corval/docqa-service/internal/testutil/mem"
	"github.com/stretchr/testify/require"
)

func seedChunk(vs *mem.VectorStore, chunkID, docID string, score float64, roles, projects, emails []string) {
	vs.Seed(chunkID, docID, "content of "+chunkID, score, roles, projects, emails)
}

func TestDualRetrieverHiddenDocuments(t *testing.T) {
	vs := mem.NewVectorStore()
	// D1 public, D2 restricted to the Partner role.
	seedChunk(vs, "c1", "D1", 0.9, nil, nil, nil)
	seedChunk(vs, "c2", "D2", 0.8, []string{"Partner"}, nil, nil)

	r := service.NewDualRetriever(&mem.Embedder{}, vs, 5, 0.3)
	res, err := r.Retrieve(context.Background(), "quarterly revenue", security.Identity{
		Email: "alice@example.com",
		Roles: []string{"Associate"},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"D1", "D2"}, res.AllDocIDs)
	require.Equal(t, []string{"D1"}, res.AccessibleDocIDs)
	require.Equal(t, []string{"D2"}, res.HiddenDocIDs)
	require.False(t, res.Empty())
}

func TestDualRetrieverAccessibleSubsetOfAll(t *testing.T) {
	vs := mem.NewVectorStore()
	seedChunk(vs, "c1", "D1", 0.9, nil, nil, nil)
	seedChunk(vs, "c2", "D2", 0.7, []string{"Partner"}, nil, nil)
	seedChunk(vs, "c3", "D3", 0.5, nil, []string{"apollo"}, nil)
	seedChunk(vs, "c4", "D4", 0.4, nil, nil, []string{"bob@example.com"})

	identities := []security.Identity{
		{},
		{Email: "bob@example.com"},
		{Email: "x@example.com", Roles: []string{"Partner"}},
		{Email: "y@example.com", Projects: []string{"apollo"}},
		{Email: "z@example.com", Roles: []string{"Partner"}, Projects: []string{"apollo"}},
	}
	r := service.NewDualRetriever(&mem.Embedder{}, vs, 5, 0.3)
	for _, id := range identities {
		res, err := r.Retrieve(context.Background(), "anything", id)
		require.NoError(t, err)
		all := map[string]bool{}
		for _, d := range res.AllDocIDs {
			all[d] = true
		}
		for _, d := range res.AccessibleDocIDs {
			require.True(t, all[d], "accessible doc %s missing from all set for %+v", d, id)
		}
	}
}

func TestDualRetrieverPublicVisibleToEveryone(t *testing.T) {
	vs := mem.NewVectorStore()
	seedChunk(vs, "c1", "D1", 0.9, nil, nil, nil)

	r := service.NewDualRetriever(&mem.Embedder{}, vs, 5, 0.3)
	res, err := r.Retrieve(context.Background(), "anything", security.Identity{})
	require.NoError(t, err)
	require.Equal(t, []string{"D1"}, res.AccessibleDocIDs)
	require.Empty(t, res.HiddenDocIDs)
}

func TestDualRetrieverEmptyShortCircuit(t *testing.T) {
	vs := mem.NewVectorStore()
	// Below the threshold.
	seedChunk(vs, "c1", "D1", 0.1, nil, nil, nil)

	r := service.NewDualRetriever(&mem.Embedder{}, vs, 5, 0.3)
	res, err := r.Retrieve(context.Background(), "anything", security.Identity{})
	require.NoError(t, err)
	require.True(t, res.Empty())
	require.Empty(t, res.HiddenDocIDs)
}

func TestDualRetrieverOrderingDeterministic(t *testing.T) {
	vs := mem.NewVectorStore()
	seedChunk(vs, "b", "D1", 0.8, nil, nil, nil)
	seedChunk(vs, "a", "D2", 0.8, nil, nil, nil)
	seedChunk(vs, "c", "D3", 0.9, nil, nil, nil)

	r := service.NewDualRetriever(&mem.Embedder{}, vs, 5, 0.3)
	res, err := r.Retrieve(context.Background(), "anything", security.Identity{})
	require.NoError(t, err)

	var order []string
	for _, h := range res.All {
		order = append(order, h.ChunkID)
	}
	// Score descending, ties by chunk id ascending.
	require.Equal(t, []string{"c", "a", "b"}, order)
}

func TestDualRetrieverRestrictedOnlyDocStaysAccessible(t *testing.T) {
	vs := mem.NewVectorStore()
	// Five Partner-only docs fill the unrestricted top-k; bob's restricted
	// query surfaces only his own lower-ranked doc.
	seedChunk(vs, "c1", "D1", 0.9, []string{"Partner"}, nil, nil)
	seedChunk(vs, "c2", "D2", 0.8, []string{"Partner"}, nil, nil)
	seedChunk(vs, "c3", "D3", 0.7, []string{"Partner"}, nil, nil)
	seedChunk(vs, "c4", "D4", 0.6, []string{"Partner"}, nil, nil)
	seedChunk(vs, "c5", "D5", 0.5, []string{"Partner"}, nil, nil)
	seedChunk(vs, "c6", "D6", 0.4, nil, nil, []string{"bob@example.com"})

	r := service.NewDualRetriever(&mem.Embedder{}, vs, 5, 0.3)
	res, err := r.Retrieve(context.Background(), "anything", security.Identity{Email: "bob@example.com"})
	require.NoError(t, err)

	// D6 ranks outside the unrestricted top-5 but is accessible; it must be
	// folded into the all-set rather than reported hidden.
	require.Equal(t, []string{"D6"}, res.AccessibleDocIDs)
	require.Contains(t, res.AllDocIDs, "D6")
	require.NotContains(t, res.HiddenDocIDs, "D6")
	require.ElementsMatch(t, []string{"D1", "D2", "D3", "D4", "D5"}, res.HiddenDocIDs)
}

package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/corval/docqa-service/internal/acl"
	registryembed "github.com/corval/docqa-service/internal/registry/embed"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
	"github.com/corval/docqa-service/internal/security"
)

// RetrievalResult carries both views of one similarity query: everything that
// matched, and the subset the caller is allowed to read. HiddenDocIDs is the
// document-level difference between the two.
type RetrievalResult struct {
	All              []registryvector.SearchHit
	Accessible       []registryvector.SearchHit
	AllDocIDs        []string
	AccessibleDocIDs []string
	HiddenDocIDs     []string
}

// Empty reports whether nothing matched at all, the short-circuit branch that
// skips the chat call entirely.
func (r *RetrievalResult) Empty() bool {
	return len(r.All) == 0
}

// DualRetriever runs the same embedding through the vector index twice, once
// unrestricted and once filtered to the identity's visibility, and derives
// which relevant documents the identity cannot see.
type DualRetriever struct {
	embedder  registryembed.Embedder
	vectors   registryvector.VectorStore
	limit     int
	threshold float64
}

func NewDualRetriever(embedder registryembed.Embedder, vectors registryvector.VectorStore, limit int, threshold float64) *DualRetriever {
	return &DualRetriever{embedder: embedder, vectors: vectors, limit: limit, threshold: threshold}
}

// Retrieve embeds the question and performs the dual query. Both queries use
// the identical embedding, limit and threshold so the derived sets are
// comparable.
func (d *DualRetriever) Retrieve(ctx context.Context, question string, identity security.Identity) (*RetrievalResult, error) {
	embeddings, err := d.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	embedding := embeddings[0]

	all, err := d.vectors.Search(ctx, embedding, d.limit, d.threshold, nil)
	if err != nil {
		return nil, fmt.Errorf("unrestricted search: %w", err)
	}

	filter := acl.FilterFor(identity.Email, identity.Roles, identity.Projects)
	accessible, err := d.vectors.Search(ctx, embedding, d.limit, d.threshold, filter)
	if err != nil {
		return nil, fmt.Errorf("restricted search: %w", err)
	}

	sortHits(all)
	sortHits(accessible)

	allDocIDs := distinctDocIDs(all)
	accessibleDocIDs := distinctDocIDs(accessible)

	// The restricted query can surface chunks that rank outside the
	// unrestricted top-k. Folding those documents into the all-set keeps
	// accessible ⊆ all at the document level.
	allDocIDs = unionPreservingOrder(allDocIDs, accessibleDocIDs)

	return &RetrievalResult{
		All:              all,
		Accessible:       accessible,
		AllDocIDs:        allDocIDs,
		AccessibleDocIDs: accessibleDocIDs,
		HiddenDocIDs:     difference(allDocIDs, accessibleDocIDs),
	}, nil
}

// sortHits orders by score descending, ties broken by chunk id ascending so
// results are deterministic.
func sortHits(hits []registryvector.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
}

// distinctDocIDs projects hits to document ids, preserving first-seen order.
func distinctDocIDs(hits []registryvector.SearchHit) []string {
	seen := make(map[string]struct{}, len(hits))
	var ids []string
	for _, h := range hits {
		if _, ok := seen[h.Payload.DocID]; ok {
			continue
		}
		seen[h.Payload.DocID] = struct{}{}
		ids = append(ids, h.Payload.DocID)
	}
	return ids
}

func unionPreservingOrder(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	out := make([]string, 0, len(base)+len(extra))
	for _, id := range base {
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range extra {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func difference(all, accessible []string) []string {
	in := make(map[string]struct{}, len(accessible))
	for _, id := range accessible {
		in[id] = struct{}{}
	}
	var hidden []string
	for _, id := range all {
		if _, ok := in[id]; !ok {
			hidden = append(hidden, id)
		}
	}
	return hidden
}

package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/corval/docqa-service/internal/model"
	registrystore "github.com/corval/docqa-service/internal/registry/store"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
	"github.com/dgraph-io/ristretto/v2"
)

// ContextAssembler turns accessible chunks into the numbered context block
// fed to the model, plus a citation list resolved from document titles.
// Titles are cached; a document's title only changes on re-ingestion.
type ContextAssembler struct {
	store  registrystore.DocumentStore
	titles *ristretto.Cache[string, string]
}

func NewContextAssembler(store registrystore.DocumentStore) (*ContextAssembler, error) {
	titles, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("title cache: %w", err)
	}
	return &ContextAssembler{store: store, titles: titles}, nil
}

// BuildContext renders accessible chunks as "[[n]] content" entries separated
// by a divider line, in the order given.
func (a *ContextAssembler) BuildContext(accessible []registryvector.SearchHit) string {
	parts := make([]string, len(accessible))
	for i, hit := range accessible {
		parts[i] = fmt.Sprintf("[[%d]] %s", i+1, hit.Payload.Content)
	}
	return strings.Join(parts, "\n---\n")
}

// Citations resolves the distinct accessible document ids to numbered
// citations pointing at the document fetch endpoint.
func (a *ContextAssembler) Citations(ctx context.Context, docIDs []string) ([]model.Citation, error) {
	titles, err := a.titlesFor(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	citations := make([]model.Citation, 0, len(docIDs))
	for i, id := range docIDs {
		title, ok := titles[id]
		if !ok {
			// Index knows a document the relational store doesn't; skip
			// rather than cite something unfetchable.
			continue
		}
		citations = append(citations, model.Citation{
			N:     i + 1,
			Title: title,
			URL:   "/v1/docs/" + id,
		})
	}
	return citations, nil
}

func (a *ContextAssembler) titlesFor(ctx context.Context, docIDs []string) (map[string]string, error) {
	titles := make(map[string]string, len(docIDs))
	var misses []string
	for _, id := range docIDs {
		if title, ok := a.titles.Get(id); ok {
			titles[id] = title
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return titles, nil
	}
	docs, err := a.store.GetDocuments(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("resolve titles: %w", err)
	}
	for _, d := range docs {
		titles[d.ID] = d.Title
		a.titles.Set(d.ID, d.Title, int64(len(d.Title)))
	}
	return titles, nil
}

// HiddenDocs resolves hidden document ids to their owners so the answer can
// tell the caller whom to ask for access.
func (a *ContextAssembler) HiddenDocs(ctx context.Context, hiddenDocIDs []string) ([]model.HiddenDoc, error) {
	if len(hiddenDocIDs) == 0 {
		return nil, nil
	}
	docs, err := a.store.GetDocuments(ctx, hiddenDocIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve hidden documents: %w", err)
	}
	hidden := make([]model.HiddenDoc, 0, len(docs))
	for _, d := range docs {
		hidden = append(hidden, model.HiddenDoc{DocID: d.ID, OwnerEmail: d.OwnerEmail})
	}
	return hidden, nil
}

// HiddenNote renders the access-request affordance appended to an answer when
// relevant documents were withheld. Owner emails are de-duplicated.
func HiddenNote(hidden []model.HiddenDoc) string {
	if len(hidden) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(hidden))
	var owners []string
	for _, h := range hidden {
		if _, ok := seen[h.OwnerEmail]; ok {
			continue
		}
		seen[h.OwnerEmail] = struct{}{}
		owners = append(owners, h.OwnerEmail)
	}
	sort.Strings(owners)

	verb, plural := "is", ""
	if len(hidden) > 1 {
		verb, plural = "are", "s"
	}
	return fmt.Sprintf("\n\n**Note:** There %s %d additional document%s relevant to your question that you don't have access to.\nPlease contact **%s** to request access.",
		verb, len(hidden), plural, strings.Join(owners, ", "))
}

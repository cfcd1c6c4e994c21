package service

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/model"
	registrystore "github.com/corval/docqa-service/internal/registry/store"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
)

// AccessGrantPropagator applies access decisions. Approval touches two
// stores: the document row first, then every indexed chunk of that document.
// The two writes are not transactional; both are idempotent, so re-invoking
// the decision endpoint after a partial failure converges to consistency.
type AccessGrantPropagator struct {
	store    registrystore.DocumentStore
	vectors  registryvector.VectorStore
	pageSize int
}

func NewAccessGrantPropagator(store registrystore.DocumentStore, vectors registryvector.VectorStore, pageSize int) *AccessGrantPropagator {
	return &AccessGrantPropagator{store: store, vectors: vectors, pageSize: pageSize}
}

// Decide transitions the request to the given terminal status and, on
// approval, grants the requestor email on the document and all its chunks.
// Denial changes the request status only.
func (p *AccessGrantPropagator) Decide(ctx context.Context, requestID, status string) (*model.AccessRequest, error) {
	req, err := p.store.DecideAccessRequest(ctx, requestID, status, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if status != model.AccessRequestApproved {
		return req, nil
	}

	doc, err := p.store.AppendEmailAllowed(ctx, req.DocID, req.RequestorEmail)
	if err != nil {
		return nil, fmt.Errorf("grant on document %s: %w", req.DocID, err)
	}

	if err := p.patchChunks(ctx, doc); err != nil {
		return nil, fmt.Errorf("propagate grant to chunks of %s: %w", doc.ID, err)
	}
	log.Info("Access granted", "request", req.ID, "doc", doc.ID, "email", req.RequestorEmail)
	return req, nil
}

// patchChunks walks the document's chunk ids page by page, replacing each
// chunk's emailsAllowed with the document's full post-grant set. Writing the
// complete set rather than appending makes every page independently
// re-runnable.
func (p *AccessGrantPropagator) patchChunks(ctx context.Context, doc *model.Document) error {
	cursor := ""
	page := 0
	for {
		ids, next, err := p.vectors.ScrollChunkIDs(ctx, doc.ID, p.pageSize, cursor)
		if err != nil {
			return fmt.Errorf("scroll page %d: %w", page, err)
		}
		if len(ids) > 0 {
			if err := p.vectors.SetEmailsAllowed(ctx, ids, doc.EmailsAllowed); err != nil {
				return fmt.Errorf("patch page %d (%d chunks): %w", page, len(ids), err)
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
		page++
	}
}

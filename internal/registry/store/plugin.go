package store

import (
	"context"
	"fmt"
	"time"

	"github.com/corval/docqa-service/internal/model"
)

// DocumentStore defines the relational persistence interface for documents
// and access requests.
type DocumentStore interface {
	// UpsertDocument creates or updates a document by provider-assigned id.
	// On create the ACL sets start empty (public); on update the existing
	// ACL sets are preserved.
	UpsertDocument(ctx context.Context, doc model.Document) (*model.Document, error)
	// GetDocument returns a document by id.
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	// GetDocuments returns the documents for the given ids, skipping unknown ids.
	GetDocuments(ctx context.Context, ids []string) ([]model.Document, error)
	// AppendEmailAllowed adds email to the document's emailsAllowed set and
	// returns the updated document. Appending an email already present is a
	// no-op, so the operation is safe to re-run.
	AppendEmailAllowed(ctx context.Context, docID, email string) (*model.Document, error)

	// CreateAccessRequest records a new pending access request.
	CreateAccessRequest(ctx context.Context, docID, requestorEmail string) (*model.AccessRequest, error)
	// GetAccessRequest returns an access request by id.
	GetAccessRequest(ctx context.Context, id string) (*model.AccessRequest, error)
	// DecideAccessRequest transitions a request to a terminal status and
	// stamps decidedAt. Re-deciding with the same status is a no-op;
	// the stored request is returned either way.
	DecideAccessRequest(ctx context.Context, id, status string, decidedAt time.Time) (*model.AccessRequest, error)

	Close()
}

// Loader creates a DocumentStore from config.
type Loader func(ctx context.Context) (DocumentStore, error)

// Plugin represents a document store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a document store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered document store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named document store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown document store %q; valid: %v", name, Names())
}

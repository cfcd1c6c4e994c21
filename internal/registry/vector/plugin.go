package vector

import (
	"context"
	"fmt"
)

// ChunkPayload is the payload stored alongside every chunk vector. The ACL
// fields are a snapshot of the parent document's ACL sets at index time.
type ChunkPayload struct {
	DocID         string
	Offset        int
	Content       string
	RolesAllowed  []string
	Projects      []string
	EmailsAllowed []string
}

// SearchHit is a single similarity search result.
type SearchHit struct {
	ChunkID string
	Score   float64
	Payload ChunkPayload
}

// ChunkUpsert holds the data for a single chunk upsert. ChunkID is derived
// deterministically from (docId, offset), so re-upserting the same chunk
// overwrites rather than duplicates.
type ChunkUpsert struct {
	ChunkID   string
	Embedding []float32
	Payload   ChunkPayload
}

// AccessFilter restricts a search to chunks visible to one identity. A chunk
// matches when it is public (all three ACL sets empty), or any of the
// identity's roles or projects intersect the chunk's sets, or the identity's
// email is in emailsAllowed. Dimensions are OR'd, never AND'd.
type AccessFilter struct {
	Roles    []string
	Projects []string
	Email    string
}

// VectorStore defines the interface for vector index backends.
type VectorStore interface {
	// Search returns up to limit chunks scoring at or above threshold,
	// ordered by score descending with ties broken by chunk id ascending.
	// A nil filter searches without ACL restriction.
	Search(ctx context.Context, embedding []float32, limit int, threshold float64, filter *AccessFilter) ([]SearchHit, error)
	// Upsert stores or overwrites a batch of chunks.
	Upsert(ctx context.Context, chunks []ChunkUpsert) error
	// ScrollChunkIDs pages through the ids of every chunk belonging to a
	// document. Pass the returned cursor to fetch the next page; an empty
	// cursor means the scan is complete.
	ScrollChunkIDs(ctx context.Context, docID string, pageSize int, cursor string) (ids []string, next string, err error)
	// SetEmailsAllowed replaces the emailsAllowed payload field on the given
	// chunks. Callers pass the document's full post-update set, which makes
	// the operation idempotent.
	SetEmailsAllowed(ctx context.Context, chunkIDs []string, emails []string) error
	// IsEnabled returns true if the vector store is configured and operational.
	IsEnabled() bool
	// Name returns the plugin name (e.g. "qdrant", "pgvector").
	Name() string
}

// Loader creates a VectorStore from config.
type Loader func(ctx context.Context) (VectorStore, error)

// Plugin represents a vector store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named vector store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector store %q; valid: %v", name, Names())
}

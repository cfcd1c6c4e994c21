// Package mem provides in-memory implementations of the service's external
// collaborators for tests.
package mem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corval/docqa-service/internal/acl"
	"github.com/corval/docqa-service/internal/model"
	registrynotify "github.com/corval/docqa-service/internal/registry/notify"
	registrystore "github.com/corval/docqa-service/internal/registry/store"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
	"github.com/google/uuid"
)

// Embedder returns a deterministic vector per text.
type Embedder struct {
	Calls int
	Err   error
}

func (e *Embedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := float32(0)
		for _, r := range t {
			sum += float32(r)
		}
		out[i] = []float32{sum, float32(len(t)), 1}
	}
	return out, nil
}

func (e *Embedder) ModelName() string { return "mem-embed" }
func (e *Embedder) Dimension() int    { return 3 }

// FailAfterEmbedder succeeds for OKCalls calls, then fails.
type FailAfterEmbedder struct {
	Embedder
	OKCalls int
}

func (e *FailAfterEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if e.Calls >= e.OKCalls {
		e.Calls++
		return nil, fmt.Errorf("embedding provider unavailable")
	}
	return e.Embedder.EmbedTexts(ctx, texts)
}

// VectorStore is an in-memory vector index. Similarity is faked: every chunk
// carries a fixed score assigned when seeded or upserted.
type VectorStore struct {
	mu     sync.Mutex
	chunks map[string]registryvector.ChunkUpsert
	scores map[string]float64

	UpsertErr error
}

func NewVectorStore() *VectorStore {
	return &VectorStore{
		chunks: map[string]registryvector.ChunkUpsert{},
		scores: map[string]float64{},
	}
}

func (s *VectorStore) IsEnabled() bool { return true }
func (s *VectorStore) Name() string    { return "mem" }

// Seed places a chunk with the given payload and similarity score.
func (s *VectorStore) Seed(chunkID, docID, content string, score float64, roles, projects, emails []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[chunkID] = registryvector.ChunkUpsert{
		ChunkID: chunkID,
		Payload: registryvector.ChunkPayload{
			DocID:         docID,
			Content:       content,
			RolesAllowed:  roles,
			Projects:      projects,
			EmailsAllowed: emails,
		},
	}
	s.scores[chunkID] = score
}

// Chunks returns a snapshot of the stored chunks.
func (s *VectorStore) Chunks() map[string]registryvector.ChunkUpsert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]registryvector.ChunkUpsert, len(s.chunks))
	for k, v := range s.chunks {
		out[k] = v
	}
	return out
}

func (s *VectorStore) Search(_ context.Context, _ []float32, limit int, threshold float64, filter *registryvector.AccessFilter) ([]registryvector.SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hits []registryvector.SearchHit
	for id, c := range s.chunks {
		score, ok := s.scores[id]
		if !ok || score < threshold {
			continue
		}
		if filter != nil && !acl.Allows(filter.Email, filter.Roles, filter.Projects,
			c.Payload.RolesAllowed, c.Payload.Projects, c.Payload.EmailsAllowed) {
			continue
		}
		hits = append(hits, registryvector.SearchHit{ChunkID: id, Score: score, Payload: c.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *VectorStore) Upsert(_ context.Context, chunks []registryvector.ChunkUpsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	for _, c := range chunks {
		s.chunks[c.ChunkID] = c
		if _, ok := s.scores[c.ChunkID]; !ok {
			s.scores[c.ChunkID] = 0.9
		}
	}
	return nil
}

func (s *VectorStore) ScrollChunkIDs(_ context.Context, docID string, pageSize int, cursor string) ([]string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []string
	for id, c := range s.chunks {
		if c.Payload.DocID == docID {
			all = append(all, id)
		}
	}
	sort.Strings(all)
	start := 0
	if cursor != "" {
		start = len(all)
		for i, id := range all {
			if id > cursor {
				start = i
				break
			}
		}
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	page := all[start:end]
	next := ""
	if len(page) == pageSize && end < len(all) {
		next = page[len(page)-1]
	}
	return page, next, nil
}

func (s *VectorStore) SetEmailsAllowed(_ context.Context, chunkIDs []string, emails []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range chunkIDs {
		c, ok := s.chunks[id]
		if !ok {
			continue
		}
		c.Payload.EmailsAllowed = append([]string(nil), emails...)
		s.chunks[id] = c
	}
	return nil
}

// DocStore is an in-memory DocumentStore.
type DocStore struct {
	mu       sync.Mutex
	docs     map[string]model.Document
	requests map[string]model.AccessRequest
}

func NewDocStore() *DocStore {
	return &DocStore{
		docs:     map[string]model.Document{},
		requests: map[string]model.AccessRequest{},
	}
}

func (s *DocStore) UpsertDocument(_ context.Context, doc model.Document) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.docs[doc.ID]; ok {
		existing.Title = doc.Title
		existing.StoragePath = doc.StoragePath
		existing.UpdatedAt = now
		s.docs[doc.ID] = existing
		out := existing
		return &out, nil
	}
	doc.RolesAllowed = emptyIfNil(doc.RolesAllowed)
	doc.Projects = emptyIfNil(doc.Projects)
	doc.EmailsAllowed = emptyIfNil(doc.EmailsAllowed)
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.docs[doc.ID] = doc
	out := doc
	return &out, nil
}

func (s *DocStore) GetDocument(_ context.Context, id string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "document", ID: id}
	}
	out := doc
	return &out, nil
}

func (s *DocStore) GetDocuments(_ context.Context, ids []string) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *DocStore) AppendEmailAllowed(_ context.Context, docID, email string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "document", ID: docID}
	}
	found := false
	for _, e := range doc.EmailsAllowed {
		if e == email {
			found = true
			break
		}
	}
	if !found {
		doc.EmailsAllowed = append(doc.EmailsAllowed, email)
	}
	s.docs[docID] = doc
	out := doc
	return &out, nil
}

func (s *DocStore) CreateAccessRequest(_ context.Context, docID, requestorEmail string) (*model.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := model.AccessRequest{
		ID:             uuid.NewString(),
		DocID:          docID,
		RequestorEmail: requestorEmail,
		Status:         model.AccessRequestPending,
		CreatedAt:      time.Now().UTC(),
	}
	s.requests[req.ID] = req
	out := req
	return &out, nil
}

func (s *DocStore) GetAccessRequest(_ context.Context, id string) (*model.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "access request", ID: id}
	}
	out := req
	return &out, nil
}

func (s *DocStore) DecideAccessRequest(_ context.Context, id, status string, decidedAt time.Time) (*model.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "access request", ID: id}
	}
	if req.Status == model.AccessRequestPending {
		req.Status = status
		req.DecidedAt = &decidedAt
		s.requests[id] = req
	} else if req.Status != status {
		return nil, &registrystore.ValidationError{Field: "action", Message: "request already decided"}
	}
	out := req
	return &out, nil
}

func (s *DocStore) Close() {}

// FileStore serves a fixed listing.
type FileStore struct {
	files map[string][]byte
	infos []model.FileInfo
}

func NewFileStore() *FileStore {
	return &FileStore{files: map[string][]byte{}}
}

// Add registers a downloadable file.
func (s *FileStore) Add(id, name, path string, content []byte) {
	s.files[path] = content
	s.infos = append(s.infos, model.FileInfo{ID: id, Name: name, Path: path})
}

// AddMissing registers a listing entry whose download will fail.
func (s *FileStore) AddMissing(id, name, path string) {
	s.infos = append(s.infos, model.FileInfo{ID: id, Name: name, Path: path})
}

// Infos returns the listing entries in registration order.
func (s *FileStore) Infos() []model.FileInfo {
	return s.infos
}

func (s *FileStore) ListPage(_ context.Context, cursor string) ([]model.FileInfo, string, error) {
	return s.infos, "", nil
}

func (s *FileStore) Download(_ context.Context, path string) ([]byte, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func (s *FileStore) TemporaryLink(_ context.Context, path string) (string, error) {
	return "https://files.example.com/dl" + path, nil
}

// Chat records the prompt and returns a canned answer.
type Chat struct {
	Prompt string
	Answer string
	Err    error
}

func (c *Chat) Complete(_ context.Context, prompt string) (string, error) {
	c.Prompt = prompt
	if c.Err != nil {
		return "", c.Err
	}
	return c.Answer, nil
}

func (c *Chat) ModelName() string { return "mem-chat" }

// Notifier records sent messages.
type Notifier struct {
	Sent []registrynotify.Message
	Err  error
}

func (n *Notifier) Send(_ context.Context, msg registrynotify.Message) error {
	if n.Err != nil {
		return n.Err
	}
	n.Sent = append(n.Sent, msg)
	return nil
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

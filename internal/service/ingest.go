package service

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/model"
	registryembed "github.com/corval/docqa-service/internal/registry/embed"
	"github.com/corval/docqa-service/internal/registry/extract"
	registryfilestore "github.com/corval/docqa-service/internal/registry/filestore"
	registrystore "github.com/corval/docqa-service/internal/registry/store"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
	"github.com/corval/docqa-service/internal/security"
	"github.com/google/uuid"
)

// chunkIDNamespace scopes the deterministic chunk id derivation. Changing it
// would orphan every indexed chunk.
var chunkIDNamespace = uuid.MustParse("7a0dbb5e-2a34-4d54-9a1c-0f5a36e4c9d1")

// ChunkID derives the stable id for a chunk from its parent document and
// character offset. Re-ingesting a document reproduces the same ids, so
// upserts overwrite instead of duplicating.
func ChunkID(docID string, offset int) string {
	return uuid.NewSHA1(chunkIDNamespace, fmt.Appendf(nil, "%s:%d", docID, offset)).String()
}

// ChunkText slices text into fixed-size windows of size chars with no
// overlap. The last window may be shorter. Offsets are character positions.
func ChunkText(text string, size int) []Chunk {
	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{Offset: start, Content: string(runes[start:end])})
	}
	return chunks
}

// Chunk is one window of a document's extracted text, positioned by its
// character offset.
type Chunk struct {
	Offset  int
	Content string
}

// Ingestor turns provider files into document rows and indexed chunks.
type Ingestor struct {
	files     registryfilestore.FileStore
	store     registrystore.DocumentStore
	embedder  registryembed.Embedder
	vectors   registryvector.VectorStore
	chunkSize int
	batchSize int
	// Owner recorded when the provider gives no owner information.
	fallbackOwner string
}

func NewIngestor(files registryfilestore.FileStore, store registrystore.DocumentStore, embedder registryembed.Embedder, vectors registryvector.VectorStore, chunkSize, batchSize int, fallbackOwner string) *Ingestor {
	return &Ingestor{
		files:         files,
		store:         store,
		embedder:      embedder,
		vectors:       vectors,
		chunkSize:     chunkSize,
		batchSize:     batchSize,
		fallbackOwner: fallbackOwner,
	}
}

// IngestFile processes one file end to end: download, extract, upsert the
// document row, chunk, embed in batches, and upsert the vectors. A failure
// leaves any batches already upserted in place; deterministic chunk ids make
// the retry overwrite them harmlessly.
func (in *Ingestor) IngestFile(ctx context.Context, file model.FileInfo) error {
	data, err := in.files.Download(ctx, file.Path)
	if err != nil {
		security.RecordIngestedFile("download_error")
		return fmt.Errorf("download %s: %w", file.Path, err)
	}

	extractor := extract.ForFile(file.Name)
	if extractor == nil {
		security.RecordIngestedFile("unsupported")
		return fmt.Errorf("no extractor for %s", file.Name)
	}
	text, err := extractor.Extract(file.Name, data)
	if err != nil {
		security.RecordIngestedFile("extract_error")
		return fmt.Errorf("extract %s: %w", file.Name, err)
	}

	doc, err := in.store.UpsertDocument(ctx, model.Document{
		ID:          file.ID,
		Title:       file.Name,
		StoragePath: file.Path,
		OwnerEmail:  in.fallbackOwner,
	})
	if err != nil {
		security.RecordIngestedFile("store_error")
		return fmt.Errorf("upsert document %s: %w", file.ID, err)
	}

	chunks := ChunkText(text, in.chunkSize)
	if len(chunks) == 0 {
		security.RecordIngestedFile("empty")
		log.Debug("File produced no chunks", "file", file.Name)
		return nil
	}

	if err := in.indexChunks(ctx, doc, chunks); err != nil {
		security.RecordIngestedFile("index_error")
		return fmt.Errorf("index %s: %w", file.ID, err)
	}

	security.RecordIngestedFile("ok")
	log.Info("Ingested file", "doc", doc.ID, "title", doc.Title, "chunks", len(chunks))
	return nil
}

// indexChunks embeds and upserts batch by batch. Each batch is embedded and
// written before the next is started, so an embedding failure never discards
// embeddings already persisted.
func (in *Ingestor) indexChunks(ctx context.Context, doc *model.Document, chunks []Chunk) error {
	for start := 0; start < len(chunks); start += in.batchSize {
		end := start + in.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		embeddings, err := in.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at offset %d: %w", batch[0].Offset, err)
		}
		security.RecordEmbeddingBatch()

		upserts := make([]registryvector.ChunkUpsert, len(batch))
		for i, c := range batch {
			upserts[i] = registryvector.ChunkUpsert{
				ChunkID:   ChunkID(doc.ID, c.Offset),
				Embedding: embeddings[i],
				Payload: registryvector.ChunkPayload{
					DocID:         doc.ID,
					Offset:        c.Offset,
					Content:       c.Content,
					RolesAllowed:  doc.RolesAllowed,
					Projects:      doc.Projects,
					EmailsAllowed: doc.EmailsAllowed,
				},
			}
		}
		if err := in.vectors.Upsert(ctx, upserts); err != nil {
			return fmt.Errorf("upsert batch at offset %d: %w", batch[0].Offset, err)
		}
	}
	return nil
}

// ScanAll walks every file under the provider root, ingesting each one.
// Per-file failures are logged and skipped so one bad file cannot poison a
// scan; they remain eligible for the next scan. Returns the number of files
// ingested and the number failed.
func (in *Ingestor) ScanAll(ctx context.Context) (ok, failed int, err error) {
	cursor := ""
	for {
		files, next, err := in.files.ListPage(ctx, cursor)
		if err != nil {
			return ok, failed, fmt.Errorf("list files: %w", err)
		}
		for _, f := range files {
			if err := in.IngestFile(ctx, f); err != nil {
				log.Error("Ingest failed", "file", f.Path, "error", err)
				failed++
				continue
			}
			ok++
		}
		if next == "" {
			return ok, failed, nil
		}
		cursor = next
	}
}

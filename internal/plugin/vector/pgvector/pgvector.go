package pgvector

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/config"
	registrymigrate "github.com/corval/docqa-service/internal/registry/migrate"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"
)

// pgvectorMigrator provisions the chunks table in the main database.
type pgvectorMigrator struct{}

func (m *pgvectorMigrator) Name() string { return "pgvector" }
func (m *pgvectorMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorType != "pgvector" || cfg.DBURL == "" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: connect: %w", err)
	}
	defer pool.Close()

	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS chunks (
			id             UUID PRIMARY KEY,
			doc_id         TEXT NOT NULL,
			chunk_offset   INTEGER NOT NULL,
			content        TEXT NOT NULL,
			roles_allowed  TEXT[] NOT NULL DEFAULT '{}',
			projects       TEXT[] NOT NULL DEFAULT '{}',
			emails_allowed TEXT[] NOT NULL DEFAULT '{}',
			embedding      vector(%d) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS chunks_doc_id_idx ON chunks (doc_id);
		CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);`,
		cfg.OpenAIDimensions)
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgvector migrate: apply schema: %w", err)
	}
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "pgvector",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &pgvectorMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("pgvector: DOCQA_SERVICE_DB_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	return &PgvectorStore{pool: pool}, nil
}

// PgvectorStore implements VectorStore on the pgvector extension, sharing
// the service's Postgres instance.
type PgvectorStore struct {
	pool *pgxpool.Pool
}

func (s *PgvectorStore) IsEnabled() bool { return true }
func (s *PgvectorStore) Name() string    { return "pgvector" }

func (s *PgvectorStore) Search(ctx context.Context, embedding []float32, limit int, threshold float64, filter *registryvector.AccessFilter) ([]registryvector.SearchHit, error) {
	vec := pgvec.NewVector(embedding)

	query := `
		SELECT id, doc_id, chunk_offset, content, roles_allowed, projects, emails_allowed,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE 1 - (embedding <=> $1) >= $2`
	args := []any{vec, threshold}

	if filter != nil {
		// Same OR-of-dimensions policy the qdrant backend expresses as a
		// should-filter: public, or role/project overlap, or email match.
		query += `
		  AND ( (cardinality(roles_allowed) = 0 AND cardinality(projects) = 0 AND cardinality(emails_allowed) = 0)
		     OR roles_allowed && $3
		     OR projects && $4
		     OR $5 = ANY(emails_allowed) )`
		args = append(args, emptyIfNil(filter.Roles), emptyIfNil(filter.Projects), filter.Email)
		query += `
		ORDER BY embedding <=> $1
		LIMIT $6`
	} else {
		query += `
		ORDER BY embedding <=> $1
		LIMIT $3`
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []registryvector.SearchHit
	for rows.Next() {
		var h registryvector.SearchHit
		if err := rows.Scan(&h.ChunkID, &h.Payload.DocID, &h.Payload.Offset, &h.Payload.Content,
			&h.Payload.RolesAllowed, &h.Payload.Projects, &h.Payload.EmailsAllowed, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PgvectorStore) Upsert(ctx context.Context, chunks []registryvector.ChunkUpsert) error {
	for _, c := range chunks {
		vec := pgvec.NewVector(c.Embedding)
		_, err := s.pool.Exec(ctx, `
			INSERT INTO chunks (id, doc_id, chunk_offset, content, roles_allowed, projects, emails_allowed, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				content        = EXCLUDED.content,
				roles_allowed  = EXCLUDED.roles_allowed,
				projects       = EXCLUDED.projects,
				emails_allowed = EXCLUDED.emails_allowed,
				embedding      = EXCLUDED.embedding`,
			c.ChunkID, c.Payload.DocID, c.Payload.Offset, c.Payload.Content,
			emptyIfNil(c.Payload.RolesAllowed), emptyIfNil(c.Payload.Projects),
			emptyIfNil(c.Payload.EmailsAllowed), vec)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PgvectorStore) ScrollChunkIDs(ctx context.Context, docID string, pageSize int, cursor string) ([]string, string, error) {
	query := `SELECT id FROM chunks WHERE doc_id = $1`
	args := []any{docID}
	if cursor != "" {
		query += ` AND id > $2::uuid ORDER BY id LIMIT $3`
		args = append(args, cursor, pageSize)
	} else {
		query += ` ORDER BY id LIMIT $2`
		args = append(args, pageSize)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(ids) == pageSize {
		next = ids[len(ids)-1]
	}
	return ids, next, nil
}

func (s *PgvectorStore) SetEmailsAllowed(ctx context.Context, chunkIDs []string, emails []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE chunks SET emails_allowed = $2 WHERE id = ANY($1::uuid[])`,
		chunkIDs, emptyIfNil(emails))
	return err
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

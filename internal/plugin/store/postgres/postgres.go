package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/config"
	"github.com/corval/docqa-service/internal/model"
	registrymigrate "github.com/corval/docqa-service/internal/registry/migrate"
	registrystore "github.com/corval/docqa-service/internal/registry/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	storage_path   TEXT NOT NULL DEFAULT '',
	owner_email    TEXT NOT NULL DEFAULT '',
	roles_allowed  TEXT[] NOT NULL DEFAULT '{}',
	projects       TEXT[] NOT NULL DEFAULT '{}',
	emails_allowed TEXT[] NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS access_requests (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	doc_id          TEXT NOT NULL,
	requestor_email TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending'
	                CHECK (status IN ('pending', 'approve', 'deny')),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	decided_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS access_requests_doc_id_idx ON access_requests (doc_id);
`

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.DBURL == "" {
				return nil, fmt.Errorf("postgres: DOCQA_SERVICE_DB_URL is required")
			}
			poolCfg, err := pgxpool.ParseConfig(cfg.DBURL)
			if err != nil {
				return nil, fmt.Errorf("postgres: parse db url: %w", err)
			}
			poolCfg.MaxConns = int32(cfg.DBMaxConns)
			pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
			if err != nil {
				return nil, fmt.Errorf("postgres: connect: %w", err)
			}
			return &Store{pool: pool}, nil
		},
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &migrator{}})
}

type migrator struct{}

func (m *migrator) Name() string { return "postgres-schema" }
func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DBURL == "" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("postgres migrate: connect: %w", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres migrate: apply schema: %w", err)
	}
	return nil
}

// Store implements registrystore.DocumentStore on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

const documentColumns = `id, title, storage_path, owner_email, roles_allowed, projects, emails_allowed, created_at, updated_at`

func scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.Title, &d.StoragePath, &d.OwnerEmail,
		&d.RolesAllowed, &d.Projects, &d.EmailsAllowed, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) UpsertDocument(ctx context.Context, doc model.Document) (*model.Document, error) {
	if doc.ID == "" {
		return nil, &registrystore.ValidationError{Field: "id", Message: "must not be empty"}
	}
	// Updates refresh title/path only; ACL sets and owner survive re-ingestion.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, title, storage_path, owner_email, roles_allowed, projects, emails_allowed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title        = EXCLUDED.title,
			storage_path = EXCLUDED.storage_path,
			updated_at   = now()
		RETURNING `+documentColumns,
		doc.ID, doc.Title, doc.StoragePath, doc.OwnerEmail,
		emptyIfNil(doc.RolesAllowed), emptyIfNil(doc.Projects), emptyIfNil(doc.EmailsAllowed))
	return scanDocument(row)
}

func (s *Store) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &registrystore.NotFoundError{Resource: "document", ID: id}
	}
	return doc, err
}

func (s *Store) GetDocuments(ctx context.Context, ids []string) ([]model.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *Store) AppendEmailAllowed(ctx context.Context, docID, email string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE documents SET
			emails_allowed = CASE
				WHEN $2 = ANY(emails_allowed) THEN emails_allowed
				ELSE array_append(emails_allowed, $2)
			END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+documentColumns, docID, email)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &registrystore.NotFoundError{Resource: "document", ID: docID}
	}
	return doc, err
}

func (s *Store) CreateAccessRequest(ctx context.Context, docID, requestorEmail string) (*model.AccessRequest, error) {
	if docID == "" {
		return nil, &registrystore.ValidationError{Field: "docId", Message: "must not be empty"}
	}
	if requestorEmail == "" {
		return nil, &registrystore.ValidationError{Field: "requestorEmail", Message: "must not be empty"}
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO access_requests (doc_id, requestor_email)
		VALUES ($1, $2)
		RETURNING id, doc_id, requestor_email, status, created_at, decided_at`,
		docID, requestorEmail)
	return scanAccessRequest(row)
}

func (s *Store) GetAccessRequest(ctx context.Context, id string) (*model.AccessRequest, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, doc_id, requestor_email, status, created_at, decided_at
		FROM access_requests WHERE id = $1`, id)
	ar, err := scanAccessRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &registrystore.NotFoundError{Resource: "access request", ID: id}
	}
	return ar, err
}

func (s *Store) DecideAccessRequest(ctx context.Context, id, status string, decidedAt time.Time) (*model.AccessRequest, error) {
	// Only a pending request transitions; re-deciding an already decided
	// request leaves it unchanged so retries are safe.
	tag, err := s.pool.Exec(ctx, `
		UPDATE access_requests SET status = $2, decided_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, status, decidedAt)
	if err != nil {
		return nil, err
	}
	ar, err := s.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 && ar.Status != status {
		return nil, &registrystore.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("request already decided: %s", ar.Status),
		}
	}
	return ar, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func scanAccessRequest(row pgx.Row) (*model.AccessRequest, error) {
	var ar model.AccessRequest
	err := row.Scan(&ar.ID, &ar.DocID, &ar.RequestorEmail, &ar.Status, &ar.CreatedAt, &ar.DecidedAt)
	if err != nil {
		return nil, err
	}
	return &ar, nil
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

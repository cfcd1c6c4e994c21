package ingest

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/config"
	"github.com/corval/docqa-service/internal/model"
	registryembed "github.com/corval/docqa-service/internal/registry/embed"
	registryfilestore "github.com/corval/docqa-service/internal/registry/filestore"
	registrymigrate "github.com/corval/docqa-service/internal/registry/migrate"
	registrystore "github.com/corval/docqa-service/internal/registry/store"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
	"github.com/corval/docqa-service/internal/security"
	"github.com/corval/docqa-service/internal/service"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	_ "github.com/corval/docqa-service/internal/plugin/embed/openai"
	_ "github.com/corval/docqa-service/internal/plugin/extract/html"
	_ "github.com/corval/docqa-service/internal/plugin/extract/plain"
	_ "github.com/corval/docqa-service/internal/plugin/filestore/dropbox"
	_ "github.com/corval/docqa-service/internal/plugin/store/postgres"
	_ "github.com/corval/docqa-service/internal/plugin/vector/pgvector"
	_ "github.com/corval/docqa-service/internal/plugin/vector/qdrant"
)

// Command returns the ingest sub-command, a one-shot bulk scan of the file
// provider for initial indexing or re-indexing.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "ingest",
		Usage: "Scan the file provider and index every supported file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "db-url",
				Sources:     cli.EnvVars("DOCQA_SERVICE_DB_URL"),
				Destination: &cfg.DBURL,
				Usage:       "Postgres connection URL",
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "vector-kind",
				Sources:     cli.EnvVars("DOCQA_SERVICE_VECTOR_KIND"),
				Destination: &cfg.VectorType,
				Value:       cfg.VectorType,
				Usage:       "Vector store backend (qdrant|pgvector)",
			},
			&cli.StringFlag{
				Name:        "qdrant-host",
				Sources:     cli.EnvVars("DOCQA_SERVICE_QDRANT_HOST"),
				Destination: &cfg.QdrantHost,
				Value:       cfg.QdrantHost,
				Usage:       "Qdrant host",
			},
			&cli.StringFlag{
				Name:        "openai-api-key",
				Sources:     cli.EnvVars("DOCQA_SERVICE_OPENAI_API_KEY", "OPENAI_API_KEY"),
				Destination: &cfg.OpenAIAPIKey,
				Usage:       "OpenAI API key",
			},
			&cli.StringFlag{
				Name:        "dropbox-access-token",
				Sources:     cli.EnvVars("DOCQA_SERVICE_DROPBOX_ACCESS_TOKEN"),
				Destination: &cfg.DropboxAccessToken,
				Usage:       "Dropbox API access token",
			},
			&cli.StringFlag{
				Name:        "dropbox-root-path",
				Sources:     cli.EnvVars("DOCQA_SERVICE_DROPBOX_ROOT_PATH"),
				Destination: &cfg.DropboxRootPath,
				Usage:       "Dropbox folder to scan (empty = account root)",
			},
			&cli.IntFlag{
				Name:        "chunk-size",
				Sources:     cli.EnvVars("DOCQA_SERVICE_CHUNK_SIZE"),
				Destination: &cfg.ChunkSize,
				Value:       cfg.ChunkSize,
				Usage:       "Characters per chunk",
			},
			&cli.IntFlag{
				Name:        "ingest-batch-size",
				Sources:     cli.EnvVars("DOCQA_SERVICE_INGEST_BATCH_SIZE"),
				Destination: &cfg.IngestBatchSize,
				Value:       cfg.IngestBatchSize,
				Usage:       "Chunks per embedding request and vector upsert",
			},
			&cli.FloatFlag{
				Name:        "embedding-rate-limit",
				Sources:     cli.EnvVars("DOCQA_SERVICE_EMBEDDING_RATE_LIMIT"),
				Destination: &cfg.EmbedRateLimit,
				Value:       cfg.EmbedRateLimit,
				Usage:       "Embedding requests per second (0 = unlimited)",
			},
			&cli.StringFlag{
				Name:        "fallback-owner-email",
				Sources:     cli.EnvVars("DOCQA_SERVICE_FALLBACK_OWNER_EMAIL"),
				Destination: &cfg.FallbackOwnerEmail,
				Value:       cfg.FallbackOwnerEmail,
				Usage:       "Owner recorded on documents without an inferable owner",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(config.WithContext(ctx, &cfg), &cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	security.InitMetrics(nil)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	storeLoader, err := registrystore.Select("postgres")
	if err != nil {
		return err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	embedLoader, err := registryembed.Select(cfg.EmbedType)
	if err != nil {
		return err
	}
	embedder, err := embedLoader(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	vectorLoader, err := registryvector.Select(cfg.VectorType)
	if err != nil {
		return err
	}
	vectorStore, err := vectorLoader(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	filesLoader, err := registryfilestore.Select("dropbox")
	if err != nil {
		return err
	}
	files, err := filesLoader(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize file store: %w", err)
	}

	ingestor := service.NewIngestor(files, store, embedder, vectorStore, cfg.ChunkSize, cfg.IngestBatchSize, cfg.FallbackOwnerEmail)

	// List everything up front so the bar has a total.
	var all []model.FileInfo
	cursor := ""
	for {
		page, next, err := files.ListPage(ctx, cursor)
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		cursor = next
	}
	if len(all) == 0 {
		log.Info("Nothing to ingest")
		return nil
	}

	bar := progressbar.NewOptions(len(all),
		progressbar.OptionSetDescription("Indexing files"),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	ok, failed := 0, 0
	for _, f := range all {
		if err := ingestor.IngestFile(ctx, f); err != nil {
			failed++
			log.Error("Failed to ingest file", "path", f.Path, "err", err)
		} else {
			ok++
		}
		_ = bar.Add(1)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	fmt.Println()
	log.Info("Scan complete", "ok", ok, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to ingest", failed, len(all))
	}
	return nil
}

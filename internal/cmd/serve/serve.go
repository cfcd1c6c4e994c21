package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/config"
	registryembed "github.com/corval/docqa-service/internal/registry/embed"
	registrynotify "github.com/corval/docqa-service/internal/registry/notify"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/corval/docqa-service/internal/plugin/embed/openai"
	_ "github.com/corval/docqa-service/internal/plugin/extract/html"
	_ "github.com/corval/docqa-service/internal/plugin/extract/plain"
	_ "github.com/corval/docqa-service/internal/plugin/filestore/dropbox"
	_ "github.com/corval/docqa-service/internal/plugin/llm/openai"
	_ "github.com/corval/docqa-service/internal/plugin/notify/log"
	_ "github.com/corval/docqa-service/internal/plugin/notify/resend"
	_ "github.com/corval/docqa-service/internal/plugin/route/system"
	_ "github.com/corval/docqa-service/internal/plugin/store/postgres"
	_ "github.com/corval/docqa-service/internal/plugin/vector/pgvector"
	_ "github.com/corval/docqa-service/internal/plugin/vector/qdrant"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the document QA HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Security mode (prod|testing); testing accepts X-User-* identity headers",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS handling",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed CORS origins (empty = any)",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for in-flight requests on shutdown",
		},
		&cli.StringFlag{
			Name:        "public-base-url",
			Category:    "Server:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_PUBLIC_BASE_URL"),
			Destination: &cfg.PublicBaseURL,
			Usage:       "External base URL used in notification links",
		},

		// ── Database ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Postgres connection URL",
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "db-max-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_DB_MAX_CONNS"),
			Destination: &cfg.DBMaxConns,
			Value:       cfg.DBMaxConns,
			Usage:       "Maximum pooled database connections",
		},

		// ── Vector Store ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "vector-kind",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_VECTOR_KIND"),
			Destination: &cfg.VectorType,
			Value:       cfg.VectorType,
			Usage:       "Vector store (" + strings.Join(registryvector.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "qdrant-host",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantHost,
			Usage:       "Qdrant host",
		},
		&cli.IntFlag{
			Name:        "qdrant-port",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_QDRANT_PORT"),
			Destination: &cfg.QdrantPort,
			Value:       cfg.QdrantPort,
			Usage:       "Qdrant gRPC port",
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},
		&cli.StringFlag{
			Name:        "qdrant-collection",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_QDRANT_COLLECTION"),
			Destination: &cfg.QdrantCollectionName,
			Usage:       "Qdrant collection name; derived from the embedding model when unset",
		},

		// ── Embedding ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_EMBEDDING_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (" + strings.Join(registryembed.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "OpenAI API key",
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
			Usage:       "OpenAI-compatible API base URL",
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_EMBEDDING_MODEL"),
			Destination: &cfg.OpenAIModelName,
			Value:       cfg.OpenAIModelName,
			Usage:       "Embedding model name",
		},
		&cli.IntFlag{
			Name:        "embedding-dimensions",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_EMBEDDING_DIMENSIONS"),
			Destination: &cfg.OpenAIDimensions,
			Value:       cfg.OpenAIDimensions,
			Usage:       "Embedding vector dimension",
		},
		&cli.FloatFlag{
			Name:        "embedding-rate-limit",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_EMBEDDING_RATE_LIMIT"),
			Destination: &cfg.EmbedRateLimit,
			Value:       cfg.EmbedRateLimit,
			Usage:       "Embedding requests per second (0 = unlimited)",
		},

		// ── Chat ──────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "chat-model",
			Category:    "Chat:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_CHAT_MODEL"),
			Destination: &cfg.ChatModelName,
			Value:       cfg.ChatModelName,
			Usage:       "Chat completion model name",
		},
		&cli.IntFlag{
			Name:        "search-limit",
			Category:    "Chat:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_SEARCH_LIMIT"),
			Destination: &cfg.SearchLimit,
			Value:       cfg.SearchLimit,
			Usage:       "Maximum chunks retrieved per question",
		},
		&cli.FloatFlag{
			Name:        "score-threshold",
			Category:    "Chat:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_SCORE_THRESHOLD"),
			Destination: &cfg.ScoreThreshold,
			Value:       cfg.ScoreThreshold,
			Usage:       "Minimum similarity score for retrieved chunks",
		},

		// ── Ingestion ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "dropbox-access-token",
			Category:    "Ingestion:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_DROPBOX_ACCESS_TOKEN"),
			Destination: &cfg.DropboxAccessToken,
			Usage:       "Dropbox API access token",
		},
		&cli.StringFlag{
			Name:        "dropbox-root-path",
			Category:    "Ingestion:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_DROPBOX_ROOT_PATH"),
			Destination: &cfg.DropboxRootPath,
			Usage:       "Dropbox folder to scan (empty = account root)",
		},
		&cli.StringFlag{
			Name:        "ingest-webhook-secret",
			Category:    "Ingestion:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_INGEST_WEBHOOK_SECRET"),
			Destination: &cfg.IngestWebhookSecret,
			Usage:       "HMAC shared secret for the ingestion webhook",
		},
		&cli.IntFlag{
			Name:        "chunk-size",
			Category:    "Ingestion:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_CHUNK_SIZE"),
			Destination: &cfg.ChunkSize,
			Value:       cfg.ChunkSize,
			Usage:       "Characters per chunk",
		},
		&cli.IntFlag{
			Name:        "ingest-batch-size",
			Category:    "Ingestion:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_INGEST_BATCH_SIZE"),
			Destination: &cfg.IngestBatchSize,
			Value:       cfg.IngestBatchSize,
			Usage:       "Chunks per embedding request and vector upsert",
		},
		&cli.IntFlag{
			Name:        "ingest-concurrency",
			Category:    "Ingestion:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_INGEST_CONCURRENCY"),
			Destination: &cfg.IngestConcurrency,
			Value:       cfg.IngestConcurrency,
			Usage:       "Concurrent files per scan",
		},
		&cli.IntFlag{
			Name:        "ingest-queue-depth",
			Category:    "Ingestion:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_INGEST_QUEUE_DEPTH"),
			Destination: &cfg.IngestQueueDepth,
			Value:       cfg.IngestQueueDepth,
			Usage:       "Queued scans before webhook notifications are dropped",
		},
		&cli.StringFlag{
			Name:        "fallback-owner-email",
			Category:    "Ingestion:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_FALLBACK_OWNER_EMAIL"),
			Destination: &cfg.FallbackOwnerEmail,
			Value:       cfg.FallbackOwnerEmail,
			Usage:       "Owner recorded on documents without an inferable owner",
		},

		// ── Notifications ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "notify-kind",
			Category:    "Notifications:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_NOTIFY_KIND"),
			Destination: &cfg.NotifyType,
			Value:       cfg.NotifyType,
			Usage:       "Notifier (" + strings.Join(registrynotify.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "resend-api-key",
			Category:    "Notifications:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_RESEND_API_KEY"),
			Destination: &cfg.ResendAPIKey,
			Usage:       "Resend API key",
		},
		&cli.StringFlag{
			Name:        "notify-from-email",
			Category:    "Notifications:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_NOTIFY_FROM_EMAIL"),
			Destination: &cfg.NotifyFromEmail,
			Usage:       "From address on outgoing notifications",
		},
		&cli.StringFlag{
			Name:        "notify-admin-email",
			Category:    "Notifications:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_NOTIFY_ADMIN_EMAIL"),
			Destination: &cfg.NotifyAdminEmail,
			Usage:       "Admin address copied on access-request notifications",
		},

		// ── Authorization ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "oidc-issuer",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_OIDC_ISSUER"),
			Destination: &cfg.OIDCIssuer,
			Usage:       "OIDC issuer URL (enables OIDC auth)",
		},
		&cli.StringFlag{
			Name:        "oidc-discovery-url",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_OIDC_DISCOVERY_URL"),
			Destination: &cfg.OIDCDiscoveryURL,
			Usage:       "OIDC discovery URL (internal URL when issuer is not directly reachable)",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("DOCQA_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=docqa-service",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

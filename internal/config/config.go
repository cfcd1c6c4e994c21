package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ListenerConfig holds the network settings for a single listener.
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the docqa service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode, identity headers (X-User-Email, X-User-Roles,
	// X-User-Projects) are accepted in place of a bearer token.
	Mode string

	// Database
	DBURL                   string
	DBMaxConns              int
	DatastoreMigrateAtStart bool

	// Vector store type: "qdrant" or "pgvector".
	VectorType           string
	VectorMigrateAtStart bool

	// Qdrant
	QdrantHost             string
	QdrantPort             int
	QdrantCollectionPrefix string
	QdrantCollectionName   string
	QdrantAPIKey           string
	QdrantUseTLS           bool
	QdrantStartupTimeout   time.Duration

	// Embedding
	EmbedType        string // "openai"
	OpenAIAPIKey     string
	OpenAIModelName  string
	OpenAIBaseURL    string
	OpenAIDimensions int
	// Embedding requests per second across the whole process. Zero disables
	// rate limiting.
	EmbedRateLimit float64

	// Chat LLM
	ChatModelName string

	// Retrieval
	SearchLimit    int
	ScoreThreshold float64

	// Ingestion
	ChunkSize int
	// Maximum texts per embedding request and points per vector upsert.
	IngestBatchSize int
	// Concurrent files in flight during a scan.
	IngestConcurrency int
	// Queued account scans before the webhook starts dropping notifications.
	IngestQueueDepth int
	// HMAC shared secret for the ingestion webhook.
	IngestWebhookSecret string
	// Owner recorded on documents whose owner cannot be inferred.
	FallbackOwnerEmail string

	// Dropbox
	DropboxAccessToken string
	DropboxRootPath    string

	// Access-grant propagation
	PropagateScrollPageSize int

	// Notifications
	NotifyType      string // "resend" or "log"
	ResendAPIKey    string
	NotifyFromEmail string
	NotifyAdminEmail string
	// External base URL used to build approve/deny links in notifications.
	PublicBaseURL string

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics.
	MetricsLabels string

	// Server
	Listener     ListenerConfig
	CORSEnabled  bool
	CORSOrigins  string
	MaxBodySize  int64
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		DBMaxConns:              25,
		DatastoreMigrateAtStart: true,
		VectorType:              "qdrant",
		VectorMigrateAtStart:    true,
		QdrantHost:              "localhost",
		QdrantPort:              6334,
		QdrantCollectionPrefix:  "docqa",
		QdrantStartupTimeout:    30 * time.Second,
		EmbedType:               "openai",
		OpenAIModelName:         "text-embedding-3-small",
		OpenAIBaseURL:           "https://api.openai.com/v1",
		OpenAIDimensions:        1536,
		ChatModelName:           "gpt-4o-mini",
		SearchLimit:             5,
		ScoreThreshold:          0.3,
		ChunkSize:               1000,
		IngestBatchSize:         200,
		IngestConcurrency:       4,
		IngestQueueDepth:        64,
		FallbackOwnerEmail:      "unknown@localhost",
		PropagateScrollPageSize: 1000,
		NotifyType:              "log",
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		MaxBodySize:  1 * 1024 * 1024,
		DrainTimeout: 30,
	}
}

// QdrantAddress returns the host:port gRPC address for Qdrant.
func (c *Config) QdrantAddress() string {
	return fmt.Sprintf("%s:%d", c.QdrantHost, c.QdrantPort)
}

// CollectionName returns the configured Qdrant collection name, or derives
// one from the prefix, embedding model and dimension so that switching
// models never reuses a collection with the wrong vector size.
func (c *Config) CollectionName() string {
	if name := strings.TrimSpace(c.QdrantCollectionName); name != "" {
		return name
	}
	prefix := strings.TrimSpace(c.QdrantCollectionPrefix)
	if prefix == "" {
		prefix = "docqa"
	}
	model := strings.NewReplacer("/", "-", " ", "-", "_", "-").Replace(strings.ToLower(c.OpenAIModelName))
	return fmt.Sprintf("%s_%s-%d", prefix, model, c.OpenAIDimensions)
}

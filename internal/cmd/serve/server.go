package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/config"
	"github.com/corval/docqa-service/internal/plugin/route/access"
	"github.com/corval/docqa-service/internal/plugin/route/chat"
	"github.com/corval/docqa-service/internal/plugin/route/docs"
	"github.com/corval/docqa-service/internal/plugin/route/ingest"
	routesystem "github.com/corval/docqa-service/internal/plugin/route/system"
	storemetrics "github.com/corval/docqa-service/internal/plugin/store/metrics"
	registryembed "github.com/corval/docqa-service/internal/registry/embed"
	registryfilestore "github.com/corval/docqa-service/internal/registry/filestore"
	registryllm "github.com/corval/docqa-service/internal/registry/llm"
	registrymigrate "github.com/corval/docqa-service/internal/registry/migrate"
	registrynotify "github.com/corval/docqa-service/internal/registry/notify"
	registryroute "github.com/corval/docqa-service/internal/registry/route"
	registrystore "github.com/corval/docqa-service/internal/registry/store"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
	"github.com/corval/docqa-service/internal/security"
	"github.com/corval/docqa-service/internal/service"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config *config.Config
	Store  registrystore.DocumentStore
	Router *gin.Engine
	Port   int

	httpServer *http.Server
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// StartServer initializes all subsystems and starts the HTTP server.
// Use cfg.Listener.Port=0 for a random port; the actual port is Server.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting docqa service",
		"httpPort", cfg.Listener.Port,
		"vector", cfg.VectorType,
		"embedding", cfg.EmbedType,
		"chatModel", cfg.ChatModelName,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize store
	storeLoader, err := registrystore.Select("postgres")
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	// Initialize embedder, vector store and chat model.
	embedLoader, err := registryembed.Select(cfg.EmbedType)
	if err != nil {
		return nil, err
	}
	embedder, err := embedLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	vectorLoader, err := registryvector.Select(cfg.VectorType)
	if err != nil {
		return nil, err
	}
	vectorStore, err := vectorLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	llmLoader, err := registryllm.Select("openai")
	if err != nil {
		return nil, err
	}
	chatModel, err := llmLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}

	// Initialize file store and notifier.
	filesLoader, err := registryfilestore.Select("dropbox")
	if err != nil {
		return nil, err
	}
	files, err := filesLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}
	notifyLoader, err := registrynotify.Select(cfg.NotifyType)
	if err != nil {
		return nil, err
	}
	notifier, err := notifyLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount system route plugins (health, ready, metrics).
	for _, loader := range registryroute.ManagementRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Assemble the question-answering and ingestion pipelines.
	retriever := service.NewDualRetriever(embedder, vectorStore, cfg.SearchLimit, cfg.ScoreThreshold)
	assembler, err := service.NewContextAssembler(store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize context assembler: %w", err)
	}
	orchestrator := service.NewChatOrchestrator(retriever, assembler, chatModel)
	ingestor := service.NewIngestor(files, store, embedder, vectorStore, cfg.ChunkSize, cfg.IngestBatchSize, cfg.FallbackOwnerEmail)
	scheduler := service.NewScanScheduler(ingestor, cfg.IngestQueueDepth, cfg.IngestConcurrency)
	propagator := service.NewAccessGrantPropagator(store, vectorStore, cfg.PropagateScrollPageSize)

	// Create shared token resolver and auth middleware.
	resolver := security.NewTokenResolver(cfg)
	auth := security.AuthMiddleware(resolver)

	// Mount API routes
	chat.MountRoutes(router, orchestrator, auth)
	docs.MountRoutes(router, store, files, auth)
	access.MountRoutes(router, store, propagator, notifier, cfg, auth)
	ingest.MountRoutes(router, scheduler, cfg.IngestWebhookSecret)

	// Start the background scan worker.
	go scheduler.Run(ctx)

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Listener.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
	}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "err", err)
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	log.Info("Server listening", "port", port)

	routesystem.MarkReady()
	return &Server{
		Config:     cfg,
		Store:      store,
		Router:     router,
		Port:       port,
		httpServer: httpServer,
	}, nil
}

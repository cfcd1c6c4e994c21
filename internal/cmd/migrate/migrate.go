package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/config"
	registrymigrate "github.com/corval/docqa-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Import plugins to trigger init() registration of their migrators.
	// Store and vector plugins register migrators alongside their primary interface.
	_ "github.com/corval/docqa-service/internal/plugin/store/postgres"
	_ "github.com/corval/docqa-service/internal/plugin/vector/pgvector"
	_ "github.com/corval/docqa-service/internal/plugin/vector/qdrant"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database and vector store migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("DOCQA_SERVICE_DB_URL"),
				Usage:    "Postgres connection URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "vector-kind",
				Sources: cli.EnvVars("DOCQA_SERVICE_VECTOR_KIND"),
				Usage:   "Vector store backend (qdrant|pgvector)",
				Value:   "qdrant",
			},
			&cli.StringFlag{
				Name:    "qdrant-host",
				Sources: cli.EnvVars("DOCQA_SERVICE_QDRANT_HOST"),
				Usage:   "Qdrant host",
				Value:   "localhost",
			},
			&cli.IntFlag{
				Name:    "qdrant-port",
				Sources: cli.EnvVars("DOCQA_SERVICE_QDRANT_PORT"),
				Usage:   "Qdrant gRPC port",
				Value:   6334,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.VectorType = cmd.String("vector-kind")
			cfg.QdrantHost = cmd.String("qdrant-host")
			cfg.QdrantPort = cmd.Int("qdrant-port")
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}

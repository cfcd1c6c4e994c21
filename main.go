package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/cmd/ingest"
	"github.com/corval/docqa-service/internal/cmd/migrate"
	"github.com/corval/docqa-service/internal/cmd/serve"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "docqa-service",
		Usage: "Question answering over access-controlled documents",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			ingest.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/internal/app"
	natsclient "github.com/clarify-edu/clarify-api/internal/nats"
)

var (
	indexDurable string

	indexCmd = &cobra.Command{
		Use:   "index",
		Short: "Consume thread events and keep embeddings current until interrupted",
		RunE:  runIndex,
	}
)

func init() {
	indexCmd.Flags().StringVar(&indexDurable, "durable", natsclient.IndexerConsumer, "JetStream durable consumer name")
}

func runIndex(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if a.Streams == nil {
			return errors.New("index needs NATS (set nats.enabled)")
		}
		if a.Indexer == nil {
			return errors.New("index needs an embedding provider (set OPENAI_API_KEY)")
		}

		a.Logger.Info("indexer consuming thread events", zap.String("durable", indexDurable))
		return a.Streams.ConsumeThreadEvents(ctx, indexDurable, a.Indexer.HandleEvent)
	})
}

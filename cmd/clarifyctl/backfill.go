package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clarify-edu/clarify-api/internal/app"
)

var (
	backfillBatch       int
	backfillConcurrency int

	backfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "Embed every thread that has no embedding yet",
		RunE:  runBackfill,
	}
)

func init() {
	backfillCmd.Flags().IntVar(&backfillBatch, "batch", 100, "threads fetched per round")
	backfillCmd.Flags().IntVar(&backfillConcurrency, "concurrency", 4, "embedding calls in flight")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if a.Indexer == nil {
			return errors.New("backfill needs an embedding provider (set OPENAI_API_KEY)")
		}

		n, err := a.Indexer.Backfill(ctx, backfillBatch, backfillConcurrency)
		fmt.Fprintf(cmd.OutOrStdout(), "embedded %d threads\n", n)
		return err
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clarify-edu/clarify-api/internal/llm"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/store"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// Indexer keeps thread embeddings current.
type Indexer struct {
	threads  store.ThreadStore
	embedder llm.Embedder
	logger   *logger.Logger
}

// NewIndexer creates an indexer.
func NewIndexer(threads store.ThreadStore, embedder llm.Embedder, log *logger.Logger) *Indexer {
	return &Indexer{threads: threads, embedder: embedder, logger: log}
}

// HandleEvent re-embeds the thread named by a stale event. Events for
// threads that no longer exist are dropped.
func (ix *Indexer) HandleEvent(ctx context.Context, event *model.ThreadEvent) error {
	if event.Type == model.EventThreadDeleted || !event.EmbeddingStale {
		return nil
	}

	thread, err := ix.threads.GetThread(ctx, event.ThreadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get thread %s: %w", event.ThreadID, err)
	}
	// A later write or the backfill got there first.
	if thread.HasEmbedding() {
		return nil
	}

	return ix.EmbedThread(ctx, thread)
}

// EmbedThread computes and stores the thread's embedding.
func (ix *Indexer) EmbedThread(ctx context.Context, thread *model.Thread) error {
	emb, err := ix.embedder.Embed(ctx, thread.EmbeddingText())
	if err != nil {
		return fmt.Errorf("embed thread %s: %w", thread.ID, err)
	}
	if len(emb) == 0 {
		return fmt.Errorf("embed thread %s: %w", thread.ID, llm.ErrEmptyResponse)
	}
	if err := ix.threads.SetThreadEmbedding(ctx, thread.ID, emb); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("store embedding for %s: %w", thread.ID, err)
	}

	ix.logger.Debug("thread embedded", zap.String("thread_id", thread.ID))
	return nil
}

// Backfill embeds every thread that lacks an embedding, batch at a time,
// with at most concurrency embedder calls in flight. It stops at the first
// failure and returns how many threads were embedded.
func (ix *Indexer) Backfill(ctx context.Context, batch, concurrency int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var done atomic.Int64
	for {
		threads, err := ix.threads.ListThreadsMissingEmbedding(ctx, batch)
		if err != nil {
			return int(done.Load()), fmt.Errorf("list threads missing embedding: %w", err)
		}
		if len(threads) == 0 {
			return int(done.Load()), nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i := range threads {
			t := &threads[i]
			g.Go(func() error {
				if err := ix.EmbedThread(gctx, t); err != nil {
					return err
				}
				done.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return int(done.Load()), err
		}

		ix.logger.Info("backfill batch complete",
			zap.Int("batch", len(threads)),
			zap.Int64("total", done.Load()))
	}
}

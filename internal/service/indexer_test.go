package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarify-edu/clarify-api/internal/model"
)

func TestIndexer_HandleEvent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	addThread(t, st, "pending", "Recursion", nil, time.Now())
	addThread(t, st, "done", "Pointers", pointerVec, time.Now())

	tests := []struct {
		name      string
		event     model.ThreadEvent
		wantCalls int
	}{
		{"stale thread", model.ThreadEvent{Type: model.EventThreadCreated, ThreadID: "pending", EmbeddingStale: true}, 1},
		{"not stale", model.ThreadEvent{Type: model.EventThreadUpdated, ThreadID: "pending"}, 0},
		{"deleted", model.ThreadEvent{Type: model.EventThreadDeleted, ThreadID: "pending", EmbeddingStale: true}, 0},
		{"already embedded", model.ThreadEvent{Type: model.EventThreadUpdated, ThreadID: "done", EmbeddingStale: true}, 0},
		{"missing thread", model.ThreadEvent{Type: model.EventThreadCreated, ThreadID: "gone", EmbeddingStale: true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &keywordEmbedder{}
			ix := NewIndexer(st, emb, nopLogger())

			require.NoError(t, ix.HandleEvent(ctx, &tt.event))
			assert.Equal(t, tt.wantCalls, emb.calls)
		})
	}

	thread, err := st.GetThread(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, recursionVec, thread.Embedding)
}

func TestIndexer_HandleEventEmbedFailure(t *testing.T) {
	st := newTestStore(t)
	addThread(t, st, "pending", "Recursion", nil, time.Now())
	ix := NewIndexer(st, &keywordEmbedder{err: errBoom}, nopLogger())

	err := ix.HandleEvent(context.Background(), &model.ThreadEvent{
		Type: model.EventThreadCreated, ThreadID: "pending", EmbeddingStale: true,
	})
	assert.ErrorIs(t, err, errBoom, "returned so the message is redelivered")
}

func TestIndexer_Backfill(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	base := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		addThread(t, st, fmt.Sprintf("t%d", i), "Exam prep", nil, base.Add(time.Duration(i)*time.Minute))
	}
	addThread(t, st, "embedded", "Pointers", pointerVec, base)

	emb := &keywordEmbedder{}
	ix := NewIndexer(st, emb, nopLogger())

	n, err := ix.Backfill(ctx, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 7, emb.calls)

	missing, err := st.ListThreadsMissingEmbedding(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, missing)

	n, err = ix.Backfill(ctx, 3, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndexer_BackfillStopsOnError(t *testing.T) {
	st := newTestStore(t)
	addThread(t, st, "t1", "Exam prep", nil, time.Now())
	ix := NewIndexer(st, &keywordEmbedder{err: errBoom}, nopLogger())

	n, err := ix.Backfill(context.Background(), 0, 0)
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, n)
}

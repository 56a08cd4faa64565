package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/internal/llm"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/store"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// ThreadService handles thread operations.
type ThreadService struct {
	store     store.Store
	embedder  llm.Embedder
	publisher Publisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewThreadService creates a thread service. embedder and publisher may be
// nil; threads are then stored without embeddings and no events go out.
func NewThreadService(st store.Store, embedder llm.Embedder, publisher Publisher, log *logger.Logger) *ThreadService {
	return &ThreadService{
		store:     st,
		embedder:  embedder,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// List returns a course's threads, newest first.
func (s *ThreadService) List(ctx context.Context, courseID string) ([]model.Thread, error) {
	threads, err := s.store.ListThreads(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	if threads == nil {
		threads = []model.Thread{}
	}
	return threads, nil
}

// Create posts a thread. The author must be enrolled in the course and is
// named OP on the thread.
func (s *ThreadService) Create(ctx context.Context, user User, courseID string, req *model.CreateThreadRequest) (*model.Thread, error) {
	enrollment, err := requireEnrollment(ctx, s.store, user, courseID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	thread := &model.Thread{
		ID:          newID(),
		CourseID:    courseID,
		Title:       req.Title,
		Content:     req.Content,
		Tags:        req.Tags,
		CreatorID:   user.ID,
		CreatorRole: enrollment.Role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	thread.Embedding = s.embed(ctx, thread)

	if err := s.store.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	// The thread stands without the name; the author's first comment
	// claims OP again.
	if err := s.store.SetAnonymousName(ctx, thread.ID, user.ID, model.OPName); err != nil {
		s.logger.Warn("failed to name thread author",
			zap.String("thread_id", thread.ID),
			zap.Error(err))
	} else {
		thread.AnonymousNames = []string{model.OPName}
	}

	s.logger.Info("thread created",
		zap.String("thread_id", thread.ID),
		zap.String("course_id", courseID),
		zap.Bool("embedded", thread.HasEmbedding()),
	)

	s.publish(ctx, model.EventThreadCreated, thread)
	return thread, nil
}

// Update edits a thread. Only its author may edit it.
func (s *ThreadService) Update(ctx context.Context, user User, threadID string, req *model.UpdateThreadRequest) (*model.Thread, error) {
	thread, err := s.owned(ctx, user, threadID)
	if err != nil {
		return nil, err
	}

	thread.Title = req.Title
	thread.Content = req.Content
	thread.Tags = req.Tags
	thread.UpdatedAt = s.now().UTC()

	// A failed embed clears the old vector; the indexer fills it in.
	thread.Embedding = s.embed(ctx, thread)

	if err := s.store.UpdateThread(ctx, thread); err != nil {
		return nil, notFound(err, "thread")
	}

	s.publish(ctx, model.EventThreadUpdated, thread)
	return thread, nil
}

// Delete removes a thread with its comments, names and summary. Only its
// author may delete it.
func (s *ThreadService) Delete(ctx context.Context, user User, threadID string) error {
	thread, err := s.owned(ctx, user, threadID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteThread(ctx, threadID); err != nil {
		return notFound(err, "thread")
	}

	s.logger.Info("thread deleted", zap.String("thread_id", threadID))
	s.publish(ctx, model.EventThreadDeleted, thread)
	return nil
}

func (s *ThreadService) owned(ctx context.Context, user User, threadID string) (*model.Thread, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, notFound(err, "thread")
	}
	if thread.CreatorID != user.ID {
		return nil, ErrForbidden
	}
	return thread, nil
}

// embed returns nil when no embedder is configured or the call fails.
func (s *ThreadService) embed(ctx context.Context, t *model.Thread) []float32 {
	if s.embedder == nil {
		return nil
	}
	emb, err := s.embedder.Embed(ctx, t.EmbeddingText())
	if err != nil {
		s.logger.Warn("embedding failed, thread left for the indexer",
			zap.String("thread_id", t.ID), zap.Error(err))
		return nil
	}
	return emb
}

func (s *ThreadService) publish(ctx context.Context, typ model.EventType, t *model.Thread) {
	if s.publisher == nil {
		return
	}
	event := &model.ThreadEvent{
		ID:             newID(),
		Type:           typ,
		ThreadID:       t.ID,
		CourseID:       t.CourseID,
		EmbeddingStale: typ != model.EventThreadDeleted && !t.HasEmbedding(),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.publisher.PublishThreadEvent(ctx, event); err != nil {
		// The indexer backfill picks up anything a lost event would have.
		s.logger.Error("failed to publish thread event",
			zap.String("thread_id", t.ID),
			zap.String("type", string(typ)),
			zap.Error(err))
	}
}

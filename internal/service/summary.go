package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/internal/llm"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/store"
	"github.com/clarify-edu/clarify-api/pkg/logger"
	"github.com/clarify-edu/clarify-api/pkg/metrics"
)

const (
	summarySystemPrompt = "You are an educational assistant that summarizes academic discussions. " +
		"Focus on key points, questions, and answers. Highlight important concepts and conclusions."

	summaryUserPrompt = "Please summarize the following educational thread and its comments. " +
		"Extract the main question, key insights, and important conclusions:\n\n"
)

// SummaryConfig tunes summary generation.
type SummaryConfig struct {
	Model     string
	MaxTokens int
	MaxAge    time.Duration
}

// SummaryService produces AI summaries of threads and caches them.
type SummaryService struct {
	store  store.Store
	client llm.Client
	cfg    SummaryConfig
	logger *logger.Logger
	now    func() time.Time
}

// NewSummaryService creates a summary service. client may be nil, in which
// case only cached summaries are served.
func NewSummaryService(st store.Store, client llm.Client, cfg SummaryConfig, log *logger.Logger) *SummaryService {
	return &SummaryService{
		store:  st,
		client: client,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

// Summarize returns the thread's summary. A stored summary is reused while
// it is younger than MaxAge and no comments were added or removed since.
func (s *SummaryService) Summarize(ctx context.Context, threadID string) (*model.SummaryResponse, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, notFound(err, "thread")
	}

	comments, err := s.store.ListComments(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	existing, err := s.store.GetSummary(ctx, threadID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	if s.fresh(existing, len(comments)) {
		metrics.SummariesTotal.WithLabelValues("cached").Inc()
		return &model.SummaryResponse{Summary: existing.Content, Cached: true}, nil
	}

	if s.client == nil {
		return nil, fmt.Errorf("summarize thread: %w", ErrUnavailable)
	}

	resp, err := s.client.Complete(ctx, &llm.CompletionRequest{
		Model:  s.cfg.Model,
		System: summarySystemPrompt,
		Messages: []llm.ChatMessage{
			{Role: "user", Content: summaryUserPrompt + summaryInput(thread, comments)},
		},
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		metrics.SummariesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	now := s.now().UTC()
	summary := &model.ThreadSummary{
		ThreadID:     threadID,
		Content:      resp.Content,
		CommentCount: len(comments),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveSummary(ctx, summary); err != nil {
		// The summary is still good for this caller.
		s.logger.Error("failed to store summary", zap.String("thread_id", threadID), zap.Error(err))
	}

	metrics.SummariesTotal.WithLabelValues("generated").Inc()
	return &model.SummaryResponse{Summary: resp.Content}, nil
}

func (s *SummaryService) fresh(sum *model.ThreadSummary, commentCount int) bool {
	if sum == nil {
		return false
	}
	return s.now().Sub(sum.UpdatedAt) < s.cfg.MaxAge && sum.CommentCount == commentCount
}

func summaryInput(thread *model.Thread, comments []model.Comment) string {
	parts := make([]string, 0, len(comments)+1)
	parts = append(parts, "Title: "+thread.Title+"\n\nContent: "+thread.Content)
	for _, c := range comments {
		parts = append(parts, "Comment: "+c.Content)
	}
	return strings.Join(parts, "\n\n")
}

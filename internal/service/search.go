package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/clarify-edu/clarify-api/internal/llm"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/store"
)

// SearchConfig tunes search.
type SearchConfig struct {
	Threshold float64
	Limit     int
}

// SearchService finds threads across the caller's courses.
type SearchService struct {
	store    store.Store
	embedder llm.Embedder
	cfg      SearchConfig
}

// NewSearchService creates a search service. Without an embedder only text
// search is available.
func NewSearchService(st store.Store, embedder llm.Embedder, cfg SearchConfig) *SearchService {
	return &SearchService{store: st, embedder: embedder, cfg: cfg}
}

// Search runs q. With a course the caller must be enrolled in it; without
// one, results span every course the caller is enrolled in.
func (s *SearchService) Search(ctx context.Context, user User, q model.SearchQuery) ([]model.SearchResult, error) {
	text := strings.TrimSpace(q.Query)
	if text == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidInput)
	}

	typ := q.Type
	if typ == "" {
		typ = model.SearchSemantic
	}
	if typ != model.SearchSemantic && typ != model.SearchText {
		return nil, fmt.Errorf("%w: unknown search type %q", ErrInvalidInput, q.Type)
	}

	courses, err := s.courses(ctx, user, q.CourseID)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return []model.SearchResult{}, nil
	}

	match := model.MatchQuery{
		Text:      text,
		Threshold: s.cfg.Threshold,
		Limit:     s.cfg.Limit,
		Courses:   courses,
	}

	var results []model.SearchResult
	switch typ {
	case model.SearchSemantic:
		if s.embedder == nil {
			return nil, fmt.Errorf("semantic search: %w", ErrUnavailable)
		}
		match.Embedding, err = s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		results, err = s.store.MatchThreads(ctx, match)
	case model.SearchText:
		results, err = s.store.SearchThreadsText(ctx, match)
	}
	if err != nil {
		return nil, fmt.Errorf("search threads: %w", err)
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	return results, nil
}

func (s *SearchService) courses(ctx context.Context, user User, courseID string) ([]string, error) {
	if courseID != "" {
		if _, err := requireEnrollment(ctx, s.store, user, courseID); err != nil {
			return nil, err
		}
		return []string{courseID}, nil
	}

	enrollments, err := s.store.ListEnrollments(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.CourseID)
	}
	return ids, nil
}

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/clarify-edu/clarify-api/internal/graph"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/similarity"
)

// MemoryStore keeps everything in process. It backs local development and
// tests.
type MemoryStore struct {
	mu          sync.RWMutex
	courses     map[string]*model.Course
	enrollments map[[2]string]model.Enrollment
	threads     map[string]*model.Thread
	comments    map[string]*model.Comment
	names       map[string]map[string]string // thread -> user -> name
	summaries   map[string]*model.ThreadSummary
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:     make(map[string]*model.Course),
		enrollments: make(map[[2]string]model.Enrollment),
		threads:     make(map[string]*model.Thread),
		comments:    make(map[string]*model.Comment),
		names:       make(map[string]map[string]string),
		summaries:   make(map[string]*model.ThreadSummary),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Courses

func (s *MemoryStore) CreateCourse(ctx context.Context, c *model.Course, creatorEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[c.ID]; ok {
		return ErrConflict
	}
	cp := *c
	s.courses[c.ID] = &cp

	email := strings.ToLower(creatorEmail)
	s.enrollments[[2]string{email, c.ID}] = model.Enrollment{Email: email, CourseID: c.ID, Role: model.RoleCreator}
	return nil
}

func (s *MemoryStore) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) DeleteCourse(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[id]; !ok {
		return ErrNotFound
	}
	for k := range s.enrollments {
		if k[1] == id {
			delete(s.enrollments, k)
		}
	}
	for tid, t := range s.threads {
		if t.CourseID == id {
			s.deleteThreadLocked(tid)
		}
	}
	delete(s.courses, id)
	return nil
}

// Enrollments

func (s *MemoryStore) GetEnrollment(ctx context.Context, email, courseID string) (*model.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.enrollments[[2]string{strings.ToLower(email), courseID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) ListEnrollments(ctx context.Context, email string) ([]model.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(email)
	var out []model.Enrollment
	for k, e := range s.enrollments {
		if k[0] == email {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (s *MemoryStore) AddEnrollment(ctx context.Context, e *model.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	cp.Email = strings.ToLower(cp.Email)
	s.enrollments[[2]string{cp.Email, cp.CourseID}] = cp
	return nil
}

func (s *MemoryStore) EnrollStudents(ctx context.Context, courseID string, emails []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, email := range emails {
		key := [2]string{strings.ToLower(email), courseID}
		if _, ok := s.enrollments[key]; ok {
			continue
		}
		s.enrollments[key] = model.Enrollment{Email: key[0], CourseID: courseID, Role: model.RoleStudent}
		added++
	}
	return added, nil
}

// Threads

func (s *MemoryStore) ListThreads(ctx context.Context, courseID string) ([]model.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Thread
	for _, t := range s.threads {
		if t.CourseID != courseID {
			continue
		}
		cp := copyThread(t)
		cp.Embedding = nil
		cp.CommentCount = s.countCommentsLocked(t.ID)
		cp.AnonymousNames = s.namesLocked(t.ID)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListGraphThreads(ctx context.Context, courseID string) ([]model.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Thread
	for _, t := range s.threads {
		if t.CourseID == courseID {
			out = append(out, copyThread(t))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListThreadsMissingEmbedding(ctx context.Context, limit int) ([]model.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Thread
	for _, t := range s.threads {
		if !t.HasEmbedding() {
			out = append(out, copyThread(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetThread(ctx context.Context, id string) (*model.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyThread(t)
	return &cp, nil
}

func (s *MemoryStore) CreateThread(ctx context.Context, t *model.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[t.ID]; exists {
		return ErrConflict
	}
	cp := copyThread(t)
	s.threads[t.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateThread(ctx context.Context, t *model.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.threads[t.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Title = t.Title
	existing.Content = t.Content
	existing.Tags = append([]string(nil), t.Tags...)
	existing.Embedding = append([]float32(nil), t.Embedding...)
	existing.UpdatedAt = t.UpdatedAt
	return nil
}

func (s *MemoryStore) SetThreadEmbedding(ctx context.Context, id string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[id]
	if !ok {
		return ErrNotFound
	}
	t.Embedding = append([]float32(nil), embedding...)
	return nil
}

func (s *MemoryStore) DeleteThread(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[id]; !ok {
		return ErrNotFound
	}
	s.deleteThreadLocked(id)
	return nil
}

func (s *MemoryStore) deleteThreadLocked(id string) {
	for cid, c := range s.comments {
		if c.ThreadID == id {
			delete(s.comments, cid)
		}
	}
	delete(s.names, id)
	delete(s.summaries, id)
	delete(s.threads, id)
}

func (s *MemoryStore) ThreadSimilarities(ctx context.Context, ids []string) ([]graph.Score, error) {
	s.mu.RLock()
	threads := make([]graph.Thread, 0, len(ids))
	for _, id := range ids {
		t, ok := s.threads[id]
		if !ok {
			s.mu.RUnlock()
			return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
		}
		threads = append(threads, t.GraphThread())
	}
	s.mu.RUnlock()

	return similarity.NewOracle(threads).Batch(ctx, ids)
}

// Anonymous names

func (s *MemoryStore) GetAnonymousName(ctx context.Context, threadID, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.names[threadID][userID]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}

func (s *MemoryStore) ListAnonymousNames(ctx context.Context, threadID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.namesLocked(threadID), nil
}

func (s *MemoryStore) SetAnonymousName(ctx context.Context, threadID, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.names[threadID]
	if !ok {
		byUser = make(map[string]string)
		s.names[threadID] = byUser
	}
	for u, n := range byUser {
		if n == name && u != userID {
			return ErrConflict
		}
	}
	if _, exists := byUser[userID]; exists {
		return ErrConflict
	}
	byUser[userID] = name
	return nil
}

func (s *MemoryStore) namesLocked(threadID string) []string {
	var out []string
	for _, n := range s.names[threadID] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Comments

func (s *MemoryStore) ListComments(ctx context.Context, threadID string) ([]model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Comment
	for _, c := range s.comments {
		if c.ThreadID != threadID {
			continue
		}
		cp := *c
		cp.AnonymousName = s.names[threadID][c.CreatorID]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountComments(ctx context.Context, threadID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countCommentsLocked(threadID), nil
}

func (s *MemoryStore) countCommentsLocked(threadID string) int {
	n := 0
	for _, c := range s.comments {
		if c.ThreadID == threadID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) GetComment(ctx context.Context, threadID, commentID string) (*model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[commentID]
	if !ok || c.ThreadID != threadID {
		return nil, ErrNotFound
	}
	cp := *c
	cp.AnonymousName = s.names[threadID][c.CreatorID]
	return &cp, nil
}

func (s *MemoryStore) CreateComment(ctx context.Context, c *model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[c.ThreadID]; !ok {
		return ErrNotFound
	}
	if _, exists := s.comments[c.ID]; exists {
		return ErrConflict
	}
	cp := *c
	s.comments[c.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateComment(ctx context.Context, c *model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.comments[c.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Content = c.Content
	existing.UpdatedAt = c.UpdatedAt
	return nil
}

func (s *MemoryStore) DeleteComment(ctx context.Context, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[commentID]; !ok {
		return ErrNotFound
	}
	for id, c := range s.comments {
		if c.ParentID != nil && *c.ParentID == commentID {
			delete(s.comments, id)
		}
	}
	delete(s.comments, commentID)
	return nil
}

// Summaries

func (s *MemoryStore) GetSummary(ctx context.Context, threadID string) (*model.ThreadSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.summaries[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sum
	return &cp, nil
}

func (s *MemoryStore) SaveSummary(ctx context.Context, sum *model.ThreadSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sum
	if existing, ok := s.summaries[sum.ThreadID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	s.summaries[sum.ThreadID] = &cp
	return nil
}

// Search

func (s *MemoryStore) MatchThreads(ctx context.Context, q model.MatchQuery) ([]model.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := toSet(q.Courses)
	var out []model.SearchResult
	for _, t := range s.threads {
		if _, ok := allowed[t.CourseID]; !ok || !t.HasEmbedding() {
			continue
		}
		score, err := similarity.Cosine(q.Embedding, t.Embedding)
		if err != nil {
			return nil, fmt.Errorf("score thread %s: %w", t.ID, err)
		}
		if score >= q.Threshold {
			out = append(out, searchResult(t, score))
		}
	}
	return rank(out, q.Limit), nil
}

func (s *MemoryStore) SearchThreadsText(ctx context.Context, q model.MatchQuery) ([]model.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, nil
	}

	allowed := toSet(q.Courses)
	var out []model.SearchResult
	for _, t := range s.threads {
		if _, ok := allowed[t.CourseID]; !ok {
			continue
		}
		text := strings.ToLower(t.Title + " " + t.Content)
		hits := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				hits++
			}
		}
		if hits > 0 {
			out = append(out, searchResult(t, float64(hits)/float64(len(terms))))
		}
	}
	return rank(out, q.Limit), nil
}

func searchResult(t *model.Thread, score float64) model.SearchResult {
	return model.SearchResult{
		ThreadID:   t.ID,
		CourseID:   t.CourseID,
		Title:      t.Title,
		Content:    t.Content,
		Similarity: score,
		CreatedAt:  t.CreatedAt,
	}
}

func rank(results []model.SearchResult, limit int) []model.SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ThreadID < results[j].ThreadID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func copyThread(t *model.Thread) model.Thread {
	cp := *t
	cp.Tags = append([]string(nil), t.Tags...)
	cp.Embedding = append([]float32(nil), t.Embedding...)
	cp.AnonymousNames = append([]string(nil), t.AnonymousNames...)
	return cp
}

var _ Store = (*MemoryStore)(nil)

package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/store"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

var (
	nameAdjectives = []string{"Quick", "Lazy", "Sleepy", "Noisy", "Hungry"}
	nameAnimals    = []string{"Fox", "Dog", "Cat", "Mouse", "Bear"}
)

const nameAttempts = 5

// CommentService handles comment operations.
type CommentService struct {
	store  store.Store
	logger *logger.Logger
	now    func() time.Time
	intn   func(n int) int
}

// NewCommentService creates a comment service.
func NewCommentService(st store.Store, log *logger.Logger) *CommentService {
	return &CommentService{
		store:  st,
		logger: log,
		now:    time.Now,
		intn:   rand.Intn,
	}
}

// List returns a thread's comments, oldest first.
func (s *CommentService) List(ctx context.Context, threadID string) ([]model.Comment, error) {
	if _, err := s.store.GetThread(ctx, threadID); err != nil {
		return nil, notFound(err, "thread")
	}
	comments, err := s.store.ListComments(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	return comments, nil
}

// Create posts a comment. The author must be enrolled in the thread's
// course and gets an anonymous name on first comment.
func (s *CommentService) Create(ctx context.Context, user User, threadID string, req *model.CreateCommentRequest) (*model.Comment, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, notFound(err, "thread")
	}

	enrollment, err := requireEnrollment(ctx, s.store, user, thread.CourseID)
	if err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		if _, err := s.store.GetComment(ctx, threadID, *req.ParentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: parent comment is not on this thread", ErrInvalidInput)
			}
			return nil, fmt.Errorf("get parent comment: %w", err)
		}
	}

	name, err := s.anonymousName(ctx, thread, user.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	comment := &model.Comment{
		ID:            newID(),
		ThreadID:      threadID,
		ParentID:      req.ParentID,
		Content:       req.Content,
		CreatorID:     user.ID,
		CreatorRole:   enrollment.Role,
		AnonymousName: name,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	s.logger.Debug("comment created",
		zap.String("comment_id", comment.ID),
		zap.String("thread_id", threadID),
	)
	return comment, nil
}

// Update edits a comment. Only its author may edit it.
func (s *CommentService) Update(ctx context.Context, user User, threadID, commentID string, req *model.UpdateCommentRequest) (*model.Comment, error) {
	comment, err := s.owned(ctx, user, threadID, commentID)
	if err != nil {
		return nil, err
	}

	comment.Content = req.Content
	comment.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateComment(ctx, comment); err != nil {
		return nil, notFound(err, "comment")
	}
	return comment, nil
}

// Delete removes a comment and its direct replies. Only its author may
// delete it.
func (s *CommentService) Delete(ctx context.Context, user User, threadID, commentID string) error {
	if _, err := s.owned(ctx, user, threadID, commentID); err != nil {
		return err
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return notFound(err, "comment")
	}
	return nil
}

func (s *CommentService) owned(ctx context.Context, user User, threadID, commentID string) (*model.Comment, error) {
	comment, err := s.store.GetComment(ctx, threadID, commentID)
	if err != nil {
		return nil, notFound(err, "comment")
	}
	if comment.CreatorID != user.ID {
		return nil, ErrForbidden
	}
	return comment, nil
}

// anonymousName returns the user's name on the thread, assigning one if
// needed. The thread author is always OP. Concurrent first comments can race
// for a name; the loser retries.
func (s *CommentService) anonymousName(ctx context.Context, thread *model.Thread, userID string) (string, error) {
	threadID := thread.ID
	for attempt := 0; attempt < nameAttempts; attempt++ {
		name, err := s.store.GetAnonymousName(ctx, threadID, userID)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("get anonymous name: %w", err)
		}

		used, err := s.store.ListAnonymousNames(ctx, threadID)
		if err != nil {
			return "", fmt.Errorf("list anonymous names: %w", err)
		}

		if userID == thread.CreatorID {
			name = model.OPName
		} else {
			name = s.pickName(used)
		}
		err = s.store.SetAnonymousName(ctx, threadID, userID, name)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return "", fmt.Errorf("set anonymous name: %w", err)
		}
	}
	return "", fmt.Errorf("assign anonymous name on thread %s: %w", threadID, store.ErrConflict)
}

// pickName draws a random unused <Adjective><Animal> name. Once all of them
// are taken a numeric suffix is added to a random base name.
func (s *CommentService) pickName(used []string) string {
	taken := make(map[string]struct{}, len(used))
	for _, n := range used {
		taken[n] = struct{}{}
	}

	free := make([]string, 0, len(nameAdjectives)*len(nameAnimals))
	for _, adj := range nameAdjectives {
		for _, animal := range nameAnimals {
			if _, ok := taken[adj+animal]; !ok {
				free = append(free, adj+animal)
			}
		}
	}
	if len(free) > 0 {
		return free[s.intn(len(free))]
	}

	base := nameAdjectives[s.intn(len(nameAdjectives))] + nameAnimals[s.intn(len(nameAnimals))]
	for i := 2; ; i++ {
		name := base + strconv.Itoa(i)
		if _, ok := taken[name]; !ok {
			return name
		}
	}
}

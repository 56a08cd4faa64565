// Package store persists courses, threads, comments and summaries.
package store

import (
	"context"
	"errors"

	"github.com/clarify-edu/clarify-api/internal/graph"
	"github.com/clarify-edu/clarify-api/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness rule.
	ErrConflict = errors.New("conflict")
)

// Store is implemented by the Postgres and in-memory backends.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	CourseStore
	EnrollmentStore
	ThreadStore
	CommentStore
	SummaryStore
	SearchStore
}

// CourseStore manages courses. CreateCourse also enrolls the creator, and
// DeleteCourse removes the course's enrollments and threads with it.
type CourseStore interface {
	CreateCourse(ctx context.Context, c *model.Course, creatorEmail string) error
	GetCourse(ctx context.Context, id string) (*model.Course, error)
	DeleteCourse(ctx context.Context, id string) error
}

// EnrollmentStore reads course membership.
type EnrollmentStore interface {
	GetEnrollment(ctx context.Context, email, courseID string) (*model.Enrollment, error)
	ListEnrollments(ctx context.Context, email string) ([]model.Enrollment, error)
	AddEnrollment(ctx context.Context, e *model.Enrollment) error

	// EnrollStudents enrolls each email as a student, leaving existing
	// enrollments untouched, and returns how many were added.
	EnrollStudents(ctx context.Context, courseID string, emails []string) (int, error)
}

// ThreadStore manages threads, their embeddings and anonymous names.
type ThreadStore interface {
	ListThreads(ctx context.Context, courseID string) ([]model.Thread, error)
	ListGraphThreads(ctx context.Context, courseID string) ([]model.Thread, error)
	ListThreadsMissingEmbedding(ctx context.Context, limit int) ([]model.Thread, error)
	GetThread(ctx context.Context, id string) (*model.Thread, error)
	CreateThread(ctx context.Context, t *model.Thread) error
	UpdateThread(ctx context.Context, t *model.Thread) error
	SetThreadEmbedding(ctx context.Context, id string, embedding []float32) error
	DeleteThread(ctx context.Context, id string) error

	// ThreadSimilarities scores every unordered pair among ids.
	ThreadSimilarities(ctx context.Context, ids []string) ([]graph.Score, error)

	GetAnonymousName(ctx context.Context, threadID, userID string) (string, error)
	ListAnonymousNames(ctx context.Context, threadID string) ([]string, error)
	SetAnonymousName(ctx context.Context, threadID, userID, name string) error
}

// CommentStore manages comments.
type CommentStore interface {
	ListComments(ctx context.Context, threadID string) ([]model.Comment, error)
	CountComments(ctx context.Context, threadID string) (int, error)
	GetComment(ctx context.Context, threadID, commentID string) (*model.Comment, error)
	CreateComment(ctx context.Context, c *model.Comment) error
	UpdateComment(ctx context.Context, c *model.Comment) error
	DeleteComment(ctx context.Context, commentID string) error
}

// SummaryStore caches thread summaries.
type SummaryStore interface {
	GetSummary(ctx context.Context, threadID string) (*model.ThreadSummary, error)
	SaveSummary(ctx context.Context, s *model.ThreadSummary) error
}

// SearchStore finds threads.
type SearchStore interface {
	MatchThreads(ctx context.Context, q model.MatchQuery) ([]model.SearchResult, error)
	SearchThreadsText(ctx context.Context, q model.MatchQuery) ([]model.SearchResult, error)
}

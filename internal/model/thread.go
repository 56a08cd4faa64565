// Package model defines data structures for the Clarify API.
package model

import (
	"time"

	"github.com/clarify-edu/clarify-api/internal/graph"
)

// Role is a participant's role within a course.
type Role string

const (
	RoleCreator    Role = "Creator"
	RoleInstructor Role = "Instructor"
	RoleStudent    Role = "Student"
)

// OPName is the anonymous name always given to a thread's author.
const OPName = "OP"

// Enrollment ties an email address to a course.
type Enrollment struct {
	Email    string `json:"email"`
	CourseID string `json:"course_id"`
	Role     Role   `json:"role"`
}

// Thread is a top-level discussion post in a course.
type Thread struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Tags        []string  `json:"tags"`
	CreatorID   string    `json:"creator_id"`
	CreatorRole Role      `json:"creator_role"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Populated on list reads.
	CommentCount   int      `json:"comment_count"`
	AnonymousNames []string `json:"anonymous_names,omitempty"`
}

// HasEmbedding reports whether the thread can be placed on the graph.
func (t *Thread) HasEmbedding() bool {
	return len(t.Embedding) > 0
}

// GraphThread converts the thread to the graph builder's input type.
func (t *Thread) GraphThread() graph.Thread {
	return graph.Thread{
		ID:          t.ID,
		Title:       t.Title,
		Content:     t.Content,
		Embedding:   t.Embedding,
		CreatedAt:   t.CreatedAt,
		CreatorRole: string(t.CreatorRole),
	}
}

// EmbeddingText is the text an embedding is computed from.
func (t *Thread) EmbeddingText() string {
	return t.Title + "\n" + t.Content
}

// CreateThreadRequest is the request to create a thread.
type CreateThreadRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// UpdateThreadRequest is the request to edit a thread.
type UpdateThreadRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// ThreadResponse wraps a single thread.
type ThreadResponse struct {
	Thread *Thread `json:"thread"`
}

// ListThreadsResponse is the response for listing a course's threads.
type ListThreadsResponse struct {
	Threads []Thread `json:"threads"`
}

// ThreadSummary is a stored AI summary of a thread and its comments.
type ThreadSummary struct {
	ThreadID     string    `json:"thread_id"`
	Content      string    `json:"content"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SummaryResponse is the response for a thread summary.
type SummaryResponse struct {
	Summary string `json:"summary"`
	Cached  bool   `json:"cached"`
}

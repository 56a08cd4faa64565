package model

import (
	"time"
)

// Comment is a reply within a thread.
type Comment struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"thread_id"`
	ParentID      *string   `json:"parent_id,omitempty"`
	Content       string    `json:"content"`
	CreatorID     string    `json:"creator_id"`
	CreatorRole   Role      `json:"creator_role"`
	AnonymousName string    `json:"anonymous_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateCommentRequest is the request to post a comment.
type CreateCommentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id,omitempty"`
}

// UpdateCommentRequest is the request to edit a comment.
type UpdateCommentRequest struct {
	Content string `json:"content"`
}

// CommentResponse wraps a single comment.
type CommentResponse struct {
	Comment *Comment `json:"comment"`
}

// ListCommentsResponse is the response for listing a thread's comments.
type ListCommentsResponse struct {
	Comments []Comment `json:"comments"`
}

// SearchType selects the search strategy.
type SearchType string

const (
	SearchSemantic SearchType = "semantic"
	SearchText     SearchType = "text"
)

// SearchQuery is a search request after parameter parsing.
type SearchQuery struct {
	Query    string
	CourseID string
	Type     SearchType
}

// MatchQuery is passed to the store for either search strategy. Results are
// restricted to Courses.
type MatchQuery struct {
	Text      string
	Embedding []float32
	Threshold float64
	Limit     int
	Courses   []string
}

// SearchResult is one matching thread.
type SearchResult struct {
	ThreadID   string    `json:"thread_id"`
	CourseID   string    `json:"course_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// SearchResponse is the response for a search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

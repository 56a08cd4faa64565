package model

import (
	"time"
)

// EventType represents the type of thread event.
type EventType string

const (
	EventThreadCreated EventType = "created"
	EventThreadUpdated EventType = "updated"
	EventThreadDeleted EventType = "deleted"
)

// ThreadEvent is published whenever a thread changes.
type ThreadEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	ThreadID       string    `json:"thread_id"`
	CourseID       string    `json:"course_id"`
	EmbeddingStale bool      `json:"embedding_stale"`
	CreatedAt      time.Time `json:"created_at"`
	Sequence       uint64    `json:"sequence,omitempty"`
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

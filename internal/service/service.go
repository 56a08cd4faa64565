// Package service provides business logic for the Clarify API.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/store"
)

var (
	// ErrNotFound is returned when the addressed resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput is returned for requests that cannot be served as
	// written.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotCreator is returned when someone other than a course's creator
	// tries to manage it.
	ErrNotCreator = errors.New("not the course creator")

	// ErrNotEnrolled is returned when the caller is not in the course.
	ErrNotEnrolled = errors.New("not enrolled in course")

	// ErrUnavailable is returned when an optional backend is not configured.
	ErrUnavailable = errors.New("service unavailable")
)

// User is the authenticated caller.
type User struct {
	ID    string
	Email string
}

// Publisher delivers thread events. A nil Publisher disables events.
type Publisher interface {
	PublishThreadEvent(ctx context.Context, event *model.ThreadEvent) error
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// notFound turns the store's sentinel into the service one.
func notFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func requireEnrollment(ctx context.Context, enrollments store.EnrollmentStore, user User, courseID string) (*model.Enrollment, error) {
	e, err := enrollments.GetEnrollment(ctx, user.Email, courseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	return e, nil
}

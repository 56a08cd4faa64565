package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/store"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// CourseService creates courses, enrolls students and deletes courses.
// Everything past creation is reserved to the course's creator.
type CourseService struct {
	store  store.Store
	logger *logger.Logger
	now    func() time.Time
}

// NewCourseService creates a course service.
func NewCourseService(st store.Store, log *logger.Logger) *CourseService {
	return &CourseService{
		store:  st,
		logger: log,
		now:    time.Now,
	}
}

// Create makes user the creator of a new course and enrolls them in it.
func (s *CourseService) Create(ctx context.Context, user User, req *model.CreateCourseRequest) (*model.Course, error) {
	if user.Email == "" {
		return nil, fmt.Errorf("%w: an email address is required to create a course", ErrInvalidInput)
	}

	course := &model.Course{
		ID:        newID(),
		Code:      strings.TrimSpace(req.Code),
		Name:      strings.TrimSpace(req.Name),
		CreatorID: user.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateCourse(ctx, course, user.Email); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}

	s.logger.Info("course created",
		zap.String("course_id", course.ID),
		zap.String("code", course.Code),
	)
	return course, nil
}

// Enroll adds emails to the course as students. Addresses are trimmed and
// lower-cased; ones already enrolled keep their role.
func (s *CourseService) Enroll(ctx context.Context, user User, courseID string, emails []string) (*model.EnrollResponse, error) {
	if _, err := s.created(ctx, user, courseID); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(emails))
	unique := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		unique = append(unique, e)
	}
	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: no email addresses to enroll", ErrInvalidInput)
	}

	added, err := s.store.EnrollStudents(ctx, courseID, unique)
	if err != nil {
		return nil, fmt.Errorf("enroll students: %w", err)
	}

	s.logger.Info("students enrolled",
		zap.String("course_id", courseID),
		zap.Int("enrolled", added),
		zap.Int("skipped", len(unique)-added),
	)
	return &model.EnrollResponse{Enrolled: added, Skipped: len(unique) - added}, nil
}

// Delete removes the course with its enrollments and threads.
func (s *CourseService) Delete(ctx context.Context, user User, courseID string) error {
	if _, err := s.created(ctx, user, courseID); err != nil {
		return err
	}
	if err := s.store.DeleteCourse(ctx, courseID); err != nil {
		return notFound(err, "course")
	}

	s.logger.Info("course deleted", zap.String("course_id", courseID))
	return nil
}

func (s *CourseService) created(ctx context.Context, user User, courseID string) (*model.Course, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, notFound(err, "course")
	}
	if course.CreatorID != user.ID {
		return nil, ErrNotCreator
	}
	return course, nil
}

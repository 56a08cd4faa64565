package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clarify-edu/clarify-api/internal/middleware"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/service"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// CourseHandler handles course management endpoints.
type CourseHandler struct {
	service *service.CourseService
	logger  *logger.Logger
}

// NewCourseHandler creates a new course handler.
func NewCourseHandler(svc *service.CourseService, log *logger.Logger) *CourseHandler {
	return &CourseHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/v1/courses
func (h *CourseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCourseRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateCourse(req.Code, req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	course, err := h.service.Create(r.Context(), currentUser(r), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to create course")
		return
	}

	writeJSON(w, http.StatusCreated, model.CourseResponse{Course: course})
}

// Enroll handles POST /api/v1/courses/{courseId}/enrollments
func (h *CourseHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	if err := middleware.ValidateID("course ID", courseID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.EnrollRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateEmails(req.Emails); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Enroll(r.Context(), currentUser(r), courseID, req.Emails)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to enroll students")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Delete handles DELETE /api/v1/courses/{courseId}
func (h *CourseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	if err := middleware.ValidateID("course ID", courseID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(r.Context(), currentUser(r), courseID); err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to delete course")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

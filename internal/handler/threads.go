package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clarify-edu/clarify-api/internal/middleware"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/service"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// ThreadHandler handles thread endpoints.
type ThreadHandler struct {
	service *service.ThreadService
	logger  *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(svc *service.ThreadService, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/courses/{courseId}/threads
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	if err := middleware.ValidateID("course ID", courseID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	threads, err := h.service.List(r.Context(), courseID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, model.ListThreadsResponse{Threads: threads})
}

// Create handles POST /api/v1/courses/{courseId}/threads
func (h *ThreadHandler) Create(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	if err := middleware.ValidateID("course ID", courseID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.CreateThreadRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateThread(req.Title, req.Content, req.Tags); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	thread, err := h.service.Create(r.Context(), currentUser(r), courseID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to create thread")
		return
	}

	writeJSON(w, http.StatusCreated, model.ThreadResponse{Thread: thread})
}

// Update handles PUT /api/v1/threads/{threadId}
func (h *ThreadHandler) Update(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadId")
	if err := middleware.ValidateID("thread ID", threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateThreadRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateThread(req.Title, req.Content, req.Tags); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	thread, err := h.service.Update(r.Context(), currentUser(r), threadID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to update thread")
		return
	}

	writeJSON(w, http.StatusOK, model.ThreadResponse{Thread: thread})
}

// Delete handles DELETE /api/v1/threads/{threadId}
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadId")
	if err := middleware.ValidateID("thread ID", threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(r.Context(), currentUser(r), threadID); err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to delete thread")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func validateThread(title, content string, tags []string) error {
	if err := middleware.ValidateTitle(title); err != nil {
		return err
	}
	if err := middleware.ValidateContent(content); err != nil {
		return err
	}
	return middleware.ValidateTags(tags)
}

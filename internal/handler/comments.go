package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clarify-edu/clarify-api/internal/middleware"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/service"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// CommentHandler handles comment endpoints.
type CommentHandler struct {
	service *service.CommentService
	logger  *logger.Logger
}

// NewCommentHandler creates a new comment handler.
func NewCommentHandler(svc *service.CommentService, log *logger.Logger) *CommentHandler {
	return &CommentHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/threads/{threadId}/comments
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadId")
	if err := middleware.ValidateID("thread ID", threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	comments, err := h.service.List(r.Context(), threadID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to fetch comments")
		return
	}

	writeJSON(w, http.StatusOK, model.ListCommentsResponse{Comments: comments})
}

// Create handles POST /api/v1/threads/{threadId}/comments
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadId")
	if err := middleware.ValidateID("thread ID", threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.CreateCommentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ParentID != nil {
		if err := middleware.ValidateID("parent comment ID", *req.ParentID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	comment, err := h.service.Create(r.Context(), currentUser(r), threadID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to create comment")
		return
	}

	writeJSON(w, http.StatusCreated, model.CommentResponse{Comment: comment})
}

// Update handles PUT /api/v1/threads/{threadId}/comments/{commentId}
func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	threadID, commentID, ok := commentParams(w, r)
	if !ok {
		return
	}

	var req model.UpdateCommentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	comment, err := h.service.Update(r.Context(), currentUser(r), threadID, commentID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to update comment")
		return
	}

	writeJSON(w, http.StatusOK, model.CommentResponse{Comment: comment})
}

// Delete handles DELETE /api/v1/threads/{threadId}/comments/{commentId}
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	threadID, commentID, ok := commentParams(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), currentUser(r), threadID, commentID); err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to delete comment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func commentParams(w http.ResponseWriter, r *http.Request) (threadID, commentID string, ok bool) {
	threadID = chi.URLParam(r, "threadId")
	if err := middleware.ValidateID("thread ID", threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	commentID = chi.URLParam(r, "commentId")
	if err := middleware.ValidateID("comment ID", commentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return threadID, commentID, true
}

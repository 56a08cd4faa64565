package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clarify-edu/clarify-api/internal/middleware"
	"github.com/clarify-edu/clarify-api/internal/service"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// SummaryHandler serves AI thread summaries.
type SummaryHandler struct {
	service *service.SummaryService
	logger  *logger.Logger
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(svc *service.SummaryService, log *logger.Logger) *SummaryHandler {
	return &SummaryHandler{
		service: svc,
		logger:  log,
	}
}

// Get handles GET /api/v1/threads/{threadId}/summary
func (h *SummaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadId")
	if err := middleware.ValidateID("thread ID", threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Summarize(r.Context(), threadID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to generate summary")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/clarify-edu/clarify-api/internal/middleware"
	"github.com/clarify-edu/clarify-api/internal/service"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// GraphHandler serves the knowledge graph.
type GraphHandler struct {
	service *service.GraphService
	logger  *logger.Logger
}

// NewGraphHandler creates a new graph handler.
func NewGraphHandler(svc *service.GraphService, log *logger.Logger) *GraphHandler {
	return &GraphHandler{
		service: svc,
		logger:  log,
	}
}

// Get handles GET /api/v1/knowledge-graph?courseId=
func (h *GraphHandler) Get(w http.ResponseWriter, r *http.Request) {
	courseID := r.URL.Query().Get("courseId")
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "Missing courseId parameter")
		return
	}
	if err := middleware.ValidateID("course ID", courseID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := h.service.Graph(r.Context(), courseID)
	if err != nil {
		// The service has already logged the failure with its phase.
		writeError(w, http.StatusInternalServerError, "Failed to generate knowledge graph")
		return
	}

	writeJSON(w, http.StatusOK, g)
}

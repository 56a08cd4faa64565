package handler

import (
	"net/http"

	"github.com/clarify-edu/clarify-api/internal/middleware"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/service"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// SearchHandler handles thread search.
type SearchHandler struct {
	service *service.SearchService
	logger  *logger.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(svc *service.SearchService, log *logger.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  log,
	}
}

// Search handles GET /api/v1/search?q=&courseId=&type=
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q := model.SearchQuery{
		Query:    params.Get("q"),
		CourseID: params.Get("courseId"),
		Type:     model.SearchType(params.Get("type")),
	}
	if err := middleware.ValidateQuery(q.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.CourseID != "" {
		if err := middleware.ValidateID("course ID", q.CourseID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	results, err := h.service.Search(r.Context(), currentUser(r), q)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, model.SearchResponse{Results: results})
}

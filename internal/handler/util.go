package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/internal/middleware"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/service"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// maxBodyBytes bounds request bodies. Thread content is capped well below it.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{Error: message})
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// writeServiceError maps service sentinels to a status. Anything
// unrecognised is logged and answered with fallback as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotEnrolled):
		writeError(w, http.StatusForbidden, "Not enrolled in this course")
	case errors.Is(err, service.ErrNotCreator):
		writeError(w, http.StatusForbidden, "Only the course creator can manage this course")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "You can only modify your own posts")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMessage(err))
	case errors.Is(err, service.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, fallback)
	default:
		log.Error(fallback,
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// notFoundMessage turns "thread: not found" into "Thread not found".
func notFoundMessage(err error) string {
	what, ok := strings.CutSuffix(err.Error(), ": "+service.ErrNotFound.Error())
	if !ok || what == "" || strings.Contains(what, ":") {
		return "Not found"
	}
	return strings.ToUpper(what[:1]) + what[1:] + " not found"
}

// currentUser returns the authenticated caller from the request context.
func currentUser(r *http.Request) service.User {
	ctx := r.Context()
	return service.User{ID: middleware.GetUserID(ctx), Email: middleware.GetEmail(ctx)}
}

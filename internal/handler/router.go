package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clarify-edu/clarify-api/internal/middleware"
	"github.com/clarify-edu/clarify-api/internal/service"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Logger         *logger.Logger
	Verifier       middleware.TokenVerifier
	AllowedOrigins []string
	RateRequests   int
	UserRequests   int
	RateWindow     time.Duration

	Store Pinger
	NATS  Pinger

	Courses  *service.CourseService
	Graph    *service.GraphService
	Threads  *service.ThreadService
	Comments *service.CommentService
	Summary  *service.SummaryService
	Search   *service.SearchService
}

// NewRouter wires handlers and middleware into a chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger

	healthHandler := NewHealthHandler(cfg.Store, cfg.NATS)
	courseHandler := NewCourseHandler(cfg.Courses, log)
	graphHandler := NewGraphHandler(cfg.Graph, log)
	threadHandler := NewThreadHandler(cfg.Threads, log)
	commentHandler := NewCommentHandler(cfg.Comments, log)
	summaryHandler := NewSummaryHandler(cfg.Summary, log)
	searchHandler := NewSearchHandler(cfg.Search, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateRequests, cfg.RateWindow))
		}
		r.Use(middleware.Auth(cfg.Verifier))
		if cfg.UserRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.UserRequests, cfg.RateWindow))
		}

		r.Get("/knowledge-graph", graphHandler.Get)
		r.Get("/search", searchHandler.Search)

		r.Post("/courses", courseHandler.Create)
		r.Delete("/courses/{courseId}", courseHandler.Delete)
		r.Post("/courses/{courseId}/enrollments", courseHandler.Enroll)

		r.Get("/courses/{courseId}/threads", threadHandler.List)
		r.Post("/courses/{courseId}/threads", threadHandler.Create)

		r.Route("/threads/{threadId}", func(r chi.Router) {
			r.Put("/", threadHandler.Update)
			r.Delete("/", threadHandler.Delete)

			r.Get("/summary", summaryHandler.Get)

			r.Get("/comments", commentHandler.List)
			r.Post("/comments", commentHandler.Create)
			r.Put("/comments/{commentId}", commentHandler.Update)
			r.Delete("/comments/{commentId}", commentHandler.Delete)
		})
	})

	return r
}

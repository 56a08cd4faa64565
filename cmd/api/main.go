// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/internal/app"
	"github.com/clarify-edu/clarify-api/internal/config"
	"github.com/clarify-edu/clarify-api/internal/handler"
	"github.com/clarify-edu/clarify-api/internal/middleware"
	natsclient "github.com/clarify-edu/clarify-api/internal/nats"
	"github.com/clarify-edu/clarify-api/pkg/logger"
	"github.com/clarify-edu/clarify-api/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				tracing.Shutdown(shutdownCtx, tp)
			}()
		}
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	// Keep embeddings current from the event stream. The consumer is
	// stopped before the deferred Close drains NATS.
	if a.Streams != nil && a.Indexer != nil {
		stopIndexer := background(ctx, log, "indexer consumer", func(ctx context.Context) error {
			return a.Streams.ConsumeThreadEvents(ctx, natsclient.IndexerConsumer, a.Indexer.HandleEvent)
		})
		defer stopIndexer()
	}

	router := handler.NewRouter(handler.RouterConfig{
		Logger:         log,
		Verifier:       verifier,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateRequests:   cfg.RateLimit.Requests,
		UserRequests:   cfg.RateLimit.UserRequests,
		RateWindow:     cfg.RateLimit.Window,
		Store:          a.Store,
		NATS:           a.Readiness(),
		Courses:        a.Courses,
		Graph:          a.Graph,
		Threads:        a.Threads,
		Comments:       a.Comments,
		Summary:        a.Summary,
		Search:         a.Search,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// background runs fn in a goroutine. The returned stop cancels fn's context
// and blocks until fn has returned.
func background(ctx context.Context, log *logger.Logger, name string, fn func(context.Context) error) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error(name+" stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func newVerifier(cfg config.AuthConfig) (middleware.TokenVerifier, error) {
	if cfg.VerifyRemote {
		v, err := middleware.NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, fmt.Errorf("create supabase verifier: %w", err)
		}
		return v, nil
	}
	return middleware.NewJWTVerifier(cfg.JWTSecret), nil
}

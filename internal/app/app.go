// Package app assembles the store, providers, event stream and services from
// configuration. The API server and clarifyctl share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/internal/config"
	"github.com/clarify-edu/clarify-api/internal/graph"
	"github.com/clarify-edu/clarify-api/internal/llm"
	natsclient "github.com/clarify-edu/clarify-api/internal/nats"
	"github.com/clarify-edu/clarify-api/internal/service"
	"github.com/clarify-edu/clarify-api/internal/store"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

// App holds the wired dependencies. Optional parts are nil when not
// configured.
type App struct {
	Config *config.Config
	Logger *logger.Logger

	Store    store.Store
	Embedder llm.Embedder
	Client   llm.Client
	NATS     *natsclient.Client
	Streams  *natsclient.StreamManager

	Courses  *service.CourseService
	Graph    *service.GraphService
	Threads  *service.ThreadService
	Comments *service.CommentService
	Summary  *service.SummaryService
	Search   *service.SearchService
	Indexer  *service.Indexer
}

// New connects everything cfg asks for. Close releases it.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Store = st

	if err := a.initLLM(); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.NATS.Enabled {
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATS.URL,
			CAFile:   cfg.NATS.CAFile,
			CertFile: cfg.NATS.CertFile,
			KeyFile:  cfg.NATS.KeyFile,
			Token:    cfg.NATS.Token,
		}, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		a.NATS = nc
		a.Streams = natsclient.NewStreamManager(nc)
		if err := a.Streams.EnsureStream(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	builder, err := graph.NewBuilder(cfg.Graph.Config)
	if err != nil {
		a.Close()
		return nil, err
	}

	var publisher service.Publisher
	if a.Streams != nil {
		publisher = a.Streams
	}

	a.Courses = service.NewCourseService(st, log)
	a.Graph = service.NewGraphService(st, builder, cfg.Graph.SimilaritySource, cfg.Graph.Timeout, log)
	a.Threads = service.NewThreadService(st, a.Embedder, publisher, log)
	a.Comments = service.NewCommentService(st, log)
	a.Summary = service.NewSummaryService(st, a.Client, service.SummaryConfig{
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		MaxAge:    cfg.Summary.MaxAge,
	}, log)
	a.Search = service.NewSearchService(st, a.Embedder, service.SearchConfig{
		Threshold: cfg.Search.Threshold,
		Limit:     cfg.Search.Limit,
	})
	if a.Embedder != nil {
		a.Indexer = service.NewIndexer(st, a.Embedder, log)
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	if cfg.UseInMemory {
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(ctx, store.DatabaseConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		DBName:          cfg.DBName,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Migrate:         cfg.Migrate,
	})
}

// initLLM sets up the embedder and the completion client. Embeddings always
// come from OpenAI; completions follow the configured provider. Missing keys
// leave the feature off.
func (a *App) initLLM() error {
	cfg := a.Config.LLM

	if cfg.OpenAIAPIKey != "" {
		oc, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			return fmt.Errorf("create OpenAI client: %w", err)
		}
		a.Embedder = llm.NewBreakerEmbedder(oc.WithEmbeddingModel(cfg.EmbeddingModel), cfg.Breaker)
	} else {
		a.Logger.Warn("OPENAI_API_KEY not set, embeddings and semantic search disabled")
	}

	key := cfg.OpenAIAPIKey
	if llm.Provider(cfg.Provider) == llm.ProviderAnthropic {
		key = cfg.AnthropicAPIKey
	}
	if key == "" {
		a.Logger.Warn("no completion provider key, summaries disabled", zap.String("provider", cfg.Provider))
		return nil
	}

	client, err := llm.NewClient(llm.Provider(cfg.Provider), key)
	if err != nil {
		return err
	}
	a.Client = llm.NewBreakerClient(client, cfg.Breaker)
	return nil
}

// Readiness returns the NATS pinger for health checks, or nil when events
// are disabled.
func (a *App) Readiness() interface{ Ping(context.Context) error } {
	if a.NATS == nil {
		return nil
	}
	return a.NATS
}

// Close releases the store and the NATS connection.
func (a *App) Close() error {
	var errs []error
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

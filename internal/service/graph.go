package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/internal/graph"
	"github.com/clarify-edu/clarify-api/internal/similarity"
	"github.com/clarify-edu/clarify-api/internal/store"
	"github.com/clarify-edu/clarify-api/pkg/logger"
	"github.com/clarify-edu/clarify-api/pkg/metrics"
)

// SimilaritySource selects where pair scores come from.
type SimilaritySource string

const (
	// SimilarityLocal scores embeddings in process.
	SimilarityLocal SimilaritySource = "local"
	// SimilarityStore asks the database to score pairs.
	SimilarityStore SimilaritySource = "store"
)

var tracer = otel.Tracer("github.com/clarify-edu/clarify-api/internal/service")

// GraphService builds a course's knowledge graph.
type GraphService struct {
	threads store.ThreadStore
	builder *graph.Builder
	source  SimilaritySource
	timeout time.Duration
	logger  *logger.Logger
}

// NewGraphService creates a graph service. A zero timeout means none.
func NewGraphService(threads store.ThreadStore, builder *graph.Builder, source SimilaritySource, timeout time.Duration, log *logger.Logger) *GraphService {
	return &GraphService{
		threads: threads,
		builder: builder,
		source:  source,
		timeout: timeout,
		logger:  log,
	}
}

// Graph clusters the course's embedded threads, oldest first.
func (s *GraphService) Graph(ctx context.Context, courseID string) (*graph.Graph, error) {
	ctx, span := tracer.Start(ctx, "GraphService.Graph")
	defer span.End()
	span.SetAttributes(attribute.String("course.id", courseID))

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	g, err := s.build(ctx, courseID)
	if err != nil {
		metrics.RecordGraphBuild("error", time.Since(start).Seconds(), 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "graph build failed")

		fields := []zap.Field{zap.String("course_id", courseID), zap.Error(err)}
		var oe *graph.OracleError
		if errors.As(err, &oe) {
			fields = append(fields, zap.String("phase", string(oe.Phase)), zap.Strings("ids", oe.IDs))
		}
		s.logger.Error("failed to build knowledge graph", fields...)
		return nil, err
	}

	metrics.RecordGraphBuild("ok", time.Since(start).Seconds(), len(g.Nodes), len(g.Links))
	span.SetAttributes(
		attribute.Int("graph.nodes", len(g.Nodes)),
		attribute.Int("graph.links", len(g.Links)),
	)
	return g, nil
}

func (s *GraphService) build(ctx context.Context, courseID string) (*graph.Graph, error) {
	rows, err := s.threads.ListGraphThreads(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load threads: %w", err)
	}

	threads := make([]graph.Thread, 0, len(rows))
	skipped := 0
	for i := range rows {
		if !rows[i].HasEmbedding() {
			skipped++
			continue
		}
		threads = append(threads, rows[i].GraphThread())
	}
	if skipped > 0 {
		metrics.GraphSkippedThreads.Add(float64(skipped))
		s.logger.Debug("threads without embeddings left off graph",
			zap.String("course_id", courseID), zap.Int("skipped", skipped))
	}
	if len(threads) == 0 {
		return graph.Empty(), nil
	}

	graph.SortByCreation(threads)
	return s.builder.Build(ctx, threads, s.oracle(threads))
}

// oracle returns the batch scorer for this build, counting calls per phase.
// The builder always asks for cluster scores before link scores.
func (s *GraphService) oracle(threads []graph.Thread) graph.BatchSimilarity {
	var inner graph.BatchSimilarity
	switch s.source {
	case SimilarityStore:
		inner = s.threads.ThreadSimilarities
	default:
		inner = similarity.NewOracle(threads).Batch
	}

	calls := 0
	return func(ctx context.Context, ids []string) ([]graph.Score, error) {
		phase := graph.PhaseCluster
		if calls > 0 {
			phase = graph.PhaseLink
		}
		calls++

		scores, err := inner(ctx, ids)
		metrics.SimilarityBatchCalls.WithLabelValues(string(phase), metrics.Status(err)).Inc()
		return scores, err
	}
}

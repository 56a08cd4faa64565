package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/pkg/logger"
	"github.com/clarify-edu/clarify-api/pkg/metrics"
)

// ErrUnavailable is returned while a provider's circuit is open.
var ErrUnavailable = errors.New("llm provider unavailable")

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	MinRequests      uint32        `mapstructure:"min_requests"`
}

// DefaultBreakerConfig returns settings suited to slow external APIs.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Global().Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A cancelled request says nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

// BreakerClient guards a Client with a circuit breaker and records metrics.
type BreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps next.
func NewBreakerClient(next Client, cfg BreakerConfig) *BreakerClient {
	return &BreakerClient{next: next, cb: newBreaker("llm-"+next.Name(), cfg)}
}

func (c *BreakerClient) Name() string {
	return c.next.Name()
}

func (c *BreakerClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.next.Complete(ctx, req)
	})
	if err != nil {
		metrics.RecordLLM(req.Model, "error", time.Since(start).Seconds(), 0, 0)
		return nil, translate(err)
	}

	resp := out.(*CompletionResponse)
	metrics.RecordLLM(resp.Model, "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return resp, nil
}

// BreakerEmbedder guards an Embedder with a circuit breaker.
type BreakerEmbedder struct {
	next Embedder
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerEmbedder wraps next.
func NewBreakerEmbedder(next Embedder, cfg BreakerConfig) *BreakerEmbedder {
	return &BreakerEmbedder{next: next, cb: newBreaker("embeddings", cfg)}
}

func (e *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.cb.Execute(func() (interface{}, error) {
		return e.next.Embed(ctx, text)
	})
	metrics.EmbeddingsTotal.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		return nil, translate(err)
	}
	return out.([]float32), nil
}

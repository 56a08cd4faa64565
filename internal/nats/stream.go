package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/pkg/logger"
	"github.com/clarify-edu/clarify-api/pkg/metrics"
)

const (
	// StreamName is the name of the thread events stream.
	StreamName = "CLARIFY"

	// SubjectPrefix is the prefix for all Clarify subjects.
	SubjectPrefix = "clarify"

	// IndexerConsumer is the durable consumer that keeps embeddings fresh.
	IndexerConsumer = "embedding-indexer"
)

// EventHandler processes one thread event. Returning an error redelivers
// the event.
type EventHandler func(ctx context.Context, event *model.ThreadEvent) error

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
	logger *logger.Logger
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client, logger: client.logger}
}

// EnsureStream creates the thread events stream or updates its config.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	_, err := m.client.JetStream().CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  2 * time.Minute,
		Description: "Thread lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}
	return nil
}

// ThreadEventSubject returns the subject for a thread event.
func ThreadEventSubject(courseID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.course.%s.thread.%s", SubjectPrefix, courseID, eventType)
}

// ThreadEventFilter matches thread events in every course.
func ThreadEventFilter() string {
	return SubjectPrefix + ".course.*.thread.>"
}

// PublishThreadEvent publishes event and records its stream sequence on it.
// The event ID doubles as the JetStream message ID so retried publishes are
// deduplicated.
func (m *StreamManager) PublishThreadEvent(ctx context.Context, event *model.ThreadEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, ThreadEventSubject(event.CourseID, event.Type), data,
		jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	event.Sequence = ack.Sequence
	metrics.ThreadEventsTotal.WithLabelValues("out", string(event.Type)).Inc()
	return nil
}

// ConsumeThreadEvents runs handler for every thread event delivered to the
// durable consumer until ctx is done.
func (m *StreamManager) ConsumeThreadEvents(ctx context.Context, durable string, handler EventHandler) error {
	consumer, err := m.client.JetStream().CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: ThreadEventFilter(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       time.Minute,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	var inflight sync.WaitGroup
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		inflight.Add(1)
		defer inflight.Done()
		m.handle(ctx, durable, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	inflight.Wait()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (m *StreamManager) handle(ctx context.Context, durable string, msg jetstream.Msg, handler EventHandler) {
	var event model.ThreadEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		m.logger.Error("dropping malformed thread event",
			zap.String("subject", msg.Subject()), zap.Error(err))
		msg.Term()
		return
	}

	if meta, err := msg.Metadata(); err == nil {
		event.Sequence = meta.Sequence.Stream
		metrics.NATSConsumerPending.WithLabelValues(StreamName, durable).Set(float64(meta.NumPending))
	}
	metrics.ThreadEventsTotal.WithLabelValues("in", string(event.Type)).Inc()

	if err := handler(ctx, &event); err != nil {
		m.logger.Warn("thread event failed, will redeliver",
			zap.String("thread_id", event.ThreadID),
			zap.Uint64("sequence", event.Sequence),
			zap.Error(err))
		msg.NakWithDelay(5 * time.Second)
		return
	}
	msg.Ack()
}

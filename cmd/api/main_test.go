package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarify-edu/clarify-api/internal/config"
	"github.com/clarify-edu/clarify-api/internal/middleware"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

func TestBackgroundStopWaits(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool

	stop := background(context.Background(), logger.Nop(), "worker", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	})

	<-started
	stop()
	assert.True(t, finished.Load(), "stop returns only after the worker has")
}

func TestBackgroundWorkerExitsEarly(t *testing.T) {
	stop := background(context.Background(), logger.Nop(), "worker", func(ctx context.Context) error {
		return errors.New("consumer gone")
	})

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop blocked on a worker that had already returned")
	}
}

func TestNewVerifier(t *testing.T) {
	v, err := newVerifier(config.AuthConfig{JWTSecret: "secret"})
	require.NoError(t, err)
	assert.IsType(t, &middleware.JWTVerifier{}, v)
}

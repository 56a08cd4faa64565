package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clarify-edu/clarify-api/internal/llm"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/store"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

const (
	courseA = "0190a4c2-0000-7000-8000-00000000000a"
	courseB = "0190a4c2-0000-7000-8000-00000000000b"
)

var (
	alice = User{ID: "0190a4c2-0000-7000-8000-0000000000a1", Email: "alice@example.edu"}
	bob   = User{ID: "0190a4c2-0000-7000-8000-0000000000b0", Email: "bob@example.edu"}
	carol = User{ID: "0190a4c2-0000-7000-8000-0000000000c0", Email: "carol@example.edu"}
)

// keywordEmbedder maps text onto three axes by keyword so tests can reason
// about similarity.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	text = strings.ToLower(text)
	v := []float32{0.01, 0.01, 0.01}
	if strings.Contains(text, "recursion") {
		v[0] = 1
	}
	if strings.Contains(text, "pointer") {
		v[1] = 1
	}
	if strings.Contains(text, "exam") {
		v[2] = 1
	}
	return v, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ThreadEvent
	err    error
}

func (p *recordingPublisher) PublishThreadEvent(ctx context.Context, event *model.ThreadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *event)
	return nil
}

type scriptedClient struct {
	calls    int
	requests []*llm.CompletionRequest
	reply    string
	err      error
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.calls++
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return &llm.CompletionResponse{Content: c.reply, Model: req.Model}, nil
}

var errBoom = errors.New("boom")

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.AddEnrollment(ctx, &model.Enrollment{Email: alice.Email, CourseID: courseA, Role: model.RoleStudent}))
	require.NoError(t, st.AddEnrollment(ctx, &model.Enrollment{Email: bob.Email, CourseID: courseA, Role: model.RoleInstructor}))
	require.NoError(t, st.AddEnrollment(ctx, &model.Enrollment{Email: bob.Email, CourseID: courseB, Role: model.RoleStudent}))
	return st
}

// fixedClock returns a clock that advances by step on every read.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

func nopLogger() *logger.Logger {
	return logger.Nop()
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarify-edu/clarify-api/internal/graph"
	"github.com/clarify-edu/clarify-api/internal/llm"
	"github.com/clarify-edu/clarify-api/internal/middleware"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/service"
	"github.com/clarify-edu/clarify-api/internal/store"
	"github.com/clarify-edu/clarify-api/pkg/logger"
)

const (
	courseID   = "0190a4c2-0000-7000-8000-00000000000a"
	otherID    = "0190a4c2-0000-7000-8000-00000000000b"
	missingID  = "0190a4c2-0000-7000-8000-ffffffffffff"
	aliceToken = "alice-token"
	bobToken   = "bob-token"
	eveToken   = "eve-token"
)

var errDown = errors.New("down")

type tokenTable map[string]middleware.Identity

func (t tokenTable) Verify(ctx context.Context, token string) (*middleware.Identity, error) {
	id, ok := t[token]
	if !ok {
		return nil, middleware.ErrInvalidToken
	}
	return &id, nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type cannedClient struct{ err error }

func (cannedClient) Name() string { return "canned" }

func (c cannedClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.CompletionResponse{Content: "summary text"}, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type brokenSimilarity struct {
	*store.MemoryStore
}

func (brokenSimilarity) ThreadSimilarities(ctx context.Context, ids []string) ([]graph.Score, error) {
	return nil, errDown
}

type testServer struct {
	t     *testing.T
	store *store.MemoryStore
	srv   *httptest.Server
}

type option func(*RouterConfig, *store.MemoryStore)

func withBrokenGraph() option {
	return func(cfg *RouterConfig, st *store.MemoryStore) {
		b, _ := graph.NewBuilder(graph.DefaultConfig())
		cfg.Graph = service.NewGraphService(brokenSimilarity{st}, b, service.SimilarityStore, 0, logger.Nop())
	}
}

func withSummaryClient(c llm.Client) option {
	return func(cfg *RouterConfig, st *store.MemoryStore) {
		cfg.Summary = service.NewSummaryService(st, c, service.SummaryConfig{MaxAge: time.Hour}, logger.Nop())
	}
}

func withNATS(p Pinger) option {
	return func(cfg *RouterConfig, st *store.MemoryStore) {
		cfg.NATS = p
	}
}

func withUserLimit(n int) option {
	return func(cfg *RouterConfig, st *store.MemoryStore) {
		cfg.UserRequests = n
		cfg.RateWindow = time.Minute
	}
}

func newTestServer(t *testing.T, opts ...option) *testServer {
	t.Helper()
	log := logger.Nop()
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.AddEnrollment(ctx, &model.Enrollment{Email: "alice@example.edu", CourseID: courseID, Role: model.RoleStudent}))
	require.NoError(t, st.AddEnrollment(ctx, &model.Enrollment{Email: "bob@example.edu", CourseID: courseID, Role: model.RoleInstructor}))

	builder, err := graph.NewBuilder(graph.DefaultConfig())
	require.NoError(t, err)

	cfg := RouterConfig{
		Logger: log,
		Verifier: tokenTable{
			aliceToken: {UserID: "0190a4c2-0000-7000-8000-0000000000a1", Email: "alice@example.edu"},
			bobToken:   {UserID: "0190a4c2-0000-7000-8000-0000000000b0", Email: "bob@example.edu"},
			eveToken:   {UserID: "0190a4c2-0000-7000-8000-0000000000e0", Email: "eve@example.edu"},
		},
		AllowedOrigins: []string{"http://localhost:3000"},
		Store:          st,
		Courses:        service.NewCourseService(st, log),
		Graph:          service.NewGraphService(st, builder, service.SimilarityLocal, time.Second, log),
		Threads:        service.NewThreadService(st, constEmbedder{}, nil, log),
		Comments:       service.NewCommentService(st, log),
		Summary:        service.NewSummaryService(st, nil, service.SummaryConfig{MaxAge: time.Hour}, log),
		Search:         service.NewSearchService(st, constEmbedder{}, service.SearchConfig{Threshold: 0.5, Limit: 10}),
	}
	for _, opt := range opts {
		opt(&cfg, st)
	}

	srv := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(srv.Close)
	return &testServer{t: t, store: st, srv: srv}
}

func (s *testServer) do(method, path, token string, body interface{}) *http.Response {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (s *testServer) createThread(token, title string) *model.Thread {
	s.t.Helper()
	resp := s.do(http.MethodPost, "/api/v1/courses/"+courseID+"/threads", token,
		model.CreateThreadRequest{Title: title, Content: "content"})
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	var out model.ThreadResponse
	decodeBody(s.t, resp, &out)
	return out.Thread
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}

func TestReady_NATSDown(t *testing.T) {
	s := newTestServer(t, withNATS(pingFunc(func(ctx context.Context) error { return errDown })))

	resp := s.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "NATS not connected", body["reason"])
}

func TestAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodGet, "/api/v1/knowledge-graph?courseId="+courseID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/knowledge-graph?courseId="+courseID, "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestKnowledgeGraph(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodGet, "/api/v1/knowledge-graph", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errBody model.ErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "Missing courseId parameter", errBody.Error)

	resp = s.do(http.MethodGet, "/api/v1/knowledge-graph?courseId=nope", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "invalid course ID format", errBody.Error)

	resp = s.do(http.MethodGet, "/api/v1/knowledge-graph?courseId="+otherID, aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw map[string]json.RawMessage
	decodeBody(t, resp, &raw)
	assert.JSONEq(t, `[]`, string(raw["nodes"]))
	assert.JSONEq(t, `[]`, string(raw["links"]))

	first := s.createThread(aliceToken, "First")
	second := s.createThread(bobToken, "Second")

	resp = s.do(http.MethodGet, "/api/v1/knowledge-graph?courseId="+courseID, aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var g graph.Graph
	decodeBody(t, resp, &g)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "node_0", g.Nodes[0].ID)
	assert.Equal(t, []string{first.ID, second.ID}, g.Nodes[0].MemberThreadIDs)
	assert.Empty(t, g.Links)
}

func TestKnowledgeGraph_OracleFailure(t *testing.T) {
	s := newTestServer(t, withBrokenGraph())
	s.createThread(aliceToken, "First")
	s.createThread(aliceToken, "Second")

	resp := s.do(http.MethodGet, "/api/v1/knowledge-graph?courseId="+courseID, aliceToken, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body model.ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "Failed to generate knowledge graph", body.Error)
}

func TestUserRateLimit(t *testing.T) {
	s := newTestServer(t, withUserLimit(2))
	path := "/api/v1/courses/" + courseID + "/threads"

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, aliceToken, nil).StatusCode)
	}
	resp := s.do(http.MethodGet, path, aliceToken, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, bobToken, nil).StatusCode, "limits are per user")
}

func TestCourses(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodPost, "/api/v1/courses", aliceToken, model.CreateCourseRequest{Code: "", Name: "Intro"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/courses", aliceToken, model.CreateCourseRequest{Code: "CS101", Name: "Intro"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created model.CourseResponse
	decodeBody(t, resp, &created)
	course := created.Course
	require.NotNil(t, course)
	base := "/api/v1/courses/" + course.ID

	// Eve cannot post until she is enrolled.
	post := model.CreateThreadRequest{Title: "Hello", Content: "first"}
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, base+"/threads", eveToken, post).StatusCode)

	enroll := model.EnrollRequest{Emails: []string{"Eve@Example.edu"}}
	tests := []struct {
		name   string
		path   string
		token  string
		body   interface{}
		status int
	}{
		{"bad course id", "/api/v1/courses/nope/enrollments", aliceToken, enroll, http.StatusBadRequest},
		{"bad email", base + "/enrollments", aliceToken, model.EnrollRequest{Emails: []string{"eve"}}, http.StatusBadRequest},
		{"no emails", base + "/enrollments", aliceToken, model.EnrollRequest{}, http.StatusBadRequest},
		{"not the creator", base + "/enrollments", bobToken, enroll, http.StatusForbidden},
		{"missing course", "/api/v1/courses/" + missingID + "/enrollments", aliceToken, enroll, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp = s.do(http.MethodPost, base+"/enrollments", aliceToken, enroll)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res model.EnrollResponse
	decodeBody(t, resp, &res)
	assert.Equal(t, model.EnrollResponse{Enrolled: 1}, res)

	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, base+"/threads", eveToken, post).StatusCode)

	resp = s.do(http.MethodDelete, base, eveToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var errBody model.ErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "Only the course creator can manage this course", errBody.Error)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base, aliceToken, nil).StatusCode)

	resp = s.do(http.MethodGet, base+"/threads", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list model.ListThreadsResponse
	decodeBody(t, resp, &list)
	assert.Empty(t, list.Threads)

	resp = s.do(http.MethodDelete, base, aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "Course not found", errBody.Error)
}

func TestThreads(t *testing.T) {
	s := newTestServer(t)
	base := "/api/v1/courses/" + courseID + "/threads"

	tests := []struct {
		name   string
		path   string
		token  string
		body   interface{}
		status int
	}{
		{"bad course id", "/api/v1/courses/nope/threads", aliceToken, model.CreateThreadRequest{Title: "t", Content: "c"}, http.StatusBadRequest},
		{"empty title", base, aliceToken, model.CreateThreadRequest{Title: " ", Content: "c"}, http.StatusBadRequest},
		{"malformed body", base, aliceToken, "not an object", http.StatusBadRequest},
		{"not enrolled", base, eveToken, model.CreateThreadRequest{Title: "t", Content: "c"}, http.StatusForbidden},
		{"created", base, aliceToken, model.CreateThreadRequest{Title: "t", Content: "c", Tags: []string{"hw1"}}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp := s.do(http.MethodGet, base, bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list model.ListThreadsResponse
	decodeBody(t, resp, &list)
	require.Len(t, list.Threads, 1)
	assert.Equal(t, []string{"hw1"}, list.Threads[0].Tags)
	assert.Equal(t, []string{"OP"}, list.Threads[0].AnonymousNames)
}

func TestThreadUpdateDelete(t *testing.T) {
	s := newTestServer(t)
	thread := s.createThread(aliceToken, "Original")
	path := "/api/v1/threads/" + thread.ID
	edit := model.UpdateThreadRequest{Title: "Edited", Content: "new"}

	resp := s.do(http.MethodPut, path, bobToken, edit)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodPut, "/api/v1/threads/"+missingID, aliceToken, edit)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errBody model.ErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "Thread not found", errBody.Error)

	resp = s.do(http.MethodPut, path, aliceToken, edit)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated model.ThreadResponse
	decodeBody(t, resp, &updated)
	assert.Equal(t, "Edited", updated.Thread.Title)

	resp = s.do(http.MethodDelete, path, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodDelete, path, aliceToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(http.MethodDelete, path, aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestComments(t *testing.T) {
	s := newTestServer(t)
	thread := s.createThread(aliceToken, "Question")
	path := "/api/v1/threads/" + thread.ID + "/comments"

	resp := s.do(http.MethodPost, path, bobToken, model.CreateCommentRequest{Content: "Answer"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created model.CommentResponse
	decodeBody(t, resp, &created)
	assert.NotEqual(t, "OP", created.Comment.AnonymousName)
	assert.Equal(t, model.RoleInstructor, created.Comment.CreatorRole)

	resp = s.do(http.MethodPost, path, eveToken, model.CreateCommentRequest{Content: "Hi"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/threads/"+missingID+"/comments", bobToken, model.CreateCommentRequest{Content: "Hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	orphan := missingID
	resp = s.do(http.MethodPost, path, bobToken, model.CreateCommentRequest{Content: "Hi", ParentID: &orphan})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	commentPath := path + "/" + created.Comment.ID
	resp = s.do(http.MethodPut, commentPath, aliceToken, model.UpdateCommentRequest{Content: "Hijack"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodPut, commentPath, bobToken, model.UpdateCommentRequest{Content: "Better answer"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, path, aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list model.ListCommentsResponse
	decodeBody(t, resp, &list)
	require.Len(t, list.Comments, 1)
	assert.Equal(t, "Better answer", list.Comments[0].Content)

	resp = s.do(http.MethodDelete, commentPath, bobToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSummary(t *testing.T) {
	t.Run("no client configured", func(t *testing.T) {
		s := newTestServer(t)
		thread := s.createThread(aliceToken, "Question")

		resp := s.do(http.MethodGet, "/api/v1/threads/"+thread.ID+"/summary", aliceToken, nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("generated then cached", func(t *testing.T) {
		s := newTestServer(t, withSummaryClient(cannedClient{}))
		thread := s.createThread(aliceToken, "Question")
		path := "/api/v1/threads/" + thread.ID + "/summary"

		resp := s.do(http.MethodGet, path, aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out model.SummaryResponse
		decodeBody(t, resp, &out)
		assert.Equal(t, "summary text", out.Summary)
		assert.False(t, out.Cached)

		resp = s.do(http.MethodGet, path, aliceToken, nil)
		decodeBody(t, resp, &out)
		assert.True(t, out.Cached)
	})

	t.Run("provider failure", func(t *testing.T) {
		s := newTestServer(t, withSummaryClient(cannedClient{err: errDown}))
		thread := s.createThread(aliceToken, "Question")

		resp := s.do(http.MethodGet, "/api/v1/threads/"+thread.ID+"/summary", aliceToken, nil)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		var body model.ErrorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, "Failed to generate summary", body.Error)
	})

	t.Run("missing thread", func(t *testing.T) {
		s := newTestServer(t)
		resp := s.do(http.MethodGet, "/api/v1/threads/"+missingID+"/summary", aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)
	s.createThread(aliceToken, "Recursion")

	resp := s.do(http.MethodGet, "/api/v1/search", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/search?q=x&courseId="+otherID, aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/search?q=x&type=fuzzy", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/search?q=recursion", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out model.SearchResponse
	decodeBody(t, resp, &out)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Recursion", out.Results[0].Title)

	resp = s.do(http.MethodGet, "/api/v1/search?q=recursion&type=text&courseId="+courseID, aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &out)
	assert.Len(t, out.Results, 1)

	resp = s.do(http.MethodGet, "/api/v1/search?q=recursion", eveToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty map[string]json.RawMessage
	decodeBody(t, resp, &empty)
	assert.JSONEq(t, `[]`, string(empty["results"]))
}

func TestNotFoundMessage(t *testing.T) {
	assert.Equal(t, "Thread not found", notFoundMessage(fmt.Errorf("thread: %w", service.ErrNotFound)))
	assert.Equal(t, "Not found", notFoundMessage(service.ErrNotFound))
}

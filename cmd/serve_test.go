package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/internal/pipeline"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, cfg pipeline.Config) (*pipeline.Result, error) {
	args := m.Called(ctx, cfg)
	res, _ := args.Get(0).(*pipeline.Result)
	return res, args.Error(1)
}

// fakeClock is a settable clock for the rate limit.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestServer(runner reindexRunner, interval time.Duration) (http.Handler, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)}
	h := newReindexHandler(runner, "s3cret", interval)
	h.now = clock.now
	return newRouter(h), clock
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr, body
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(&mockRunner{}, time.Minute)

	rr, body := get(t, h, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", body["status"])
}

func TestReindex_Unauthorized(t *testing.T) {
	runner := &mockRunner{}
	h, _ := newTestServer(runner, time.Minute)

	for _, target := range []string{"/reindex", "/reindex?token=wrong"} {
		rr, body := get(t, h, target)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, target)
		assert.Equal(t, "Unauthorized", body["error"])
	}
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestReindex_RunsWithoutGeocodeAndRateLimits(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, pipeline.Config{SkipGeocode: true}).Return(&pipeline.Result{
		Run:     &model.Run{ID: "run-1", Status: model.RunStatusComplete},
		Publish: &pipeline.PublishSummary{Index: "markets", Documents: 42, TaskStatus: "succeeded"},
	}, nil).Once()

	h, clock := newTestServer(runner, time.Minute)

	rr, body := get(t, h, "/reindex?token=s3cret")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Reindex complete", body["message"])
	assert.Equal(t, "run-1", body["run_id"])
	assert.EqualValues(t, 42, body["documents"])
	assert.Equal(t, "2024-05-06T12:00:00Z", body["timestamp"])

	clock.t = clock.t.Add(20*time.Second + 500*time.Millisecond)
	rr, body = get(t, h, "/reindex?token=s3cret")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Rate limited. Try again in 40s.", body["error"])

	runner.AssertExpectations(t)
}

func TestReindex_AllowedAgainAfterInterval(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything).Return(&pipeline.Result{Run: &model.Run{ID: "r"}}, nil).Twice()

	h, clock := newTestServer(runner, time.Minute)

	rr, _ := get(t, h, "/reindex?token=s3cret")
	require.Equal(t, http.StatusOK, rr.Code)

	clock.t = clock.t.Add(time.Minute)
	rr, _ = get(t, h, "/reindex?token=s3cret")
	assert.Equal(t, http.StatusOK, rr.Code)
	runner.AssertExpectations(t)
}

func TestReindex_FailureStillConsumesSlot(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything).
		Return(nil, errors.New("pipeline: validation failed")).Once()

	h, _ := newTestServer(runner, time.Minute)

	rr, body := get(t, h, "/reindex?token=s3cret")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Reindex failed", body["error"])
	assert.Equal(t, "pipeline: validation failed", body["details"])

	rr, _ = get(t, h, "/reindex?token=s3cret")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	runner.AssertExpectations(t)
}

func TestRouter_CORS(t *testing.T) {
	h, _ := newTestServer(&mockRunner{}, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://marketmap.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestReindex_RejectsWhileRunning(t *testing.T) {
	started := make(chan struct{})
	finish := make(chan struct{})
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-finish
		}).
		Return(&pipeline.Result{Run: &model.Run{ID: "slow"}}, nil).Once()

	// Zero interval so only the in-flight run can block the second request.
	h, _ := newTestServer(runner, 0)

	done := make(chan int)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/reindex?token=s3cret", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		done <- rr.Code
	}()
	<-started

	rr, body := get(t, h, "/reindex?token=s3cret")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Reindex already running.", body["error"])

	close(finish)
	assert.Equal(t, http.StatusOK, <-done)
	runner.AssertExpectations(t)
}

func TestReindex_SurvivesClientDisconnect(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything).
		Return(&pipeline.Result{Run: &model.Run{ID: "r"}}, nil).Once()

	h, _ := newTestServer(runner, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/reindex?token=s3cret", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	runner.AssertExpectations(t)
}

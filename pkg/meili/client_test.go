package meili

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer records requests and answers like a Meilisearch instance whose
// tasks finish after one poll.
type fakeServer struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
	polls    map[string]int
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{bodies: map[string]string{}, polls: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		assert.Equal(t, "Bearer master", r.Header.Get("Authorization"))
		key := r.Method + " " + r.URL.RequestURI()
		f.requests = append(f.requests, key)
		b, _ := io.ReadAll(r.Body)
		f.bodies[key] = string(b)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/tasks/7":
			f.polls["7"]++
			status := TaskProcessing
			if f.polls["7"] > 1 {
				status = TaskSucceeded
			}
			_ = json.NewEncoder(w).Encode(Task{UID: 7, Status: status})
		case r.Method == http.MethodGet && r.URL.Path == "/tasks/8":
			_ = json.NewEncoder(w).Encode(Task{UID: 8, Status: TaskFailed, Error: &TaskError{Code: CodeIndexAlreadyExists, Message: "Index `markets` already exists."}})
		case r.URL.Path == "/indexes/missing/settings":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Index missing not found.","code":"index_not_found","type":"invalid_request"}`))
		default:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(TaskInfo{TaskUID: 7, Status: TaskEnqueued})
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func TestClient_EnqueueRequests(t *testing.T) {
	f, srv := newFakeServer(t)
	c := NewClient(srv.URL+"/", WithAPIKey("master"))
	ctx := context.Background()

	info, err := c.CreateIndex(ctx, "markets", "id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.TaskUID)

	_, err = c.UpdateSettings(ctx, "markets", Settings{SortableAttributes: []string{"name"}})
	require.NoError(t, err)
	_, err = c.DeleteAllDocuments(ctx, "markets")
	require.NoError(t, err)
	_, err = c.AddDocuments(ctx, "markets", []map[string]string{{"id": "gouda-markt"}}, "id")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST /indexes",
		"PATCH /indexes/markets/settings",
		"DELETE /indexes/markets/documents",
		"POST /indexes/markets/documents?primaryKey=id",
	}, f.requests)
	assert.JSONEq(t, `{"uid":"markets","primaryKey":"id"}`, f.bodies["POST /indexes"])
	assert.JSONEq(t, `{"sortableAttributes":["name"]}`, f.bodies["PATCH /indexes/markets/settings"])
	assert.JSONEq(t, `[{"id":"gouda-markt"}]`, f.bodies["POST /indexes/markets/documents?primaryKey=id"])
}

func TestClient_WaitForTaskPolls(t *testing.T) {
	f, srv := newFakeServer(t)
	c := NewClient(srv.URL, WithAPIKey("master"), WithPollInterval(time.Millisecond))

	task, err := c.WaitForTask(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, TaskSucceeded, task.Status)
	assert.Equal(t, 2, f.polls["7"])
}

func TestClient_FailedTask(t *testing.T) {
	_, srv := newFakeServer(t)
	c := NewClient(srv.URL, WithAPIKey("master"))

	task, err := c.WaitForTask(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, task.Status)
	require.NotNil(t, task.Error)
	assert.Equal(t, CodeIndexAlreadyExists, task.Error.Code)
}

func TestClient_WaitTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Task{UID: 1, Status: TaskEnqueued})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithPollInterval(time.Millisecond), WithTaskTimeout(20*time.Millisecond))
	_, err := c.WaitForTask(context.Background(), 1)
	assert.Error(t, err)
}

func TestClient_APIError(t *testing.T) {
	_, srv := newFakeServer(t)
	c := NewClient(srv.URL, WithAPIKey("master"))

	_, err := c.UpdateSettings(context.Background(), "missing", Settings{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "index_not_found", apiErr.Code)
}

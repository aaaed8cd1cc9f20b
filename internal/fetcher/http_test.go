package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
	})
}

const marketPage = `<html><body><article><h2>Donderdag</h2><ul><li>Markt – 09:00 tot 16:00 uur</li></ul></article>` +
	`<p>Lorem ipsum dolor sit amet, consectetur adipiscing elit.</p></body></html>`

func TestFetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte(marketPage)) //nolint:errcheck
	}))
	defer srv.Close()

	resp, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/markt")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, marketPage, string(resp.Body))
	assert.Equal(t, BlockNone, resp.Block)
}

func TestFetch_StatusPassedThrough(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))

		resp, err := newTestFetcher().Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, code, resp.Status)
		assert.Nil(t, resp.Body)
		srv.Close()
	}
}

func TestFetch_ChallengePageBecomes403(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><title>Just a moment...</title>Checking your browser before accessing</html>")) //nolint:errcheck
	}))
	defer srv.Close()

	resp, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, BlockCloudflare, resp.Block)
	assert.Nil(t, resp.Body)
}

func TestFetch_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048))) //nolint:errcheck
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxBodyBytes: 1024})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), url)
	assert.Error(t, err)
}

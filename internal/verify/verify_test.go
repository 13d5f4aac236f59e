package verify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/yolosetgo/internal/fetch"
)

func testOptions() fetch.Options {
	return fetch.Options{
		Workers: 4,
		Timeout: 2 * time.Second,
		Retries: 2,
		Backoff: time.Millisecond,
	}
}

func TestVerifyClassification(t *testing.T) {
	var notFoundHits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
		case "/missing.jpg":
			notFoundHits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		case "/listing":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	v := New(testOptions())
	results := v.Verify(context.Background(), []string{
		server.URL + "/ok.jpg",
		server.URL + "/missing.jpg",
		server.URL + "/listing",
	})

	require.Len(t, results, 3)

	assert.True(t, results[0].Reachable)
	assert.Equal(t, http.StatusOK, results[0].StatusCode)
	assert.Empty(t, results[0].Reason)

	assert.False(t, results[1].Reachable)
	assert.Equal(t, http.StatusNotFound, results[1].StatusCode)
	assert.Equal(t, "HTTP 404", results[1].Reason)

	assert.False(t, results[2].Reachable)
	assert.Contains(t, results[2].Reason, "not an image")

	// 404 is permanent: exactly one request, no retries.
	assert.Equal(t, int64(1), notFoundHits.Load())
}

func TestVerifyRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	v := New(testOptions())
	results := v.Verify(context.Background(), []string{server.URL + "/flaky.png"})

	require.Len(t, results, 1)
	assert.True(t, results[0].Reachable)
	assert.Equal(t, int64(3), hits.Load())
}

func TestVerifyExhaustedRetriesAreUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	v := New(testOptions())
	results := v.Verify(context.Background(), []string{server.URL + "/down.jpg"})

	require.Len(t, results, 1)
	assert.False(t, results[0].Reachable)
	assert.Contains(t, results[0].Reason, "HTTP 503")
}

func TestVerifyPreservesInputOrder(t *testing.T) {
	// Earlier URLs respond slower than later ones, so completion order is
	// the reverse of submission order.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n int
		fmt.Sscanf(r.URL.Path, "/img-%d.jpg", &n)
		time.Sleep(time.Duration(20-n) * 5 * time.Millisecond)
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/img-%d.jpg", server.URL, i)
	}

	v := New(fetch.Options{Workers: 8, Timeout: 2 * time.Second, Backoff: time.Millisecond})
	results := v.Verify(context.Background(), urls)

	require.Len(t, results, len(urls))
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
		assert.True(t, r.Reachable)
	}
}

func TestVerifyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New(testOptions())
	results := v.Verify(ctx, []string{"http://127.0.0.1:1/never.jpg"})

	require.Len(t, results, 1)
	assert.False(t, results[0].Reachable)
}

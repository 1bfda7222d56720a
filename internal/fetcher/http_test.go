package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher() *HTTP {
	return New(Options{
		UserAgent:    "stopsync-test/1.0",
		Timeout:      2 * time.Second,
		MaxRetries:   3,
		HostInterval: time.Millisecond,
	})
}

func TestFetchString_Success(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	body, err := testFetcher().FetchString(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)
	assert.Equal(t, "stopsync-test/1.0", gotUA.Load())
}

func TestFetchBytes_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f := New(Options{MaxRetries: 3, HostInterval: time.Millisecond, Timeout: 2 * time.Second})
	// Shrink backoff indirectly by racing the context: use a generous
	// deadline, the first backoff is under 2s.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body, err := f.FetchBytes(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchBytes_PermanentStatusNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher().FetchBytes(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchBytes_HostPacing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	f := New(Options{MaxRetries: 1, HostInterval: 60 * time.Millisecond, Timeout: 2 * time.Second})

	start := time.Now()
	for range 3 {
		_, err := f.FetchBytes(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	// First request is immediate, the next two each wait the interval.
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

func TestFetchBytes_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := testFetcher().FetchBytes(context.Background(), "://bad")
	assert.Error(t, err)
}

package apiclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, url string, opts ...Option) (*Client, *recordedSleeps) {
	t.Helper()
	c, err := New(url, opts...)
	require.NoError(t, err)
	sleeps := &recordedSleeps{}
	c.sleep = sleeps.sleep
	return c, sleeps
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/api")
	assert.Error(t, err)
	_, err = New("::bad")
	assert.Error(t, err)
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"C-1"}`))
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL, WithRetry(3, 100*time.Millisecond))

	var out map[string]any
	require.NoError(t, c.Get(context.Background(), "cases/C-1", &out))
	assert.Equal(t, "C-1", out["id"])
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, sleeps.delays)
	assert.Equal(t, StateClosed, c.BreakerState())
}

func TestRetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL, WithRetry(3, time.Millisecond), WithBreaker(10, time.Minute))

	err := c.Post(context.Background(), "cases", map[string]string{"title": "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, Transient, KindOf(err))
	assert.Equal(t, http.StatusTooManyRequests, StatusCodeOf(err))
	assert.Equal(t, int32(4), hits.Load())
	assert.Len(t, sleeps.delays, 3)
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestRetryDelayIsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL,
		WithRetry(4, 100*time.Millisecond),
		WithMaxRetryDelay(300*time.Millisecond),
		WithBreaker(10, time.Minute))

	require.Error(t, c.Get(context.Background(), "cases/C-1", nil))
	assert.Equal(t, []time.Duration{
		200 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
	}, sleeps.delays)
}

func TestMalformedBodyAfterRetriesReportsAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, WithRetry(3, time.Millisecond))

	err := c.Post(context.Background(), "cases", map[string]string{"title": "x"}, &map[string]any{})
	require.Error(t, err)
	assert.Equal(t, Permanent, KindOf(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 3, apiErr.Attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "no such case", http.StatusNotFound)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL)

	err := c.Get(context.Background(), "cases/missing", &map[string]any{})
	require.Error(t, err)
	assert.Equal(t, Permanent, KindOf(err))
	assert.Equal(t, http.StatusNotFound, StatusCodeOf(err))
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, sleeps.delays)
	assert.Contains(t, err.Error(), "no such case")
}

func TestMalformedBodyIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"id":`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	var out map[string]any
	err := c.Get(context.Background(), "cases/C-1", &out)
	require.Error(t, err)
	assert.Equal(t, Permanent, KindOf(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestEmptyBodyDecodesAsNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	out := map[string]any{"stale": true}
	require.NoError(t, c.Put(context.Background(), "cases/C-1", map[string]string{}, &out))
	assert.Nil(t, out)
}

func TestHeadersAndPathJoin(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL+"/base/", WithBearerToken("secret"))

	require.NoError(t, c.Post(context.Background(), "/cases", map[string]string{"title": "t"}, nil))
	require.NotNil(t, got)
	assert.Equal(t, "/base/cases", got.URL.Path)
	assert.Equal(t, "Bearer secret", got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"title":"t"}`, string(body))
}

func TestNoAuthorizationWithoutKey(t *testing.T) {
	var auth, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, WithBearerToken(""))
	require.NoError(t, c.Get(context.Background(), "cases", &[]any{}))
	assert.Empty(t, auth)
	assert.Empty(t, contentType)
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	var hits atomic.Int32
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, WithRetry(0, time.Millisecond), WithBreaker(5, 30*time.Second))
	now := time.Unix(1_700_000_000, 0)
	c.breaker.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		err := c.Get(context.Background(), "cases/C-1", nil)
		require.Equal(t, Transient, KindOf(err))
	}
	assert.Equal(t, StateOpen, c.BreakerState())
	assert.Equal(t, int32(5), hits.Load())

	err := c.Get(context.Background(), "cases/C-1", nil)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, KindOf(err))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), hits.Load(), "open circuit must not reach the network")

	now = now.Add(31 * time.Second)
	healthy.Store(true)
	require.NoError(t, c.Get(context.Background(), "cases/C-1", nil))
	assert.Equal(t, int32(6), hits.Load())
	assert.Equal(t, StateClosed, c.BreakerState())
}

func TestBreakerStopsRetryLoop(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, WithRetry(3, time.Millisecond), WithBreaker(2, time.Minute))

	err := c.Get(context.Background(), "cases/C-1", nil)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, KindOf(err))
	assert.Equal(t, int32(2), hits.Load())
}

func TestCanceledContextAborts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	c.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Post(ctx, "cases", map[string]string{}, nil)
	require.Error(t, err)
	assert.Equal(t, Canceled, KindOf(err))
	assert.Equal(t, StateClosed, c.BreakerState())
}

func TestPerAttemptTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, sleeps := newTestClient(t, srv.URL, WithTimeout(20*time.Millisecond), WithRetry(1, time.Millisecond))

	err := c.Get(context.Background(), "slow", nil)
	require.Error(t, err)
	assert.Equal(t, Transient, KindOf(err))
	assert.Len(t, sleeps.delays, 1)
}

func TestDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		switch r.URL.Path {
		case "/cases/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/cases/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, WithRetry(1, time.Millisecond), WithBreaker(10, time.Minute))

	ok, err := c.Delete(context.Background(), "cases/C-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Delete(context.Background(), "cases/gone")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Delete(context.Background(), "cases/broken")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestConcurrentGetsShareRoundTrip(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-gate
		_, _ = w.Write([]byte(`{"id":"C-1"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out map[string]any
			assert.NoError(t, c.Get(context.Background(), "cases/C-1", &out))
			assert.Equal(t, "C-1", out["id"])
		}()
	}
	// Let the goroutines join the in-flight call before releasing it.
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, hits.Load(), int32(4))
	assert.GreaterOrEqual(t, hits.Load(), int32(1))
}

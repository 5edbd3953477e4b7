package httpfetch

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestGet_CacheUnderBurst(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"value":42}`))
	}))
	defer srv.Close()

	f := New(testLogger(), DefaultTimeout, DefaultCacheWindow)

	var wg sync.WaitGroup
	bodies := make([][]byte, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, ok := f.Get(srv.URL, nil, nil)
			require.True(t, ok)
			bodies[i] = body
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))
	for i := 1; i < 100; i++ {
		assert.Equal(t, bodies[0], bodies[i])
	}
}

func TestGet_RateLimitPrefersCache(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"value":1}`))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New(testLogger(), DefaultTimeout, 1*time.Millisecond)

	body1, ok := f.Get(srv.URL, nil, nil)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond) // force cache expiry so the second Get re-fetches

	body2, ok := f.Get(srv.URL, nil, nil)
	require.True(t, ok)
	assert.Equal(t, body1, body2)
}

func TestGet_AbsentWhenNoCacheAndTransportFails(t *testing.T) {
	f := New(testLogger(), 50*time.Millisecond, DefaultCacheWindow)
	_, ok := f.Get("http://127.0.0.1:1", nil, nil)
	assert.False(t, ok)
}

func TestCanonicalKey_OrderIndependent(t *testing.T) {
	a := url.Values{"b": {"2"}, "a": {"1"}}
	bVals := url.Values{"a": {"1"}, "b": {"2"}}
	assert.Equal(t, canonicalKey("http://x", a), canonicalKey("http://x", bVals))
}

func TestGetJSON_Decodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":7}`))
	}))
	defer srv.Close()

	f := New(testLogger(), DefaultTimeout, DefaultCacheWindow)
	var out struct {
		Value int `json:"value"`
	}
	ok := f.GetJSON(srv.URL, nil, nil, &out)
	require.True(t, ok)
	assert.Equal(t, 7, out.Value)
}

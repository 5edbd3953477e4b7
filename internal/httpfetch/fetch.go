// Package httpfetch provides a single process-wide timed-GET-with-cache helper used by every
// connector. It never raises to the caller: transport and protocol failures fall back to a
// cached body when one is available, and to absence otherwise.
package httpfetch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCacheWindow is the duration within which two identical calls share one network fetch.
const DefaultCacheWindow = 60 * time.Second

// DefaultTimeout is the bounded timeout for an ordinary outbound GET.
const DefaultTimeout = 10 * time.Second

// OptionsTimeout is the longer bound granted to options-data fetches.
const OptionsTimeout = 15 * time.Second

type cacheEntry struct {
	body      []byte
	status    int
	fetchedAt time.Time
}

// Fetcher is the process-wide GET-with-cache helper. Safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	log         zerolog.Logger
	cacheWindow time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry

	keyLocks sync.Map // cache key -> *sync.Mutex; at most one network fetch per key at a time
}

// New creates a Fetcher with the given timeout and cache window.
func New(log zerolog.Logger, timeout, cacheWindow time.Duration) *Fetcher {
	if cacheWindow <= 0 {
		cacheWindow = DefaultCacheWindow
	}
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		log:         log.With().Str("component", "httpfetch").Logger(),
		cacheWindow: cacheWindow,
		cache:       make(map[string]cacheEntry),
	}
}

// canonicalKey canonicalizes a URL and its query params into a stable cache key so that
// equivalent requests (differing only in param order) share one cache entry.
func canonicalKey(rawURL string, params url.Values) string {
	var sb strings.Builder
	sb.WriteString(rawURL)
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("?")
		for _, k := range keys {
			vals := append([]string(nil), params[k]...)
			sort.Strings(vals)
			for _, v := range vals {
				sb.WriteString(k)
				sb.WriteString("=")
				sb.WriteString(v)
				sb.WriteString("&")
			}
		}
	}
	return sb.String()
}

// Get performs a timed GET against rawURL with the given query params and headers. It returns
// the response body and true on success (from network or cache), or nil and false when nothing
// usable is available. It never returns an error to the caller — every failure mode degrades to
// a cached body or absence, per the contract in SPEC_FULL.md §4.1.
func (f *Fetcher) Get(rawURL string, params url.Values, headers map[string]string) ([]byte, bool) {
	key := canonicalKey(rawURL, params)

	// Callers for the same key queue here, so a burst of identical requests makes one network
	// fetch and the rest are served from the cache entry it stores.
	keyLock, _ := f.keyLocks.LoadOrStore(key, &sync.Mutex{})
	keyLock.(*sync.Mutex).Lock()
	defer keyLock.(*sync.Mutex).Unlock()

	f.mu.Lock()
	cached, hasCached := f.cache[key]
	fresh := hasCached && time.Since(cached.fetchedAt) < f.cacheWindow
	f.mu.Unlock()

	if fresh {
		return cached.body, true
	}

	reqURL := rawURL
	if len(params) > 0 {
		reqURL = rawURL + "?" + params.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		f.log.Warn().Err(err).Str("url", rawURL).Msg("failed to build request")
		return f.fallback(hasCached, cached)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "hydra/1.0")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Debug().Err(err).Str("url", rawURL).Msg("transport failure")
		return f.fallback(hasCached, cached)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.log.Debug().Err(err).Str("url", rawURL).Msg("failed reading response body")
		return f.fallback(hasCached, cached)
	}

	if resp.StatusCode == http.StatusOK {
		f.mu.Lock()
		f.cache[key] = cacheEntry{body: body, status: resp.StatusCode, fetchedAt: time.Now()}
		f.mu.Unlock()
		return body, true
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		// Rate-limited: prefer the cached body even if expired, over absence.
		if hasCached {
			return cached.body, true
		}
		return nil, false
	}

	f.log.Debug().Int("status", resp.StatusCode).Str("url", rawURL).Msg("non-200 response")
	return f.fallback(hasCached, cached)
}

func (f *Fetcher) fallback(hasCached bool, cached cacheEntry) ([]byte, bool) {
	if hasCached {
		return cached.body, true
	}
	return nil, false
}

// GetJSON performs Get and decodes the body as JSON into v. Returns false if no body is
// available or the body fails to decode.
func (f *Fetcher) GetJSON(rawURL string, params url.Values, headers map[string]string, v interface{}) bool {
	body, ok := f.Get(rawURL, params, headers)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		f.log.Debug().Err(err).Str("url", rawURL).Msg("failed to decode JSON body")
		return false
	}
	return true
}

// GetText performs Get and returns the body as a string.
func (f *Fetcher) GetText(rawURL string, params url.Values, headers map[string]string) (string, bool) {
	body, ok := f.Get(rawURL, params, headers)
	if !ok {
		return "", false
	}
	return string(body), true
}

// ErrAbsent is returned by callers that want to distinguish "no data" from a decode failure;
// the Fetcher itself never returns an error, per SPEC_FULL.md §4.1.
var ErrAbsent = fmt.Errorf("httpfetch: no cached or live body available")

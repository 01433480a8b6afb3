package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/noteboard/internal/api"
	"github.com/kuitang/noteboard/internal/fault"
	"github.com/kuitang/noteboard/internal/notes"
	"github.com/kuitang/noteboard/internal/obs"
	"github.com/kuitang/noteboard/internal/ratelimit"
	"github.com/kuitang/noteboard/internal/testdb"
	"github.com/kuitang/noteboard/internal/urlutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type stack struct {
	api      *httptest.Server
	frontend *httptest.Server
	faults   *fault.State
}

// newStack runs the real note API behind the frontend.
func newStack(t *testing.T, limiter *ratelimit.RateLimiter) *stack {
	t.Helper()
	faults := fault.NewState()
	apiServer := httptest.NewServer(api.NewServer(api.ServerConfig{
		Prefix: api.DefaultPrefix,
		Store:  notes.NewSQLStore(testdb.NewInMemory(t)),
		Faults: faults,
	}))
	t.Cleanup(apiServer.Close)

	frontend := newFrontend(t, apiServer.URL+api.DefaultPrefix, limiter)
	return &stack{api: apiServer, frontend: frontend, faults: faults}
}

func newFrontend(t *testing.T, apiURL string, limiter *ratelimit.RateLimiter) *httptest.Server {
	t.Helper()
	renderer, err := NewRenderer()
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(ServerConfig{
		Prefix:      DefaultPrefix,
		Title:       "noteboard",
		API:         NewAPIClient(apiURL, 2*time.Second, nil),
		Renderer:    renderer,
		RateLimiter: limiter,
		Metrics:     obs.NewMetrics("noteboard-frontend-test"),
		HSTSMaxAge:  2592000,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestProxy_CreateAndList(t *testing.T) {
	t.Parallel()
	s := newStack(t, nil)

	resp, body := do(t, s.frontend, http.MethodPost, "/noteboard/notes", `{"text":"a","completed":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":1,"text":"a","completed":false}`, body)

	resp, body = do(t, s.frontend, http.MethodGet, "/noteboard/notes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"id":1,"text":"a","completed":false}]`, body)
}

func TestProxy_CreateValidation(t *testing.T) {
	t.Parallel()
	s := newStack(t, nil)

	for _, body := range []string{`{"text":"a"}`, `{"completed":true}`, `nope`} {
		resp, out := do(t, s.frontend, http.MethodPost, "/noteboard/notes", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Contains(t, out, `"error"`)
	}
	_, out := do(t, s.frontend, http.MethodGet, "/noteboard/notes", "")
	assert.JSONEq(t, `[]`, out)
}

func TestProxy_PassesInjectedStatusThrough(t *testing.T) {
	t.Parallel()
	s := newStack(t, nil)
	require.NoError(t, s.faults.EnableErrors(fault.DefaultErrorCodes))

	for i := 0; i < 10; i++ {
		resp, body := do(t, s.frontend, http.MethodGet, "/noteboard/notes", "")
		assert.Contains(t, []int{400, 500}, resp.StatusCode)
		var er ErrorResponse
		require.NoError(t, json.Unmarshal([]byte(body), &er))
		assert.Equal(t, http.StatusText(resp.StatusCode), er.Error)
	}
}

func TestProxy_UnreachableAPIIs502(t *testing.T) {
	t.Parallel()
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	frontend := newFrontend(t, deadURL, nil)

	resp, body := do(t, frontend, http.MethodGet, "/noteboard/notes", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.JSONEq(t, `{"error":"note API unreachable"}`, body)

	resp, page := do(t, frontend, http.MethodGet, "/noteboard", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, page, `class="banner"`)
	assert.Contains(t, page, "note API unreachable")
}

func TestIndex_RendersSanitizedMarkdown(t *testing.T) {
	t.Parallel()
	s := newStack(t, nil)
	do(t, s.frontend, http.MethodPost, "/noteboard/notes", `{"text":"**bold** <script>alert(1)</script>","completed":true}`)

	resp, page := do(t, s.frontend, http.MethodGet, "/noteboard", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, page, "<strong>bold</strong>")
	assert.NotContains(t, page, "<script>alert(1)")
	assert.Contains(t, page, `class="completed"`)

	csp := resp.Header.Get("Content-Security-Policy")
	m := regexp.MustCompile(`script-src 'self' 'nonce-([A-Za-z0-9_-]+)'`).FindStringSubmatch(csp)
	require.Len(t, m, 2, csp)
	assert.Contains(t, page, `<script nonce="`+m[1]+`">`)
	assert.Contains(t, page, `<style nonce="`+m[1]+`">`)
}

func TestIndex_TitleShowsTruncatedText(t *testing.T) {
	t.Parallel()
	s := newStack(t, nil)
	long := strings.Repeat("a", 200)
	do(t, s.frontend, http.MethodPost, "/noteboard/notes", `{"text":"`+long+`","completed":false}`)

	resp, page := do(t, s.frontend, http.MethodGet, "/noteboard", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, `title="`+strings.Repeat("a", 77)+`..."`)
	assert.NotContains(t, page, `title="`+long)
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()
	s := newStack(t, nil)

	first, _ := do(t, s.frontend, http.MethodGet, "/noteboard/notes", "")
	second, _ := do(t, s.frontend, http.MethodGet, "/noteboard/notes", "")

	assert.Equal(t, "max-age=2592000", first.Header.Get("Strict-Transport-Security"))
	assert.Equal(t, "nosniff", first.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", first.Header.Get("X-Frame-Options"))
	assert.Contains(t, first.Header.Get("Content-Security-Policy"), "object-src 'none'")
	assert.NotEqual(t, first.Header.Get("Content-Security-Policy"), second.Header.Get("Content-Security-Policy"),
		"nonce must differ per request")
}

func TestRateLimit_ProxyRoutes(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.NewRateLimiter(ratelimit.Config{RPS: 0.001, Burst: 3, CleanupInterval: time.Hour})
	t.Cleanup(limiter.Stop)
	s := newStack(t, limiter)

	for i := 0; i < 3; i++ {
		resp, _ := do(t, s.frontend, http.MethodGet, "/noteboard/notes", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := do(t, s.frontend, http.MethodGet, "/noteboard/notes", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, body)

	resp, _ = do(t, s.frontend, http.MethodGet, "/noteboard", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "index is not rate limited")

	_, metrics := do(t, s.frontend, http.MethodGet, "/noteboard/metrics", "")
	assert.Contains(t, metrics, `noteboard_ratelimit_clients{app_name="noteboard-frontend-test"} 1`)
}

func TestRateLimit_RemoteIPKeyIgnoresSpoofedForwardedFor(t *testing.T) {
	t.Parallel()
	s := newStack(t, nil)
	limiter := ratelimit.NewRateLimiter(ratelimit.Config{RPS: 0.001, Burst: 2, CleanupInterval: time.Hour})
	t.Cleanup(limiter.Stop)
	renderer, err := NewRenderer()
	require.NoError(t, err)
	handler := NewServer(ServerConfig{
		Prefix:      DefaultPrefix,
		API:         NewAPIClient(s.api.URL+api.DefaultPrefix, 2*time.Second, nil),
		Renderer:    renderer,
		RateLimiter: limiter,
		ClientKey:   urlutil.RemoteIP,
		Metrics:     obs.NewMetrics("noteboard-frontend-test"),
	})

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/noteboard/notes", nil)
		req.RemoteAddr = "192.0.2.1:4444"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s := newStack(t, nil)
	do(t, s.frontend, http.MethodGet, "/noteboard/notes", "")

	resp, body := do(t, s.frontend, http.MethodGet, "/noteboard/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `app_name="noteboard-frontend-test"`)
	assert.Contains(t, body, `path="GET /noteboard/notes"`)
}

func TestAPIClient_PropagatesRequestID(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		seen []string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("X-Request-Id"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer upstream.Close()
	frontend := newFrontend(t, upstream.URL, nil)

	req, err := http.NewRequest(http.MethodGet, frontend.URL+"/noteboard/notes", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "req-from-browser")
	resp, err := frontend.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"req-from-browser"}, seen)
	assert.Equal(t, "req-from-browser", resp.Header.Get("X-Request-Id"))
}

func TestAPIClient_Timeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	client := NewAPIClient(upstream.URL, 50*time.Millisecond, nil)
	start := time.Now()
	_, err := client.ListNotes(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "note API unreachable", publicMessage(err))
}

func TestAPIClient_MalformedJSON(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer upstream.Close()

	_, err := NewAPIClient(upstream.URL, time.Second, nil).ListNotes(context.Background())
	require.Error(t, err)
	assert.Equal(t, "note API returned malformed JSON", publicMessage(err))
}

func TestUpstreamMessage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "text is required", upstreamMessage(400, []byte(`{"error":"text is required"}`)))
	assert.Equal(t, "Internal Server Error", upstreamMessage(500, nil))
	assert.Equal(t, "status 599", upstreamMessage(599, []byte("x")))
}

func testTruncate_Bounds(t *rapid.T) {
	s := rapid.String().Draw(t, "s")
	n := rapid.IntRange(0, 50).Draw(t, "n")

	got := truncate(s, n)
	if len([]rune(got)) > n {
		t.Fatalf("truncate(%q, %d) = %q exceeds bound", s, n, got)
	}
	if len([]rune(s)) <= n && got != s {
		t.Fatalf("short string altered: %q -> %q", s, got)
	}
}

func TestTruncate_Bounds(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testTruncate_Bounds)
}

func TestRenderMarkdown_Sanitizes(t *testing.T) {
	t.Parallel()
	got := string(renderMarkdown("[x](javascript:void) <img src=x onerror=alert(2)> *em*"))
	assert.NotContains(t, got, "javascript:")
	assert.NotContains(t, got, "onerror")
	assert.Contains(t, got, "<em>em</em>")
}

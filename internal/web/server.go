package web

import (
	"net/http"
	"strings"

	"github.com/kuitang/noteboard/internal/obs"
	"github.com/kuitang/noteboard/internal/ratelimit"
	"github.com/kuitang/noteboard/internal/urlutil"
)

// DefaultPrefix is the frontend mount point used when none is configured.
const DefaultPrefix = "/noteboard"

// ServerConfig wires the frontend's collaborators.
type ServerConfig struct {
	Prefix      string
	Title       string
	API         NotesAPI
	Renderer    *Renderer
	RateLimiter *ratelimit.RateLimiter // nil disables rate limiting
	// ClientKey picks the rate-limit bucket; nil means urlutil.ClientIP.
	ClientKey  func(*http.Request) string
	Metrics    *obs.Metrics
	HSTSMaxAge int
}

// NewServer builds the frontend request pipeline.
func NewServer(cfg ServerConfig) http.Handler {
	prefix := strings.TrimRight(cfg.Prefix, "/")
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics("noteboard-frontend")
	}

	limit := func(h http.Handler) http.Handler { return h }
	if cfg.RateLimiter != nil {
		clientKey := cfg.ClientKey
		if clientKey == nil {
			clientKey = urlutil.ClientIP
		}
		limit = ratelimit.RateLimitMiddleware(cfg.RateLimiter, clientKey)
		limiter := cfg.RateLimiter
		cfg.Metrics.GaugeFunc("noteboard_ratelimit_clients",
			"Clients currently tracked by the rate limiter.",
			func() float64 { return float64(limiter.Len()) })
	}

	h := NewHandler(cfg.API, cfg.Renderer, cfg.Title, prefix)
	mux := http.NewServeMux()
	index := prefix
	if index == "" {
		index = "/{$}"
	}
	mux.HandleFunc("GET "+index, h.Index)
	mux.Handle("GET "+prefix+"/notes", limit(http.HandlerFunc(h.ListNotes)))
	mux.Handle("POST "+prefix+"/notes", limit(http.HandlerFunc(h.CreateNote)))
	mux.Handle("GET "+prefix+"/metrics", cfg.Metrics.Handler())

	var handler http.Handler = mux
	handler = cfg.Metrics.Middleware(handler)
	handler = SecurityHeadersMiddleware(cfg.HSTSMaxAge)(handler)
	handler = obs.AccessLogMiddleware("web", handler)
	handler = obs.RequestContextMiddleware(handler)
	return handler
}

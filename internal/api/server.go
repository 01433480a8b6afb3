// Package api serves the noteboard JSON API: note CRUD, the fault-control
// endpoints, health and metrics.
package api

import (
	"net/http"
	"strings"

	"github.com/kuitang/noteboard/internal/fault"
	"github.com/kuitang/noteboard/internal/notes"
	"github.com/kuitang/noteboard/internal/obs"
)

// DefaultPrefix is the route prefix used when none is configured.
const DefaultPrefix = "/noteboard/api/v1"

// ServerConfig wires the API's collaborators.
type ServerConfig struct {
	Prefix   string
	Store    notes.Store
	Faults   *fault.State
	Injector *fault.Injector
	Metrics  *obs.Metrics
}

// NewServer builds the complete request pipeline. Fault injection is
// scoped to the notes collection; fault control, health and metrics are
// never slowed or failed.
func NewServer(cfg ServerConfig) http.Handler {
	prefix := strings.TrimRight(cfg.Prefix, "/")
	if cfg.Faults == nil {
		cfg.Faults = fault.NewState()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics("noteboard-api")
	}
	if cfg.Injector == nil {
		cfg.Injector = fault.NewInjector(cfg.Faults, fault.WithRecorder(cfg.Metrics))
	}

	mux := http.NewServeMux()
	NewHandler(cfg.Store, cfg.Faults).RegisterRoutes(mux, prefix)
	mux.Handle("GET "+prefix+"/metrics", cfg.Metrics.Handler())

	var handler http.Handler = mux
	handler = fault.Guard(prefix+"/notes", cfg.Injector.Chain())(handler)
	handler = cfg.Metrics.Middleware(handler)
	handler = obs.AccessLogMiddleware("api", handler)
	handler = obs.RequestContextMiddleware(handler)
	return handler
}

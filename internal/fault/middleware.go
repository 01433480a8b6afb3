package fault

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/noteboard/internal/obs"
)

// Interceptor wraps a handler. Interceptors compose with Chain.
type Interceptor func(http.Handler) http.Handler

// Chain composes interceptors so that the first one listed sees the request
// first.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(next http.Handler) http.Handler {
		for i := len(interceptors) - 1; i >= 0; i-- {
			next = interceptors[i](next)
		}
		return next
	}
}

// Guard applies chain only to requests whose path is prefix itself or lies
// below it. All other requests go straight to next.
func Guard(prefix string, chain Interceptor) Interceptor {
	prefix = strings.TrimRight(prefix, "/")
	return func(next http.Handler) http.Handler {
		guarded := chain(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if underPrefix(r.URL.Path, prefix) {
				guarded.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Recorder observes injected faults. obs.Metrics implements it.
type Recorder interface {
	InjectedError(status int)
	InjectedDelay(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) InjectedError(int)           {}
func (nopRecorder) InjectedDelay(time.Duration) {}

// SleepFunc suspends the calling goroutine for d or until ctx is done,
// returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Injector produces the error and delay interceptors over a shared State.
type Injector struct {
	state    *State
	sampler  *Sampler
	sleep    SleepFunc
	recorder Recorder
}

// Option customizes an Injector.
type Option func(*Injector)

// WithSampler replaces the default random sampler.
func WithSampler(s *Sampler) Option {
	return func(in *Injector) { in.sampler = s }
}

// WithSleep replaces the default timer-based sleep.
func WithSleep(fn SleepFunc) Option {
	return func(in *Injector) { in.sleep = fn }
}

// WithRecorder reports injected faults to r.
func WithRecorder(r Recorder) Option {
	return func(in *Injector) { in.recorder = r }
}

// NewInjector returns an Injector reading from state.
func NewInjector(state *State, opts ...Option) *Injector {
	in := &Injector{
		state:    state,
		sampler:  NewSampler(nil),
		sleep:    Sleep,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Chain returns the error check followed by the delay. A request failed by
// error injection never pays the delay.
func (in *Injector) Chain() Interceptor {
	return Chain(in.Errors, in.Delay)
}

// Errors short-circuits the request with a randomly chosen status code and
// an empty body while error injection is enabled.
func (in *Injector) Errors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := in.state.Get()
		if !snap.ErrorsEnabled() {
			next.ServeHTTP(w, r)
			return
		}
		status := in.sampler.Pick(snap.ErrorCodes)
		in.recorder.InjectedError(status)
		obs.From(r.Context()).Debug("fault_injected_error",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
		)
		w.WriteHeader(status)
	})
}

// Delay suspends the request for a sampled duration while delay injection
// is enabled. If the request context ends first, next is not called and no
// response is written.
func (in *Injector) Delay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := in.state.Get()
		if !snap.DelayEnabled() {
			next.ServeHTTP(w, r)
			return
		}
		d := in.sampler.Delay(snap.LatencyMS, snap.JitterMS)
		in.recorder.InjectedDelay(d)
		logger := obs.From(r.Context())
		logger.Debug("fault_injected_delay",
			"method", r.Method,
			"path", r.URL.Path,
			"delay_ms", float64(d.Microseconds())/1000.0,
		)
		if err := in.sleep(r.Context(), d); err != nil {
			logger.Debug("fault_delay_cancelled", "path", r.URL.Path, "error", err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

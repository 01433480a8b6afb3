// Package fault implements runtime-configurable fault injection: a
// concurrency-safe State holding the current latency and error settings,
// and the request interceptors that act on it.
package fault

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kuitang/noteboard/internal/errs"
)

const (
	// DefaultJitterMS is the jitter restored by ClearLatency.
	DefaultJitterMS = 100.0

	// DefaultSlowdownLatencyMS and DefaultSlowdownJitterMS apply when the
	// slowdown endpoint is called without query parameters.
	DefaultSlowdownLatencyMS = 100.0
	DefaultSlowdownJitterMS  = 100.0

	// MaxDelayMS bounds latency+jitter: one day.
	MaxDelayMS = 24 * 60 * 60 * 1000.0
)

// DefaultErrorCodes is the fixed set enabled by the error toggle endpoint.
var DefaultErrorCodes = []int{400, 500}

// ErrInvalidConfig is matched with errors.Is on every rejected mutation.
var ErrInvalidConfig = errors.New("invalid fault configuration")

// Snapshot is an immutable view of the fault configuration. ErrorCodes is
// shared between readers and must not be modified.
type Snapshot struct {
	LatencyMS  float64
	JitterMS   float64
	ErrorCodes []int
}

// DelayEnabled reports whether delay injection is active.
func (s Snapshot) DelayEnabled() bool {
	return s.LatencyMS > 0
}

// ErrorsEnabled reports whether error injection is active.
func (s Snapshot) ErrorsEnabled() bool {
	return len(s.ErrorCodes) > 0
}

// State is the process-wide fault configuration. Reads are lock-free loads
// of an immutable snapshot; writers build a new snapshot under mu and
// publish it atomically, so readers never observe a torn configuration.
type State struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewState returns a State with both injections disabled.
func NewState() *State {
	s := &State{}
	s.current.Store(&Snapshot{JitterMS: DefaultJitterMS})
	return s
}

// Get returns the current snapshot.
func (s *State) Get() Snapshot {
	return *s.current.Load()
}

// SetLatency replaces the latency configuration.
func (s *State) SetLatency(latencyMS, jitterMS float64) error {
	if err := validateMillis("latency", latencyMS); err != nil {
		return err
	}
	if err := validateMillis("jitter", jitterMS); err != nil {
		return err
	}
	if latencyMS+jitterMS > MaxDelayMS {
		return invalid(fmt.Sprintf("latency plus jitter must not exceed %.0f ms", MaxDelayMS))
	}
	s.update(func(next *Snapshot) {
		next.LatencyMS = latencyMS
		next.JitterMS = jitterMS
	})
	return nil
}

// ClearLatency disables delay injection and restores the default jitter.
func (s *State) ClearLatency() {
	s.update(func(next *Snapshot) {
		next.LatencyMS = 0
		next.JitterMS = DefaultJitterMS
	})
}

// EnableErrors replaces the error set. Duplicates are dropped, keeping
// first-seen order.
func (s *State) EnableErrors(codes []int) error {
	if len(codes) == 0 {
		return invalid("error status set must not be empty")
	}
	set := make([]int, 0, len(codes))
	for _, code := range codes {
		if code < 100 || code > 599 {
			return invalid(fmt.Sprintf("status code %d is outside 100-599", code))
		}
		if !slices.Contains(set, code) {
			set = append(set, code)
		}
	}
	s.update(func(next *Snapshot) {
		next.ErrorCodes = set
	})
	return nil
}

// DisableErrors turns error injection off.
func (s *State) DisableErrors() {
	s.update(func(next *Snapshot) {
		next.ErrorCodes = nil
	})
}

func (s *State) update(mutate func(next *Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.current.Load()
	mutate(&next)
	s.current.Store(&next)
}

func validateMillis(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(name + " must be a finite number")
	}
	if v < 0 {
		return invalid(name + " must not be negative")
	}
	return nil
}

func invalid(message string) error {
	return errs.Wrap(errs.InvalidArgument, message, ErrInvalidConfig)
}

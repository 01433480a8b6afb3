package fault

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/kuitang/noteboard/internal/errs"
	"pgregory.net/rapid"
)

func TestNewState_StartsDisabled(t *testing.T) {
	t.Parallel()
	snap := NewState().Get()
	if snap.LatencyMS != 0 || snap.JitterMS != DefaultJitterMS || snap.ErrorCodes != nil {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}
	if snap.DelayEnabled() || snap.ErrorsEnabled() {
		t.Fatalf("injections should start disabled: %+v", snap)
	}
}

func TestSetLatency_ReadBackAndClear(t *testing.T) {
	t.Parallel()
	s := NewState()
	if err := s.SetLatency(200, 50); err != nil {
		t.Fatalf("SetLatency: %v", err)
	}
	snap := s.Get()
	if snap.LatencyMS != 200 || snap.JitterMS != 50 {
		t.Fatalf("got (%v, %v), want (200, 50)", snap.LatencyMS, snap.JitterMS)
	}

	s.ClearLatency()
	snap = s.Get()
	if snap.LatencyMS != 0 || snap.JitterMS != 100 {
		t.Fatalf("after clear got (%v, %v), want (0, 100)", snap.LatencyMS, snap.JitterMS)
	}
}

func testSetLatency_Roundtrip(t *rapid.T) {
	s := NewState()
	latency := rapid.Float64Range(0, 10_000).Draw(t, "latency")
	jitter := rapid.Float64Range(0, 10_000).Draw(t, "jitter")

	if err := s.SetLatency(latency, jitter); err != nil {
		t.Fatalf("SetLatency(%v, %v): %v", latency, jitter, err)
	}
	snap := s.Get()
	if snap.LatencyMS != latency || snap.JitterMS != jitter {
		t.Fatalf("got (%v, %v), want (%v, %v)", snap.LatencyMS, snap.JitterMS, latency, jitter)
	}
	if snap.DelayEnabled() != (latency > 0) {
		t.Fatalf("DelayEnabled=%v for latency %v", snap.DelayEnabled(), latency)
	}
}

func TestSetLatency_Roundtrip(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSetLatency_Roundtrip)
}

func testSetLatency_RejectsInvalidAndKeepsState(t *rapid.T) {
	s := NewState()
	if err := s.SetLatency(300, 20); err != nil {
		t.Fatalf("seed SetLatency: %v", err)
	}
	if err := s.EnableErrors([]int{503}); err != nil {
		t.Fatalf("seed EnableErrors: %v", err)
	}
	before := s.Get()

	bad := rapid.OneOf(
		rapid.Float64Range(-1e6, -1e-9),
		rapid.SampledFrom([]float64{math.NaN(), math.Inf(1), math.Inf(-1)}),
	).Draw(t, "bad")
	good := rapid.Float64Range(0, 1000).Draw(t, "good")
	badFirst := rapid.Bool().Draw(t, "badFirst")

	var err error
	if badFirst {
		err = s.SetLatency(bad, good)
	} else {
		err = s.SetLatency(good, bad)
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if errs.CodeOf(err) != errs.InvalidArgument {
		t.Fatalf("expected invalid_argument code, got %q", errs.CodeOf(err))
	}

	after := s.Get()
	if after.LatencyMS != before.LatencyMS || after.JitterMS != before.JitterMS || len(after.ErrorCodes) != 1 {
		t.Fatalf("state changed after rejected update: before=%+v after=%+v", before, after)
	}
}

func TestSetLatency_RejectsInvalidAndKeepsState(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSetLatency_RejectsInvalidAndKeepsState)
}

func TestSetLatency_RejectsDelayBeyondMax(t *testing.T) {
	t.Parallel()
	s := NewState()
	if err := s.SetLatency(MaxDelayMS, 0); err != nil {
		t.Fatalf("SetLatency at the maximum: %v", err)
	}
	for _, tc := range []struct{ latency, jitter float64 }{
		{1e13, 0},
		{0, 1e13},
		{MaxDelayMS, 1},
		{math.MaxFloat64, 0},
	} {
		err := s.SetLatency(tc.latency, tc.jitter)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("SetLatency(%v, %v): expected ErrInvalidConfig, got %v", tc.latency, tc.jitter, err)
		}
	}
	if snap := s.Get(); snap.LatencyMS != MaxDelayMS || snap.JitterMS != 0 {
		t.Fatalf("state changed after rejected update: %+v", snap)
	}
}

func TestEnableErrors_Validation(t *testing.T) {
	t.Parallel()
	cases := map[string][]int{
		"nil":       nil,
		"empty":     {},
		"too low":   {99},
		"too high":  {600},
		"mixed bad": {500, 42},
	}
	for name, codes := range cases {
		s := NewState()
		err := s.EnableErrors(codes)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
		if s.Get().ErrorsEnabled() {
			t.Fatalf("%s: errors enabled after rejected update", name)
		}
	}
}

func TestEnableErrors_DedupesAndDisables(t *testing.T) {
	t.Parallel()
	s := NewState()
	if err := s.EnableErrors([]int{500, 400, 500, 400}); err != nil {
		t.Fatalf("EnableErrors: %v", err)
	}
	got := s.Get().ErrorCodes
	if len(got) != 2 || got[0] != 500 || got[1] != 400 {
		t.Fatalf("ErrorCodes = %v, want [500 400]", got)
	}

	s.DisableErrors()
	if s.Get().ErrorsEnabled() {
		t.Fatal("errors still enabled after DisableErrors")
	}
}

func TestEnableErrors_CallerSliceNotAliased(t *testing.T) {
	t.Parallel()
	s := NewState()
	codes := []int{400, 500}
	if err := s.EnableErrors(codes); err != nil {
		t.Fatalf("EnableErrors: %v", err)
	}
	codes[0] = 599
	if got := s.Get().ErrorCodes[0]; got != 400 {
		t.Fatalf("state aliased caller slice: first code %d", got)
	}
}

func TestState_ConcurrentReadsNeverTorn(t *testing.T) {
	t.Parallel()
	s := NewState()
	if err := s.SetLatency(1, 1); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				v := float64(w*10_000 + i + 1)
				if err := s.SetLatency(v, v); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}

	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Get()
				if snap.LatencyMS != snap.JitterMS {
					t.Errorf("torn read: %+v", snap)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()
}

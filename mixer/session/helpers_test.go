package session

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/mixer/processor"
	"github.com/cwbudde/algo-mixer/mixer/route"
	"github.com/prometheus/client_golang/prometheus"
)

const testBlock = 64

func mono() chans.Count   { return chans.NewCount(1, 0) }
func stereo() chans.Count { return chans.NewCount(2, 0) }

func newSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithBlockSize(testBlock),
		WithDelayRamp(16),
		WithMetrics(prometheus.NewRegistry()),
	}
	return New(append(base, opts...)...)
}

func mustRoute(t *testing.T) func(*route.Route, error) *route.Route {
	t.Helper()
	return func(r *route.Route, err error) *route.Route {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return r
	}
}

// impulse plays a single unit sample at position 0.
func impulse() Source {
	return SourceFunc(func(dst *buffer.Set, pos int64, nframes int) {
		if pos == 0 && dst.Count().Audio() > 0 {
			dst.Audio(0).Samples()[0] = 1
		}
	})
}

// constant fills the first channel with v.
func constant(v float64) Source {
	return SourceFunc(func(dst *buffer.Set, _ int64, nframes int) {
		if dst.Count().Audio() == 0 {
			return
		}
		p := dst.Audio(0).Samples()[:nframes]
		for i := range p {
			p[i] = v
		}
	})
}

// capture runs the session for n samples and returns the first output
// channel of route id.
func capture(t *testing.T, s *Session, id processor.RouteID, n int) []float64 {
	t.Helper()
	var out []float64
	for len(out) < n {
		if !s.Process(testBlock) {
			t.Fatal("cycle did not run")
		}
		o, err := s.Output(id)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, o.Audio(0).Samples()[:testBlock]...)
	}
	return out[:n]
}

// peaks returns the indices of samples further than 1e-9 from zero.
func peaks(x []float64) []int {
	var idx []int
	for i, v := range x {
		if math.Abs(v) > 1e-9 {
			idx = append(idx, i)
		}
	}
	return idx
}

package route

import (
	"sync"
	"testing"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
	"github.com/cwbudde/algo-mixer/internal/metrics"
	"github.com/cwbudde/algo-mixer/mixer/processor"
)

const testBlock = 64

func testConfig() core.ProcessorConfig {
	return core.ApplyProcessorOptions(core.WithBlockSize(testBlock), core.WithDelayRamp(16))
}

func mono() chans.Count   { return chans.NewCount(1, 0) }
func stereo() chans.Count { return chans.NewCount(2, 0) }

// passPlugin copies its inputs to its outputs after a fixed latency figure.
// The audio itself is not delayed.
type passPlugin struct {
	in, out chans.Count
	latency int
}

func (p *passPlugin) Name() string                          { return "pass" }
func (p *passPlugin) NaturalIO() (chans.Count, chans.Count) { return p.in, p.out }
func (p *passPlugin) Latency() int                          { return p.latency }
func (p *passPlugin) Configure(float64, int) error          { return nil }
func (p *passPlugin) Reset()                                {}

func (p *passPlugin) Process(in, out [][]float64, _ []buffer.Event, nframes int) {
	for o := range out {
		if len(in) == 0 {
			clear(out[o][:nframes])
			continue
		}
		copy(out[o][:nframes], in[min(o, len(in)-1)][:nframes])
	}
}

func newPlugin(t *testing.T, name string, in, out chans.Count, latency int) *processor.PluginInsert {
	t.Helper()
	pi, err := processor.NewPluginInsert(name, func() (processor.Plugin, error) {
		return &passPlugin{in: in, out: out, latency: latency}, nil
	}, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	return pi
}

// testHost records what routes report to their session.
type testHost struct {
	mu      sync.Mutex
	running bool
	master  chans.Count
	returns map[processor.RouteID]*processor.InternalReturn

	solo        map[processor.RouteID]int
	isolate     map[processor.RouteID]int
	propagated  int
	latencyHits int
}

func newHost() *testHost {
	return &testHost{
		returns: map[processor.RouteID]*processor.InternalReturn{},
		solo:    map[processor.RouteID]int{},
		isolate: map[processor.RouteID]int{},
	}
}

func (h *testHost) ProcessLock() sync.Locker               { return &h.mu }
func (h *testHost) Running() bool                          { return h.running }
func (h *testHost) EnsureBuffers(chans.Count)              {}
func (h *testHost) Resolver() processor.ReturnResolver     { return h }
func (h *testHost) PortAllocator() processor.PortAllocator { return nil }
func (h *testHost) MasterInputs() chans.Count              { return h.master }
func (h *testHost) PropagateSolo()                         { h.propagated++ }
func (h *testHost) LatencyChanged(processor.RouteID)       { h.latencyHits++ }

func (h *testHost) SoloChanged(id processor.RouteID, delta int)    { h.solo[id] += delta }
func (h *testHost) IsolateChanged(id processor.RouteID, delta int) { h.isolate[id] += delta }

func (h *testHost) InternalReturnFor(id processor.RouteID) *processor.InternalReturn {
	return h.returns[id]
}

func newRoute(t *testing.T, id processor.RouteID, name string, kind Kind, in chans.Count, opts ...Option) *Route {
	t.Helper()
	r, err := New(id, name, kind, in, append([]Option{WithConfig(testConfig()), WithMetrics(metrics.New(nil))}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func names(list []processor.Processor) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.Name()
	}
	return out
}

// constant returns a set with count channels holding v.
func constant(count chans.Count, v float64) *buffer.Set {
	s := buffer.NewSet(count, testBlock)
	for c := 0; c < int(count.Audio()); c++ {
		for i, p := 0, s.Audio(c).Samples(); i < testBlock; i++ {
			p[i] = v
		}
	}
	return s
}

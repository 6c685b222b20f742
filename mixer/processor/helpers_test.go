package processor

import (
	"errors"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
)

const testBlock = 64

func testConfig() core.ProcessorConfig {
	return core.ApplyProcessorOptions(core.WithBlockSize(testBlock))
}

func mono() chans.Count   { return chans.NewCount(1, 0) }
func stereo() chans.Count { return chans.NewCount(2, 0) }

// filled returns a set with count channels where channel c holds fill(c).
func filled(count chans.Count, fill func(c int) float64) *buffer.Set {
	s := buffer.NewSet(count, testBlock)
	for c := 0; c < int(count.Audio()); c++ {
		v := fill(c)
		for i, p := 0, s.Audio(c).Samples(); i < testBlock; i++ {
			p[i] = v
		}
	}
	return s
}

func run(p Processor, bufs *buffer.Set) {
	p.Run(bufs, 0, testBlock, 1, testBlock, true)
}

// scalePlugin multiplies pin p by gain; output pins beyond the inputs repeat
// the last input.
type scalePlugin struct {
	in, out  chans.Count
	gain     float64
	latency  int
	flexible bool
	resets   int
}

func (p *scalePlugin) Name() string                          { return "scale" }
func (p *scalePlugin) NaturalIO() (chans.Count, chans.Count) { return p.in, p.out }
func (p *scalePlugin) Latency() int                          { return p.latency }
func (p *scalePlugin) Configure(float64, int) error          { return nil }
func (p *scalePlugin) Reset()                                { p.resets++ }
func (p *scalePlugin) FlexibleIO() bool                      { return p.flexible }

func (p *scalePlugin) Process(in, out [][]float64, _ []buffer.Event, nframes int) {
	for o := range out {
		if len(in) == 0 {
			clear(out[o][:nframes])
			continue
		}
		src := in[min(o, len(in)-1)]
		for i := 0; i < nframes; i++ {
			out[o][i] = src[i] * p.gain
		}
	}
}

func scaleFactory(in, out chans.Count, gain float64) PluginFactory {
	return func() (Plugin, error) {
		return &scalePlugin{in: in, out: out, gain: gain}, nil
	}
}

func failingFactory() (Plugin, error) { return nil, errors.New("no such plugin") }

type returns map[RouteID]*InternalReturn

func (r returns) InternalReturnFor(id RouteID) *InternalReturn { return r[id] }

type portPool struct {
	fail     bool
	released []string
}

func (p *portPool) AllocatePorts(_ string, count chans.Count) (*buffer.Set, error) {
	if p.fail {
		return nil, errors.New("out of ports")
	}
	return buffer.NewSet(count, testBlock), nil
}

func (p *portPool) ReleasePorts(owner string) { p.released = append(p.released, owner) }

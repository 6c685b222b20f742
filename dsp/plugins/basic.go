package plugins

import (
	"fmt"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
	"github.com/cwbudde/algo-mixer/dsp/delay"
	"github.com/cwbudde/algo-vecmath"
)

// Built-in plugin type names.
const (
	TypeGain         = "gain"
	TypeUpmix        = "upmix"
	TypeLatencyProbe = "latency-probe"
	TypeSynth        = "synth"
	TypeConvolver    = "convolver"
)

// MaxProbeLatency bounds the latency a LatencyProbe can declare.
const MaxProbeLatency = 1 << 20

var mono = chans.NewCount(1, 0)

// Gain scales every channel it receives. It accepts any channel count.
type Gain struct {
	gain float64
}

// NewGain returns a gain plugin at db decibels.
func NewGain(db float64) *Gain { return &Gain{gain: core.DBToGain(db)} }

func (g *Gain) Name() string                          { return TypeGain }
func (g *Gain) NaturalIO() (chans.Count, chans.Count) { return mono, mono }
func (g *Gain) FlexibleIO() bool                      { return true }
func (g *Gain) Latency() int                          { return 0 }
func (g *Gain) Configure(float64, int) error          { return nil }
func (g *Gain) Reset()                                {}

// Params reports the gain in dB.
func (g *Gain) Params() Params {
	return Params{Num: map[string]float64{"gain_db": core.GainToDB(g.gain)}}
}

// Process scales in onto out.
func (g *Gain) Process(in, out [][]float64, _ []buffer.Event, nframes int) {
	for c := range out {
		if c >= len(in) {
			clear(out[c][:nframes])
			continue
		}
		vecmath.ScaleBlock(out[c][:nframes], in[c][:nframes], g.gain)
	}
}

// Upmix copies one input to two outputs.
type Upmix struct{}

// NewUpmix returns a mono to stereo upmixer.
func NewUpmix() *Upmix { return &Upmix{} }

func (u *Upmix) Name() string { return TypeUpmix }
func (u *Upmix) NaturalIO() (chans.Count, chans.Count) {
	return mono, chans.NewCount(2, 0)
}
func (u *Upmix) Latency() int                 { return 0 }
func (u *Upmix) Configure(float64, int) error { return nil }
func (u *Upmix) Reset()                       {}

// Process copies the input to both outputs.
func (u *Upmix) Process(in, out [][]float64, _ []buffer.Event, nframes int) {
	for _, o := range out {
		copy(o[:nframes], in[0][:nframes])
	}
}

// LatencyProbe delays its input by a declared latency and reports it. It
// stands in for any plugin with algorithmic delay.
type LatencyProbe struct {
	latency int
	line    *delay.Line
}

// NewLatencyProbe returns a probe delaying by latency samples.
func NewLatencyProbe(latency int) (*LatencyProbe, error) {
	if latency < 0 || latency > MaxProbeLatency {
		return nil, fmt.Errorf("plugins: latency %d out of range [0, %d]", latency, MaxProbeLatency)
	}
	line, err := delay.New(latency + 1)
	if err != nil {
		return nil, err
	}
	return &LatencyProbe{latency: latency, line: line}, nil
}

func (p *LatencyProbe) Name() string                          { return TypeLatencyProbe }
func (p *LatencyProbe) NaturalIO() (chans.Count, chans.Count) { return mono, mono }
func (p *LatencyProbe) Latency() int                          { return p.latency }
func (p *LatencyProbe) Configure(float64, int) error          { return nil }
func (p *LatencyProbe) Reset()                                { p.line.Reset() }

func (p *LatencyProbe) Params() Params {
	return Params{Num: map[string]float64{"latency": float64(p.latency)}}
}

// Process delays the input.
func (p *LatencyProbe) Process(in, out [][]float64, _ []buffer.Event, nframes int) {
	src, dst := in[0][:nframes], out[0][:nframes]
	for i, x := range src {
		p.line.Write(x)
		dst[i] = p.line.Read(p.latency)
	}
}

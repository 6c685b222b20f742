package processor

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
	"github.com/cwbudde/algo-vecmath"
)

const (
	// declickLength is the number of samples over which a gain change is
	// ramped.
	declickLength = 128

	trimRangeDB = 20
)

// GainCurve provides automated gain values.
type GainCurve interface {
	GainAt(pos int64) float64
}

// GainCurveFunc adapts a function to GainCurve.
type GainCurveFunc func(pos int64) float64

// GainAt implements GainCurve.
func (f GainCurveFunc) GainAt(pos int64) float64 { return f(pos) }

// Amp applies a gain to every audio channel. The route's fader and trim are
// both Amps; sends embed one for their level.
type Amp struct {
	Base

	target  atomic.Uint64
	current float64
	primed  bool

	curve atomic.Pointer[GainCurve]

	gains []float64
}

// NewAmp returns a unity gain fader.
func NewAmp(name string, cfg core.ProcessorConfig) *Amp {
	a := &Amp{}
	a.init(name, KindAmp, cfg)
	a.display = true
	a.target.Store(math.Float64bits(1))
	a.current = 1
	a.gains = make([]float64, a.blockSize())
	return a
}

// NewTrim returns a unity gain trim. Trim gain is limited to +/-20 dB.
func NewTrim(name string, cfg core.ProcessorConfig) *Amp {
	a := NewAmp(name, cfg)
	a.kind = KindTrim
	a.display = false
	return a
}

// SetGain sets the linear gain target. Negative values are clamped to 0.
// The change is ramped over the next cycle.
func (a *Amp) SetGain(g float64) {
	if g < 0 || math.IsNaN(g) {
		g = 0
	}
	if a.kind == KindTrim {
		g = core.Clamp(g, core.DBToGain(-trimRangeDB), core.DBToGain(trimRangeDB))
	}
	a.target.Store(math.Float64bits(g))
}

// Gain returns the linear gain target.
func (a *Amp) Gain() float64 {
	return math.Float64frombits(a.target.Load())
}

// SetGainDB sets the gain target in dB.
func (a *Amp) SetGainDB(db float64) {
	a.SetGain(core.DBToGain(db))
}

// GainDB returns the gain target in dB.
func (a *Amp) GainDB() float64 {
	return core.GainToDB(a.Gain())
}

// SetAutomation makes the amp follow curve instead of its static gain.
// A nil curve turns automation off.
func (a *Amp) SetAutomation(curve GainCurve) {
	if curve == nil {
		a.curve.Store(nil)
		return
	}
	a.curve.Store(&curve)
}

// Automated reports whether a gain curve is in control.
func (a *Amp) Automated() bool {
	return a.curve.Load() != nil
}

// ConfigureIO grows the gain buffer to the block size.
func (a *Amp) ConfigureIO(in, out chans.Count) bool {
	if len(a.gains) < a.blockSize() {
		a.gains = make([]float64, a.blockSize())
	}
	return a.Base.ConfigureIO(in, out)
}

// Run applies the gain. An inactive amp passes the signal through.
func (a *Amp) Run(bufs *buffer.Set, start, _ int64, _ float64, nframes int, _ bool) {
	if !a.Active() || nframes <= 0 {
		return
	}
	if nframes > len(a.gains) {
		nframes = len(a.gains)
	}

	if c := a.curve.Load(); c != nil {
		g := a.gains[:nframes]
		for i := range g {
			g[i] = (*c).GainAt(start + int64(i))
		}
		a.current = g[nframes-1]
		a.applyGains(bufs, nframes)
		return
	}

	a.applyTarget(bufs, a.Gain(), nframes)
}

// applyTarget ramps from the current gain to target and applies it.
func (a *Amp) applyTarget(bufs *buffer.Set, target float64, nframes int) {
	if !a.primed {
		a.current = target
		a.primed = true
	}

	if target == 0 && a.current == 0 {
		bufs.Silence(nframes, 0)
		return
	}
	rampGain(bufs, &a.current, target, a.gains, nframes)
}

func (a *Amp) applyGains(bufs *buffer.Set, nframes int) {
	g := a.gains[:nframes]
	for i := 0; i < int(bufs.Count().Audio()); i++ {
		vecmath.MulBlockInPlace(bufs.Audio(i).Samples()[:nframes], g)
	}
}

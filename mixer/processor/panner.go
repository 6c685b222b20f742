package processor

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
)

// Panner distributes a route's channels onto a delivery's outputs.
//
// One input onto two or more outputs uses a constant-power law over the first
// two outputs. Two inputs onto two outputs apply a balance. Anything else is
// copied channel by channel; when there are more outputs than inputs the last
// input is repeated on the remaining outputs.
type Panner struct {
	position atomic.Uint64
	bypassed atomic.Bool
	canPan   atomic.Bool
}

// NewPanner returns a centered panner.
func NewPanner() *Panner {
	p := &Panner{}
	p.position.Store(math.Float64bits(0.5))
	p.canPan.Store(true)
	return p
}

// SetPosition sets the pan position, 0 is hard left and 1 is hard right.
func (p *Panner) SetPosition(pos float64) {
	if math.IsNaN(pos) {
		pos = 0.5
	}
	p.position.Store(math.Float64bits(math.Max(0, math.Min(1, pos))))
}

// Position returns the pan position.
func (p *Panner) Position() float64 { return math.Float64frombits(p.position.Load()) }

// SetBypassed disables panning laws; channels are copied.
func (p *Panner) SetBypassed(yn bool) { p.bypassed.Store(yn) }

// Bypassed reports whether panning is disabled.
func (p *Panner) Bypassed() bool { return p.bypassed.Load() }

// SetCanPan enables or disables the panning laws without touching the
// user's bypass setting.
func (p *Panner) SetCanPan(yn bool) { p.canPan.Store(yn) }

// CanPan reports whether panning laws may be used.
func (p *Panner) CanPan() bool { return p.canPan.Load() }

// Gains returns the left and right gains of the mono law at the current
// position.
func (p *Panner) Gains() (float64, float64) {
	theta := p.Position() * math.Pi / 2
	return math.Cos(theta), math.Sin(theta)
}

func (p *Panner) panning() bool {
	return p != nil && p.canPan.Load() && !p.bypassed.Load()
}

// Distribute writes in onto out scaled by gain. out keeps its active count;
// the active channels of out are overwritten.
func (p *Panner) Distribute(in, out *buffer.Set, gain float64, nframes int) {
	out.Silence(nframes, 0)

	nin := int(in.Count().Audio())
	nout := int(out.Count().Audio())

	switch {
	case nin == 0 || nout == 0:
	case nin == 1 && nout >= 2 && p.panning():
		l, r := p.Gains()
		out.Audio(0).MixFromWithGain(in.Audio(0), nframes, gain*l)
		out.Audio(1).MixFromWithGain(in.Audio(0), nframes, gain*r)
	case nin == 2 && nout == 2 && p.panning():
		pos := p.Position()
		l, r := 1.0, 1.0
		if pos < 0.5 {
			r = pos * 2
		} else {
			l = (1 - pos) * 2
		}
		out.Audio(0).MixFromWithGain(in.Audio(0), nframes, gain*l)
		out.Audio(1).MixFromWithGain(in.Audio(1), nframes, gain*r)
	default:
		for o := 0; o < nout; o++ {
			i := min(o, nin-1)
			out.Audio(o).MixFromWithGain(in.Audio(i), nframes, gain)
		}
	}

	nmidi := min(int(in.Count().MIDI()), int(out.Count().MIDI()))
	for i := 0; i < nmidi; i++ {
		out.MIDI(i).ReadFrom(in.MIDI(i))
	}
}

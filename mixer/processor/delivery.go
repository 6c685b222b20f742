package processor

import (
	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
	"github.com/cwbudde/algo-vecmath"
)

// Role is what a delivery or send is for.
type Role int

const (
	RoleMain Role = iota
	RoleSend
	RoleListen
	RoleAux
	RoleFoldback
	RoleSurround
)

var roleNames = [...]string{"main", "send", "listen", "aux", "foldback", "surround"}

func (r Role) String() string {
	if r >= 0 && int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "unknown"
}

// ParseRole is the inverse of String.
func ParseRole(s string) (Role, bool) {
	for i, n := range roleNames {
		if n == s {
			return Role(i), true
		}
	}
	return 0, false
}

// mutePoint returns where a send with this role taps mute state.
func (r Role) mutePoint(postFader bool) MutePoint {
	switch r {
	case RoleMain:
		return MuteMain
	case RoleListen:
		return MuteListen
	}
	if postFader {
		return MutePostFader
	}
	return MutePreFader
}

// Delivery hands a route's signal to its output ports. The main outs of a
// route are a Delivery with RoleMain; it is always the last processor but for
// an output meter or an after-fader listen send.
type Delivery struct {
	Base

	role   Role
	panner *Panner
	mute   *MuteMaster

	ports  chans.Count
	output *buffer.Set

	silenced   bool
	muteGain   float64
	gains      []float64
	monitorOff bool
}

// NewMainOuts returns the main delivery of a route.
func NewMainOuts(name string, mute *MuteMaster, cfg core.ProcessorConfig) *Delivery {
	d := &Delivery{role: RoleMain, panner: NewPanner(), mute: mute, muteGain: 1}
	d.init(name, KindMainOuts, cfg)
	d.gains = make([]float64, d.blockSize())
	d.output = buffer.NewSet(chans.Zero, d.blockSize())
	return d
}

// Role returns the delivery role.
func (d *Delivery) Role() Role { return d.role }

// Panner returns the delivery's panner.
func (d *Delivery) Panner() *Panner { return d.panner }

// SetPorts sets the number of output ports. The delivery never outputs fewer
// channels than ports unless the route forces it.
func (d *Delivery) SetPorts(c chans.Count) { d.ports = c }

// Ports returns the number of output ports.
func (d *Delivery) Ports() chans.Count { return d.ports }

// Output returns the output port buffers written by the last cycle.
func (d *Delivery) Output() *buffer.Set { return d.output }

// SetMonitoringSilence makes the delivery output silence, e.g. while a track
// neither monitors input nor disk.
func (d *Delivery) SetMonitoringSilence(yn bool) { d.monitorOff = yn }

// CanSupportIOConfiguration widens the output to the number of ports.
func (d *Delivery) CanSupportIOConfiguration(in chans.Count) (chans.Count, bool) {
	if d.ports.IsZero() {
		return in, true
	}
	return chans.Max(d.ports, in), true
}

// ConfigureIO sizes the output buffers.
func (d *Delivery) ConfigureIO(in, out chans.Count) bool {
	d.output.Ensure(out, d.blockSize())
	d.output.SetCount(out)
	if len(d.gains) < d.blockSize() {
		d.gains = make([]float64, d.blockSize())
	}
	return d.Base.ConfigureIO(in, out)
}

// Run pans bufs onto the output ports and applies the mute gain. The route's
// buffers are not modified.
func (d *Delivery) Run(bufs *buffer.Set, _, _ int64, _ float64, nframes int, _ bool) {
	d.output.SetCount(d.OutputStreams())
	if !d.Active() || d.monitorOff {
		d.output.Silence(nframes, 0)
		d.silenced = true
		return
	}

	target := d.mute.GainAt(d.role.mutePoint(true))
	if target == 0 && d.muteGain == 0 {
		d.output.Silence(nframes, 0)
		return
	}

	d.panner.Distribute(bufs, d.output, 1, nframes)
	if d.silenced {
		d.silenced = false
		d.muteGain = target
	}
	rampGain(d.output, &d.muteGain, target, d.gains, nframes)
}

// Flush clears the output buffers.
func (d *Delivery) Flush() {
	d.output.SilenceAll()
}

// rampGain applies a declicked gain change from *current to target.
func rampGain(set *buffer.Set, current *float64, target float64, scratch []float64, nframes int) {
	if *current == target {
		if target != 1 {
			for i := 0; i < int(set.Count().Audio()); i++ {
				s := set.Audio(i).Samples()[:nframes]
				vecmath.ScaleBlock(s, s, target)
			}
		}
		return
	}
	nframes = min(nframes, len(scratch))
	ramp := min(declickLength, nframes)
	g := scratch[:nframes]
	step := (target - *current) / float64(ramp)
	for i := 0; i < ramp; i++ {
		g[i] = *current + step*float64(i+1)
	}
	for i := ramp; i < nframes; i++ {
		g[i] = target
	}
	*current = target
	for i := 0; i < int(set.Count().Audio()); i++ {
		vecmath.MulBlockInPlace(set.Audio(i).Samples()[:nframes], g)
	}
}

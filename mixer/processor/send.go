package processor

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
	"github.com/cwbudde/algo-mixer/dsp/delay"
)

// ErrNoAllocator is returned when a Send is created without a port allocator.
var ErrNoAllocator = errors.New("processor: no port allocator")

// sendPath is the part shared by external and internal sends: a level, a
// panner onto the destination channels and the two alignment delays.
//
// The send delay holds back the diverted signal when the direct path is
// slower; the thru delay holds back the direct path when the destination is
// slower.
type sendPath struct {
	amp       *Amp
	panner    *Panner
	mute      *MuteMaster
	role      Role
	postFader atomic.Bool

	sendDelay *delay.Bank
	thruDelay *delay.Bank
	delayIn   int
	delayOut  int

	muteGain float64
	gains    []float64
}

func (p *sendPath) initPath(name string, role Role, mute *MuteMaster, cfg core.ProcessorConfig) {
	p.amp = NewAmp(name+" level", cfg)
	p.amp.Activate()
	if role == RoleAux || role == RoleFoldback {
		p.amp.SetGain(0)
	}
	p.panner = NewPanner()
	p.mute = mute
	p.role = role
	p.muteGain = 1
	p.gains = make([]float64, p.amp.blockSize())
	p.sendDelay = delay.NewBank(chans.Zero, p.amp.blockSize(), cfg.DelayRamp)
	p.thruDelay = delay.NewBank(chans.Zero, p.amp.blockSize(), cfg.DelayRamp)
}

// Amp returns the send level.
func (p *sendPath) Amp() *Amp { return p.amp }

// Panner returns the panner onto the destination channels.
func (p *sendPath) Panner() *Panner { return p.panner }

// Role returns what the send is for.
func (p *sendPath) Role() Role { return p.role }

// SetPostFader records whether the send sits after the fader. It selects the
// mute point the send obeys.
func (p *sendPath) SetPostFader(yn bool) { p.postFader.Store(yn) }

// PostFader reports whether the send sits after the fader.
func (p *sendPath) PostFader() bool { return p.postFader.Load() }

// DelayIn returns the latency from the send to where the direct path is heard.
func (p *sendPath) DelayIn() int { return p.delayIn }

// DelayOut returns the latency from the destination to where the diverted
// path is heard.
func (p *sendPath) DelayOut() int { return p.delayOut }

// SetDelayIn updates the direct path latency. Called with the process lock
// held.
func (p *sendPath) SetDelayIn(samples int, ramp bool) {
	p.delayIn = max(samples, 0)
	p.updateDelays(ramp)
}

// SetDelayOut updates the diverted path latency. Called with the process lock
// held.
func (p *sendPath) SetDelayOut(samples int, ramp bool) {
	p.delayOut = max(samples, 0)
	p.updateDelays(ramp)
}

// SendDelay returns the delay applied to the diverted signal.
func (p *sendPath) SendDelay() int { return p.sendDelay.Delay() }

// ThruDelay returns the delay applied to the direct path.
func (p *sendPath) ThruDelay() int { return p.thruDelay.Delay() }

func (p *sendPath) updateDelays(ramp bool) {
	send, thru := 0, 0
	switch {
	case p.role == RoleListen:
	case p.delayOut > p.delayIn:
		thru = p.delayOut - p.delayIn
	default:
		send = p.delayIn - p.delayOut
	}
	p.sendDelay.SetDelay(send, ramp)
	p.thruDelay.SetDelay(thru, ramp)
}

func (p *sendPath) configure(in, dest chans.Count, blockSize int) {
	p.amp.ConfigureIO(dest, dest)
	p.sendDelay.Configure(dest, blockSize)
	p.thruDelay.Configure(in, blockSize)
	if len(p.gains) < blockSize {
		p.gains = make([]float64, blockSize)
	}
}

// divert pans bufs into dest, applies level and mute and aligns the result.
func (p *sendPath) divert(bufs, dest *buffer.Set, start, end int64, speed float64, nframes int) {
	p.panner.Distribute(bufs, dest, 1, nframes)
	if p.role != RoleListen {
		p.amp.Run(dest, start, end, speed, nframes, true)
	}
	rampGain(dest, &p.muteGain, p.mute.GainAt(p.role.mutePoint(p.PostFader())), p.gains, nframes)
	p.sendDelay.Process(dest, nframes)
}

// Flush clears signal held in the alignment delays.
func (p *sendPath) Flush() {
	p.sendDelay.Flush()
	p.thruDelay.Flush()
}

// PortAllocator provides output port buffers for external sends.
type PortAllocator interface {
	AllocatePorts(owner string, count chans.Count) (*buffer.Set, error)
	ReleasePorts(owner string)
}

// Send delivers a copy of a route's signal to output ports of its own.
type Send struct {
	Base
	sendPath

	alloc PortAllocator
	ports *buffer.Set
	count chans.Count
}

// NewSend allocates count output ports and returns a pre-fader send.
func NewSend(name string, alloc PortAllocator, count chans.Count, mute *MuteMaster, cfg core.ProcessorConfig) (*Send, error) {
	if alloc == nil {
		return nil, ErrNoAllocator
	}
	ports, err := alloc.AllocatePorts(name, count)
	if err != nil {
		return nil, fmt.Errorf("processor: send %q: %w", name, err)
	}
	s := &Send{alloc: alloc, ports: ports, count: count}
	s.init(name, KindSend, cfg)
	s.display = true
	s.sendPath.initPath(name, RoleSend, mute, cfg)
	return s, nil
}

// Ports returns the send's output port buffers.
func (s *Send) Ports() *buffer.Set { return s.ports }

// PortCount returns how many output ports the send owns.
func (s *Send) PortCount() chans.Count { return s.count }

// Release gives the output ports back. The send must not run afterwards.
func (s *Send) Release() {
	if s.alloc != nil {
		s.alloc.ReleasePorts(s.name)
		s.alloc = nil
	}
}

// EffectiveLatency is the delay added to the direct path.
func (s *Send) EffectiveLatency() int { return s.thruDelay.Delay() }

// ConfigureIO sizes the delays for the route and the ports.
func (s *Send) ConfigureIO(in, out chans.Count) bool {
	s.ports.Ensure(s.count, s.blockSize())
	s.configure(in, s.count, s.blockSize())
	return s.Base.ConfigureIO(in, out)
}

// Run writes the diverted signal to the ports and delays the direct path if
// needed.
func (s *Send) Run(bufs *buffer.Set, start, end int64, speed float64, nframes int, _ bool) {
	s.ports.SetCount(s.count)
	if !s.Active() {
		s.ports.Silence(nframes, 0)
		return
	}
	s.divert(bufs, s.ports, start, end, speed, nframes)
	s.thruDelay.Process(bufs, nframes)
}

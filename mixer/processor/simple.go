package processor

import (
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
	"github.com/cwbudde/algo-mixer/dsp/delay"
	"github.com/cwbudde/algo-vecmath"
)

const maxPolarityChannels = 64

// Polarity inverts selected audio channels.
type Polarity struct {
	Base
	inverted atomic.Uint64
}

// NewPolarity returns a polarity processor with no channel inverted.
func NewPolarity(name string, cfg core.ProcessorConfig) *Polarity {
	p := &Polarity{}
	p.init(name, KindPolarity, cfg)
	return p
}

// SetInverted inverts or restores channel ch. Channels beyond 63 are ignored.
func (p *Polarity) SetInverted(ch int, yn bool) {
	if ch < 0 || ch >= maxPolarityChannels {
		return
	}
	for {
		cur := p.inverted.Load()
		next := cur &^ (1 << ch)
		if yn {
			next = cur | 1<<ch
		}
		if p.inverted.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Inverted reports whether channel ch is inverted.
func (p *Polarity) Inverted(ch int) bool {
	if ch < 0 || ch >= maxPolarityChannels {
		return false
	}
	return p.inverted.Load()&(1<<ch) != 0
}

// Run inverts the selected channels.
func (p *Polarity) Run(bufs *buffer.Set, _, _ int64, _ float64, nframes int, _ bool) {
	mask := p.inverted.Load()
	if !p.Active() || mask == 0 {
		return
	}
	for i := 0; i < int(bufs.Count().Audio()) && i < maxPolarityChannels; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		s := bufs.Audio(i).Samples()[:nframes]
		vecmath.ScaleBlock(s, s, -1)
	}
}

// DelayLine delays the whole route signal to align it with other routes. Its
// delay is compensation and does not count towards the route's latency.
type DelayLine struct {
	Base
	bank *delay.Bank
}

// NewDelayLine returns a delay line with zero delay.
func NewDelayLine(name string, cfg core.ProcessorConfig) *DelayLine {
	d := &DelayLine{}
	d.init(name, KindDelayLine, cfg)
	d.bank = delay.NewBank(chans.Zero, d.blockSize(), cfg.DelayRamp)
	return d
}

// SetDelay sets the compensation delay. It returns whether it changed.
func (d *DelayLine) SetDelay(samples int, ramp bool) bool {
	return d.bank.SetDelay(samples, ramp)
}

// Delay returns the compensation delay.
func (d *DelayLine) Delay() int { return d.bank.Delay() }

// ConfigureIO grows the delay buffers.
func (d *DelayLine) ConfigureIO(in, out chans.Count) bool {
	d.bank.Configure(in, d.blockSize())
	return d.Base.ConfigureIO(in, out)
}

// Run delays bufs.
func (d *DelayLine) Run(bufs *buffer.Set, _, _ int64, _ float64, nframes int, _ bool) {
	if !d.Active() {
		return
	}
	d.bank.Process(bufs, nframes)
}

// Flush clears delayed signal.
func (d *DelayLine) Flush() { d.bank.Flush() }

// MonitorControl is the monitor section's cut, dim and mono stage.
type MonitorControl struct {
	Base

	cut     atomic.Uint64
	dimmed  atomic.Bool
	mono    atomic.Bool
	dimGain float64

	gain  float64
	gains []float64
}

// DefaultDimDB is the dim level of a new monitor section.
const DefaultDimDB = -20

// NewMonitorControl returns a monitor control stage that passes everything.
func NewMonitorControl(name string, cfg core.ProcessorConfig) *MonitorControl {
	m := &MonitorControl{dimGain: core.DBToGain(DefaultDimDB), gain: 1}
	m.init(name, KindMonitorControl, cfg)
	m.gains = make([]float64, m.blockSize())
	return m
}

// SetCut cuts or restores channel ch.
func (m *MonitorControl) SetCut(ch int, yn bool) {
	if ch < 0 || ch >= maxPolarityChannels {
		return
	}
	for {
		cur := m.cut.Load()
		next := cur &^ (1 << ch)
		if yn {
			next = cur | 1<<ch
		}
		if m.cut.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Cut reports whether channel ch is cut.
func (m *MonitorControl) Cut(ch int) bool {
	return ch >= 0 && ch < maxPolarityChannels && m.cut.Load()&(1<<ch) != 0
}

// SetDim enables the dim level.
func (m *MonitorControl) SetDim(yn bool) { m.dimmed.Store(yn) }

// SetMono sums all channels to every channel.
func (m *MonitorControl) SetMono(yn bool) { m.mono.Store(yn) }

// Run applies mono, dim and cut.
func (m *MonitorControl) Run(bufs *buffer.Set, _, _ int64, _ float64, nframes int, _ bool) {
	if !m.Active() {
		return
	}
	n := int(bufs.Count().Audio())
	if m.mono.Load() && n > 1 {
		sum := bufs.Audio(0).Samples()[:nframes]
		for i := 1; i < n; i++ {
			vecmath.AddBlockInPlace(sum, bufs.Audio(i).Samples()[:nframes])
		}
		vecmath.ScaleBlock(sum, sum, 1/float64(n))
		for i := 1; i < n; i++ {
			copy(bufs.Audio(i).Samples()[:nframes], sum)
		}
	}

	target := 1.0
	if m.dimmed.Load() {
		target = m.dimGain
	}
	rampGain(bufs, &m.gain, target, m.gains, nframes)

	cut := m.cut.Load()
	for i := 0; i < n && i < maxPolarityChannels; i++ {
		if cut&(1<<i) != 0 {
			bufs.Audio(i).ZeroRange(0, nframes)
		}
	}
}

// MaxInsertLatency bounds the round trip a PortInsert can model.
const MaxInsertLatency = 1 << 15

// PortInsert sends the signal out of the engine and reads it back through
// external hardware. The round trip is modelled as a pure delay of the
// measured latency.
type PortInsert struct {
	Base
	latency atomic.Int64
	bank    *delay.Bank
}

// NewPortInsert returns an insert with the given round-trip latency.
func NewPortInsert(name string, latency int, cfg core.ProcessorConfig) *PortInsert {
	p := &PortInsert{}
	p.init(name, KindPortInsert, cfg)
	p.display = true
	p.bank = delay.NewBank(chans.Zero, p.blockSize(), cfg.DelayRamp)
	p.bank.Reserve(MaxInsertLatency)
	p.SetMeasuredLatency(latency)
	p.bank.SetDelay(p.EffectiveLatency(), false)
	return p
}

// SetMeasuredLatency records a new round-trip measurement. The process thread
// picks it up on its next cycle.
func (p *PortInsert) SetMeasuredLatency(samples int) {
	p.latency.Store(int64(core.Clamp(float64(samples), 0, MaxInsertLatency)))
}

// EffectiveLatency is the measured round trip.
func (p *PortInsert) EffectiveLatency() int { return int(p.latency.Load()) }

// ConfigureIO grows the return buffers.
func (p *PortInsert) ConfigureIO(in, out chans.Count) bool {
	p.bank.Configure(in, p.blockSize())
	return p.Base.ConfigureIO(in, out)
}

// Run passes the signal through the external loop.
func (p *PortInsert) Run(bufs *buffer.Set, _, _ int64, _ float64, nframes int, _ bool) {
	if !p.Active() {
		return
	}
	if want := p.EffectiveLatency(); want != p.bank.Delay() {
		p.bank.SetDelay(want, true)
	}
	p.bank.Process(bufs, nframes)
}

// Flush clears signal in flight.
func (p *PortInsert) Flush() { p.bank.Flush() }

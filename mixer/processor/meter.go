package processor

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
)

// MeterPoint is where a route's meter sits.
type MeterPoint int

const (
	MeterInput MeterPoint = iota
	MeterPreFader
	MeterPostFader
	MeterOutput
	MeterCustom
)

var meterPointNames = [...]string{"input", "prefader", "postfader", "output", "custom"}

func (m MeterPoint) String() string {
	if m >= 0 && int(m) < len(meterPointNames) {
		return meterPointNames[m]
	}
	return "unknown"
}

// ParseMeterPoint is the inverse of String.
func ParseMeterPoint(s string) (MeterPoint, bool) {
	for i, n := range meterPointNames {
		if n == s {
			return MeterPoint(i), true
		}
	}
	return 0, false
}

// Meter measures per-channel peak and RMS levels. Readings are published
// atomically for control threads.
type Meter struct {
	Base

	maxChannels chans.Count
	reflect     bool
	shown       chans.Count

	peaks  []atomic.Uint64
	rms    []atomic.Uint64
	events []atomic.Int64
}

// NewMeter returns an invisible meter.
func NewMeter(name string, cfg core.ProcessorConfig) *Meter {
	m := &Meter{}
	m.init(name, KindMeter, cfg)
	return m
}

// SetMaxChannels grows the readings to c channels. The route calls it with
// the largest stream count of its chain so that moving the meter never
// requires an allocation.
func (m *Meter) SetMaxChannels(c chans.Count) {
	c = chans.Max(c, m.maxChannels)
	if c == m.maxChannels {
		return
	}
	m.maxChannels = c
	m.peaks = make([]atomic.Uint64, c.Audio())
	m.rms = make([]atomic.Uint64, c.Audio())
	m.events = make([]atomic.Int64, c.MIDI())
}

// MaxChannels returns the allocated number of readings.
func (m *Meter) MaxChannels() chans.Count { return m.maxChannels }

// ReflectInputs makes the meter display the given count instead of the
// configured one. The route uses it to show input channels for input
// metering.
func (m *Meter) ReflectInputs(c chans.Count) {
	m.reflect = true
	m.shown = c
}

// Channels returns the number of channels the meter displays.
func (m *Meter) Channels() chans.Count {
	if m.reflect {
		return chans.Min(m.shown, m.maxChannels)
	}
	return chans.Min(m.InputStreams(), m.maxChannels)
}

// ConfigureIO keeps reflecting the requested count if set.
func (m *Meter) ConfigureIO(in, out chans.Count) bool {
	m.SetMaxChannels(in)
	m.reflect = false
	return m.Base.ConfigureIO(in, out)
}

// Run measures bufs. The signal passes unchanged.
func (m *Meter) Run(bufs *buffer.Set, _, _ int64, _ float64, nframes int, _ bool) {
	if !m.Active() {
		return
	}
	n := min(int(bufs.Count().Audio()), len(m.peaks))
	for i := 0; i < n; i++ {
		s := bufs.Audio(i).Samples()[:nframes]
		peak := 0.0
		for _, v := range s {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		if prev := math.Float64frombits(m.peaks[i].Load()); peak > prev {
			m.peaks[i].Store(math.Float64bits(peak))
		}
		m.rms[i].Store(math.Float64bits(core.RMS(s)))
	}
	nm := min(int(bufs.Count().MIDI()), len(m.events))
	for i := 0; i < nm; i++ {
		m.events[i].Add(int64(bufs.MIDI(i).Len()))
	}
}

// Peak returns the held linear peak of channel ch.
func (m *Meter) Peak(ch int) float64 {
	if ch < 0 || ch >= len(m.peaks) {
		return 0
	}
	return math.Float64frombits(m.peaks[ch].Load())
}

// PeakDB returns the held peak of channel ch in dB.
func (m *Meter) PeakDB(ch int) float64 {
	return core.FastGainToDB(m.Peak(ch))
}

// RMS returns the RMS level of channel ch over the last cycle.
func (m *Meter) RMS(ch int) float64 {
	if ch < 0 || ch >= len(m.rms) {
		return 0
	}
	return math.Float64frombits(m.rms[ch].Load())
}

// Events returns the number of MIDI events seen on channel ch.
func (m *Meter) Events(ch int) int64 {
	if ch < 0 || ch >= len(m.events) {
		return 0
	}
	return m.events[ch].Load()
}

// Reset clears the held readings.
func (m *Meter) Reset() {
	for i := range m.peaks {
		m.peaks[i].Store(0)
		m.rms[i].Store(0)
	}
	for i := range m.events {
		m.events[i].Store(0)
	}
}

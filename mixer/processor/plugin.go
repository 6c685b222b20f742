package processor

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
	"github.com/cwbudde/algo-vecmath"
)

// ErrNoPlugin is returned when a plugin factory yields nothing.
var ErrNoPlugin = errors.New("processor: plugin factory returned nil")

// Plugin is an opaque DSP unit hosted by a PluginInsert. One Plugin value is
// one instance; a PluginInsert may run several instances side by side.
type Plugin interface {
	Name() string
	// NaturalIO is the pin count of one instance.
	NaturalIO() (in, out chans.Count)
	// Latency is the delay in samples the plugin introduces.
	Latency() int
	Configure(sampleRate float64, blockSize int) error
	// Process reads len(in) input pins and writes len(out) output pins.
	// events holds the MIDI input of the first MIDI pin, if any.
	Process(in, out [][]float64, events []buffer.Event, nframes int)
	Reset()
}

// FlexiblePlugin is implemented by plugins that process any number of audio
// channels and produce as many as they receive.
type FlexiblePlugin interface {
	FlexibleIO() bool
}

// PluginFactory creates plugin instances.
type PluginFactory func() (Plugin, error)

// MatchMethod is how a plugin's pins are fitted to a route's channels.
type MatchMethod int

const (
	MatchImpossible MatchMethod = iota
	// MatchExact: one instance, pins equal channels.
	MatchExact
	// MatchFlexible: one instance taking every channel.
	MatchFlexible
	// MatchReplicate: one instance per group of channels.
	MatchReplicate
	// MatchCustom: instance count and outputs chosen by the user.
	MatchCustom
	// MatchGenerator: the plugin takes no input.
	MatchGenerator
)

var matchNames = [...]string{"impossible", "exact", "flexible", "replicate", "custom", "generator"}

func (m MatchMethod) String() string {
	if m >= 0 && int(m) < len(matchNames) {
		return matchNames[m]
	}
	return "unknown"
}

// Match is the outcome of fitting a plugin to an input configuration.
type Match struct {
	Method MatchMethod
	Count  int
	Out    chans.Count
}

type customConfig struct {
	enabled bool
	count   int
	out     chans.Count
	sinks   chans.Count
}

type pinRoute struct{ from, to uint32 }

// PluginInsert hosts a plugin in a route's chain and maps the route's
// channels onto the plugin's pins.
type PluginInsert struct {
	Base

	factory  PluginFactory
	plugins  []Plugin
	natIn    chans.Count
	natOut   chans.Count
	flexible bool

	strict bool
	custom customConfig
	match  Match

	inMaps   []*chans.Mapping
	outMaps  []*chans.Mapping
	thru     *chans.Mapping
	userMaps bool

	thruAudio []pinRoute
	thruMIDI  []pinRoute

	inCopy *buffer.Set
	outSet *buffer.Set
	pinIn  [][][]float64
	pinOut [][][]float64
	views  [][][]float64
	outs   [][][]float64
}

// NewPluginInsert creates an insert and its first instance.
func NewPluginInsert(name string, factory PluginFactory, cfg core.ProcessorConfig) (*PluginInsert, error) {
	pi := &PluginInsert{factory: factory, thru: chans.NewMapping()}
	pi.init(name, KindPlugin, cfg)
	pi.display = true

	p, err := pi.newInstance()
	if err != nil {
		return nil, err
	}
	pi.plugins = []Plugin{p}
	pi.natIn, pi.natOut = p.NaturalIO()
	if f, ok := p.(FlexiblePlugin); ok && f.FlexibleIO() {
		pi.flexible = true
	}
	return pi, nil
}

func (pi *PluginInsert) newInstance() (Plugin, error) {
	p, err := pi.factory()
	if err != nil {
		return nil, fmt.Errorf("processor: plugin %q: %w", pi.name, err)
	}
	if p == nil {
		return nil, ErrNoPlugin
	}
	if err := p.Configure(pi.cfg.SampleRate, pi.blockSize()); err != nil {
		return nil, fmt.Errorf("processor: configure plugin %q: %w", p.Name(), err)
	}
	return p, nil
}

// Plugin returns instance i, or nil.
func (pi *PluginInsert) Plugin(i int) Plugin {
	if i < 0 || i >= len(pi.plugins) {
		return nil
	}
	return pi.plugins[i]
}

// NaturalIO returns the pin counts of one instance.
func (pi *PluginInsert) NaturalIO() (chans.Count, chans.Count) { return pi.natIn, pi.natOut }

// Instances returns the number of running instances.
func (pi *PluginInsert) Instances() int { return len(pi.plugins) }

// CurrentMatch returns the match chosen by the last ConfigureIO.
func (pi *PluginInsert) CurrentMatch() Match { return pi.match }

// SetStrictIO forces the output count to equal the input count.
func (pi *PluginInsert) SetStrictIO(yn bool) { pi.strict = yn }

// StrictIO reports whether strict I/O is on.
func (pi *PluginInsert) StrictIO() bool { return pi.strict }

// SetCustomConfiguration pins the instance count and output channels.
// sinks is the number of input channels the instances are fed from.
func (pi *PluginInsert) SetCustomConfiguration(count int, out, sinks chans.Count) {
	pi.custom = customConfig{enabled: count > 0, count: count, out: out, sinks: sinks}
}

// ClearCustomConfiguration returns to automatic matching.
func (pi *PluginInsert) ClearCustomConfiguration() { pi.custom = customConfig{} }

// CustomConfiguration returns the custom configuration and whether it is on.
func (pi *PluginInsert) CustomConfiguration() (count int, out, sinks chans.Count, ok bool) {
	c := pi.custom
	return c.count, c.out, c.sinks, c.enabled
}

// EffectiveLatency is the latency of one instance; instances run in parallel.
func (pi *PluginInsert) EffectiveLatency() int { return pi.plugins[0].Latency() }

// Match fits the plugin to in without changing state.
func (pi *PluginInsert) Match(in chans.Count) Match {
	m := pi.privateMatch(in)
	if m.Method == MatchImpossible {
		return m
	}
	if pi.strict && in.Audio() > 0 && m.Method != MatchCustom {
		m.Out = m.Out.With(chans.Audio, in.Audio())
	}
	return m
}

func (pi *PluginInsert) privateMatch(in chans.Count) Match {
	if pi.custom.enabled {
		return Match{Method: MatchCustom, Count: pi.custom.count, Out: pi.custom.out}
	}

	midiOut := pi.natOut.MIDI()
	if pi.natIn.MIDI() == 0 && pi.natOut.MIDI() == 0 {
		midiOut = in.MIDI()
	}

	if pi.flexible {
		return Match{Method: MatchFlexible, Count: 1, Out: chans.NewCount(in.Audio(), midiOut)}
	}

	nin := pi.natIn.Audio()
	switch {
	case nin == 0 && pi.natIn.MIDI() == 0:
		return Match{Method: MatchGenerator, Count: 1, Out: pi.natOut.With(chans.MIDI, midiOut)}
	case in.MIDI() < pi.natIn.MIDI():
		return Match{}
	case nin == in.Audio() || nin == 0:
		return Match{Method: MatchExact, Count: 1, Out: pi.natOut.With(chans.MIDI, midiOut)}
	case pi.natIn.MIDI() == 0 && in.Audio() > nin && in.Audio()%nin == 0:
		n := in.Audio() / nin
		return Match{Method: MatchReplicate, Count: int(n), Out: chans.NewCount(pi.natOut.Audio()*n, midiOut)}
	}
	return Match{}
}

// CanSupportIOConfiguration reports the output for in. A plugin needing more
// inputs than the route carries is not fed by splitting channels.
func (pi *PluginInsert) CanSupportIOConfiguration(in chans.Count) (chans.Count, bool) {
	m := pi.Match(in)
	if m.Method == MatchImpossible {
		return chans.Zero, false
	}
	return m.Out, true
}

// ConfigureIO creates or drops instances and sets up pin maps and scratch.
func (pi *PluginInsert) ConfigureIO(in, out chans.Count) bool {
	m := pi.Match(in)
	if m.Method == MatchImpossible {
		return false
	}

	for len(pi.plugins) < m.Count {
		p, err := pi.newInstance()
		if err != nil {
			return false
		}
		pi.plugins = append(pi.plugins, p)
	}
	pi.plugins = pi.plugins[:max(m.Count, 1)]

	changed := !pi.Configured() || in != pi.InputStreams() || out != pi.OutputStreams() || m != pi.match
	pi.match = m
	pi.Base.ConfigureIO(in, out)

	if changed || !pi.userMaps || len(pi.inMaps) != len(pi.plugins) {
		pi.resetMaps()
	}
	pi.allocate()
	return true
}

func (pi *PluginInsert) pins() (int, int) {
	if pi.flexible {
		return int(pi.InputStreams().Audio()), int(pi.InputStreams().Audio())
	}
	return int(pi.natIn.Audio()), int(pi.natOut.Audio())
}

func (pi *PluginInsert) resetMaps() {
	in, out := pi.InputStreams(), pi.OutputStreams()
	nin, nout := pi.pins()

	pi.inMaps = make([]*chans.Mapping, len(pi.plugins))
	pi.outMaps = make([]*chans.Mapping, len(pi.plugins))
	covered := map[uint32]bool{}

	for k := range pi.plugins {
		im, om := chans.NewMapping(), chans.NewMapping()
		for p := 0; p < nin; p++ {
			if ch := uint32(k*nin + p); ch < in.Audio() {
				im.Set(chans.Audio, uint32(p), ch)
			}
		}
		if k == 0 {
			for p := uint32(0); p < pi.natIn.MIDI() && p < in.MIDI(); p++ {
				im.Set(chans.MIDI, p, p)
			}
		}
		for p := 0; p < nout; p++ {
			if ch := uint32(k*nout + p); ch < out.Audio() {
				om.Set(chans.Audio, uint32(p), ch)
				covered[ch] = true
			}
		}
		pi.inMaps[k], pi.outMaps[k] = im, om
	}

	pi.thru = chans.NewMapping()
	for c := uint32(0); c < min(in.Audio(), out.Audio()); c++ {
		if !covered[c] {
			pi.thru.Set(chans.Audio, c, c)
		}
	}
	if pi.natOut.MIDI() == 0 {
		for c := uint32(0); c < min(in.MIDI(), out.MIDI()); c++ {
			pi.thru.Set(chans.MIDI, c, c)
		}
	}
	pi.userMaps = false
	pi.cacheThru()
}

func (pi *PluginInsert) cacheThru() {
	pi.thruAudio = pi.thruAudio[:0]
	pi.thruMIDI = pi.thruMIDI[:0]
	for _, t := range pi.thru.Triples() {
		r := pinRoute{from: t.From, to: t.To}
		if t.Type == chans.Audio {
			pi.thruAudio = append(pi.thruAudio, r)
		} else {
			pi.thruMIDI = append(pi.thruMIDI, r)
		}
	}
}

func (pi *PluginInsert) allocate() {
	bs := pi.blockSize()
	in, out := pi.InputStreams(), pi.OutputStreams()
	if pi.inCopy == nil {
		pi.inCopy = buffer.NewSet(in, bs)
		pi.outSet = buffer.NewSet(out, bs)
	}
	pi.inCopy.Ensure(in, bs)
	pi.outSet.Ensure(out, bs)

	nin, nout := pi.pins()
	pi.pinIn = make([][][]float64, len(pi.plugins))
	pi.pinOut = make([][][]float64, len(pi.plugins))
	pi.views = make([][][]float64, len(pi.plugins))
	pi.outs = make([][][]float64, len(pi.plugins))
	for k := range pi.plugins {
		pi.pinIn[k] = makeBlocks(nin, bs)
		pi.pinOut[k] = makeBlocks(nout, bs)
		pi.views[k] = make([][]float64, nin)
		pi.outs[k] = make([][]float64, nout)
	}
}

func makeBlocks(n, size int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, size)
	}
	return out
}

// RequiredBuffers covers every pin of every instance.
func (pi *PluginInsert) RequiredBuffers() chans.Count {
	n := uint32(max(len(pi.plugins), 1))
	c := chans.Max(pi.InputStreams(), pi.OutputStreams())
	if !pi.flexible {
		c = chans.Max(c, pi.natIn.Scale(n))
		c = chans.Max(c, pi.natOut.Scale(n))
	}
	return c
}

// InputMap returns a copy of the input map of instance k.
func (pi *PluginInsert) InputMap(k int) *chans.Mapping {
	if k < 0 || k >= len(pi.inMaps) {
		return nil
	}
	return pi.inMaps[k].Clone()
}

// OutputMap returns a copy of the output map of instance k.
func (pi *PluginInsert) OutputMap(k int) *chans.Mapping {
	if k < 0 || k >= len(pi.outMaps) {
		return nil
	}
	return pi.outMaps[k].Clone()
}

// ThruMap returns a copy of the thru map.
func (pi *PluginInsert) ThruMap() *chans.Mapping { return pi.thru.Clone() }

// SetInputMap replaces the input map of instance k. Must be called with the
// process lock held.
func (pi *PluginInsert) SetInputMap(k int, m *chans.Mapping) bool {
	if k < 0 || k >= len(pi.inMaps) || m == nil {
		return false
	}
	pi.inMaps[k] = m.Clone()
	pi.userMaps = true
	return true
}

// SetOutputMap replaces the output map of instance k. Must be called with the
// process lock held.
func (pi *PluginInsert) SetOutputMap(k int, m *chans.Mapping) bool {
	if k < 0 || k >= len(pi.outMaps) || m == nil {
		return false
	}
	pi.outMaps[k] = m.Clone()
	pi.userMaps = true
	return true
}

// SetThruMap replaces the thru map. Must be called with the process lock held.
func (pi *PluginInsert) SetThruMap(m *chans.Mapping) bool {
	if m == nil {
		return false
	}
	pi.thru = m.Clone()
	pi.userMaps = true
	pi.cacheThru()
	return true
}

// ResetMaps restores the default maps.
func (pi *PluginInsert) ResetMaps() {
	if pi.Configured() {
		pi.resetMaps()
	}
}

// Flush resets every instance.
func (pi *PluginInsert) Flush() {
	for _, p := range pi.plugins {
		p.Reset()
	}
}

// Run feeds the mapped channels to the instances and writes their outputs
// back. While inactive, channels present on both sides pass and additional
// outputs are silenced.
func (pi *PluginInsert) Run(bufs *buffer.Set, _, _ int64, _ float64, nframes int, _ bool) {
	in, out := pi.InputStreams(), pi.OutputStreams()
	if !pi.Active() {
		for c := in.Audio(); c < out.Audio(); c++ {
			bufs.Audio(int(c)).ZeroRange(0, nframes)
		}
		for c := in.MIDI(); c < out.MIDI(); c++ {
			bufs.MIDI(int(c)).Clear()
		}
		return
	}

	pi.inCopy.SetCount(in)
	for c := 0; c < int(in.Audio()); c++ {
		pi.inCopy.Audio(c).ReadFrom(bufs.Audio(c), nframes, 0, 0)
	}
	for c := 0; c < int(in.MIDI()); c++ {
		pi.inCopy.MIDI(c).ReadFrom(bufs.MIDI(c))
	}

	for k, p := range pi.plugins {
		views, outs := pi.views[k], pi.outs[k]
		for pin := range views {
			v := pi.pinIn[k][pin][:nframes]
			if ch, ok := pi.inMaps[k].Get(chans.Audio, uint32(pin)); ok && ch < in.Audio() {
				copy(v, pi.inCopy.Audio(int(ch)).Samples()[:nframes])
			} else {
				clear(v)
			}
			views[pin] = v
		}
		for pin := range outs {
			outs[pin] = pi.pinOut[k][pin][:nframes]
		}
		var events []buffer.Event
		if ch, ok := pi.inMaps[k].Get(chans.MIDI, 0); ok && ch < in.MIDI() {
			events = pi.inCopy.MIDI(int(ch)).Events()
		}
		p.Process(views, outs, events, nframes)
	}

	pi.outSet.SetCount(out)
	pi.outSet.Silence(nframes, 0)
	for k := range pi.plugins {
		for pin, o := range pi.outs[k] {
			if ch, ok := pi.outMaps[k].Get(chans.Audio, uint32(pin)); ok && ch < out.Audio() {
				vecmath.AddBlockInPlace(pi.outSet.Audio(int(ch)).Samples()[:nframes], o)
				pi.outSet.Audio(int(ch)).SetSilent(false)
			}
		}
	}
	for _, r := range pi.thruAudio {
		if r.from < in.Audio() && r.to < out.Audio() {
			pi.outSet.Audio(int(r.to)).MixFrom(pi.inCopy.Audio(int(r.from)), nframes)
		}
	}
	for _, r := range pi.thruMIDI {
		if r.from < in.MIDI() && r.to < out.MIDI() {
			pi.outSet.MIDI(int(r.to)).MergeFrom(pi.inCopy.MIDI(int(r.from)))
		}
	}

	for c := 0; c < int(out.Audio()); c++ {
		bufs.Audio(c).ReadFrom(pi.outSet.Audio(c), nframes, 0, 0)
	}
	for c := 0; c < int(out.MIDI()); c++ {
		bufs.MIDI(c).ReadFrom(pi.outSet.MIDI(c))
	}
}

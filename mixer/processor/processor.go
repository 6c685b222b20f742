// Package processor defines the Processor contract shared by every stage of a
// route's chain and implements the stages a route needs: gain, metering,
// polarity, delay compensation, delivery to output ports, plugin inserts,
// sends and returns.
//
// A processor is configured with ConfigureIO outside the process thread and
// run with Run on it. Kind replaces type probing: callers that need the
// concrete type switch on Kind and assert once.
package processor

import (
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
)

// ID identifies a processor for the lifetime of a session.
type ID uint64

// RouteID identifies a route. Cross-route references are stored as RouteIDs
// and resolved through the session.
type RouteID uint64

var lastID atomic.Uint64

// NextID returns a fresh processor ID.
func NextID() ID {
	return ID(lastID.Add(1))
}

// ReserveID makes sure NextID never hands out id again. Used when restoring
// processors with persisted IDs.
func ReserveID(id ID) {
	for {
		cur := lastID.Load()
		if uint64(id) <= cur || lastID.CompareAndSwap(cur, uint64(id)) {
			return
		}
	}
}

// Kind names the concrete processor variant.
type Kind int

const (
	KindAmp Kind = iota
	KindTrim
	KindMeter
	KindMainOuts
	KindPlugin
	KindSend
	KindInternalSend
	KindInternalReturn
	KindDelayLine
	KindPolarity
	KindMonitorControl
	KindDiskReader
	KindDiskWriter
	KindPortInsert
)

var kindNames = [...]string{
	KindAmp:            "amp",
	KindTrim:           "trim",
	KindMeter:          "meter",
	KindMainOuts:       "main-outs",
	KindPlugin:         "plugin",
	KindSend:           "send",
	KindInternalSend:   "intsend",
	KindInternalReturn: "intreturn",
	KindDelayLine:      "delayline",
	KindPolarity:       "polarity",
	KindMonitorControl: "monitor",
	KindDiskReader:     "diskreader",
	KindDiskWriter:     "diskwriter",
	KindPortInsert:     "port-insert",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("processor: unknown kind %q", s)
}

// Processor is one stage of a route's chain.
//
// CanSupportIOConfiguration must not change state. ConfigureIO may allocate
// and is only called with the engine's process lock held. Run is only called
// from the process thread and must neither block nor allocate.
type Processor interface {
	ID() ID
	Name() string
	Kind() Kind

	CanSupportIOConfiguration(in chans.Count) (out chans.Count, ok bool)
	ConfigureIO(in, out chans.Count) bool
	InputStreams() chans.Count
	OutputStreams() chans.Count

	// Run processes nframes samples of bufs in place. start and end are
	// transport positions, already offset by the route's latency.
	Run(bufs *buffer.Set, start, end int64, speed float64, nframes int, resultRequired bool)

	Activate()
	Deactivate()
	Active() bool
	SetActive(bool)

	// EffectiveLatency is the delay in samples the processor introduces
	// while active.
	EffectiveLatency() int

	DisplayToUser() bool
	SetDisplayToUser(bool)

	InputLatency() int
	SetInputLatency(int)
	OutputLatency() int
	SetOutputLatency(int)
	CaptureOffset() int
	SetCaptureOffset(int)
	PlaybackOffset() int
	SetPlaybackOffset(int)
}

// Sender is implemented by processors that divert a copy of the signal and
// keep the diverted and the direct path aligned.
type Sender interface {
	Processor
	// SetDelayIn sets the latency from the send to the point where the
	// direct path is heard.
	SetDelayIn(samples int, ramp bool)
	// SetDelayOut sets the latency from the send's destination to the point
	// where the diverted path is heard.
	SetDelayOut(samples int, ramp bool)
	DelayIn() int
	DelayOut() int
}

// Flusher is implemented by processors holding delayed signal.
type Flusher interface {
	Flush()
}

// StreamReporter is implemented by processors that need more scratch
// channels than their configured input and output.
type StreamReporter interface {
	RequiredBuffers() chans.Count
}

// Base implements the bookkeeping part of Processor. Variants embed it and
// override what they need.
type Base struct {
	id      ID
	name    string
	kind    Kind
	active  atomic.Bool
	display bool

	in, out    chans.Count
	configured bool

	inputLatency   int
	outputLatency  int
	captureOffset  int
	playbackOffset int

	cfg core.ProcessorConfig
}

func (b *Base) init(name string, kind Kind, cfg core.ProcessorConfig) {
	b.id = NextID()
	b.name = name
	b.kind = kind
	b.cfg = cfg
}

func (b *Base) ID() ID       { return b.id }
func (b *Base) Name() string { return b.name }
func (b *Base) Kind() Kind   { return b.kind }

// SetID replaces the processor ID. Only state restore uses it.
func (b *Base) SetID(id ID) {
	ReserveID(id)
	b.id = id
}

// SetName renames the processor.
func (b *Base) SetName(name string) { b.name = name }

// Config returns the processing settings the processor was created with.
func (b *Base) Config() core.ProcessorConfig { return b.cfg }

// CanSupportIOConfiguration passes the input through unchanged.
func (b *Base) CanSupportIOConfiguration(in chans.Count) (chans.Count, bool) {
	return in, true
}

// ConfigureIO records the configuration.
func (b *Base) ConfigureIO(in, out chans.Count) bool {
	b.in, b.out = in, out
	b.configured = true
	return true
}

func (b *Base) InputStreams() chans.Count  { return b.in }
func (b *Base) OutputStreams() chans.Count { return b.out }

// Configured reports whether ConfigureIO succeeded at least once.
func (b *Base) Configured() bool { return b.configured }

func (b *Base) Activate()    { b.active.Store(true) }
func (b *Base) Deactivate()  { b.active.Store(false) }
func (b *Base) Active() bool { return b.active.Load() }
func (b *Base) SetActive(yn bool) {
	b.active.Store(yn)
}

// EffectiveLatency is zero unless a variant overrides it.
func (b *Base) EffectiveLatency() int { return 0 }

func (b *Base) DisplayToUser() bool      { return b.display }
func (b *Base) SetDisplayToUser(yn bool) { b.display = yn }

func (b *Base) InputLatency() int       { return b.inputLatency }
func (b *Base) SetInputLatency(n int)   { b.inputLatency = n }
func (b *Base) OutputLatency() int      { return b.outputLatency }
func (b *Base) SetOutputLatency(n int)  { b.outputLatency = n }
func (b *Base) CaptureOffset() int      { return b.captureOffset }
func (b *Base) SetCaptureOffset(n int)  { b.captureOffset = n }
func (b *Base) PlaybackOffset() int     { return b.playbackOffset }
func (b *Base) SetPlaybackOffset(n int) { b.playbackOffset = n }

func (b *Base) String() string {
	return fmt.Sprintf("%s(%s #%d)", b.kind, b.name, b.id)
}

func (b *Base) blockSize() int {
	if b.cfg.BlockSize > 0 {
		return b.cfg.BlockSize
	}
	return core.DefaultProcessorConfig().BlockSize
}

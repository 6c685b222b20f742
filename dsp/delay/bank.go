package delay

import (
	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-vecmath"
)

// DefaultRampLength is the crossfade length used for delay changes while the
// engine is running.
const DefaultRampLength = 256

type pendingEvent struct {
	due int64
	ev  buffer.Event
}

// Bank delays every channel of a buffer.Set by the same number of samples.
// Audio is delayed through one Line per channel, MIDI events are re-stamped
// and held back until they are due.
//
// Bank is not safe for concurrent use. Run it only from the process thread;
// SetDelay and Configure may allocate and belong to the control side, which
// is serialized against processing by the caller.
type Bank struct {
	lines []*Line
	midi  [][]pendingEvent

	delay    int
	oldDelay int
	reserved int
	rampLen  int
	rampPos  int

	blockSize int
	now       int64

	fadeIn  []float64
	fadeOut []float64
	scratch []float64
}

// NewBank returns a bank for count channels that can run blocks of up to
// blockSize samples. rampLen <= 0 selects DefaultRampLength.
func NewBank(count chans.Count, blockSize, rampLen int) *Bank {
	if rampLen <= 0 {
		rampLen = DefaultRampLength
	}
	if blockSize <= 0 {
		blockSize = 1
	}
	b := &Bank{rampLen: rampLen}
	b.Configure(count, blockSize)
	return b
}

// Configure grows the bank to count channels and blocks of blockSize samples.
func (b *Bank) Configure(count chans.Count, blockSize int) {
	if blockSize > b.blockSize {
		b.blockSize = blockSize
		b.fadeIn = make([]float64, blockSize)
		b.fadeOut = make([]float64, blockSize)
		b.scratch = make([]float64, blockSize)
	}
	size := b.ringSize(max(b.delay, b.oldDelay, b.reserved))
	for _, l := range b.lines {
		l.Grow(size)
	}
	for uint32(len(b.lines)) < count.Audio() {
		l, _ := New(size)
		b.lines = append(b.lines, l)
	}
	for uint32(len(b.midi)) < count.MIDI() {
		b.midi = append(b.midi, make([]pendingEvent, 0, 64))
	}
}

func (b *Bank) ringSize(delay int) int {
	return delay + b.blockSize + 1
}

// Reserve sizes the ring buffers for delays up to maxDelay so that later
// SetDelay calls within that bound do not allocate.
func (b *Bank) Reserve(maxDelay int) {
	if maxDelay <= b.reserved {
		return
	}
	b.reserved = maxDelay
	size := b.ringSize(maxDelay)
	for _, l := range b.lines {
		l.Grow(size)
	}
}

// Delay returns the delay the bank converges to.
func (b *Bank) Delay() int {
	return b.delay
}

// Ramping reports whether a delay change is still being crossfaded.
func (b *Bank) Ramping() bool {
	return b.rampPos > 0
}

// SetDelay changes the delay. With ramp false the change takes effect on the
// next sample; with ramp true the output crossfades from the old delay to the
// new one over the ramp length. It reports whether the delay changed.
func (b *Bank) SetDelay(samples int, ramp bool) bool {
	if samples < 0 {
		samples = 0
	}
	if samples == b.delay {
		return false
	}
	size := b.ringSize(max(samples, b.delay))
	for _, l := range b.lines {
		l.Grow(size)
	}
	if ramp {
		b.oldDelay = b.currentDelay()
		b.rampPos = b.rampLen
	} else {
		b.rampPos = 0
	}
	b.delay = samples
	return true
}

func (b *Bank) currentDelay() int {
	if b.rampPos > 0 && b.rampPos*2 > b.rampLen {
		return b.oldDelay
	}
	return b.delay
}

// Flush clears the delayed history and any pending MIDI.
func (b *Bank) Flush() {
	for _, l := range b.lines {
		l.Reset()
	}
	for i := range b.midi {
		b.midi[i] = b.midi[i][:0]
	}
	b.rampPos = 0
}

// Process delays the active channels of set in place.
func (b *Bank) Process(set *buffer.Set, nframes int) {
	if nframes > b.blockSize {
		nframes = b.blockSize
	}
	count := set.Count()
	for i := 0; i < int(count.Audio()) && i < len(b.lines); i++ {
		b.processAudio(b.lines[i], set.Audio(i), nframes)
	}
	for i := 0; i < int(count.MIDI()) && i < len(b.midi); i++ {
		b.processMIDI(i, set.MIDI(i), nframes)
	}
	if b.rampPos > 0 {
		b.rampPos -= nframes
		if b.rampPos < 0 {
			b.rampPos = 0
		}
	}
	b.now += int64(nframes)
}

func (b *Bank) processAudio(l *Line, buf *buffer.Buffer, nframes int) {
	samples := buf.Samples()[:nframes]
	if b.delay == 0 && b.rampPos == 0 {
		for _, s := range samples {
			l.Write(s)
		}
		return
	}

	if b.rampPos == 0 {
		for i, s := range samples {
			l.Write(s)
			samples[i] = l.Read(b.delay)
		}
		buf.SetSilent(false)
		return
	}

	// crossfade old -> new
	out := b.scratch[:nframes]
	for i, s := range samples {
		l.Write(s)
		samples[i] = l.Read(b.oldDelay)
		out[i] = l.Read(b.delay)
		pos := b.rampLen - b.rampPos + i
		g := 1.0
		if pos < b.rampLen {
			g = float64(pos) / float64(b.rampLen)
		}
		b.fadeIn[i] = g
		b.fadeOut[i] = 1 - g
	}
	vecmath.MulBlockInPlace(samples, b.fadeOut[:nframes])
	vecmath.MulBlockInPlace(out, b.fadeIn[:nframes])
	vecmath.AddBlockInPlace(samples, out)
	buf.SetSilent(false)
}

func (b *Bank) processMIDI(idx int, mb *buffer.MIDI, nframes int) {
	q := b.midi[idx]
	for _, ev := range mb.Events() {
		due := b.now + int64(ev.Time) + int64(b.delay)
		pe := pendingEvent{due: due, ev: ev}
		n := len(q)
		if n == 0 || q[n-1].due <= due {
			q = append(q, pe)
			continue
		}
		i := n
		for i > 0 && q[i-1].due > due {
			i--
		}
		q = append(q, pendingEvent{})
		copy(q[i+1:], q[i:])
		q[i] = pe
	}
	mb.Clear()

	end := b.now + int64(nframes)
	emitted := 0
	for _, pe := range q {
		if pe.due >= end {
			break
		}
		t := int(pe.due - b.now)
		if t < 0 {
			t = 0
		}
		mb.Push(t, pe.ev.Msg)
		emitted++
	}
	b.midi[idx] = append(q[:0], q[emitted:]...)
}

package buffer

import "github.com/cwbudde/algo-mixer/dsp/chans"

const defaultMIDICapacity = 256

// Set bundles audio and MIDI buffers. Buffers are allocated up to
// Available(); Count() is the number of channels currently carrying signal.
// Processors read and write channels [0, Count().Get(type)).
type Set struct {
	audio    []*Buffer
	midi     []*MIDI
	count    chans.Count
	capacity int
}

// NewSet allocates a set with count channels of nframes samples each.
func NewSet(count chans.Count, nframes int) *Set {
	s := &Set{}
	s.Ensure(count, nframes)
	s.count = count
	return s
}

// Ensure grows the allocation to at least count channels of nframes samples.
// It allocates and must not be called from the real-time thread.
// It reports whether anything was allocated.
func (s *Set) Ensure(count chans.Count, nframes int) bool {
	grew := false
	if nframes > s.capacity {
		s.capacity = nframes
		for _, b := range s.audio {
			b.Resize(nframes)
		}
		grew = true
	}
	for uint32(len(s.audio)) < count.Audio() {
		s.audio = append(s.audio, New(s.capacity))
		grew = true
	}
	for uint32(len(s.midi)) < count.MIDI() {
		s.midi = append(s.midi, NewMIDI(defaultMIDICapacity))
		grew = true
	}
	return grew
}

// Available returns the number of allocated channels per type.
func (s *Set) Available() chans.Count {
	return chans.NewCount(uint32(len(s.audio)), uint32(len(s.midi)))
}

// Capacity returns the allocated length of every audio buffer.
func (s *Set) Capacity() int {
	return s.capacity
}

// Count returns the active channel count.
func (s *Set) Count() chans.Count {
	return s.count
}

// SetCount changes the active channel count, clamped to the allocation.
func (s *Set) SetCount(c chans.Count) {
	s.count = chans.Min(c, s.Available())
}

// Audio returns audio channel i. It panics if i is not allocated.
func (s *Set) Audio(i int) *Buffer {
	return s.audio[i]
}

// MIDI returns MIDI channel i. It panics if i is not allocated.
func (s *Set) MIDI(i int) *MIDI {
	return s.midi[i]
}

// Silence zeroes nframes samples from offset in every active audio channel
// and drops MIDI events in that range.
func (s *Set) Silence(nframes, offset int) {
	for i := 0; i < int(s.count.Audio()); i++ {
		s.audio[i].ZeroRange(offset, nframes)
	}
	for i := 0; i < int(s.count.MIDI()); i++ {
		s.midi[i].Silence(nframes, offset)
	}
}

// SilenceAll zeroes every allocated channel regardless of the active count.
func (s *Set) SilenceAll() {
	for _, b := range s.audio {
		b.Zero()
	}
	for _, m := range s.midi {
		m.Clear()
	}
}

// ReadFrom copies src into s and adopts src's active count (clamped to the
// allocation).
func (s *Set) ReadFrom(src *Set, nframes int) {
	s.SetCount(src.count)
	for i := 0; i < int(s.count.Audio()); i++ {
		s.audio[i].ReadFrom(src.audio[i], nframes, 0, 0)
	}
	for i := 0; i < int(s.count.MIDI()); i++ {
		s.midi[i].ReadFrom(src.midi[i])
	}
}

// MergeFrom adds the channels src and s have in common into s.
func (s *Set) MergeFrom(src *Set, nframes int) {
	common := chans.Min(s.count, src.count)
	for i := 0; i < int(common.Audio()); i++ {
		s.audio[i].MixFrom(src.audio[i], nframes)
	}
	for i := 0; i < int(common.MIDI()); i++ {
		s.midi[i].MergeFrom(src.midi[i])
	}
}

// AudioSlices returns the active audio channels as raw slices of nframes.
func (s *Set) AudioSlices(nframes int) [][]float64 {
	out := make([][]float64, s.count.Audio())
	for i := range out {
		out[i] = s.audio[i].samples[:nframes]
	}
	return out
}

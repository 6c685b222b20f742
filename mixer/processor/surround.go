package processor

import (
	"math"
	"sync"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/core"
)

// ObjectPosition places a surround object. Each coordinate is in [-1, 1];
// X runs left to right, Y back to front and Z floor to ceiling.
type ObjectPosition struct {
	X, Y, Z float64
}

func (p ObjectPosition) clamped() ObjectPosition {
	c := func(v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return core.Clamp(v, -1, 1)
	}
	return ObjectPosition{X: c(p.X), Y: c(p.Y), Z: c(p.Z)}
}

// objects is the object layout of a surround send.
type objects struct {
	first int

	mu        sync.Mutex
	positions []ObjectPosition
}

// NewSurroundSend returns a send that delivers every audio channel of its
// route unpanned as one object of the target, starting at object channel
// first. It runs at unity gain and carries no MIDI.
func NewSurroundSend(name string, source, target RouteID, first int, mute *MuteMaster, cfg core.ProcessorConfig) *InternalSend {
	s := NewInternalSend(name, source, target, RoleSurround, mute, cfg)
	s.objects = &objects{first: max(first, 0)}
	s.panner.SetBypassed(true)
	return s
}

// Surround reports whether s delivers objects.
func (s *InternalSend) Surround() bool { return s.objects != nil }

// FirstObject returns the target channel of the send's first object, or -1
// for sends that are not surround sends.
func (s *InternalSend) FirstObject() int {
	if s.objects == nil {
		return -1
	}
	return s.objects.first
}

// ObjectCount returns how many objects the send delivers.
func (s *InternalSend) ObjectCount() int {
	if s.objects == nil {
		return 0
	}
	return int(s.InputStreams().Audio())
}

// SetObjectPosition moves object i. It is a no-op on other sends.
func (s *InternalSend) SetObjectPosition(i int, p ObjectPosition) {
	if s.objects == nil || i < 0 {
		return
	}
	o := s.objects
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.positions) <= i {
		o.positions = append(o.positions, ObjectPosition{})
	}
	o.positions[i] = p.clamped()
}

// ObjectPositions returns the positions of every object that was moved.
func (s *InternalSend) ObjectPositions() []ObjectPosition {
	if s.objects == nil {
		return nil
	}
	s.objects.mu.Lock()
	defer s.objects.mu.Unlock()
	return append([]ObjectPosition(nil), s.objects.positions...)
}

// divertObjects copies channel i of bufs to channel first+i of the mix
// buffers. Channels beyond the target's width are dropped.
func (s *InternalSend) divertObjects(bufs *buffer.Set, start, end int64, speed float64, nframes int) {
	dest := s.mix
	dest.Silence(nframes, 0)
	width := int(dest.Count().Audio())
	for i := range int(bufs.Count().Audio()) {
		ch := s.objects.first + i
		if ch >= width {
			break
		}
		copy(dest.Audio(ch).Samples()[:nframes], bufs.Audio(i).Samples()[:nframes])
	}
	s.amp.Run(dest, start, end, speed, nframes, true)
	rampGain(dest, &s.muteGain, s.mute.GainAt(s.role.mutePoint(s.PostFader())), s.gains, nframes)
	s.sendDelay.Process(dest, nframes)
}

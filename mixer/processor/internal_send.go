package processor

import (
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
)

// ReturnResolver finds the internal return of a route.
type ReturnResolver interface {
	InternalReturnFor(id RouteID) *InternalReturn
}

// InternalSend mixes a copy of its route's signal into another route's
// InternalReturn. The target is held by RouteID; the send stays inert while
// the target cannot be resolved.
type InternalSend struct {
	Base
	sendPath

	source RouteID
	target RouteID
	ret    atomic.Pointer[InternalReturn]

	mix   *buffer.Set
	fresh atomic.Bool

	allowFeedback bool
	objects       *objects
}

// NewInternalSend returns an unbound send from source to target. Aux and
// foldback sends start silent; listen and plain sends start at unity.
func NewInternalSend(name string, source, target RouteID, role Role, mute *MuteMaster, cfg core.ProcessorConfig) *InternalSend {
	s := &InternalSend{source: source, target: target}
	s.init(name, KindInternalSend, cfg)
	s.display = role != RoleListen
	s.sendPath.initPath(name, role, mute, cfg)
	s.mix = buffer.NewSet(chans.Zero, s.blockSize())
	return s
}

// Source returns the sending route.
func (s *InternalSend) Source() RouteID { return s.source }

// Target returns the receiving route.
func (s *InternalSend) Target() RouteID { return s.target }

// Bound reports whether the target's return is known.
func (s *InternalSend) Bound() bool { return s.ret.Load() != nil }

// SetAllowFeedback lets the send create a cycle in the route graph.
func (s *InternalSend) SetAllowFeedback(yn bool) { s.allowFeedback = yn }

// AllowFeedback reports whether the send may create a cycle.
func (s *InternalSend) AllowFeedback() bool { return s.allowFeedback }

// Bind resolves the target and registers with its return. Called with the
// process lock held.
func (s *InternalSend) Bind(r ReturnResolver) bool {
	if s.Bound() {
		return true
	}
	if r == nil {
		return false
	}
	ret := r.InternalReturnFor(s.target)
	if ret == nil {
		return false
	}
	s.ensureMix(ret.InputStreams())
	ret.AddSend(s)
	s.ret.Store(ret)
	return true
}

// Unbind detaches from the target's return. The send goes inert.
func (s *InternalSend) Unbind() {
	if ret := s.ret.Swap(nil); ret != nil {
		ret.RemoveSend(s)
	}
	s.fresh.Store(false)
}

// Retarget points the send at another route and binds to it.
func (s *InternalSend) Retarget(target RouteID, r ReturnResolver) bool {
	s.Unbind()
	s.target = target
	return s.Bind(r)
}

// MixBuffers returns the signal produced by the last cycle.
func (s *InternalSend) MixBuffers() *buffer.Set { return s.mix }

func (s *InternalSend) ensureMix(c chans.Count) {
	s.mix.Ensure(c, s.blockSize())
	s.mix.SetCount(c)
	s.configure(s.InputStreams(), c, s.blockSize())
}

// EffectiveLatency is the delay added to the direct path.
func (s *InternalSend) EffectiveLatency() int { return s.thruDelay.Delay() }

// ConfigureIO sizes the delays for the route and the target.
func (s *InternalSend) ConfigureIO(in, out chans.Count) bool {
	s.Base.ConfigureIO(in, out)
	s.configure(in, s.mix.Count(), s.blockSize())
	return true
}

// Run fills the mix buffers for the target's return.
func (s *InternalSend) Run(bufs *buffer.Set, start, end int64, speed float64, nframes int, _ bool) {
	if !s.Active() || s.ret.Load() == nil {
		return
	}
	if s.objects != nil {
		s.divertObjects(bufs, start, end, speed, nframes)
	} else {
		s.divert(bufs, s.mix, start, end, speed, nframes)
	}
	s.fresh.Store(true)
	s.thruDelay.Process(bufs, nframes)
}

// InternalReturn sums the internal sends targeting its route into the
// route's signal.
type InternalReturn struct {
	Base

	mu    sync.Mutex
	sends []*InternalSend

	skipped atomic.Int64
}

// NewInternalReturn returns a return without sends.
func NewInternalReturn(name string, cfg core.ProcessorConfig) *InternalReturn {
	r := &InternalReturn{}
	r.init(name, KindInternalReturn, cfg)
	return r
}

// AddSend registers a send.
func (r *InternalReturn) AddSend(s *InternalSend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.sends {
		if x == s {
			return
		}
	}
	r.sends = append(r.sends, s)
}

// RemoveSend unregisters a send.
func (r *InternalReturn) RemoveSend(s *InternalSend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, x := range r.sends {
		if x == s {
			r.sends = append(r.sends[:i], r.sends[i+1:]...)
			return
		}
	}
}

// Sends returns the registered sends.
func (r *InternalReturn) Sends() []*InternalSend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*InternalSend(nil), r.sends...)
}

// Skipped returns how many cycles were skipped because the send list was
// being changed.
func (r *InternalReturn) Skipped() int64 { return r.skipped.Load() }

// ConfigureIO resizes the mix buffers of every registered send.
func (r *InternalReturn) ConfigureIO(in, out chans.Count) bool {
	r.mu.Lock()
	for _, s := range r.sends {
		s.ensureMix(in)
	}
	r.mu.Unlock()
	return r.Base.ConfigureIO(in, out)
}

// Run adds the fresh signal of every active send. If the send list is being
// changed the cycle contributes nothing.
func (r *InternalReturn) Run(bufs *buffer.Set, _, _ int64, _ float64, nframes int, _ bool) {
	if !r.Active() {
		return
	}
	if !r.mu.TryLock() {
		r.skipped.Add(1)
		return
	}
	defer r.mu.Unlock()
	for _, s := range r.sends {
		if s.Active() && s.fresh.Swap(false) {
			bufs.MergeFrom(s.mix, nframes)
		}
	}
}

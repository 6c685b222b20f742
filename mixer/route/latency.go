package route

import (
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/mixer/processor"
)

// latencyState holds the route's latency figures in samples. Figures set by
// the session are read by the process thread, hence atomics.
type latencyState struct {
	signal  atomic.Int64 // sum of active processor latencies
	playIn  atomic.Int64 // worst playback latency upstream of the route's input
	playOut atomic.Int64 // playback latency from the output ports onwards
	capture atomic.Int64 // capture latency of the input ports
}

// SignalLatency is the sum of the effective latencies of the active
// processors.
func (r *Route) SignalLatency() int { return int(r.latency.signal.Load()) }

// PlaybackLatencies returns the latency the route must be aligned to at its
// input and the latency from its output to the speakers.
func (r *Route) PlaybackLatencies() (in, out int) {
	return int(r.latency.playIn.Load()), int(r.latency.playOut.Load())
}

// SetPlaybackLatencies records the session's alignment target. The delay
// line is not touched until ApplyLatencyCompensation.
func (r *Route) SetPlaybackLatencies(in, out int) {
	r.latency.playIn.Store(int64(max(in, 0)))
	r.latency.playOut.Store(int64(max(out, 0)))
}

// SetCaptureLatency records the latency of the signal arriving at the input.
func (r *Route) SetCaptureLatency(n int) { r.latency.capture.Store(int64(max(n, 0))) }

// CaptureLatency returns what SetCaptureLatency recorded.
func (r *Route) CaptureLatency() int { return int(r.latency.capture.Load()) }

// UpdateSignalLatency recomputes the per-processor latency bookkeeping and
// the route's signal latency. With applyToDelayline the compensation delay is
// updated too. The session is told when the signal latency changed.
func (r *Route) UpdateSignalLatency(applyToDelayline bool) bool {
	pl := r.host.ProcessLock()
	pl.Lock()
	changed := r.UpdateSignalLatencyLocked(applyToDelayline)
	pl.Unlock()
	if changed {
		r.host.LatencyChanged(r.id)
	}
	return changed
}

// UpdateSignalLatencyLocked is UpdateSignalLatency for callers holding the
// process lock. It does not notify the session.
func (r *Route) UpdateSignalLatencyLocked(applyToDelayline bool) bool {
	changed := r.updateSignalLatency(applyToDelayline)
	return changed
}

// updateSignalLatency walks the chain backwards to give every processor the
// latency between its output and the output ports, and to tell sends how far
// the direct path still has to go. A forward walk then sets the latency
// accumulated at each processor's input.
func (r *Route) updateSignalLatency(applyToDelayline bool) bool {
	r.mu.RLock()
	playOut := int(r.latency.playOut.Load())
	capture := int(r.latency.capture.Load())

	out := 0
	for i := len(r.processors) - 1; i >= 0; i-- {
		p := r.processors[i]
		p.SetOutputLatency(out)
		if s, ok := p.(processor.Sender); ok {
			s.SetDelayIn(out+playOut, r.host.Running())
		}
		if p.Active() {
			out += p.EffectiveLatency()
		}
	}
	signal := out

	in := 0
	for _, p := range r.processors {
		p.SetInputLatency(in)
		p.SetPlaybackOffset(signal + playOut)
		p.SetCaptureOffset(capture)
		if p.Active() {
			in += p.EffectiveLatency()
		}
	}
	r.mu.RUnlock()

	changed := r.latency.signal.Swap(int64(signal)) != int64(signal)
	if applyToDelayline {
		r.applyLatencyCompensation()
	}
	return changed
}

// ApplyLatencyCompensation sets the delay line so that the route's output is
// aligned with the slowest path feeding the same destination. Changes are
// ramped while the engine runs.
func (r *Route) ApplyLatencyCompensation() {
	pl := r.host.ProcessLock()
	pl.Lock()
	r.ApplyLatencyCompensationLocked()
	pl.Unlock()
}

// ApplyLatencyCompensationLocked is ApplyLatencyCompensation for callers
// holding the process lock.
func (r *Route) ApplyLatencyCompensationLocked() {
	r.applyLatencyCompensation()
}

func (r *Route) applyLatencyCompensation() {
	if r.delayLine == nil {
		return
	}
	in, out := r.PlaybackLatencies()
	d := max(0, in-out-r.SignalLatency())
	r.delayLine.SetDelay(d, r.host.Running())
}

// CompensationDelay is the delay the delay line currently applies.
func (r *Route) CompensationDelay() int {
	if r.delayLine == nil {
		return 0
	}
	return r.delayLine.Delay()
}

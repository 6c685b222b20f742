package route

import (
	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
)

// Process runs one cycle of the chain over bufs, which holds the route's
// input on entry. bufs must be allocated for ProcessorMaxStreams channels.
// The delivered signal is read from Output afterwards.
//
// Process never blocks. A chain change waiting for the process thread is
// applied first if the processor lock is free; if the processor lock is held
// by a mutation the route outputs silence for this cycle.
func (r *Route) Process(bufs *buffer.Set, start int64, nframes int, resultRequired bool) {
	r.applyPendingRT()

	if !r.mu.TryRLock() {
		r.mainOuts.Output().Silence(nframes, 0)
		r.metrics.SilencedCycles.Inc()
		return
	}
	defer r.mu.RUnlock()

	if !r.active.Load() {
		r.mainOuts.Output().Silence(nframes, 0)
		return
	}

	bufs.SetCount(r.input)
	if r.denormal {
		for i := 0; i < int(bufs.Count().Audio()); i++ {
			core.FlushDenormalsBlock(bufs.Audio(i).Samples()[:nframes])
		}
	}

	end := start + int64(nframes)
	for _, p := range r.processors {
		grow(bufs, p.InputStreams(), nframes)
		p.Run(bufs, start, end, 1, nframes, resultRequired)
		grow(bufs, p.OutputStreams(), nframes)
	}
}

// grow sets the active count of bufs to c. Channels that become active are
// cleared so that stale signal is never passed on.
func grow(bufs *buffer.Set, c chans.Count, nframes int) {
	old := bufs.Count()
	bufs.SetCount(c)
	now := bufs.Count()
	for i := old.Audio(); i < now.Audio(); i++ {
		bufs.Audio(int(i)).ZeroRange(0, nframes)
	}
	for i := old.MIDI(); i < now.MIDI(); i++ {
		bufs.MIDI(int(i)).Clear()
	}
}

func (r *Route) applyPendingRT() {
	if r.pending.Load() == nil || !r.mu.TryLock() {
		return
	}
	if r.applyPendingLocked() {
		r.changedInRT.Store(true)
	}
	r.mu.Unlock()
}

// Output returns the buffers the main outs delivered in the last cycle.
func (r *Route) Output() *buffer.Set { return r.mainOuts.Output() }

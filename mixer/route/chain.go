package route

import (
	"fmt"
	"slices"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/mixer/processor"
)

// ChangeType says what a chain change did.
type ChangeType int

const (
	ChangeInsert ChangeType = iota
	ChangeRemove
	ChangeReplace
	ChangeReorder
	ChangeConfiguration
	ChangeMeterPoint
	ChangeDiskIOPoint
)

// Change describes a committed chain change.
type Change struct {
	Type       ChangeType
	Processors []processor.ID
}

// OnProcessorsChanged registers fn to be called after every committed chain
// change. fn runs on the mutating thread with no lock held.
func (r *Route) OnProcessorsChanged(fn func(Change)) {
	r.notifyMu.Lock()
	r.processorsChanged = append(r.processorsChanged, fn)
	r.notifyMu.Unlock()
}

// OnIOChanged registers fn to be called after the input count changed.
func (r *Route) OnIOChanged(fn func(chans.Count)) {
	r.notifyMu.Lock()
	r.ioChanged = append(r.ioChanged, fn)
	r.notifyMu.Unlock()
}

func (r *Route) emit(c Change) {
	r.notifyMu.Lock()
	fns := slices.Clone(r.processorsChanged)
	r.notifyMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (r *Route) emitIO(c chans.Count) {
	r.notifyMu.Lock()
	fns := slices.Clone(r.ioChanged)
	r.notifyMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// EmitPendingChanges brings latency up to date after chain changes applied
// by the process thread and reports them. The session calls it after a cycle
// with no lock held.
func (r *Route) EmitPendingChanges() {
	if r.changedInRT.Swap(false) {
		r.UpdateSignalLatency(true)
		r.emit(Change{Type: ChangeReorder})
	}
}

// lock takes the process lock and the processor lock, and applies a change
// still waiting for the process thread so that it is never overtaken.
func (r *Route) lock() func() {
	pl := r.host.ProcessLock()
	pl.Lock()
	r.mu.Lock()
	if r.applyPendingLocked() {
		r.changedInRT.Store(true)
	}
	return func() {
		r.mu.Unlock()
		pl.Unlock()
	}
}

// afterChange brings latency and solo up to date and notifies listeners.
func (r *Route) afterChange(c Change, topology bool) {
	applied := r.changedInRT.Swap(false)
	r.UpdateSignalLatency(true)
	if topology {
		r.host.PropagateSolo()
	}
	if applied {
		r.emit(Change{Type: ChangeReorder})
	}
	r.emit(c)
}

func ids(list []processor.Processor) []processor.ID {
	out := make([]processor.ID, len(list))
	for i, p := range list {
		out[i] = p.ID()
	}
	return out
}

func hasSends(list []processor.Processor) bool {
	for _, p := range list {
		switch p.Kind() {
		case processor.KindInternalSend, processor.KindSend:
			return true
		}
	}
	return false
}

// AddProcessor inserts p before the visible processor before, or at the end
// of the visible chain if before is nil.
func (r *Route) AddProcessor(p, before processor.Processor) error {
	return r.AddProcessors([]processor.Processor{p}, before)
}

// AddProcessorAt inserts p immediately before the fader, or after the last
// visible processor.
func (r *Route) AddProcessorAt(p processor.Processor, where Placement) error {
	var before processor.Processor
	if where == PreFader {
		before = r.amp
	}
	return r.AddProcessor(p, before)
}

// AddProcessorByIndex inserts p at position index of the visible chain. A
// negative or too large index appends.
func (r *Route) AddProcessorByIndex(p processor.Processor, index int) error {
	vis := r.VisibleProcessors()
	var before processor.Processor
	if index >= 0 && index < len(vis) {
		before = vis[index]
	}
	return r.AddProcessor(p, before)
}

// AddProcessors inserts list as a block. Either all are added or none.
func (r *Route) AddProcessors(list []processor.Processor, before processor.Processor) error {
	return r.addProcessors(list, before, r.host.Resolver())
}

func (r *Route) addProcessors(list []processor.Processor, before processor.Processor, resolver processor.ReturnResolver) error {
	if len(list) == 0 {
		return nil
	}
	for i, p := range list {
		if p == nil || slices.Index(list[:i], p) >= 0 {
			return fmt.Errorf("route %q: add: %w", r.name, ErrDuplicate)
		}
	}

	unlock := r.lock()
	for _, p := range list {
		if slices.Index(r.processors, p) >= 0 {
			unlock()
			return fmt.Errorf("route %q: add %s: %w", r.name, p.Name(), ErrDuplicate)
		}
	}
	vis := visible(r.processors)
	at := len(vis)
	if before != nil {
		if at = slices.Index(vis, before); at < 0 {
			unlock()
			return fmt.Errorf("route %q: add before %s: %w", r.name, before.Name(), ErrNotFound)
		}
	}

	hidden := make([]processor.Processor, 0)
	for _, p := range list {
		if pi, ok := p.(*processor.PluginInsert); ok {
			pi.SetStrictIO(r.strict)
		}
		if !p.DisplayToUser() {
			p.SetDisplayToUser(true)
			hidden = append(hidden, p)
		}
	}
	if err := r.commit(slices.Insert(slices.Clone(vis), at, list...)); err != nil {
		for _, p := range hidden {
			p.SetDisplayToUser(false)
		}
		unlock()
		return fmt.Errorf("route %q: add %s: %w", r.name, list[0].Name(), err)
	}
	for _, p := range list {
		if s, ok := p.(*processor.InternalSend); ok {
			s.Bind(resolver)
		}
		p.Activate()
	}
	unlock()

	r.afterChange(Change{Type: ChangeInsert, Processors: ids(list)}, hasSends(list))
	return nil
}

// RemoveProcessor takes p out of the chain.
func (r *Route) RemoveProcessor(p processor.Processor) error {
	return r.RemoveProcessors([]processor.Processor{p})
}

// RemoveProcessors takes list out of the chain. Either all are removed or
// none. Removed sends are unbound and release their ports.
func (r *Route) RemoveProcessors(list []processor.Processor) error {
	if len(list) == 0 {
		return nil
	}
	for _, p := range list {
		if p == nil || r.ownsFixed(p) {
			return fmt.Errorf("route %q: remove: %w", r.name, ErrFixedProcessor)
		}
	}

	unlock := r.lock()
	vis := visible(r.processors)
	for _, p := range list {
		if slices.Index(vis, p) < 0 {
			unlock()
			return fmt.Errorf("route %q: remove %s: %w", r.name, p.Name(), ErrNotFound)
		}
	}
	next := slices.DeleteFunc(slices.Clone(vis), func(p processor.Processor) bool {
		return slices.Index(list, p) >= 0
	})
	if err := r.commit(next); err != nil {
		unlock()
		return fmt.Errorf("route %q: remove: %w", r.name, err)
	}
	for _, p := range list {
		r.retire(p)
	}
	unlock()

	r.afterChange(Change{Type: ChangeRemove, Processors: ids(list)}, hasSends(list))
	return nil
}

// retire deactivates a processor leaving the chain.
func (r *Route) retire(p processor.Processor) {
	p.Deactivate()
	switch s := p.(type) {
	case *processor.InternalSend:
		s.Unbind()
	case *processor.Send:
		s.Release()
	}
}

// DestroyLocked deactivates every processor, unbinds internal sends and gives
// back the ports of external sends. A chain change still waiting for the
// process thread is dropped. Called by the session with the process lock
// held when the route leaves it; the route must not run afterwards.
func (r *Route) DestroyLocked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.Store(nil)
	for _, p := range r.processors {
		r.retire(p)
	}
	if r.monitorSend != nil {
		r.retire(r.monitorSend)
	}
}

// ReplaceProcessor puts next where old is. next takes over old's active
// state.
func (r *Route) ReplaceProcessor(old, next processor.Processor) error {
	if old == nil || next == nil || r.ownsFixed(old) {
		return fmt.Errorf("route %q: replace: %w", r.name, ErrFixedProcessor)
	}

	unlock := r.lock()
	vis := visible(r.processors)
	i := slices.Index(vis, old)
	if i < 0 {
		unlock()
		return fmt.Errorf("route %q: replace %s: %w", r.name, old.Name(), ErrNotFound)
	}
	if slices.Index(r.processors, next) >= 0 {
		unlock()
		return fmt.Errorf("route %q: replace with %s: %w", r.name, next.Name(), ErrDuplicate)
	}
	wasHidden := !next.DisplayToUser()
	next.SetDisplayToUser(true)
	list := slices.Clone(vis)
	list[i] = next
	if err := r.commit(list); err != nil {
		if wasHidden {
			next.SetDisplayToUser(false)
		}
		unlock()
		return fmt.Errorf("route %q: replace %s: %w", r.name, old.Name(), err)
	}
	if s, ok := next.(*processor.InternalSend); ok {
		s.Bind(r.host.Resolver())
	}
	next.SetActive(old.Active())
	r.retire(old)
	unlock()

	r.afterChange(Change{Type: ChangeReplace, Processors: []processor.ID{old.ID(), next.ID()}}, hasSends([]processor.Processor{old, next}))
	return nil
}

// ReorderProcessors sets the order of the visible processors. order must be
// a permutation of VisibleProcessors. If the new order keeps every
// processor's channel configuration and the engine runs, the change is
// handed to the process thread and takes effect at the start of the next
// cycle; otherwise it is applied and negotiated here.
func (r *Route) ReorderProcessors(order []processor.Processor) error {
	r.mu.RLock()
	vis := visible(r.processors)
	r.mu.RUnlock()
	if !samePermutation(vis, order) {
		return fmt.Errorf("route %q: reorder: %w", r.name, ErrBadOrder)
	}

	if r.host.Running() && !r.ProcessorsReorderNeedsConfigure(order) {
		r.queue(order, noPendingMeter)
		return nil
	}

	unlock := r.lock()
	if err := r.commit(order); err != nil {
		unlock()
		return fmt.Errorf("route %q: reorder: %w", r.name, err)
	}
	unlock()
	r.afterChange(Change{Type: ChangeReorder, Processors: ids(order)}, false)
	return nil
}

func samePermutation(a, b []processor.Processor) bool {
	if len(a) != len(b) {
		return false
	}
	for i, p := range b {
		if slices.Index(a, p) < 0 || slices.Index(b[:i], p) >= 0 {
			return false
		}
	}
	return true
}

// ProcessorsReorderNeedsConfigure reports whether putting the visible
// processors in order changes the channel configuration of any processor.
func (r *Route) ProcessorsReorderNeedsConfigure(order []processor.Processor) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.needsConfigure(r.withInvisible(order))
}

func (r *Route) needsConfigure(list []processor.Processor) bool {
	c := r.input
	for _, p := range list {
		if slices.Index(r.processors, p) < 0 || p.InputStreams() != c {
			return true
		}
		c = p.OutputStreams()
	}
	return false
}

// queue hands a chain that needs no configuration to the process thread. A
// change still waiting is built upon, so changes take effect in the order
// they were made.
func (r *Route) queue(order []processor.Processor, meter processor.MeterPoint) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	r.mu.RLock()
	base, current := r.processors, r.meterPoint
	if p := r.pending.Load(); p != nil {
		base, current = p.processors, p.meter
	}
	if order == nil {
		order = visible(base)
	}
	if meter == noPendingMeter {
		meter = current
	}
	next := &pendingChain{processors: r.place(order, meter), meter: meter}
	r.mu.RUnlock()

	r.pending.Store(next)
}

// applyPendingLocked installs a queued chain. Called with the processor lock
// held for writing, on either thread.
func (r *Route) applyPendingLocked() bool {
	p := r.pending.Swap(nil)
	if p == nil {
		return false
	}
	r.processors = p.processors
	r.meterPoint = p.meter
	r.markSendPositions(r.processors)
	r.metrics.DeferredChanges.Inc()
	return true
}

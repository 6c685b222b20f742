package route

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/mixer/processor"
)

// recommit re-negotiates the current chain after a setting changed. If that
// fails, undo restores the setting and the old configuration is put back.
// Called with both locks held.
func (r *Route) recommit(undo func()) error {
	if err := r.commit(visible(r.processors)); err != nil {
		undo()
		r.reapply()
		return err
	}
	return nil
}

// SetStrictIO switches strict I/O for the route and its plugins.
func (r *Route) SetStrictIO(yn bool) error {
	unlock := r.lock()
	if r.strict == yn {
		unlock()
		return nil
	}
	setAll := func(v bool) {
		r.strict = v
		for _, p := range r.processors {
			if pi, ok := p.(*processor.PluginInsert); ok {
				pi.SetStrictIO(v)
			}
		}
	}
	setAll(yn)
	if err := r.recommit(func() { setAll(!yn) }); err != nil {
		unlock()
		return fmt.Errorf("route %q: strict i/o: %w", r.name, err)
	}
	unlock()
	r.afterChange(Change{Type: ChangeConfiguration}, false)
	return nil
}

func (r *Route) hasLocked(p processor.Processor) bool {
	return slices.Index(r.processors, p) >= 0
}

// CustomizePluginInsert fixes the number of plugin instances, the output
// count and the sink count of pi. count 0 returns to automatic matching.
func (r *Route) CustomizePluginInsert(pi *processor.PluginInsert, count int, out, sinks chans.Count) error {
	unlock := r.lock()
	if pi == nil || !r.hasLocked(pi) {
		unlock()
		return fmt.Errorf("route %q: customize: %w", r.name, ErrNotFound)
	}
	oc, oo, os, had := pi.CustomConfiguration()
	if count > 0 {
		pi.SetCustomConfiguration(count, out, sinks)
	} else {
		pi.ClearCustomConfiguration()
	}
	err := r.recommit(func() {
		if had {
			pi.SetCustomConfiguration(oc, oo, os)
		} else {
			pi.ClearCustomConfiguration()
		}
	})
	unlock()
	if err != nil {
		return fmt.Errorf("route %q: customize %s: %w", r.name, pi.Name(), err)
	}
	r.afterChange(Change{Type: ChangeConfiguration, Processors: []processor.ID{pi.ID()}}, false)
	return nil
}

// ResetPluginInsert drops a custom configuration and the pin maps of pi.
func (r *Route) ResetPluginInsert(pi *processor.PluginInsert) error {
	if err := r.CustomizePluginInsert(pi, 0, chans.Zero, chans.Zero); err != nil {
		return err
	}
	unlock := r.lock()
	pi.ResetMaps()
	unlock()
	return nil
}

func (r *Route) setMap(pi *processor.PluginInsert, what string, set func() bool) error {
	unlock := r.lock()
	if pi == nil || !r.hasLocked(pi) {
		unlock()
		return fmt.Errorf("route %q: %s map: %w", r.name, what, ErrNotFound)
	}
	ok := set()
	unlock()
	if !ok {
		return fmt.Errorf("route %q: %s map of %s: %w", r.name, what, pi.Name(), ErrInfeasibleConfiguration)
	}
	r.emit(Change{Type: ChangeConfiguration, Processors: []processor.ID{pi.ID()}})
	return nil
}

// SetInputMap replaces the input pin map of instance k of pi.
func (r *Route) SetInputMap(pi *processor.PluginInsert, k int, m *chans.Mapping) error {
	return r.setMap(pi, "input", func() bool { return pi.SetInputMap(k, m) })
}

// SetOutputMap replaces the output pin map of instance k of pi.
func (r *Route) SetOutputMap(pi *processor.PluginInsert, k int, m *chans.Mapping) error {
	return r.setMap(pi, "output", func() bool { return pi.SetOutputMap(k, m) })
}

// SetThruMap replaces the thru map of pi.
func (r *Route) SetThruMap(pi *processor.PluginInsert, m *chans.Mapping) error {
	return r.setMap(pi, "thru", func() bool { return pi.SetThruMap(m) })
}

// AllVisibleProcessorsActive switches every visible processor but the fader.
func (r *Route) AllVisibleProcessorsActive(yn bool) {
	for _, p := range r.VisibleProcessors() {
		if p == processor.Processor(r.amp) {
			continue
		}
		p.SetActive(yn)
	}
	r.afterChange(Change{Type: ChangeConfiguration}, false)
}

// SetProcessorActive switches one processor of the route.
func (r *Route) SetProcessorActive(p processor.Processor, yn bool) error {
	unlock := r.lock()
	if p == nil || !r.hasLocked(p) {
		unlock()
		return fmt.Errorf("route %q: activate: %w", r.name, ErrNotFound)
	}
	p.SetActive(yn)
	unlock()
	r.afterChange(Change{Type: ChangeConfiguration, Processors: []processor.ID{p.ID()}}, false)
	return nil
}

// split returns the visible processors before and after the fader.
func (r *Route) split() (pre, post []processor.Processor) {
	vis := r.VisibleProcessors()
	i := slices.Index(vis, processor.Processor(r.amp))
	if i < 0 {
		return vis, nil
	}
	return vis[:i], vis[i+1:]
}

func pick(pre, post []processor.Processor, where Placement) []processor.Processor {
	if where == PreFader {
		return pre
	}
	return post
}

// DisableProcessors deactivates the visible processors on one side of the
// fader.
func (r *Route) DisableProcessors(where Placement) {
	pre, post := r.split()
	for _, p := range pick(pre, post, where) {
		p.Deactivate()
	}
	r.afterChange(Change{Type: ChangeConfiguration}, false)
}

// ClearProcessors removes every removable visible processor on one side of
// the fader.
func (r *Route) ClearProcessors(where Placement) error {
	pre, post := r.split()
	list := slices.DeleteFunc(slices.Clone(pick(pre, post, where)), r.ownsFixed)
	if len(list) == 0 {
		return nil
	}
	return r.RemoveProcessors(list)
}

// SetInputCount changes the number of input channels and re-negotiates the
// chain. On failure the old count stays.
func (r *Route) SetInputCount(c chans.Count) error {
	unlock := r.lock()
	old := r.input
	if old == c {
		unlock()
		return nil
	}
	r.input = c
	if err := r.recommit(func() { r.input = old }); err != nil {
		unlock()
		return fmt.Errorf("route %q: input %s: %w", r.name, c, err)
	}
	unlock()

	r.emitIO(c)
	r.afterChange(Change{Type: ChangeConfiguration}, false)
	return nil
}

// SetOutputPorts changes the number of output ports of the main outs.
func (r *Route) SetOutputPorts(c chans.Count) error {
	unlock := r.lock()
	old := r.mainOuts.Ports()
	r.mainOuts.SetPorts(c)
	if err := r.recommit(func() { r.mainOuts.SetPorts(old) }); err != nil {
		unlock()
		return fmt.Errorf("route %q: output %s: %w", r.name, c, err)
	}
	unlock()
	r.afterChange(Change{Type: ChangeConfiguration}, false)
	return nil
}

// MeterPoint returns where the meter taps the signal, counting a change
// still waiting for the process thread.
func (r *Route) MeterPoint() processor.MeterPoint {
	if p := r.pending.Load(); p != nil {
		return p.meter
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meterPoint
}

// SetMeterPoint moves the meter. A move that changes no channel count is
// handed to the process thread while the engine runs. With MeterCustom the
// meter becomes a visible processor that stays where it is.
func (r *Route) SetMeterPoint(mp processor.MeterPoint) error {
	if r.MeterPoint() == mp {
		return nil
	}

	if mp != processor.MeterCustom && r.MeterPoint() != processor.MeterCustom && r.host.Running() {
		r.mu.RLock()
		needs := r.needsConfigure(r.place(visible(r.processors), mp))
		r.mu.RUnlock()
		if !needs {
			r.queue(nil, mp)
			r.emit(Change{Type: ChangeMeterPoint})
			return nil
		}
	}

	unlock := r.lock()
	old := r.meterPoint
	r.meterPoint = mp
	r.meter.SetDisplayToUser(mp == processor.MeterCustom)
	err := r.recommit(func() {
		r.meterPoint = old
		r.meter.SetDisplayToUser(old == processor.MeterCustom)
	})
	unlock()
	if err != nil {
		return fmt.Errorf("route %q: meter point %s: %w", r.name, mp, err)
	}
	r.afterChange(Change{Type: ChangeMeterPoint, Processors: []processor.ID{r.meter.ID()}}, false)
	return nil
}

// DiskIOPoint returns where a track records and plays back.
func (r *Route) DiskIOPoint() processor.DiskIOPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.diskIOPoint
}

// SetDiskIOPoint moves the disk reader and writer of a track. With
// DiskIOCustom both become visible processors that stay where they are.
func (r *Route) SetDiskIOPoint(dp processor.DiskIOPoint) error {
	if r.diskReader == nil {
		return nil
	}
	unlock := r.lock()
	old := r.diskIOPoint
	if old == dp {
		unlock()
		return nil
	}
	show := func(p processor.DiskIOPoint) {
		r.diskIOPoint = p
		r.diskWriter.SetDisplayToUser(p == processor.DiskIOCustom)
		r.diskReader.SetDisplayToUser(p == processor.DiskIOCustom)
	}
	show(dp)
	err := r.recommit(func() { show(old) })
	unlock()
	if err != nil {
		return fmt.Errorf("route %q: disk i/o point %s: %w", r.name, dp, err)
	}
	r.afterChange(Change{Type: ChangeDiskIOPoint}, false)
	return nil
}

// SetTrimActive puts the trim stage into the chain or takes it out.
func (r *Route) SetTrimActive(yn bool) error {
	unlock := r.lock()
	if r.trim.Active() == yn {
		unlock()
		return nil
	}
	r.trim.SetActive(yn)
	err := r.recommit(func() { r.trim.SetActive(!yn) })
	unlock()
	if err != nil {
		return fmt.Errorf("route %q: trim: %w", r.name, err)
	}
	r.afterChange(Change{Type: ChangeConfiguration, Processors: []processor.ID{r.trim.ID()}}, false)
	return nil
}

// ListenConfig returns the listen tap settings.
func (r *Route) ListenConfig() ListenConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listen
}

// SetListenConfig moves the listen send.
func (r *Route) SetListenConfig(c ListenConfig) error {
	unlock := r.lock()
	old := r.listen
	if old == c {
		unlock()
		return nil
	}
	r.listen = c
	err := r.recommit(func() { r.listen = old })
	unlock()
	if err != nil {
		return fmt.Errorf("route %q: listen position: %w", r.name, err)
	}
	r.afterChange(Change{Type: ChangeReorder}, false)
	return nil
}

// QueueSelfDestruct asks for processor id to be removed by the next
// ProcessSelfDestruct. It is safe to call with the process lock held.
func (r *Route) QueueSelfDestruct(id processor.ID) {
	r.destructMu.Lock()
	if !slices.Contains(r.destruct, id) {
		r.destruct = append(r.destruct, id)
	}
	r.destructMu.Unlock()
}

// ProcessSelfDestruct removes the processors queued for removal and returns
// how many went away. It must be called without the process lock.
func (r *Route) ProcessSelfDestruct() int {
	r.destructMu.Lock()
	ids := r.destruct
	r.destruct = nil
	r.destructMu.Unlock()

	n := 0
	for _, id := range ids {
		p := r.ProcessorByID(id)
		if p == nil {
			continue
		}
		var err error
		if r.monitorSend != nil && p == processor.Processor(r.monitorSend) {
			err = r.removeMonitorSend()
		} else {
			err = r.RemoveProcessor(p)
		}
		if err != nil {
			r.log.Error("self-destruct failed", slog.String("processor", p.Name()), slog.Any("err", err))
			continue
		}
		n++
	}
	return n
}

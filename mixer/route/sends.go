package route

import (
	"fmt"
	"slices"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/mixer/processor"
)

// directResolver resolves target before asking the session. It lets sends
// between routes that are not yet part of a session bind.
type directResolver struct {
	next   processor.ReturnResolver
	target *Route
}

func (d directResolver) InternalReturnFor(id processor.RouteID) *processor.InternalReturn {
	if d.target != nil && d.target.id == id && d.target.intReturn != nil {
		return d.target.intReturn
	}
	if d.next != nil {
		return d.next.InternalReturnFor(id)
	}
	return nil
}

func (r *Route) checkTarget(target *Route) error {
	if target == nil || target == r || target.intReturn == nil || target.IsMonitor() {
		return fmt.Errorf("route %q: send: %w", r.name, ErrNoTarget)
	}
	if r.IsMonitor() {
		return fmt.Errorf("route %q: send from the monitor section: %w", r.name, ErrNoTarget)
	}
	return nil
}

// AddAuxSend adds a send to the bus target before the visible processor
// before, or at the end of the chain. A route has at most one send per
// target; adding a second is a no-op.
func (r *Route) AddAuxSend(target *Route, before processor.Processor) error {
	if err := r.checkTarget(target); err != nil {
		return err
	}
	if r.InternalSendFor(target.id) != nil {
		return nil
	}
	s := processor.NewInternalSend("Aux "+target.name, r.id, target.id, processor.RoleAux, r.mute, r.cfg)
	return r.addProcessors([]processor.Processor{s}, before, directResolver{r.host.Resolver(), target})
}

// AddFoldbackSend adds a send to the foldback bus target, pre- or
// post-fader.
func (r *Route) AddFoldbackSend(target *Route, postFader bool) error {
	if err := r.checkTarget(target); err != nil {
		return err
	}
	if r.InternalSendFor(target.id) != nil {
		return nil
	}
	var before processor.Processor
	if !postFader {
		before = r.amp
	}
	s := processor.NewInternalSend("Foldback "+target.name, r.id, target.id, processor.RoleFoldback, r.mute, r.cfg)
	return r.addProcessors([]processor.Processor{s}, before, directResolver{r.host.Resolver(), target})
}

// AddSurroundSend adds a post-fader send that places every audio channel of
// r as an object on the surround bus target. Objects of successive sends
// occupy successive channels of target; the send fails if target has too few.
func (r *Route) AddSurroundSend(target *Route) (*processor.InternalSend, error) {
	if err := r.checkTarget(target); err != nil {
		return nil, err
	}
	if s := r.InternalSendFor(target.id); s != nil {
		return nil, fmt.Errorf("route %q: %w: already sends to %q", r.name, ErrDuplicate, target.name)
	}
	first := 0
	for _, s := range target.intReturn.Sends() {
		if s.Surround() {
			first = max(first, s.FirstObject()+s.ObjectCount())
		}
	}
	objects := int(r.InputCount().Audio())
	if width := int(target.InputCount().Audio()); first+objects > width {
		return nil, fmt.Errorf("route %q: %w: %d objects from channel %d on %d-channel %q",
			r.name, ErrInfeasibleConfiguration, objects, first, width, target.name)
	}
	s := processor.NewSurroundSend("Surround "+target.name, r.id, target.id, first, r.mute, r.cfg)
	if err := r.addProcessors([]processor.Processor{s}, nil, directResolver{r.host.Resolver(), target}); err != nil {
		return nil, err
	}
	return s, nil
}

// AddExternalSend adds a send with count output ports of its own. Ports come
// from the session; if they cannot be allocated nothing is added.
func (r *Route) AddExternalSend(name string, count chans.Count, before processor.Processor) (*processor.Send, error) {
	if r.IsMonitor() {
		return nil, fmt.Errorf("route %q: send from the monitor section: %w", r.name, ErrNoTarget)
	}
	s, err := processor.NewSend(name, r.host.PortAllocator(), count, r.mute, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("route %q: %w", r.name, err)
	}
	if err := r.AddProcessor(s, before); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

// EnableMonitorSend creates the listen send to the monitor section. It stays
// off until the route listens.
func (r *Route) EnableMonitorSend(monitor *Route) error {
	if monitor == nil || !monitor.IsMonitor() || r.IsMaster() || r.IsMonitor() {
		return fmt.Errorf("route %q: listen: %w", r.name, ErrNoTarget)
	}
	if r.monitorSend != nil {
		return nil
	}

	s := processor.NewInternalSend("Listen", r.id, monitor.id, processor.RoleListen, r.mute, r.cfg)
	unlock := r.lock()
	r.monitorSend = s
	if err := r.commit(visible(r.processors)); err != nil {
		r.monitorSend = nil
		unlock()
		return fmt.Errorf("route %q: listen: %w", r.name, err)
	}
	s.Bind(directResolver{r.host.Resolver(), monitor})
	unlock()

	r.afterChange(Change{Type: ChangeInsert, Processors: []processor.ID{s.ID()}}, false)
	return nil
}

// removeMonitorSend drops the listen send.
func (r *Route) removeMonitorSend() error {
	unlock := r.lock()
	s := r.monitorSend
	if s == nil {
		unlock()
		return nil
	}
	r.monitorSend = nil
	if err := r.commit(visible(r.processors)); err != nil {
		r.monitorSend = s
		unlock()
		return fmt.Errorf("route %q: remove listen: %w", r.name, err)
	}
	r.retire(s)
	unlock()

	r.afterChange(Change{Type: ChangeRemove, Processors: []processor.ID{s.ID()}}, false)
	return nil
}

// RemoveAuxOrListen removes the send to target, if any.
func (r *Route) RemoveAuxOrListen(target *Route) error {
	if target == nil {
		return nil
	}
	s := r.InternalSendFor(target.id)
	if s == nil {
		return nil
	}
	if s == r.monitorSend {
		return r.removeMonitorSend()
	}
	return r.RemoveProcessor(s)
}

// InternalSendFor returns the send to route target, or nil.
func (r *Route) InternalSendFor(target processor.RouteID) *processor.InternalSend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.processors {
		if s, ok := p.(*processor.InternalSend); ok && s.Target() == target {
			return s
		}
	}
	return nil
}

// InternalSends returns every internal send of the chain, the listen send
// included.
func (r *Route) InternalSends() []*processor.InternalSend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*processor.InternalSend
	for _, p := range r.processors {
		if s, ok := p.(*processor.InternalSend); ok {
			out = append(out, s)
		}
	}
	return out
}

// SendTargets returns the routes fed through internal sends. Listen sends
// and sends allowed to feed back are left out: they do not order routes.
func (r *Route) SendTargets() []processor.RouteID {
	var out []processor.RouteID
	for _, s := range r.InternalSends() {
		if s.Role() == processor.RoleListen || s.AllowFeedback() {
			continue
		}
		if !slices.Contains(out, s.Target()) {
			out = append(out, s.Target())
		}
	}
	return out
}

// RetargetSend points s at target and lets the session re-balance solo.
func (r *Route) RetargetSend(s *processor.InternalSend, target *Route) error {
	if err := r.checkTarget(target); err != nil {
		return err
	}
	if s == nil || slices.Index(r.Processors(), processor.Processor(s)) < 0 {
		return fmt.Errorf("route %q: retarget: %w", r.name, ErrNotFound)
	}
	pl := r.host.ProcessLock()
	pl.Lock()
	s.Retarget(target.id, directResolver{r.host.Resolver(), target})
	pl.Unlock()

	r.host.PropagateSolo()
	r.host.LatencyChanged(r.id)
	return nil
}

// BindSends binds every unbound internal send and returns how many could not
// be resolved. Called with the process lock held.
func (r *Route) BindSends(res processor.ReturnResolver) int {
	unresolved := 0
	for _, s := range r.InternalSends() {
		if !s.Bind(res) {
			unresolved++
		}
	}
	return unresolved
}

// UnbindSendsTo makes every send to target inert and queues it for removal.
// Called with the process lock held when target goes away.
func (r *Route) UnbindSendsTo(target processor.RouteID) bool {
	found := false
	for _, s := range r.InternalSends() {
		if s.Target() != target {
			continue
		}
		s.Unbind()
		r.QueueSelfDestruct(s.ID())
		found = true
	}
	return found
}

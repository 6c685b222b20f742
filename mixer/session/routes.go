package session

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/mixer/graph"
	"github.com/cwbudde/algo-mixer/mixer/processor"
	"github.com/cwbudde/algo-mixer/mixer/route"
)

// AddRoute creates a route attached to the session. id 0 picks the next free
// ID. Only one master and one monitor route may exist.
func (s *Session) AddRoute(id processor.RouteID, name string, kind route.Kind, in chans.Count, opts ...route.Option) (*route.Route, error) {
	s.mu.Lock()
	switch {
	case kind == route.KindMaster && s.master != nil,
		kind == route.KindMonitor && s.monitor != nil,
		id != 0 && s.routes[id] != nil:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s %q", ErrDuplicateRoute, kind, name)
	}
	if id == 0 {
		id = s.nextID
	}
	s.nextID = max(s.nextID, id+1)
	s.mu.Unlock()

	base := []route.Option{
		route.WithConfig(s.cfg.Processor),
		route.WithLogger(s.log),
		route.WithMetrics(s.metrics),
		route.WithHost(s),
		route.WithStrictIO(s.cfg.StrictIO),
		route.WithListen(s.cfg.Listen),
	}
	r, err := route.New(id, name, kind, in, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("session: add %s %q: %w", kind, name, err)
	}

	s.processMu.Lock()
	s.mu.Lock()
	if s.routes[id] != nil {
		s.mu.Unlock()
		s.processMu.Unlock()
		return nil, fmt.Errorf("%w: id %d", ErrDuplicateRoute, id)
	}
	s.routes[id] = r
	s.graph.AddNode(id)
	switch kind {
	case route.KindMaster:
		s.master = r
		s.setMasterInputs(in)
		r.OnIOChanged(s.setMasterInputs)
	case route.KindMonitor:
		s.monitor = r
	}
	s.retopologizeLocked()
	unresolved := s.bindLocked()
	s.mu.Unlock()
	s.processMu.Unlock()
	s.metrics.UnresolvedSends.Set(float64(unresolved))

	s.log.Debug("route added", slog.String("route", name), slog.String("kind", kind.String()), slog.Any("id", id))
	s.wire(r)
	s.UpdateLatencyCompensation()
	return r, nil
}

// wire makes the default connections of a new route.
func (s *Session) wire(r *route.Route) {
	s.mu.RLock()
	master, monitor := s.master, s.monitor
	others := s.routesLocked()
	s.mu.RUnlock()

	switch r.Kind() {
	case route.KindTrack, route.KindBus:
		if s.cfg.AutoConnect && master != nil {
			s.connect(r.ID(), master.ID())
		}
		if monitor != nil {
			s.enableListen(r, monitor)
		}
	case route.KindMaster:
		if !s.cfg.AutoConnect {
			return
		}
		for _, o := range others {
			if o.IsMaster() || o.IsMonitor() || len(s.Connections(o.ID())) > 0 {
				continue
			}
			s.connect(o.ID(), r.ID())
		}
	case route.KindMonitor:
		for _, o := range others {
			if o.Kind() == route.KindTrack || o.Kind() == route.KindBus {
				s.enableListen(o, r)
			}
		}
	}
}

func (s *Session) connect(from, to processor.RouteID) {
	if err := s.Connect(from, to); err != nil {
		s.log.Warn("auto-connect failed", slog.Any("from", from), slog.Any("to", to), slog.Any("err", err))
	}
}

func (s *Session) enableListen(r, monitor *route.Route) {
	if err := r.EnableMonitorSend(monitor); err != nil {
		s.log.Warn("listen send failed", slog.String("route", r.Name()), slog.Any("err", err))
	}
}

// NewTrack adds a track with in input channels.
func (s *Session) NewTrack(name string, in chans.Count, opts ...route.Option) (*route.Route, error) {
	return s.AddRoute(0, name, route.KindTrack, in, opts...)
}

// NewBus adds a bus with in input channels.
func (s *Session) NewBus(name string, in chans.Count, opts ...route.Option) (*route.Route, error) {
	return s.AddRoute(0, name, route.KindBus, in, opts...)
}

// AddMaster adds the master route.
func (s *Session) AddMaster(in chans.Count, opts ...route.Option) (*route.Route, error) {
	return s.AddRoute(0, "Master", route.KindMaster, in, opts...)
}

// AddMonitorSection adds the monitor route and gives every track and bus a
// listen send to it.
func (s *Session) AddMonitorSection(in chans.Count, opts ...route.Option) (*route.Route, error) {
	return s.AddRoute(0, "Monitor", route.KindMonitor, in, opts...)
}

// RemoveRoute takes a route out of the session. Sends to it are made inert
// in the same step and removed from their routes afterwards.
func (s *Session) RemoveRoute(id processor.RouteID) error {
	s.processMu.Lock()
	s.mu.Lock()
	r := s.routes[id]
	if r == nil {
		s.mu.Unlock()
		s.processMu.Unlock()
		return fmt.Errorf("session: remove %d: %w", id, ErrNotFound)
	}

	s.applySoloLocked(-1)
	r.SetActive(false)
	r.DestroyLocked()
	var touched []*route.Route
	for oid, o := range s.routes {
		if oid != id && o.UnbindSendsTo(id) {
			touched = append(touched, o)
		}
	}
	delete(s.routes, id)
	delete(s.sources, id)
	delete(s.conns, id)
	for from, to := range s.conns {
		s.conns[from] = slices.DeleteFunc(to, func(x processor.RouteID) bool { return x == id })
	}
	s.graph.RemoveNode(id)
	switch r {
	case s.master:
		s.master = nil
		s.setMasterInputs(chans.Zero)
	case s.monitor:
		s.monitor = nil
	}
	s.rebuildLocked()
	s.relation = s.graph.Relation()
	s.applySoloLocked(1)
	s.updateMutesLocked()
	s.mu.Unlock()
	s.processMu.Unlock()

	for _, o := range touched {
		o.ProcessSelfDestruct()
	}
	s.log.Debug("route removed", slog.String("route", r.Name()), slog.Int("sends", len(touched)))
	s.UpdateLatencyCompensation()
	return nil
}

// Route returns the route with the given ID, or nil.
func (s *Session) Route(id processor.RouteID) *route.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.routes[id]
}

// RouteByName returns the first route named name, or nil.
func (s *Session) RouteByName(name string) *route.Route {
	for _, r := range s.Routes() {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

// Routes returns every route in ID order.
func (s *Session) Routes() []*route.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.routesLocked()
}

func (s *Session) routesLocked() []*route.Route {
	ids := make([]processor.RouteID, 0, len(s.routes))
	for id := range s.routes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*route.Route, len(ids))
	for i, id := range ids {
		out[i] = s.routes[id]
	}
	return out
}

// Master returns the master route, or nil.
func (s *Session) Master() *route.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.master
}

// Monitor returns the monitor route, or nil.
func (s *Session) Monitor() *route.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitor
}

// Connect feeds the main outs of from into the input of to.
func (s *Session) Connect(from, to processor.RouteID) error {
	s.processMu.Lock()
	s.mu.Lock()
	err := s.checkConnection(from, to)
	if err == nil && !slices.Contains(s.conns[from], to) {
		s.conns[from] = append(s.conns[from], to)
		s.retopologizeLocked()
	}
	s.mu.Unlock()
	s.processMu.Unlock()
	if err != nil {
		return fmt.Errorf("session: connect %d to %d: %w", from, to, err)
	}
	s.UpdateLatencyCompensation()
	return nil
}

// Disconnect removes a connection made by Connect.
func (s *Session) Disconnect(from, to processor.RouteID) error {
	s.processMu.Lock()
	s.mu.Lock()
	err := s.checkConnection(from, to)
	if err == nil {
		if i := slices.Index(s.conns[from], to); i >= 0 {
			s.conns[from] = slices.Delete(s.conns[from], i, i+1)
			s.retopologizeLocked()
		}
	}
	s.mu.Unlock()
	s.processMu.Unlock()
	if err != nil {
		return fmt.Errorf("session: disconnect %d from %d: %w", from, to, err)
	}
	s.UpdateLatencyCompensation()
	return nil
}

func (s *Session) checkConnection(from, to processor.RouteID) error {
	switch {
	case s.routes[from] == nil || s.routes[to] == nil:
		return ErrNotFound
	case from == to:
		return ErrBadConnection
	}
	return nil
}

// Connections returns the routes from feeds through its main outs.
func (s *Session) Connections(from processor.RouteID) []processor.RouteID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conns[from])
}

// Feeds reports whether a feeds b, directly or indirectly, and whether only
// through sends.
func (s *Session) Feeds(a, b processor.RouteID) (feeds, viaSendsOnly bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Feeds(a, b)
}

// SetInputSource sets the external input of route id. A nil src removes it.
func (s *Session) SetInputSource(id processor.RouteID, src Source) error {
	s.processMu.Lock()
	s.mu.Lock()
	ok := s.routes[id] != nil
	if ok {
		if src == nil {
			delete(s.sources, id)
		} else {
			s.sources[id] = src
		}
	}
	s.mu.Unlock()
	s.processMu.Unlock()
	if !ok {
		return fmt.Errorf("session: input of %d: %w", id, ErrNotFound)
	}
	s.UpdateLatencyCompensation()
	return nil
}

// Output returns what route id delivered in the last cycle. The buffers are
// overwritten by the next cycle.
func (s *Session) Output(id processor.RouteID) (*buffer.Set, error) {
	r := s.Route(id)
	if r == nil {
		return nil, fmt.Errorf("session: output of %d: %w", id, ErrNotFound)
	}
	return r.Output(), nil
}

// rebuildLocked refreshes the graph edges and the process order. Called
// with processMu and mu held.
func (s *Session) rebuildLocked() {
	clear(s.feeders)
	for id, r := range s.routes {
		var edges []graph.Edge
		for _, to := range s.conns[id] {
			edges = append(edges, graph.Edge{From: id, To: to})
			s.feeders[to] = append(s.feeders[to], id)
		}
		for _, to := range r.SendTargets() {
			if s.routes[to] != nil {
				edges = append(edges, graph.Edge{From: id, To: to, ViaSendsOnly: true})
			}
		}
		s.graph.SetEdges(id, edges)
	}

	order, err := s.graph.Order()
	if err != nil {
		s.log.Warn("signal flow has a cycle", slog.Any("err", err))
	}
	ordered := make([]*route.Route, 0, len(order))
	for _, id := range order {
		ordered = append(ordered, s.routes[id])
	}
	s.ordered = s.monitorLateLocked(ordered)
}

// monitorLateLocked moves the monitor section behind every route it does
// not feed. Listen sends add no graph edge, and the monitor section must
// still run after the routes listening to it.
func (s *Session) monitorLateLocked(ordered []*route.Route) []*route.Route {
	if s.monitor == nil {
		return ordered
	}
	at := slices.Index(ordered, s.monitor)
	if at < 0 {
		return ordered
	}
	mon := s.monitor.ID()
	rest := slices.Delete(slices.Clone(ordered), at, at+1)
	to := len(rest)
	for i := at; i < len(rest); i++ {
		if feeds, _ := s.graph.Feeds(mon, rest[i].ID()); feeds {
			to = i
			break
		}
	}
	return slices.Insert(rest, to, s.monitor)
}

// bindLocked binds every unbound internal send and returns how many remain
// unresolved.
func (s *Session) bindLocked() int {
	n := 0
	for _, r := range s.routes {
		n += r.BindSends(s)
	}
	return n
}

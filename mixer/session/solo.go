package session

import (
	"github.com/cwbudde/algo-mixer/mixer/graph"
	"github.com/cwbudde/algo-mixer/mixer/processor"
	"github.com/cwbudde/algo-mixer/mixer/route"
)

// SoloChanged pushes a change of a route's own solo to the routes in its
// signal flow. Routes feeding it count a downstream solo, routes it feeds
// through its outputs count an upstream solo.
func (s *Session) SoloChanged(id processor.RouteID, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.routes[id]
	if r == nil {
		return
	}
	if s.soloIsListen() {
		r.SetListen(delta > 0)
		return
	}
	s.pushSolo(id, delta, s.relation)
	s.updateMutesLocked()
}

// IsolateChanged pushes a change of a route's own isolate to the routes it
// feeds through its outputs.
func (s *Session) IsolateChanged(id processor.RouteID, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.routes[id] == nil {
		return
	}
	s.pushIsolate(id, delta, s.relation)
	s.updateMutesLocked()
}

// PropagateSolo brings solo state and latency compensation up to date after
// the signal flow changed.
func (s *Session) PropagateSolo() {
	s.processMu.Lock()
	s.mu.Lock()
	s.retopologizeLocked()
	s.mu.Unlock()
	s.processMu.Unlock()
	s.UpdateLatencyCompensation()
}

// retopologizeLocked rebuilds the graph. The solo contributions made under
// the old relation are taken back and pushed again under the new one, so
// every count reflects the current signal flow.
func (s *Session) retopologizeLocked() {
	s.applySoloLocked(-1)
	s.rebuildLocked()
	s.relation = s.graph.Relation()
	s.applySoloLocked(1)
	s.updateMutesLocked()
}

// soloIsListen reports whether solo only switches listen sends. Without a
// monitor section there is nothing to listen to and solo has no effect.
func (s *Session) soloIsListen() bool { return s.cfg.SoloIsListen }

// applySoloLocked pushes (sign 1) or takes back (sign -1) the contributions
// of every self-soloed and self-isolated route under the cached relation.
func (s *Session) applySoloLocked(sign int) {
	if !s.soloIsListen() {
		for id, r := range s.routes {
			if r.SelfSoloed() {
				s.pushSolo(id, sign, s.relation)
			}
		}
	}
	for id, r := range s.routes {
		if r.SelfSoloIsolated() {
			s.pushIsolate(id, sign, s.relation)
		}
	}
}

func exempt(r *route.Route) bool { return r.IsMaster() || r.IsMonitor() }

func (s *Session) pushSolo(id processor.RouteID, delta int, rel graph.Relation) {
	for oid, o := range s.routes {
		if oid == id || exempt(o) {
			continue
		}
		if _, upstream := rel[graph.Pair{From: oid, To: id}]; upstream {
			o.ModSoloByOthersDownstream(delta)
		}
		if sendsOnly, downstream := rel[graph.Pair{From: id, To: oid}]; downstream && !sendsOnly {
			o.ModSoloByOthersUpstream(delta)
		}
	}
}

func (s *Session) pushIsolate(id processor.RouteID, delta int, rel graph.Relation) {
	for oid, o := range s.routes {
		if oid == id || exempt(o) {
			continue
		}
		if sendsOnly, downstream := rel[graph.Pair{From: id, To: oid}]; downstream && !sendsOnly {
			o.ModSoloIsolatedByUpstream(delta)
		}
	}
}

// updateMutesLocked mutes every route that is out of the signal flow of the
// soloed routes while anything is soloed.
func (s *Session) updateMutesLocked() {
	var soloed []processor.RouteID
	if !s.soloIsListen() {
		for id, r := range s.routes {
			if !exempt(r) && r.SelfSoloed() {
				soloed = append(soloed, id)
			}
		}
	}

	for id, r := range s.routes {
		if exempt(r) {
			continue
		}
		mute := len(soloed) > 0 && !r.Soloed() && !r.SoloIsolated()
		for _, sid := range soloed {
			if !mute {
				break
			}
			if _, inFlow := s.relation[graph.Pair{From: sid, To: id}]; inFlow {
				mute = false
			}
		}
		r.SetMutedByOthersSoloing(mute)
	}
}

// Soloing reports whether any route is soloed.
func (s *Session) Soloing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.routes {
		if !exempt(r) && r.SelfSoloed() {
			return true
		}
	}
	return false
}

// ClearSolo un-solos every route.
func (s *Session) ClearSolo() {
	for _, r := range s.Routes() {
		r.SetSolo(false)
	}
}

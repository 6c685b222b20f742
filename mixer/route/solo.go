package route

import (
	"log/slog"
	"sync"
)

// soloState holds solo and isolate counts. Counts are changed by the session
// as solo propagates through the route graph.
type soloState struct {
	mu                 sync.Mutex
	self               bool
	upstream           int
	downstream         int
	isolated           bool
	isolatedByUpstream int
	safe               bool
}

// SetSolo sets the route's own solo. It reports whether anything changed; a
// solo-safe route does not change.
func (r *Route) SetSolo(yn bool) bool {
	r.solo.mu.Lock()
	if r.solo.safe || r.solo.self == yn {
		r.solo.mu.Unlock()
		return false
	}
	r.solo.self = yn
	r.solo.mu.Unlock()

	delta := 1
	if !yn {
		delta = -1
	}
	r.host.SoloChanged(r.id, delta)
	return true
}

// SelfSoloed reports the route's own solo.
func (r *Route) SelfSoloed() bool {
	r.solo.mu.Lock()
	defer r.solo.mu.Unlock()
	return r.solo.self
}

// Soloed reports whether the route is heard because of solo: its own, or a
// soloed route it feeds or is fed by.
func (r *Route) Soloed() bool {
	r.solo.mu.Lock()
	defer r.solo.mu.Unlock()
	return r.solo.self || r.solo.upstream > 0 || r.solo.downstream > 0
}

// SoloedByOthersUpstream is the number of soloed routes feeding this one.
func (r *Route) SoloedByOthersUpstream() int {
	r.solo.mu.Lock()
	defer r.solo.mu.Unlock()
	return r.solo.upstream
}

// SoloedByOthersDownstream is the number of soloed routes this one feeds.
func (r *Route) SoloedByOthersDownstream() int {
	r.solo.mu.Lock()
	defer r.solo.mu.Unlock()
	return r.solo.downstream
}

// ModSoloByOthersUpstream changes the upstream solo count by delta. The count
// never drops below zero.
func (r *Route) ModSoloByOthersUpstream(delta int) {
	r.solo.mu.Lock()
	r.solo.upstream = r.clampCount("upstream solo", r.solo.upstream, delta)
	r.solo.mu.Unlock()
}

// ModSoloByOthersDownstream changes the downstream solo count by delta.
func (r *Route) ModSoloByOthersDownstream(delta int) {
	r.solo.mu.Lock()
	r.solo.downstream = r.clampCount("downstream solo", r.solo.downstream, delta)
	r.solo.mu.Unlock()
}

// ModSoloIsolatedByUpstream changes the upstream isolate count by delta.
func (r *Route) ModSoloIsolatedByUpstream(delta int) {
	r.solo.mu.Lock()
	r.solo.isolatedByUpstream = r.clampCount("upstream isolate", r.solo.isolatedByUpstream, delta)
	r.solo.mu.Unlock()
}

func (r *Route) clampCount(what string, n, delta int) int {
	n += delta
	if n < 0 {
		r.log.Warn("counter underflow", slog.String("counter", what), slog.Int("value", n))
		return 0
	}
	return n
}

// ResetSoloCounts clears the counts pushed by other routes.
func (r *Route) ResetSoloCounts() {
	r.solo.mu.Lock()
	r.solo.upstream = 0
	r.solo.downstream = 0
	r.solo.isolatedByUpstream = 0
	r.solo.mu.Unlock()
}

// SetSoloIsolated sets the route's own isolate. An isolated route is never
// muted because others are soloed.
func (r *Route) SetSoloIsolated(yn bool) bool {
	r.solo.mu.Lock()
	if r.solo.isolated == yn {
		r.solo.mu.Unlock()
		return false
	}
	r.solo.isolated = yn
	r.solo.mu.Unlock()

	delta := 1
	if !yn {
		delta = -1
	}
	r.host.IsolateChanged(r.id, delta)
	return true
}

// SoloIsolated reports own or inherited isolation.
func (r *Route) SoloIsolated() bool {
	r.solo.mu.Lock()
	defer r.solo.mu.Unlock()
	return r.solo.isolated || r.solo.isolatedByUpstream > 0
}

// SelfSoloIsolated reports the route's own isolate.
func (r *Route) SelfSoloIsolated() bool {
	r.solo.mu.Lock()
	defer r.solo.mu.Unlock()
	return r.solo.isolated
}

// SoloIsolatedByUpstream is the number of isolated routes feeding this one.
func (r *Route) SoloIsolatedByUpstream() int {
	r.solo.mu.Lock()
	defer r.solo.mu.Unlock()
	return r.solo.isolatedByUpstream
}

// SetSoloSafe locks the route's solo state.
func (r *Route) SetSoloSafe(yn bool) {
	r.solo.mu.Lock()
	r.solo.safe = yn
	r.solo.mu.Unlock()
}

// SoloSafe reports whether solo is locked.
func (r *Route) SoloSafe() bool {
	r.solo.mu.Lock()
	defer r.solo.mu.Unlock()
	return r.solo.safe
}

// SetListen turns the listen send to the monitor section on or off. It
// reports whether the state changed; routes without a listen send never
// listen.
func (r *Route) SetListen(yn bool) bool {
	if r.monitorSend == nil || r.monitorSend.Active() == yn {
		return false
	}
	if yn {
		r.monitorSend.Activate()
	} else {
		r.monitorSend.Deactivate()
	}
	return true
}

// Listening reports whether the listen send is on.
func (r *Route) Listening() bool {
	return r.monitorSend != nil && r.monitorSend.Active()
}

// SetMuted sets the route's own mute.
func (r *Route) SetMuted(yn bool) { r.mute.SetMuted(yn) }

// Muted reports the route's own mute.
func (r *Route) Muted() bool { return r.mute.Muted() }

// SetMutedByOthersSoloing records the implicit mute caused by solo elsewhere.
func (r *Route) SetMutedByOthersSoloing(yn bool) { r.mute.SetMutedByOthersSoloing(yn) }

// MutedByOthersSoloing reports the implicit solo mute.
func (r *Route) MutedByOthersSoloing() bool { return r.mute.MutedByOthersSoloing() }

package processor

import (
	"strings"
	"sync/atomic"
)

// MutePoint is a set of places in a route where mute takes effect.
type MutePoint uint32

const (
	MutePreFader MutePoint = 1 << iota
	MutePostFader
	MuteListen
	MuteMain

	MuteAllPoints = MutePreFader | MutePostFader | MuteListen | MuteMain
)

func (m MutePoint) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for _, p := range []struct {
		bit  MutePoint
		name string
	}{{MutePreFader, "prefader"}, {MutePostFader, "postfader"}, {MuteListen, "listen"}, {MuteMain, "main"}} {
		if m&p.bit != 0 {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, ",")
}

// MuteMaster holds a route's mute state. Deliveries and sends ask it for the
// gain to apply at their mute point. It is written from control threads and
// read on the process thread.
type MuteMaster struct {
	points        atomic.Uint32
	self          atomic.Bool
	othersSoloing atomic.Bool
}

// NewMuteMaster returns an unmuted master affecting every mute point.
func NewMuteMaster() *MuteMaster {
	m := &MuteMaster{}
	m.points.Store(uint32(MuteAllPoints))
	return m
}

// SetMutePoints selects where self mute applies.
func (m *MuteMaster) SetMutePoints(p MutePoint) { m.points.Store(uint32(p)) }

// MutePoints returns where self mute applies.
func (m *MuteMaster) MutePoints() MutePoint { return MutePoint(m.points.Load()) }

// SetMuted sets the route's own mute.
func (m *MuteMaster) SetMuted(yn bool) { m.self.Store(yn) }

// Muted reports the route's own mute.
func (m *MuteMaster) Muted() bool { return m.self.Load() }

// SetMutedByOthersSoloing records that other routes are soloed and this one
// is not.
func (m *MuteMaster) SetMutedByOthersSoloing(yn bool) { m.othersSoloing.Store(yn) }

// MutedByOthersSoloing reports the implicit solo mute.
func (m *MuteMaster) MutedByOthersSoloing() bool { return m.othersSoloing.Load() }

// MutedAt reports whether signal at point is muted.
func (m *MuteMaster) MutedAt(point MutePoint) bool {
	if m == nil {
		return false
	}
	if m.self.Load() && m.MutePoints()&point != 0 {
		return true
	}
	// listen taps follow solo, they are never muted by it
	return m.othersSoloing.Load() && point&MuteListen == 0
}

// GainAt returns 0 where muted and 1 otherwise.
func (m *MuteMaster) GainAt(point MutePoint) float64 {
	if m.MutedAt(point) {
		return 0
	}
	return 1
}

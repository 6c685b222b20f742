package session

import (
	"log/slog"

	"github.com/cwbudde/algo-mixer/mixer/processor"
	"github.com/cwbudde/algo-mixer/mixer/route"
)

// UpdateLatencyCompensation aligns every route with the slowest path to the
// outputs it shares.
//
// The playback latency downstream of a route is the largest of signal plus
// downstream latency over the routes it is connected to. Routes fed by other
// routes must be as late as their slowest feeder; routes reading an external
// source must be as late as the slowest source-fed path in the session.
// Internal sends are told how long the signal takes from their return to the
// outputs, which changes their thru delay and with it the latency of the
// sending route, so the plan is repeated until nothing changes.
func (s *Session) UpdateLatencyCompensation() {
	s.processMu.Lock()
	s.mu.RLock()
	worst := s.updateLatencyLocked()
	s.mu.RUnlock()
	s.processMu.Unlock()
	s.metrics.WorstLatency.Set(float64(worst))
}

func (s *Session) updateLatencyLocked() int {
	running := s.Running()
	ordered := s.ordered
	playOut := make(map[processor.RouteID]int, len(ordered))
	playIn := make(map[processor.RouteID]int, len(ordered))

	stable := false
	for pass := 0; pass < maxLatencyPasses && !stable; pass++ {
		stable = true
		for _, r := range ordered {
			if r.UpdateSignalLatencyLocked(false) {
				stable = false
			}
		}

		for i := len(ordered) - 1; i >= 0; i-- {
			id := ordered[i].ID()
			out := 0
			for _, to := range s.conns[id] {
				if d := s.routes[to]; d != nil {
					out = max(out, d.SignalLatency()+playOut[to])
				}
			}
			playOut[id] = out
		}

		sourced := 0
		for id := range s.sources {
			if r := s.routes[id]; r != nil {
				sourced = max(sourced, r.SignalLatency()+playOut[id])
			}
		}

		for _, r := range ordered {
			id := r.ID()
			switch {
			case len(s.feeders[id]) > 0:
				in := 0
				for _, f := range s.feeders[id] {
					in = max(in, playOut[f])
				}
				playIn[id] = in
			case s.sources[id] != nil:
				playIn[id] = sourced
			default:
				playIn[id] = r.SignalLatency() + playOut[id]
			}
			if pi, po := r.PlaybackLatencies(); pi != playIn[id] || po != playOut[id] {
				r.SetPlaybackLatencies(playIn[id], playOut[id])
				stable = false
			}
		}

		for _, r := range ordered {
			for _, snd := range r.InternalSends() {
				if snd.Role() == processor.RoleListen {
					continue
				}
				target := s.routes[snd.Target()]
				if target == nil || !snd.Bound() {
					continue
				}
				want := target.InternalReturn().OutputLatency() + playOut[target.ID()]
				if snd.DelayOut() != want {
					snd.SetDelayOut(want, running)
					stable = false
				}
			}
		}
	}
	if !stable {
		s.log.Warn("latency compensation did not settle", slog.Int("passes", maxLatencyPasses))
	}

	worst := 0
	for _, r := range ordered {
		r.UpdateSignalLatencyLocked(false)
		r.ApplyLatencyCompensationLocked()
		worst = max(worst, playIn[r.ID()])
	}
	return worst
}

// Latency reports the playback latencies and the compensation delay of a
// route.
type Latency struct {
	Route   string
	Signal  int
	In, Out int
	Delay   int
}

// Latencies returns the latency figures of every route in ID order.
func (s *Session) Latencies() []Latency {
	var out []Latency
	for _, r := range s.Routes() {
		out = append(out, latencyOf(r))
	}
	return out
}

func latencyOf(r *route.Route) Latency {
	in, out := r.PlaybackLatencies()
	return Latency{
		Route:  r.Name(),
		Signal: r.SignalLatency(),
		In:     in,
		Out:    out,
		Delay:  r.CompensationDelay(),
	}
}

package session

import (
	"log/slog"

	"github.com/cwbudde/algo-mixer/mixer/processor"
)

// FinishLoad completes a session load. Routes may be restored with sends to
// routes that were restored after them; FinishLoad binds every such send,
// warns about sends whose target does not exist and brings solo and latency
// compensation up to date. It returns the number of unresolved sends.
func (s *Session) FinishLoad() int {
	type dangling struct {
		route  string
		send   string
		target processor.RouteID
	}
	var missing []dangling

	s.processMu.Lock()
	s.mu.Lock()
	s.bindLocked()
	for _, r := range s.routesLocked() {
		for _, snd := range r.InternalSends() {
			if !snd.Bound() {
				missing = append(missing, dangling{r.Name(), snd.Name(), snd.Target()})
			}
		}
	}
	s.retopologizeLocked()
	s.mu.Unlock()
	s.processMu.Unlock()

	for _, m := range missing {
		s.log.Warn("send target not found", slog.String("route", m.route), slog.String("send", m.send), slog.Any("target", m.target))
	}
	s.metrics.UnresolvedSends.Set(float64(len(missing)))
	s.UpdateLatencyCompensation()
	return len(missing)
}

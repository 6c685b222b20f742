package session

// Process runs one cycle of nframes samples over every route in signal-flow
// order. A route's input is the sum of its external source and the outputs
// of the routes connected to it. Process never blocks: when a mutation holds
// the process lock nothing runs, false is returned and the caller plays
// silence for this cycle.
func (s *Session) Process(nframes int) bool {
	if nframes <= 0 || nframes > s.cfg.Processor.BlockSize {
		return false
	}
	if !s.processMu.TryLock() {
		s.metrics.SilencedCycles.Inc()
		return false
	}
	if !s.bufMu.TryLock() {
		s.processMu.Unlock()
		s.metrics.SilencedCycles.Inc()
		return false
	}

	ordered := s.ordered
	bufs := s.pool.Route(s.pool.Count())
	for _, r := range ordered {
		bufs.SetCount(s.pool.Count())
		bufs.Silence(nframes, 0)
		if src := s.sources[r.ID()]; src != nil {
			src.Read(bufs, s.pos, nframes)
		}
		for _, f := range s.feeders[r.ID()] {
			if up := s.routes[f]; up != nil {
				bufs.MergeFrom(up.Output(), nframes)
			}
		}
		r.Process(bufs, s.pos, nframes, true)
	}
	s.pos += int64(nframes)
	s.metrics.Cycles.Inc()

	s.bufMu.Unlock()
	s.processMu.Unlock()

	for _, r := range ordered {
		r.EmitPendingChanges()
	}
	return true
}

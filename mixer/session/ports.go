package session

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
)

// AllocatePorts hands out output port buffers for an external send. Every
// owner holds at most one set of ports.
func (s *Session) AllocatePorts(owner string, count chans.Count) (*buffer.Set, error) {
	s.portMu.Lock()
	defer s.portMu.Unlock()

	if _, taken := s.ports[owner]; taken {
		return nil, fmt.Errorf("%w: %q already holds ports", ErrPortAllocation, owner)
	}
	n := int(count.Total())
	if n == 0 {
		return nil, fmt.Errorf("%w: %q asked for no ports", ErrPortAllocation, owner)
	}
	if s.cfg.MaxPorts > 0 && s.used+n > s.cfg.MaxPorts {
		return nil, fmt.Errorf("%w: %q needs %d ports, %d of %d in use", ErrPortAllocation, owner, n, s.used, s.cfg.MaxPorts)
	}
	s.ports[owner] = count
	s.used += n
	s.log.Debug("ports allocated", slog.String("owner", owner), slog.String("count", count.String()))
	return buffer.NewSet(count, s.cfg.Processor.BlockSize), nil
}

// ReleasePorts returns the ports of owner.
func (s *Session) ReleasePorts(owner string) {
	s.portMu.Lock()
	defer s.portMu.Unlock()

	if c, ok := s.ports[owner]; ok {
		s.used -= int(c.Total())
		delete(s.ports, owner)
	}
}

// PortOwners returns the owners currently holding ports, sorted.
func (s *Session) PortOwners() []string {
	s.portMu.Lock()
	defer s.portMu.Unlock()

	owners := make([]string, 0, len(s.ports))
	for o := range s.ports {
		owners = append(owners, o)
	}
	slices.Sort(owners)
	return owners
}

// PortsInUse returns the number of allocated ports.
func (s *Session) PortsInUse() int {
	s.portMu.Lock()
	defer s.portMu.Unlock()
	return s.used
}

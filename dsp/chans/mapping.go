package chans

import (
	"fmt"
	"sort"
	"strings"
)

// Triple is one persisted mapping entry: pin From of Type is routed to
// channel To. A Mapping round-trips losslessly through a slice of triples.
type Triple struct {
	Type DataType
	From uint32
	To   uint32
}

// Mapping is a sparse per-type map from a logical pin index to a channel
// index. Each (type, pin) source has at most one target.
//
// The zero value is an empty mapping ready for use.
type Mapping struct {
	m [NumTypes]map[uint32]uint32
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{}
}

// NewIdentityMapping maps pin i to channel i for every channel in c.
func NewIdentityMapping(c Count) *Mapping {
	m := NewMapping()
	for _, t := range Types {
		for i := uint32(0); i < c.Get(t); i++ {
			m.Set(t, i, i)
		}
	}
	return m
}

// FromTriples builds a mapping from persisted triples. Later entries for the
// same source replace earlier ones.
func FromTriples(ts []Triple) *Mapping {
	m := NewMapping()
	for _, t := range ts {
		m.Set(t.Type, t.From, t.To)
	}
	return m
}

// Get returns the channel pin maps to and whether the pin is mapped.
func (m *Mapping) Get(t DataType, from uint32) (uint32, bool) {
	if m == nil || !t.valid() || m.m[t] == nil {
		return 0, false
	}
	to, ok := m.m[t][from]
	return to, ok
}

// Set routes pin from of type t to channel to, replacing any previous target.
func (m *Mapping) Set(t DataType, from, to uint32) {
	if !t.valid() {
		return
	}
	if m.m[t] == nil {
		m.m[t] = make(map[uint32]uint32)
	}
	m.m[t][from] = to
}

// Unset removes the entry for pin from of type t.
func (m *Mapping) Unset(t DataType, from uint32) {
	if !t.valid() || m.m[t] == nil {
		return
	}
	delete(m.m[t], from)
}

// Offset shifts every target of type t by delta. Targets that would become
// negative are removed.
func (m *Mapping) Offset(t DataType, delta int) {
	if !t.valid() || m.m[t] == nil {
		return
	}
	next := make(map[uint32]uint32, len(m.m[t]))
	for from, to := range m.m[t] {
		v := int(to) + delta
		if v < 0 {
			continue
		}
		next[from] = uint32(v)
	}
	m.m[t] = next
}

// Clear removes all entries.
func (m *Mapping) Clear() {
	for i := range m.m {
		m.m[i] = nil
	}
}

// Len returns the number of mapped pins of type t.
func (m *Mapping) Len(t DataType) int {
	if m == nil || !t.valid() {
		return 0
	}
	return len(m.m[t])
}

// Count returns the number of mapped pins per type.
func (m *Mapping) Count() Count {
	var c Count
	for _, t := range Types {
		c = c.With(t, uint32(m.Len(t)))
	}
	return c
}

// IsIdentity reports whether every mapped pin i targets channel i+offset.
// An empty mapping is an identity.
func (m *Mapping) IsIdentity(offset uint32) bool {
	if m == nil {
		return true
	}
	for _, t := range Types {
		for from, to := range m.m[t] {
			if to != from+offset {
				return false
			}
		}
	}
	return true
}

// IsMonotonic reports whether, per type, targets strictly increase with the
// source pin index. A monotonic mapping can be processed in place.
func (m *Mapping) IsMonotonic() bool {
	if m == nil {
		return true
	}
	for _, t := range Types {
		pins := m.pins(t)
		var prev uint32
		for i, from := range pins {
			to := m.m[t][from]
			if i > 0 && to <= prev {
				return false
			}
			prev = to
		}
	}
	return true
}

// Triples returns the mapping as sorted (type, from, to) triples.
func (m *Mapping) Triples() []Triple {
	if m == nil {
		return nil
	}
	var out []Triple
	for _, t := range Types {
		for _, from := range m.pins(t) {
			out = append(out, Triple{Type: t, From: from, To: m.m[t][from]})
		}
	}
	return out
}

// Clone returns a deep copy.
func (m *Mapping) Clone() *Mapping {
	c := NewMapping()
	if m == nil {
		return c
	}
	for _, t := range Types {
		for from, to := range m.m[t] {
			c.Set(t, from, to)
		}
	}
	return c
}

// Equal reports whether m and o hold the same entries.
func (m *Mapping) Equal(o *Mapping) bool {
	for _, t := range Types {
		if m.Len(t) != o.Len(t) {
			return false
		}
		for from, to := range m.m[t] {
			if got, ok := o.Get(t, from); !ok || got != to {
				return false
			}
		}
	}
	return true
}

func (m *Mapping) pins(t DataType) []uint32 {
	pins := make([]uint32, 0, len(m.m[t]))
	for from := range m.m[t] {
		pins = append(pins, from)
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i] < pins[j] })
	return pins
}

// String formats the mapping as "audio 0->3, midi 0->0".
func (m *Mapping) String() string {
	ts := m.Triples()
	parts := make([]string, 0, len(ts))
	for _, t := range ts {
		parts = append(parts, fmt.Sprintf("%s %d->%d", t.Type, t.From, t.To))
	}
	return strings.Join(parts, ", ")
}

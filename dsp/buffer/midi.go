package buffer

import (
	"sort"

	"gitlab.com/gomidi/midi/v2"
)

// Event is a MIDI message stamped with a sample offset inside the current cycle.
type Event struct {
	Time int
	Msg  midi.Message
}

// MIDI is a time-ordered list of events for one MIDI channel of a Set.
type MIDI struct {
	events []Event
}

// NewMIDI returns an empty event buffer with room for capacity events.
func NewMIDI(capacity int) *MIDI {
	if capacity < 0 {
		capacity = 0
	}
	return &MIDI{events: make([]Event, 0, capacity)}
}

// Push inserts msg at time, keeping events ordered. Events with equal time
// keep insertion order.
func (m *MIDI) Push(time int, msg midi.Message) {
	ev := Event{Time: time, Msg: msg}
	n := len(m.events)
	if n == 0 || m.events[n-1].Time <= time {
		m.events = append(m.events, ev)
		return
	}
	i := sort.Search(n, func(i int) bool { return m.events[i].Time > time })
	m.events = append(m.events, Event{})
	copy(m.events[i+1:], m.events[i:])
	m.events[i] = ev
}

// Events returns the buffered events. The slice is owned by the buffer.
func (m *MIDI) Events() []Event {
	return m.events
}

// Len returns the number of buffered events.
func (m *MIDI) Len() int {
	return len(m.events)
}

// Clear drops all events, keeping capacity.
func (m *MIDI) Clear() {
	m.events = m.events[:0]
}

// Silence drops events whose time lies in [offset, offset+nframes).
func (m *MIDI) Silence(nframes, offset int) {
	if offset <= 0 && nframes < 0 {
		m.Clear()
		return
	}
	kept := m.events[:0]
	for _, ev := range m.events {
		if ev.Time >= offset && ev.Time < offset+nframes {
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
}

// ReadFrom replaces the content of m with the events of src.
func (m *MIDI) ReadFrom(src *MIDI) {
	m.events = append(m.events[:0], src.events...)
}

// MergeFrom adds the events of src, keeping time order.
func (m *MIDI) MergeFrom(src *MIDI) {
	if src == nil {
		return
	}
	for _, ev := range src.events {
		m.Push(ev.Time, ev.Msg)
	}
}

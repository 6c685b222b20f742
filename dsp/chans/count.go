// Package chans provides per-datatype channel counts and sparse pin-to-channel
// mappings. Both are used by every stage of a processing chain to describe how
// many streams flow in and out of a processor.
package chans

import "fmt"

// DataType identifies the kind of stream a channel carries.
type DataType int

const (
	Audio DataType = iota
	MIDI
)

// NumTypes is the number of distinct data types.
const NumTypes = 2

// Types lists all data types in canonical order.
var Types = [NumTypes]DataType{Audio, MIDI}

// String returns the lower-case type name used in persisted state.
func (t DataType) String() string {
	switch t {
	case Audio:
		return "audio"
	case MIDI:
		return "midi"
	default:
		return fmt.Sprintf("datatype(%d)", int(t))
	}
}

// ParseDataType is the inverse of String.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "audio", "AUDIO":
		return Audio, nil
	case "midi", "MIDI":
		return MIDI, nil
	default:
		return 0, fmt.Errorf("chans: unknown data type %q", s)
	}
}

func (t DataType) valid() bool {
	return t >= 0 && int(t) < NumTypes
}

// Count is an immutable tally of channels per data type.
// The zero value is a count of zero channels of every type.
type Count struct {
	n [NumTypes]uint32
}

// Zero is the empty count.
var Zero = Count{}

// NewCount returns a count with the given audio and MIDI channels.
func NewCount(audio, midi uint32) Count {
	return Count{n: [NumTypes]uint32{audio, midi}}
}

// Single returns a count with n channels of type t and none of any other type.
func Single(t DataType, n uint32) Count {
	var c Count
	if t.valid() {
		c.n[t] = n
	}
	return c
}

// Get returns the number of channels of type t.
func (c Count) Get(t DataType) uint32 {
	if !t.valid() {
		return 0
	}
	return c.n[t]
}

// With returns a copy of c with the channel count of type t replaced.
func (c Count) With(t DataType, n uint32) Count {
	if t.valid() {
		c.n[t] = n
	}
	return c
}

// Audio returns the number of audio channels.
func (c Count) Audio() uint32 { return c.n[Audio] }

// MIDI returns the number of MIDI channels.
func (c Count) MIDI() uint32 { return c.n[MIDI] }

// Total returns the sum over all data types.
func (c Count) Total() uint32 {
	var t uint32
	for _, v := range c.n {
		t += v
	}
	return t
}

// IsZero reports whether c has no channels at all.
func (c Count) IsZero() bool {
	return c == Zero
}

// Add returns the per-type sum of c and o.
func (c Count) Add(o Count) Count {
	for i := range c.n {
		c.n[i] += o.n[i]
	}
	return c
}

// Sub returns the per-type difference of c and o, clamped at zero.
func (c Count) Sub(o Count) Count {
	for i := range c.n {
		if o.n[i] >= c.n[i] {
			c.n[i] = 0
		} else {
			c.n[i] -= o.n[i]
		}
	}
	return c
}

// Scale multiplies every type by k.
func (c Count) Scale(k uint32) Count {
	for i := range c.n {
		c.n[i] *= k
	}
	return c
}

// Covers reports whether c has at least as many channels as o for every type.
func (c Count) Covers(o Count) bool {
	for i := range c.n {
		if c.n[i] < o.n[i] {
			return false
		}
	}
	return true
}

// Max returns the per-type maximum of a and b.
func Max(a, b Count) Count {
	for i := range a.n {
		if b.n[i] > a.n[i] {
			a.n[i] = b.n[i]
		}
	}
	return a
}

// Min returns the per-type minimum of a and b.
func Min(a, b Count) Count {
	for i := range a.n {
		if b.n[i] < a.n[i] {
			a.n[i] = b.n[i]
		}
	}
	return a
}

// String formats the count as "A:<audio> M:<midi>".
func (c Count) String() string {
	return fmt.Sprintf("A:%d M:%d", c.n[Audio], c.n[MIDI])
}

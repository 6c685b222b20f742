// Package state saves and restores routes as XML.
//
// Each processor element carries a type discriminator that selects the
// factory restoring it. Loading is two-phase: every route and processor is
// created first, then sends are bound to their targets and solo state is
// applied, so a send may refer to a route that appears later in the document.
package state

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-mixer/dsp/chans"
)

// Document is a saved set of routes and their connections.
type Document struct {
	XMLName     xml.Name     `xml:"Session"`
	Version     int          `xml:"version,attr"`
	SampleRate  float64      `xml:"sample-rate,attr,omitempty"`
	Routes      []Route      `xml:"Routes>Route"`
	Connections []Connection `xml:"Connections>Connection"`
}

// DocumentVersion is written into new documents.
const DocumentVersion = 1

// Connection feeds the outputs of From into the inputs of To.
type Connection struct {
	From uint64 `xml:"from,attr"`
	To   uint64 `xml:"to,attr"`
}

// Route is the saved state of one route.
type Route struct {
	ID          uint64 `xml:"id,attr"`
	Name        string `xml:"name,attr"`
	Kind        string `xml:"kind,attr"`
	Active      bool   `xml:"active,attr"`
	StrictIO    bool   `xml:"strict-io,attr,omitempty"`
	MeterPoint  string `xml:"meter-point,attr"`
	DiskIOPoint string `xml:"disk-io-point,attr,omitempty"`

	Input    Count     `xml:"Input"`
	Output   Count     `xml:"Output"`
	Trim     *Gain     `xml:"Trim,omitempty"`
	Polarity *Polarity `xml:"Polarity,omitempty"`
	Solo     Solo      `xml:"Solo"`
	Listen   Listen    `xml:"Listen"`

	Processors []Processor `xml:"Processor"`
}

// Count is a saved channel count.
type Count struct {
	Audio uint32 `xml:"audio,attr"`
	MIDI  uint32 `xml:"midi,attr,omitempty"`
}

func countOf(c chans.Count) Count { return Count{Audio: c.Audio(), MIDI: c.MIDI()} }

// Count converts back to a channel count.
func (c Count) Count() chans.Count { return chans.NewCount(c.Audio, c.MIDI) }

// Gain is a saved gain stage.
type Gain struct {
	Gain   float64 `xml:"gain,attr"`
	Active bool    `xml:"active,attr"`
}

// Channels is a set of channel indices saved as a space separated list.
type Channels []int

// MarshalXMLAttr writes the list as one attribute.
func (c Channels) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	parts := make([]string, len(c))
	for i, ch := range c {
		parts[i] = strconv.Itoa(ch)
	}
	return xml.Attr{Name: name, Value: strings.Join(parts, " ")}, nil
}

// UnmarshalXMLAttr parses a space separated list.
func (c *Channels) UnmarshalXMLAttr(attr xml.Attr) error {
	*c = nil
	for _, f := range strings.Fields(attr.Value) {
		ch, err := strconv.Atoi(f)
		if err != nil || ch < 0 {
			return fmt.Errorf("state: bad channel %q", f)
		}
		*c = append(*c, ch)
	}
	return nil
}

// Polarity lists the inverted channels of a route.
type Polarity struct {
	Invert Channels `xml:"invert,attr"`
}

// Solo is the saved solo state of a route. Counts caused by other routes are
// not saved; they follow from the restored graph.
type Solo struct {
	Self     bool `xml:"self,attr,omitempty"`
	Isolated bool `xml:"isolated,attr,omitempty"`
	Safe     bool `xml:"safe,attr,omitempty"`
	Muted    bool `xml:"muted,attr,omitempty"`
}

// Listen is the saved listen tap position.
type Listen struct {
	Position string `xml:"position,attr"`
	PFL      string `xml:"pfl,attr"`
	AFL      string `xml:"afl,attr"`
}

// Processor is one saved visible processor. Which fields are used depends
// on Type.
type Processor struct {
	ID     uint64 `xml:"id,attr"`
	Type   string `xml:"type,attr"`
	Name   string `xml:"name,attr"`
	Active bool   `xml:"active,attr"`

	Gain          *float64 `xml:"gain,attr,omitempty"`
	Latency       int      `xml:"latency,attr,omitempty"`
	Target        uint64   `xml:"target,attr,omitempty"`
	Role          string   `xml:"role,attr,omitempty"`
	AllowFeedback bool     `xml:"allow-feedback,attr,omitempty"`
	Plugin        string   `xml:"plugin,attr,omitempty"`
	FirstObject   *int     `xml:"first-object,attr,omitempty"`

	Ports  *Count  `xml:"Ports,omitempty"`
	Params []Param `xml:"Param"`
	Custom *Custom `xml:"Custom,omitempty"`
	In     []Map   `xml:"InputMap"`
	Out    []Map   `xml:"OutputMap"`
	Thru   *Map    `xml:"ThruMap,omitempty"`

	Objects []Object `xml:"Object"`
}

// Object is the position of one surround object.
type Object struct {
	Index int     `xml:"index,attr"`
	X     float64 `xml:"x,attr"`
	Y     float64 `xml:"y,attr"`
	Z     float64 `xml:"z,attr"`
}

// Param is one numeric plugin parameter.
type Param struct {
	Name  string  `xml:"name,attr"`
	Value float64 `xml:"value,attr"`
}

// Custom is a fixed plugin configuration.
type Custom struct {
	Count int   `xml:"count,attr"`
	Out   Count `xml:"Out"`
	Sinks Count `xml:"Sinks"`
}

// Map is a saved pin mapping of one plugin instance.
type Map struct {
	Instance int   `xml:"instance,attr"`
	Pins     []Pin `xml:"Pin"`
}

// Pin is one mapping triple.
type Pin struct {
	Type string `xml:"type,attr"`
	From uint32 `xml:"from,attr"`
	To   uint32 `xml:"to,attr"`
}

// EncodeMapping converts a mapping to its saved form.
func EncodeMapping(instance int, m *chans.Mapping) Map {
	out := Map{Instance: instance}
	for _, t := range m.Triples() {
		out.Pins = append(out.Pins, Pin{Type: t.Type.String(), From: t.From, To: t.To})
	}
	return out
}

// DecodeMapping converts a saved mapping back.
func DecodeMapping(m Map) (*chans.Mapping, error) {
	ts := make([]chans.Triple, 0, len(m.Pins))
	for _, p := range m.Pins {
		t, err := chans.ParseDataType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("state: mapping of instance %d: %w", m.Instance, err)
		}
		ts = append(ts, chans.Triple{Type: t, From: p.From, To: p.To})
	}
	return chans.FromTriples(ts), nil
}

// Marshal renders doc as indented XML with a header.
func Marshal(doc *Document) ([]byte, error) {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("state: marshal: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// Unmarshal parses a document.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("state: unmarshal: %w", err)
	}
	if doc.Version > DocumentVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, doc.Version)
	}
	return &doc, nil
}

package state

import (
	"fmt"
	"sort"

	"github.com/cwbudde/algo-mixer/dsp/plugins"
	"github.com/cwbudde/algo-mixer/mixer/processor"
	"github.com/cwbudde/algo-mixer/mixer/route"
	"github.com/cwbudde/algo-mixer/mixer/session"
)

// maxPolarityChannels bounds the channels whose polarity is saved.
const maxPolarityChannels = 64

var (
	listenPositions = map[route.ListenPosition]string{
		route.AfterFaderListen: "afl",
		route.PreFaderListen:   "pfl",
	}
	pflPositions = map[route.PFLPosition]string{
		route.PFLFromAfterProcessors:  "after-processors",
		route.PFLFromBeforeProcessors: "before-processors",
	}
	aflPositions = map[route.AFLPosition]string{
		route.AFLFromAfterProcessors:  "after-processors",
		route.AFLFromBeforeProcessors: "before-processors",
	}
)

func reverse[K comparable](m map[K]string, s string) (K, bool) {
	for k, v := range m {
		if v == s {
			return k, true
		}
	}
	var zero K
	return zero, false
}

// Encode saves every route of s and its connections.
func Encode(s *session.Session) (*Document, error) {
	doc := &Document{Version: DocumentVersion, SampleRate: s.Config().Processor.SampleRate}
	for _, r := range s.Routes() {
		x, err := EncodeRoute(r)
		if err != nil {
			return nil, err
		}
		doc.Routes = append(doc.Routes, x)
		for _, to := range s.Connections(r.ID()) {
			doc.Connections = append(doc.Connections, Connection{From: uint64(r.ID()), To: uint64(to)})
		}
	}
	return doc, nil
}

// EncodeRoute saves one route. Listen sends are left out; the session
// creates them again when the route is restored next to a monitor section.
func EncodeRoute(r *route.Route) (Route, error) {
	listen := r.ListenConfig()
	x := Route{
		ID:         uint64(r.ID()),
		Name:       r.Name(),
		Kind:       r.Kind().String(),
		Active:     r.Active(),
		StrictIO:   r.StrictIO(),
		MeterPoint: r.MeterPoint().String(),
		Input:      countOf(r.InputCount()),
		Output:     countOf(r.MainOuts().Ports()),
		Solo: Solo{
			Self:     r.SelfSoloed(),
			Isolated: r.SelfSoloIsolated(),
			Safe:     r.SoloSafe(),
			Muted:    r.Muted(),
		},
		Listen: Listen{
			Position: listenPositions[listen.Position],
			PFL:      pflPositions[listen.PFL],
			AFL:      aflPositions[listen.AFL],
		},
	}
	if r.IsTrack() {
		x.DiskIOPoint = r.DiskIOPoint().String()
	}
	if trim := r.Trim(); trim.Active() || trim.Gain() != 1 {
		x.Trim = &Gain{Gain: trim.Gain(), Active: trim.Active()}
	}
	var inverted Channels
	for ch := range min(int(r.InputCount().Audio()), maxPolarityChannels) {
		if r.Polarity().Inverted(ch) {
			inverted = append(inverted, ch)
		}
	}
	if len(inverted) > 0 {
		x.Polarity = &Polarity{Invert: inverted}
	}

	for _, p := range r.VisibleProcessors() {
		px, err := encodeProcessor(p)
		if err != nil {
			return Route{}, fmt.Errorf("state: route %q: %w", r.Name(), err)
		}
		x.Processors = append(x.Processors, px)
	}
	return x, nil
}

func encodeProcessor(p processor.Processor) (Processor, error) {
	x := Processor{ID: uint64(p.ID()), Type: p.Kind().String(), Name: p.Name(), Active: p.Active()}
	gain := func(a *processor.Amp) *float64 {
		g := a.Gain()
		return &g
	}
	switch v := p.(type) {
	case *processor.Amp:
		x.Gain = gain(v)
	case *processor.Meter, *processor.DiskReader, *processor.DiskWriter:
	case *processor.InternalSend:
		x.Target = uint64(v.Target())
		x.Role = v.Role().String()
		x.Gain = gain(v.Amp())
		x.AllowFeedback = v.AllowFeedback()
		if v.Surround() {
			first := v.FirstObject()
			x.FirstObject = &first
			for i, pos := range v.ObjectPositions() {
				x.Objects = append(x.Objects, Object{Index: i, X: pos.X, Y: pos.Y, Z: pos.Z})
			}
		}
	case *processor.Send:
		ports := countOf(v.PortCount())
		x.Ports = &ports
		x.Gain = gain(v.Amp())
	case *processor.PortInsert:
		x.Latency = v.EffectiveLatency()
	case *processor.PluginInsert:
		encodePlugin(&x, v)
	default:
		return x, fmt.Errorf("%w: %s", ErrUnknownType, x.Type)
	}
	return x, nil
}

func encodePlugin(x *Processor, pi *processor.PluginInsert) {
	inst := pi.Plugin(0)
	x.Plugin = inst.Name()
	if pp, ok := inst.(plugins.Parameterized); ok {
		num := pp.Params().Num
		names := make([]string, 0, len(num))
		for n := range num {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			x.Params = append(x.Params, Param{Name: n, Value: num[n]})
		}
	}
	if count, out, sinks, ok := pi.CustomConfiguration(); ok {
		x.Custom = &Custom{Count: count, Out: countOf(out), Sinks: countOf(sinks)}
	}
	for k := range pi.Instances() {
		x.In = append(x.In, EncodeMapping(k, pi.InputMap(k)))
		x.Out = append(x.Out, EncodeMapping(k, pi.OutputMap(k)))
	}
	thru := EncodeMapping(0, pi.ThruMap())
	if len(thru.Pins) > 0 {
		x.Thru = &thru
	}
}

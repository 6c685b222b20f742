package state

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/mixer/processor"
	"github.com/cwbudde/algo-mixer/mixer/route"
	"github.com/cwbudde/algo-mixer/mixer/session"
)

// Report summarizes a load.
type Report struct {
	Routes int
	// UnresolvedSends counts sends whose target route does not exist. They
	// stay in their chains and pass no signal.
	UnresolvedSends int
}

// Load restores doc into s. Routes are created first with all their
// processors; then connections and solo state are applied and every send is
// bound to its target. A route that fails to restore is removed again and
// the load stops.
//
// s should not auto-connect: routes connected by the session on creation
// keep those connections in addition to the saved ones.
func Load(s *session.Session, doc *Document, reg *Registry) (Report, error) {
	if doc.Version > DocumentVersion {
		return Report{}, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, doc.Version)
	}
	restored := make([]*route.Route, 0, len(doc.Routes))
	for _, x := range doc.Routes {
		r, err := DecodeRoute(s, x, reg)
		if err != nil {
			return Report{Routes: len(restored)}, err
		}
		restored = append(restored, r)
	}

	for _, c := range doc.Connections {
		if err := s.Connect(processor.RouteID(c.From), processor.RouteID(c.To)); err != nil {
			return Report{Routes: len(restored)}, fmt.Errorf("state: %w", err)
		}
	}
	for i, r := range restored {
		solo := doc.Routes[i].Solo
		r.SetSolo(solo.Self)
		r.SetSoloIsolated(solo.Isolated)
		r.SetSoloSafe(solo.Safe)
	}

	return Report{Routes: len(restored), UnresolvedSends: s.FinishLoad()}, nil
}

// DecodeRoute restores one route into s. Sends to routes that do not exist
// yet are kept unbound until Session.FinishLoad.
func DecodeRoute(s *session.Session, x Route, reg *Registry) (*route.Route, error) {
	kind, ok := route.ParseKind(x.Kind)
	if !ok {
		return nil, fmt.Errorf("state: route %q: %w: kind %q", x.Name, ErrUnknownType, x.Kind)
	}
	listen, err := decodeListen(x.Listen)
	if err != nil {
		return nil, fmt.Errorf("state: route %q: %w", x.Name, err)
	}
	opts := []route.Option{route.WithStrictIO(x.StrictIO), route.WithListen(listen)}
	if out := x.Output.Count(); !out.IsZero() {
		opts = append(opts, route.WithOutputPorts(out))
	}
	r, err := s.AddRoute(processor.RouteID(x.ID), x.Name, kind, x.Input.Count(), opts...)
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	if err := restoreRoute(s, r, x, reg); err != nil {
		if rerr := s.RemoveRoute(r.ID()); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, fmt.Errorf("state: route %q: %w", x.Name, err)
	}
	return r, nil
}

func decodeListen(x Listen) (route.ListenConfig, error) {
	var c route.ListenConfig
	var ok bool
	if x.Position != "" {
		if c.Position, ok = reverse(listenPositions, x.Position); !ok {
			return c, fmt.Errorf("%w: listen position %q", ErrBadValue, x.Position)
		}
	}
	if x.PFL != "" {
		if c.PFL, ok = reverse(pflPositions, x.PFL); !ok {
			return c, fmt.Errorf("%w: pfl position %q", ErrBadValue, x.PFL)
		}
	}
	if x.AFL != "" {
		if c.AFL, ok = reverse(aflPositions, x.AFL); !ok {
			return c, fmt.Errorf("%w: afl position %q", ErrBadValue, x.AFL)
		}
	}
	return c, nil
}

func restoreRoute(s *session.Session, r *route.Route, x Route, reg *Registry) error {
	r.SetActive(x.Active)
	r.SetMuted(x.Solo.Muted)
	if x.Trim != nil {
		r.Trim().SetGain(x.Trim.Gain)
		if err := r.SetTrimActive(x.Trim.Active); err != nil {
			return err
		}
	}
	if x.Polarity != nil {
		for _, ch := range x.Polarity.Invert {
			r.Polarity().SetInverted(ch, true)
		}
	}

	mp, ok := processor.ParseMeterPoint(x.MeterPoint)
	if !ok {
		return fmt.Errorf("%w: meter point %q", ErrBadValue, x.MeterPoint)
	}
	if err := r.SetMeterPoint(mp); err != nil {
		return err
	}
	if x.DiskIOPoint != "" {
		dp, ok := processor.ParseDiskIOPoint(x.DiskIOPoint)
		if !ok {
			return fmt.Errorf("%w: disk i/o point %q", ErrBadValue, x.DiskIOPoint)
		}
		if err := r.SetDiskIOPoint(dp); err != nil {
			return err
		}
	}

	order, err := restoreProcessors(s, r, x.Processors, reg)
	if err != nil {
		return err
	}
	if !slices.Equal(r.VisibleProcessors(), order) {
		if err := r.ReorderProcessors(order); err != nil {
			return err
		}
	}

	for i, px := range x.Processors {
		p := order[i]
		if pi, ok := p.(*processor.PluginInsert); ok {
			if err := restoreMaps(r, pi, px); err != nil {
				return err
			}
		}
		if p != processor.Processor(r.Amp()) && p.Active() != px.Active {
			if err := r.SetProcessorActive(p, px.Active); err != nil {
				return err
			}
		}
	}
	return nil
}

// restoreProcessors creates the saved processors and adds them to r on the
// side of the fader they were saved on. It returns every saved processor in
// saved order.
func restoreProcessors(s *session.Session, r *route.Route, list []Processor, reg *Registry) ([]processor.Processor, error) {
	ctx := Context{Session: s, Route: r, Plugins: reg.plugins}
	own := r.Processors()
	amp := processor.Processor(r.Amp())

	var order, pre, post []processor.Processor
	seenAmp := false
	for _, px := range list {
		f, ok := reg.Lookup(px.Type)
		if !ok {
			release(pre, post)
			return nil, fmt.Errorf("%w: processor %q of type %q", ErrUnknownType, px.Name, px.Type)
		}
		p, err := f(ctx, px)
		if err != nil {
			release(pre, post)
			return nil, fmt.Errorf("processor %q: %w", px.Name, err)
		}
		order = append(order, p)
		restoreID(r, p, px.ID)
		switch {
		case p == amp:
			seenAmp = true
		case slices.Contains(own, p):
		default:
			if seenAmp {
				post = append(post, p)
			} else {
				pre = append(pre, p)
			}
		}
	}

	if err := r.AddProcessors(pre, amp); err != nil {
		release(pre, post)
		return nil, err
	}
	if err := r.AddProcessors(post, nil); err != nil {
		release(post)
		return nil, err
	}
	return order, nil
}

// restoreID gives p its saved ID unless another processor of r has it.
func restoreID(r *route.Route, p processor.Processor, id uint64) {
	if id == 0 || r.ProcessorByID(processor.ID(id)) != nil {
		return
	}
	if b, ok := p.(interface{ SetID(processor.ID) }); ok {
		b.SetID(processor.ID(id))
	}
}

// release gives back the ports of sends that never made it into a chain.
func release(lists ...[]processor.Processor) {
	for _, l := range lists {
		for _, p := range l {
			if s, ok := p.(*processor.Send); ok {
				s.Release()
			}
		}
	}
}

func restoreMaps(r *route.Route, pi *processor.PluginInsert, x Processor) error {
	for _, m := range x.In {
		if err := restoreMap(m, pi.Instances(), pi.InputMap, func(k int, mp *chans.Mapping) error { return r.SetInputMap(pi, k, mp) }); err != nil {
			return err
		}
	}
	for _, m := range x.Out {
		if err := restoreMap(m, pi.Instances(), pi.OutputMap, func(k int, mp *chans.Mapping) error { return r.SetOutputMap(pi, k, mp) }); err != nil {
			return err
		}
	}
	if x.Thru != nil {
		m, err := DecodeMapping(*x.Thru)
		if err != nil {
			return err
		}
		if !m.Equal(pi.ThruMap()) {
			return r.SetThruMap(pi, m)
		}
	}
	return nil
}

func restoreMap(m Map, instances int, current func(int) *chans.Mapping, set func(int, *chans.Mapping) error) error {
	if m.Instance < 0 || m.Instance >= instances {
		return fmt.Errorf("%w: map of instance %d, plugin has %d", ErrBadValue, m.Instance, instances)
	}
	decoded, err := DecodeMapping(m)
	if err != nil {
		return err
	}
	if decoded.Equal(current(m.Instance)) {
		return nil
	}
	return set(m.Instance, decoded)
}

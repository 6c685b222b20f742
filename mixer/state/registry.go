package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cwbudde/algo-mixer/dsp/plugins"
	"github.com/cwbudde/algo-mixer/mixer/processor"
	"github.com/cwbudde/algo-mixer/mixer/route"
	"github.com/cwbudde/algo-mixer/mixer/session"
)

var (
	// ErrUnsupportedVersion is returned for documents newer than this package.
	ErrUnsupportedVersion = errors.New("state: unsupported document version")
	// ErrUnknownType is returned for processor or route types without a
	// factory.
	ErrUnknownType = errors.New("state: unknown type")
	// ErrNotOwned is returned when a saved route processor has no
	// counterpart on the restored route.
	ErrNotOwned = errors.New("state: route has no such processor")
	// ErrBadValue is returned for attributes that do not parse.
	ErrBadValue = errors.New("state: bad value")

	errDuplicateType = errors.New("state: duplicate processor type")
)

// Context is what a factory restores a processor into.
type Context struct {
	Session *session.Session
	Route   *route.Route
	Plugins *plugins.Registry
}

// Factory restores one saved processor. Processors every route owns are not
// created; their factory configures the route's instance and returns it.
type Factory func(c Context, x Processor) (processor.Processor, error)

// Registry maps processor type names to factories.
type Registry struct {
	factories map[string]Factory
	plugins   *plugins.Registry
}

// NewRegistry creates an empty registry. Plugin inserts are built through
// pl, which may be nil when no plugins are restored.
func NewRegistry(pl *plugins.Registry) *Registry {
	return &Registry{factories: make(map[string]Factory), plugins: pl}
}

// Register adds a factory for typ.
func (r *Registry) Register(typ string, f Factory) error {
	if typ == "" || f == nil {
		return errors.New("state: empty type or nil factory")
	}
	if _, ok := r.factories[typ]; ok {
		return fmt.Errorf("%w: %s", errDuplicateType, typ)
	}
	r.factories[typ] = f
	return nil
}

// Lookup returns the factory for typ.
func (r *Registry) Lookup(typ string) (Factory, bool) {
	f, ok := r.factories[typ]
	return f, ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry knows every processor type a route shows to the user and
// the fixed processors every route owns.
// Plugin inserts are built through pl, or the built-in plugins when pl is
// nil.
func DefaultRegistry(pl *plugins.Registry) *Registry {
	if pl == nil {
		pl = plugins.DefaultRegistry()
	}
	r := NewRegistry(pl)
	for typ, f := range map[processor.Kind]Factory{
		processor.KindAmp:            restoreAmp,
		processor.KindTrim:           restoreTrim,
		processor.KindMeter:          owned(func(rt *route.Route) processor.Processor { return rt.Meter() }),
		processor.KindPolarity:       owned(func(rt *route.Route) processor.Processor { return rt.Polarity() }),
		processor.KindDelayLine:      owned(delayLine),
		processor.KindInternalReturn: owned(internalReturn),
		processor.KindDiskReader:     owned(diskReader),
		processor.KindDiskWriter:     owned(diskWriter),
		processor.KindInternalSend:   restoreInternalSend,
		processor.KindSend:           restoreSend,
		processor.KindPlugin:         restorePlugin,
		processor.KindPortInsert:     restorePortInsert,
	} {
		if err := r.Register(typ.String(), f); err != nil {
			panic(err)
		}
	}
	return r
}

func delayLine(rt *route.Route) processor.Processor {
	if p := rt.DelayLine(); p != nil {
		return p
	}
	return nil
}

func internalReturn(rt *route.Route) processor.Processor {
	if p := rt.InternalReturn(); p != nil {
		return p
	}
	return nil
}

func diskReader(rt *route.Route) processor.Processor {
	if p := rt.DiskReader(); p != nil {
		return p
	}
	return nil
}

func diskWriter(rt *route.Route) processor.Processor {
	if p := rt.DiskWriter(); p != nil {
		return p
	}
	return nil
}

// owned restores a processor the route creates itself.
func owned(get func(*route.Route) processor.Processor) Factory {
	return func(c Context, x Processor) (processor.Processor, error) {
		p := get(c.Route)
		if p == nil {
			return nil, fmt.Errorf("%w: %s %q", ErrNotOwned, x.Type, x.Name)
		}
		return p, nil
	}
}

func restoreAmp(c Context, x Processor) (processor.Processor, error) {
	amp := c.Route.Amp()
	if x.Gain != nil {
		amp.SetGain(*x.Gain)
	}
	return amp, nil
}

func restoreTrim(c Context, x Processor) (processor.Processor, error) {
	trim := c.Route.Trim()
	if x.Gain != nil {
		trim.SetGain(*x.Gain)
	}
	return trim, nil
}

func restoreInternalSend(c Context, x Processor) (processor.Processor, error) {
	role := processor.RoleAux
	if x.Role != "" {
		var ok bool
		if role, ok = processor.ParseRole(x.Role); !ok {
			return nil, fmt.Errorf("%w: send role %q", ErrBadValue, x.Role)
		}
	}
	if x.Target == 0 {
		return nil, fmt.Errorf("%w: send %q has no target", ErrBadValue, x.Name)
	}
	var s *processor.InternalSend
	if role == processor.RoleSurround {
		first := 0
		if x.FirstObject != nil {
			first = *x.FirstObject
		}
		s = processor.NewSurroundSend(x.Name, c.Route.ID(), processor.RouteID(x.Target), first, c.Route.MuteMaster(), c.Route.Config())
		for _, o := range x.Objects {
			if o.Index < 0 {
				return nil, fmt.Errorf("%w: object %d of send %q", ErrBadValue, o.Index, x.Name)
			}
			s.SetObjectPosition(o.Index, processor.ObjectPosition{X: o.X, Y: o.Y, Z: o.Z})
		}
	} else {
		s = processor.NewInternalSend(x.Name, c.Route.ID(), processor.RouteID(x.Target), role, c.Route.MuteMaster(), c.Route.Config())
	}
	if x.Gain != nil {
		s.Amp().SetGain(*x.Gain)
	}
	s.SetAllowFeedback(x.AllowFeedback)
	return s, nil
}

func restoreSend(c Context, x Processor) (processor.Processor, error) {
	if x.Ports == nil {
		return nil, fmt.Errorf("%w: send %q has no ports", ErrBadValue, x.Name)
	}
	s, err := processor.NewSend(x.Name, c.Session.PortAllocator(), x.Ports.Count(), c.Route.MuteMaster(), c.Route.Config())
	if err != nil {
		return nil, err
	}
	if x.Gain != nil {
		s.Amp().SetGain(*x.Gain)
	}
	return s, nil
}

func restorePortInsert(c Context, x Processor) (processor.Processor, error) {
	if x.Latency < 0 {
		return nil, fmt.Errorf("%w: latency %d", ErrBadValue, x.Latency)
	}
	return processor.NewPortInsert(x.Name, x.Latency, c.Route.Config()), nil
}

func restorePlugin(c Context, x Processor) (processor.Processor, error) {
	if c.Plugins == nil {
		return nil, fmt.Errorf("%w: plugin %q: no plugin registry", ErrUnknownType, x.Plugin)
	}
	params := plugins.Params{}
	for _, p := range x.Params {
		if params.Num == nil {
			params.Num = make(map[string]float64)
		}
		params.Num[p.Name] = p.Value
	}
	factory := func() (processor.Plugin, error) {
		p, err := c.Plugins.New(x.Plugin, params)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	pi, err := processor.NewPluginInsert(x.Name, factory, c.Route.Config())
	if err != nil {
		return nil, err
	}
	if x.Custom != nil && x.Custom.Count > 0 {
		pi.SetCustomConfiguration(x.Custom.Count, x.Custom.Out.Count(), x.Custom.Sinks.Count())
	}
	return pi, nil
}

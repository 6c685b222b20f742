// Package plugins provides built-in plugins for route plugin inserts and a
// registry that creates them by type name.
package plugins

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
)

// Plugin is the contract every built-in plugin implements. It matches the
// contract of a route's plugin insert.
type Plugin interface {
	Name() string
	NaturalIO() (in, out chans.Count)
	Latency() int
	Configure(sampleRate float64, blockSize int) error
	Process(in, out [][]float64, events []buffer.Event, nframes int)
	Reset()
}

// Params holds the numeric and string parameters of a plugin.
type Params struct {
	Num map[string]float64
	Str map[string]string
}

// GetNum safely extracts a numeric parameter, returning def if missing or invalid.
func (p Params) GetNum(key string, def float64) float64 {
	if p.Num == nil {
		return def
	}
	v, ok := p.Num[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// Parameterized is implemented by plugins that can report the parameters
// they were built with, so that an equal plugin can be built again.
type Parameterized interface {
	Params() Params
}

// Factory builds one plugin instance.
type Factory func(p Params) (Plugin, error)

// Registry maps plugin type names to their factories.
type Registry struct {
	factories map[string]Factory
}

var (
	errDuplicatePlugin = errors.New("plugins: duplicate plugin type")

	// ErrUnknownPlugin is returned by New for unregistered types.
	ErrUnknownPlugin = errors.New("plugins: unknown plugin type")
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given plugin type.
func (r *Registry) Register(typ string, factory Factory) error {
	if typ == "" {
		return errors.New("plugins: empty plugin type")
	}
	if factory == nil {
		return errors.New("plugins: nil factory")
	}
	if _, exists := r.factories[typ]; exists {
		return fmt.Errorf("%w: %s", errDuplicatePlugin, typ)
	}
	r.factories[typ] = factory
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(typ string, factory Factory) {
	if err := r.Register(typ, factory); err != nil {
		panic(err.Error())
	}
}

// Lookup returns the factory for the given plugin type, or nil.
func (r *Registry) Lookup(typ string) Factory {
	return r.factories[typ]
}

// Names returns the registered types in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New creates a plugin of type typ.
func (r *Registry) New(typ string, p Params) (Plugin, error) {
	f := r.Lookup(typ)
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, typ)
	}
	return f(p)
}

// IRProvider supplies impulse responses to convolvers.
type IRProvider interface {
	GetIR(index int) (samples []float64, ok bool)
}

type registryConfig struct {
	irProvider IRProvider
}

// RegistryOption configures the default registry.
type RegistryOption func(*registryConfig)

// WithIRProvider sets the impulse response provider for the convolver.
func WithIRProvider(p IRProvider) RegistryOption {
	return func(c *registryConfig) { c.irProvider = p }
}

// DefaultRegistry returns a registry with every built-in plugin.
func DefaultRegistry(opts ...RegistryOption) *Registry {
	cfg := &registryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := NewRegistry()
	r.MustRegister(TypeGain, func(p Params) (Plugin, error) {
		return NewGain(p.GetNum("gain_db", 0)), nil
	})
	r.MustRegister(TypeUpmix, func(Params) (Plugin, error) {
		return NewUpmix(), nil
	})
	r.MustRegister(TypeLatencyProbe, func(p Params) (Plugin, error) {
		return NewLatencyProbe(int(p.GetNum("latency", 0)))
	})
	r.MustRegister(TypeSynth, func(p Params) (Plugin, error) {
		return NewSynth(p.GetNum("level", defaultSynthLevel)), nil
	})
	r.MustRegister(TypeConvolver, func(p Params) (Plugin, error) {
		if cfg.irProvider == nil {
			return nil, ErrNoIR
		}
		ir, ok := cfg.irProvider.GetIR(int(p.GetNum("ir", 0)))
		if !ok {
			return nil, ErrNoIR
		}
		c, err := NewConvolver(ir, int(p.GetNum("partition", defaultPartition)))
		if err != nil {
			return nil, err
		}
		c.irIndex = int(p.GetNum("ir", 0))
		return c, nil
	})
	return r
}

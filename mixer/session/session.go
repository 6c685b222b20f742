// Package session ties routes together: it owns the process lock and the
// shared buffers, keeps the route registry and the signal-flow graph, runs
// the process cycle in topological order and keeps latency compensation and
// solo state consistent across routes.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
	"github.com/cwbudde/algo-mixer/internal/metrics"
	"github.com/cwbudde/algo-mixer/mixer/graph"
	"github.com/cwbudde/algo-mixer/mixer/processor"
	"github.com/cwbudde/algo-mixer/mixer/route"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrPortAllocation is returned when output ports cannot be provided.
	ErrPortAllocation = errors.New("session: port allocation failed")
	// ErrNotFound is returned for unknown route IDs.
	ErrNotFound = errors.New("session: no such route")
	// ErrDuplicateRoute is returned when a route ID or a singleton route
	// kind is already taken.
	ErrDuplicateRoute = errors.New("session: route already exists")
	// ErrBadConnection is returned for connections a session cannot make.
	ErrBadConnection = errors.New("session: invalid connection")
)

// maxLatencyPasses bounds the iterations of UpdateLatencyCompensation.
const maxLatencyPasses = 8

// Config holds the session-wide settings.
type Config struct {
	Processor    core.ProcessorConfig
	Listen       route.ListenConfig
	SoloIsListen bool
	StrictIO     bool
	// MaxPorts limits the output ports external sends may allocate. Zero
	// means unlimited.
	MaxPorts    int
	AutoConnect bool

	logger   *slog.Logger
	registry prometheus.Registerer
}

// Option configures a new session.
type Option func(*Config)

// WithSampleRate sets the sample rate of every processor.
func WithSampleRate(rate float64) Option {
	return func(c *Config) { core.WithSampleRate(rate)(&c.Processor) }
}

// WithBlockSize sets the largest cycle length.
func WithBlockSize(n int) Option {
	return func(c *Config) { core.WithBlockSize(n)(&c.Processor) }
}

// WithDelayRamp sets the crossfade length of delay changes while running.
func WithDelayRamp(n int) Option {
	return func(c *Config) { core.WithDelayRamp(n)(&c.Processor) }
}

// WithDenormalProtection flushes denormals at every route input.
func WithDenormalProtection(yn bool) Option {
	return func(c *Config) { c.Processor.DenormalProtection = yn }
}

// WithLogger sets the logger routes derive theirs from.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics registers the engine collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) { c.registry = reg }
}

// WithListenPosition selects pre- or after-fader listen.
func WithListenPosition(p route.ListenPosition) Option {
	return func(c *Config) { c.Listen.Position = p }
}

// WithPFLPosition selects where pre-fader listen taps.
func WithPFLPosition(p route.PFLPosition) Option {
	return func(c *Config) { c.Listen.PFL = p }
}

// WithAFLPosition selects where after-fader listen taps.
func WithAFLPosition(p route.AFLPosition) Option {
	return func(c *Config) { c.Listen.AFL = p }
}

// WithSoloIsListen makes solo switch the listen send instead of muting
// the other routes. Without a monitor section solo then does nothing.
func WithSoloIsListen(yn bool) Option {
	return func(c *Config) { c.SoloIsListen = yn }
}

// WithStrictIO is the strict I/O default for new routes.
func WithStrictIO(yn bool) Option {
	return func(c *Config) { c.StrictIO = yn }
}

// WithMaxPorts limits the output ports external sends may hold.
func WithMaxPorts(n int) Option {
	return func(c *Config) { c.MaxPorts = max(n, 0) }
}

// WithAutoConnect connects new tracks and busses to the master route.
func WithAutoConnect(yn bool) Option {
	return func(c *Config) { c.AutoConnect = yn }
}

// Source provides a route's external input for one cycle. dst is silent on
// entry.
type Source interface {
	Read(dst *buffer.Set, pos int64, nframes int)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(dst *buffer.Set, pos int64, nframes int)

func (f SourceFunc) Read(dst *buffer.Set, pos int64, nframes int) { f(dst, pos, nframes) }

// Session is a set of connected routes.
//
// Lock order: processMu, then mu, then a route's own locks. Everything the
// process cycle reads is written with processMu held; control-side readers
// take mu.
type Session struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Engine

	processMu sync.Mutex
	running   atomic.Bool
	pos       int64

	bufMu sync.Mutex
	pool  *buffer.Pool

	mu       sync.RWMutex
	routes   map[processor.RouteID]*route.Route
	nextID   processor.RouteID
	conns    map[processor.RouteID][]processor.RouteID
	feeders  map[processor.RouteID][]processor.RouteID
	sources  map[processor.RouteID]Source
	graph    *graph.Graph
	relation graph.Relation
	ordered  []*route.Route
	master   *route.Route
	monitor  *route.Route

	masterMu sync.Mutex
	masterIn chans.Count

	portMu sync.Mutex
	ports  map[string]chans.Count
	used   int
}

// New returns an empty, stopped session.
func New(opts ...Option) *Session {
	cfg := Config{
		Processor: core.DefaultProcessorConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Session{
		cfg:      cfg,
		log:      cfg.logger,
		metrics:  metrics.New(cfg.registry),
		pool:     buffer.NewPool(cfg.Processor.BlockSize),
		routes:   map[processor.RouteID]*route.Route{},
		nextID:   1,
		conns:    map[processor.RouteID][]processor.RouteID{},
		feeders:  map[processor.RouteID][]processor.RouteID{},
		sources:  map[processor.RouteID]Source{},
		graph:    graph.New(),
		relation: graph.Relation{},
		ports:    map[string]chans.Count{},
	}
}

// Config returns the session settings.
func (s *Session) Config() Config { return s.cfg }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.log }

// Metrics returns the engine collectors.
func (s *Session) Metrics() *metrics.Engine { return s.metrics }

// ProcessLock serializes chain mutations against the process cycle.
func (s *Session) ProcessLock() sync.Locker { return &s.processMu }

// Running reports whether the engine is processing.
func (s *Session) Running() bool { return s.running.Load() }

// Start marks the engine as running. Delay changes are ramped from now on.
func (s *Session) Start() { s.running.Store(true) }

// Stop marks the engine as stopped.
func (s *Session) Stop() { s.running.Store(false) }

// Position returns the sample position of the next cycle.
func (s *Session) Position() int64 {
	s.processMu.Lock()
	defer s.processMu.Unlock()
	return s.pos
}

// EnsureBuffers grows the shared buffers to count channels.
func (s *Session) EnsureBuffers(count chans.Count) {
	s.bufMu.Lock()
	s.pool.Ensure(count, s.cfg.Processor.BlockSize)
	s.bufMu.Unlock()
}

// Resolver returns the session itself.
func (s *Session) Resolver() processor.ReturnResolver { return s }

// InternalReturnFor returns the return of route id. It is called with the
// process lock held.
func (s *Session) InternalReturnFor(id processor.RouteID) *processor.InternalReturn {
	r := s.routes[id]
	if r == nil {
		return nil
	}
	return r.InternalReturn()
}

// PortAllocator returns the session itself.
func (s *Session) PortAllocator() processor.PortAllocator { return s }

// MasterInputs is the input count of the master route.
func (s *Session) MasterInputs() chans.Count {
	s.masterMu.Lock()
	defer s.masterMu.Unlock()
	return s.masterIn
}

func (s *Session) setMasterInputs(c chans.Count) {
	s.masterMu.Lock()
	s.masterIn = c
	s.masterMu.Unlock()
}

// LatencyChanged re-runs latency compensation when a route's signal latency
// changed.
func (s *Session) LatencyChanged(processor.RouteID) {
	s.UpdateLatencyCompensation()
}

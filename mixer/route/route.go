// Package route implements a mixer channel strip: an ordered chain of
// processors with a fader, metering, delivery to output ports, sends and the
// solo and latency bookkeeping that ties a route to the rest of a session.
//
// Every chain mutation is transactional. The chain is snapshotted, changed,
// re-negotiated channel by channel and either committed or restored. Mutations
// take the host's process lock first and then the route's processor lock, so
// they never overlap a process cycle. Process takes the processor lock with a
// try-lock and outputs silence when it cannot get it.
package route

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/core"
	"github.com/cwbudde/algo-mixer/internal/metrics"
	"github.com/cwbudde/algo-mixer/mixer/processor"
)

var (
	// ErrInfeasibleConfiguration is wrapped by every ConfigError.
	ErrInfeasibleConfiguration = errors.New("route: infeasible channel configuration")
	// ErrNotFound is returned for processors that are not in the chain.
	ErrNotFound = errors.New("route: processor not in chain")
	// ErrDuplicate is returned when a processor is added twice.
	ErrDuplicate = errors.New("route: processor already in chain")
	// ErrFixedProcessor is returned when removing a processor the route owns.
	ErrFixedProcessor = errors.New("route: processor cannot be removed")
	// ErrBadOrder is returned when a new order is not a permutation of the
	// visible processors.
	ErrBadOrder = errors.New("route: order does not match the chain")
	// ErrNoTarget is returned for sends to routes that cannot receive them.
	ErrNoTarget = errors.New("route: invalid send target")
)

// ConfigError reports where channel negotiation failed.
type ConfigError struct {
	Index     int
	Count     chans.Count
	Processor string
	Reason    string
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("route: processor %d (%s) cannot handle %s", e.Index, e.Processor, e.Count)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return ErrInfeasibleConfiguration }

// Kind is the flavour of a route.
type Kind int

const (
	KindTrack Kind = iota
	KindBus
	KindMaster
	KindMonitor
)

var kindNames = [...]string{"track", "bus", "master", "monitor"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, bool) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// Placement selects the pre- or post-fader part of the chain.
type Placement int

const (
	PreFader Placement = iota
	PostFader
)

// ListenPosition selects where listen sends tap the signal.
type ListenPosition int

const (
	AfterFaderListen ListenPosition = iota
	PreFaderListen
)

// PFLPosition selects whether pre-fader listen taps before or after the
// pre-fader processors.
type PFLPosition int

const (
	PFLFromAfterProcessors PFLPosition = iota
	PFLFromBeforeProcessors
)

// AFLPosition selects whether after-fader listen taps before or after the
// post-fader processors.
type AFLPosition int

const (
	AFLFromAfterProcessors AFLPosition = iota
	AFLFromBeforeProcessors
)

// ListenConfig bundles the listen tap settings.
type ListenConfig struct {
	Position ListenPosition
	PFL      PFLPosition
	AFL      AFLPosition
}

// Host is the part of a session a route depends on.
type Host interface {
	// ProcessLock serializes chain mutations against the process cycle.
	ProcessLock() sync.Locker
	// Running reports whether the engine is processing; delay changes are
	// ramped while it is.
	Running() bool
	// EnsureBuffers grows the shared scratch buffers to count channels.
	EnsureBuffers(count chans.Count)
	Resolver() processor.ReturnResolver
	PortAllocator() processor.PortAllocator
	// MasterInputs is the input count of the master route, or zero.
	MasterInputs() chans.Count
	// SoloChanged is called after the route's own solo changed by delta.
	SoloChanged(id processor.RouteID, delta int)
	// IsolateChanged is called after the route's own isolate changed by delta.
	IsolateChanged(id processor.RouteID, delta int)
	// PropagateSolo re-balances solo counts after a topology change.
	PropagateSolo()
	// LatencyChanged is called when the route's signal latency changed.
	LatencyChanged(id processor.RouteID)
}

// standalone is the host of a route that is not part of a session.
type standalone struct{ mu sync.Mutex }

func (h *standalone) ProcessLock() sync.Locker               { return &h.mu }
func (h *standalone) Running() bool                          { return false }
func (h *standalone) EnsureBuffers(chans.Count)              {}
func (h *standalone) Resolver() processor.ReturnResolver     { return nil }
func (h *standalone) PortAllocator() processor.PortAllocator { return nil }
func (h *standalone) MasterInputs() chans.Count              { return chans.Zero }
func (h *standalone) SoloChanged(processor.RouteID, int)     {}
func (h *standalone) IsolateChanged(processor.RouteID, int)  {}
func (h *standalone) PropagateSolo()                         {}
func (h *standalone) LatencyChanged(processor.RouteID)       {}

type options struct {
	cfg     core.ProcessorConfig
	logger  *slog.Logger
	metrics *metrics.Engine
	host    Host
	strict  bool
	listen  ListenConfig
	ports   chans.Count
}

// Option configures a new route.
type Option func(*options)

// WithConfig sets the processing configuration.
func WithConfig(cfg core.ProcessorConfig) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger the route derives its own from.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the engine collectors.
func WithMetrics(m *metrics.Engine) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithHost attaches the route to a session.
func WithHost(h Host) Option {
	return func(o *options) {
		if h != nil {
			o.host = h
		}
	}
}

// WithStrictIO makes plugins and the main outs keep the channel count.
func WithStrictIO(yn bool) Option {
	return func(o *options) { o.strict = yn }
}

// WithListen sets the listen tap positions.
func WithListen(c ListenConfig) Option {
	return func(o *options) { o.listen = c }
}

// WithOutputPorts sets the number of output ports of the main outs.
func WithOutputPorts(c chans.Count) Option {
	return func(o *options) { o.ports = c }
}

// Route is one channel strip.
type Route struct {
	id   processor.RouteID
	name string
	kind Kind

	cfg     core.ProcessorConfig
	log     *slog.Logger
	metrics *metrics.Engine
	host    Host

	// mu guards processors and the negotiated stream counts. Process only
	// try-locks it.
	mu         sync.RWMutex
	processors []processor.Processor
	input      chans.Count
	strict     bool
	listen     ListenConfig
	maxStreams chans.Count
	outStreams chans.Count

	amp            *processor.Amp
	trim           *processor.Amp
	meter          *processor.Meter
	mainOuts       *processor.Delivery
	delayLine      *processor.DelayLine
	polarity       *processor.Polarity
	intReturn      *processor.InternalReturn
	monitorControl *processor.MonitorControl
	monitorSend    *processor.InternalSend
	diskReader     *processor.DiskReader
	diskWriter     *processor.DiskWriter
	mute           *processor.MuteMaster

	meterPoint  processor.MeterPoint
	diskIOPoint processor.DiskIOPoint

	queueMu     sync.Mutex
	pending     atomic.Pointer[pendingChain]
	changedInRT atomic.Bool
	active      atomic.Bool
	denormal    bool

	latency latencyState
	solo    soloState

	destructMu sync.Mutex
	destruct   []processor.ID

	notifyMu          sync.Mutex
	processorsChanged []func(Change)
	ioChanged         []func(chans.Count)
}

// pendingChain is a chain waiting for the process thread together with the
// meter point it was placed for.
type pendingChain struct {
	processors []processor.Processor
	meter      processor.MeterPoint
}

const noPendingMeter processor.MeterPoint = -1

// New creates a route with in input channels and its fixed processors.
func New(id processor.RouteID, name string, kind Kind, in chans.Count, opts ...Option) (*Route, error) {
	o := options{
		cfg:    core.DefaultProcessorConfig(),
		logger: slog.Default(),
		host:   &standalone{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.metrics == nil {
		o.metrics = metrics.New(nil)
	}

	r := &Route{
		id:          id,
		name:        name,
		kind:        kind,
		cfg:         o.cfg,
		log:         o.logger.With(slog.String("route", name)),
		metrics:     o.metrics,
		host:        o.host,
		input:       in,
		strict:      o.strict,
		listen:      o.listen,
		mute:        processor.NewMuteMaster(),
		meterPoint:  processor.MeterPostFader,
		diskIOPoint: processor.DiskIOPreFader,
		denormal:    o.cfg.DenormalProtection,
	}
	r.active.Store(true)

	r.amp = processor.NewAmp("Fader", r.cfg)
	r.trim = processor.NewTrim("Trim", r.cfg)
	r.meter = processor.NewMeter("Meter", r.cfg)
	r.mainOuts = processor.NewMainOuts(name, r.mute, r.cfg)
	ports := o.ports
	if ports.IsZero() {
		ports = in
	}
	r.mainOuts.SetPorts(ports)
	r.polarity = processor.NewPolarity("Polarity", r.cfg)

	switch kind {
	case KindTrack:
		r.diskWriter = processor.NewDiskWriter("Recorder", r.cfg)
		r.diskReader = processor.NewDiskReader("Player", r.cfg)
	case KindBus:
		r.intReturn = processor.NewInternalReturn("Return", r.cfg)
	case KindMonitor:
		r.intReturn = processor.NewInternalReturn("Return", r.cfg)
		r.monitorControl = processor.NewMonitorControl("Monitor", r.cfg)
	}
	if kind != KindMaster && kind != KindMonitor {
		r.delayLine = processor.NewDelayLine("Latency Compensation", r.cfg)
	}
	r.amp.Activate()

	r.processors = r.withInvisible([]processor.Processor{r.amp})
	cfgs, err := r.negotiate(r.processors, r.input)
	if err != nil {
		return nil, fmt.Errorf("route %q: %w", name, err)
	}
	r.apply(r.processors, cfgs)
	r.enableInvisible(r.processors)
	r.updateSignalLatency(false)
	return r, nil
}

func (r *Route) ID() processor.RouteID { return r.id }
func (r *Route) Name() string          { return r.name }
func (r *Route) Kind() Kind            { return r.kind }

// SetName renames the route.
func (r *Route) SetName(name string) {
	r.name = name
	r.log = r.log.With(slog.String("route", name))
}

// Config returns the processing configuration.
func (r *Route) Config() core.ProcessorConfig { return r.cfg }

// Logger returns the route's logger.
func (r *Route) Logger() *slog.Logger { return r.log }

// IsMaster reports whether the route is the master bus.
func (r *Route) IsMaster() bool { return r.kind == KindMaster }

// IsMonitor reports whether the route is the monitor section.
func (r *Route) IsMonitor() bool { return r.kind == KindMonitor }

// IsTrack reports whether the route records and plays back.
func (r *Route) IsTrack() bool { return r.kind == KindTrack }

// SetActive turns the whole route on or off. An inactive route outputs
// silence.
func (r *Route) SetActive(yn bool) { r.active.Store(yn) }

// Active reports whether the route processes.
func (r *Route) Active() bool { return r.active.Load() }

func (r *Route) Amp() *processor.Amp                       { return r.amp }
func (r *Route) Trim() *processor.Amp                      { return r.trim }
func (r *Route) Meter() *processor.Meter                   { return r.meter }
func (r *Route) MainOuts() *processor.Delivery             { return r.mainOuts }
func (r *Route) DelayLine() *processor.DelayLine           { return r.delayLine }
func (r *Route) Polarity() *processor.Polarity             { return r.polarity }
func (r *Route) InternalReturn() *processor.InternalReturn { return r.intReturn }
func (r *Route) MonitorControl() *processor.MonitorControl { return r.monitorControl }
func (r *Route) MonitorSend() *processor.InternalSend      { return r.monitorSend }
func (r *Route) DiskReader() *processor.DiskReader         { return r.diskReader }
func (r *Route) DiskWriter() *processor.DiskWriter         { return r.diskWriter }
func (r *Route) MuteMaster() *processor.MuteMaster         { return r.mute }

// InputCount returns the number of input channels.
func (r *Route) InputCount() chans.Count {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.input
}

// OutputCount returns the channel count the main outs deliver.
func (r *Route) OutputCount() chans.Count {
	return r.mainOuts.OutputStreams()
}

// ProcessorMaxStreams is the largest channel count any processor needs.
func (r *Route) ProcessorMaxStreams() chans.Count {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxStreams
}

// ProcessorOutStreams is the count leaving the last processor before the
// main outs.
func (r *Route) ProcessorOutStreams() chans.Count {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outStreams
}

// StrictIO reports whether strict I/O is on.
func (r *Route) StrictIO() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strict
}

// Processors returns a copy of the full chain, invisible processors
// included.
func (r *Route) Processors() []processor.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]processor.Processor(nil), r.processors...)
}

// VisibleProcessors returns the processors shown to the user, in order.
func (r *Route) VisibleProcessors() []processor.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return visible(r.processors)
}

// ProcessorByID finds a processor in the chain.
func (r *Route) ProcessorByID(id processor.ID) processor.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.processors {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// NthPlugin returns the n-th plugin insert of the chain.
func (r *Route) NthPlugin(n int) *processor.PluginInsert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.processors {
		if pi, ok := p.(*processor.PluginInsert); ok {
			if n == 0 {
				return pi
			}
			n--
		}
	}
	return nil
}

// NthSend returns the n-th visible send of the chain.
func (r *Route) NthSend(n int) processor.Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.processors {
		s, ok := p.(processor.Sender)
		if !ok || !p.DisplayToUser() {
			continue
		}
		if n == 0 {
			return s
		}
		n--
	}
	return nil
}

func (r *Route) indexOf(list []processor.Processor, p processor.Processor) int {
	for i, x := range list {
		if x == p {
			return i
		}
	}
	return -1
}

func visible(list []processor.Processor) []processor.Processor {
	out := make([]processor.Processor, 0, len(list))
	for _, p := range list {
		if p.DisplayToUser() {
			out = append(out, p)
		}
	}
	return out
}

// ownsFixed reports whether p is one of the route's own processors.
func (r *Route) ownsFixed(p processor.Processor) bool {
	switch p {
	case processor.Processor(r.amp), processor.Processor(r.trim), processor.Processor(r.meter),
		processor.Processor(r.mainOuts), processor.Processor(r.polarity):
		return true
	}
	return (r.delayLine != nil && p == processor.Processor(r.delayLine)) ||
		(r.intReturn != nil && p == processor.Processor(r.intReturn)) ||
		(r.monitorControl != nil && p == processor.Processor(r.monitorControl)) ||
		(r.diskReader != nil && p == processor.Processor(r.diskReader)) ||
		(r.diskWriter != nil && p == processor.Processor(r.diskWriter))
}

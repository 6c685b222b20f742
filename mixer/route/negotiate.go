package route

import (
	"log/slog"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/mixer/processor"
)

// IOConfig is the negotiated input and output of one processor.
type IOConfig struct {
	In, Out chans.Count
}

// Negotiate computes the configuration of the current chain for in without
// changing anything.
func (r *Route) Negotiate(in chans.Count) ([]IOConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.negotiate(r.processors, in)
}

// IOConfigs returns the configuration the chain currently runs with.
func (r *Route) IOConfigs() []IOConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]IOConfig, len(r.processors))
	for i, p := range r.processors {
		out[i] = IOConfig{In: p.InputStreams(), Out: p.OutputStreams()}
	}
	return out
}

// negotiate folds in through list. Each processor's output is the next one's
// input, with two exceptions: the main outs follow the chain (or the master
// bus) under strict I/O, and the disk reader is fed at least what its writer
// records.
func (r *Route) negotiate(list []processor.Processor, in chans.Count) ([]IOConfig, error) {
	cfgs := make([]IOConfig, 0, len(list))
	var recorded chans.Count
	haveWriter := false

	for i, p := range list {
		if haveWriter && r.diskReader != nil && p == processor.Processor(r.diskReader) {
			in = chans.Max(in, recorded)
		}

		out, ok := p.CanSupportIOConfiguration(in)
		if !ok {
			return nil, &ConfigError{Index: i, Count: in, Processor: p.Name()}
		}

		if p == processor.Processor(r.mainOuts) && (r.strict || r.IsMonitor()) {
			out = in
			if master := r.host.MasterInputs(); !r.IsMaster() && !master.IsZero() && in.Audio() > 0 {
				out = chans.Max(in, master)
			}
		}

		if r.IsMonitor() {
			switch p.Kind() {
			case processor.KindInternalSend, processor.KindSend, processor.KindPortInsert:
				return nil, &ConfigError{Index: i, Count: in, Processor: p.Name(), Reason: "sends are not allowed on the monitor section"}
			}
			if in != out && p != processor.Processor(r.mainOuts) {
				return nil, &ConfigError{Index: i, Count: in, Processor: p.Name(), Reason: "the monitor section keeps its channel count"}
			}
		}

		if r.diskWriter != nil && p == processor.Processor(r.diskWriter) {
			haveWriter = true
			recorded = out
		}

		cfgs = append(cfgs, IOConfig{In: in, Out: out})
		in = out
	}
	return cfgs, nil
}

// apply configures every processor of list and sizes the shared buffers.
func (r *Route) apply(list []processor.Processor, cfgs []IOConfig) error {
	maxStreams := chans.Zero
	outStreams := r.input
	seenMain := false

	for i, p := range list {
		c := cfgs[i]
		if !p.ConfigureIO(c.In, c.Out) {
			return &ConfigError{Index: i, Count: c.In, Processor: p.Name(), Reason: "configuration refused"}
		}
		maxStreams = chans.Max(maxStreams, chans.Max(c.In, c.Out))
		if sr, ok := p.(processor.StreamReporter); ok {
			maxStreams = chans.Max(maxStreams, sr.RequiredBuffers())
		}
		if p == processor.Processor(r.mainOuts) {
			seenMain = true
		}
		if !seenMain {
			outStreams = c.Out
		}
	}

	r.maxStreams = maxStreams
	r.outStreams = outStreams
	r.meter.SetMaxChannels(maxStreams)
	if r.meterPoint == processor.MeterInput {
		r.meter.ReflectInputs(r.input)
	}
	r.host.EnsureBuffers(maxStreams)
	return nil
}

// commit places the invisible processors around the visible ones of list,
// negotiates and applies the result. On failure the current chain stays in
// effect and is re-applied. Called with both locks held.
func (r *Route) commit(list []processor.Processor) error {
	next := r.withInvisible(list)
	cfgs, err := r.negotiate(next, r.input)
	if err != nil {
		r.reject(err)
		return err
	}
	if err := r.apply(next, cfgs); err != nil {
		r.reject(err)
		r.reapply()
		return err
	}
	r.processors = next
	r.enableInvisible(next)
	r.markSendPositions(next)
	return nil
}

// reapply configures the current chain again after a failed apply.
func (r *Route) reapply() {
	cfgs, err := r.negotiate(r.processors, r.input)
	if err == nil {
		err = r.apply(r.processors, cfgs)
	}
	if err != nil {
		r.log.Error("restoring processor configuration failed", slog.Any("err", err))
	}
}

func (r *Route) reject(err error) {
	r.metrics.ReconfigureFailures.Inc()
	r.log.Debug("processor configuration rejected", slog.Any("err", err))
}

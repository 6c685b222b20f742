package core

// ProcessorConfig defines common DSP processing settings shared by every
// processor of a session.
type ProcessorConfig struct {
	SampleRate float64
	BlockSize  int

	// DelayRamp is the crossfade length, in samples, used when a delay
	// changes while the engine runs.
	DelayRamp int

	// DenormalProtection flushes denormal values at the route input.
	DenormalProtection bool
}

// ProcessorOption mutates a ProcessorConfig.
type ProcessorOption func(*ProcessorConfig)

// DefaultProcessorConfig returns sensible defaults for offline and streaming use.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		SampleRate: 48000,
		BlockSize:  1024,
		DelayRamp:  256,
	}
}

// WithSampleRate sets the processing sample rate.
func WithSampleRate(sampleRate float64) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if sampleRate > 0 {
			cfg.SampleRate = sampleRate
		}
	}
}

// WithBlockSize sets the processing block size.
func WithBlockSize(blockSize int) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if blockSize > 0 {
			cfg.BlockSize = blockSize
		}
	}
}

// WithDelayRamp sets the crossfade length for delay changes while running.
func WithDelayRamp(samples int) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if samples > 0 {
			cfg.DelayRamp = samples
		}
	}
}

// WithDenormalProtection enables flushing of denormals at route inputs.
func WithDenormalProtection(enabled bool) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		cfg.DenormalProtection = enabled
	}
}

// ApplyProcessorOptions applies zero or more options to the default config.
func ApplyProcessorOptions(opts ...ProcessorOption) ProcessorConfig {
	cfg := DefaultProcessorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

package core_test

import (
	"fmt"

	"github.com/cwbudde/algo-mixer/dsp/core"
)

func ExampleApplyProcessorOptions() {
	cfg := core.ApplyProcessorOptions(
		core.WithSampleRate(44100),
		core.WithBlockSize(256),
	)

	fmt.Printf("sampleRate=%.0f blockSize=%d ramp=%d\n", cfg.SampleRate, cfg.BlockSize, cfg.DelayRamp)

	// Output:
	// sampleRate=44100 blockSize=256 ramp=256
}

func ExampleDBToGain() {
	fmt.Printf("%.1f %.2f\n", core.DBToGain(0), core.DBToGain(-6))

	// Output:
	// 1.0 0.50
}

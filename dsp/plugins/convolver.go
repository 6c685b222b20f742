package plugins

import (
	"errors"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/conv"
)

const defaultPartition = 256

// ErrNoIR is returned when a convolver has no impulse response.
var ErrNoIR = errors.New("plugins: no impulse response")

// Convolver convolves a mono signal with an impulse response. Its latency is
// one partition.
type Convolver struct {
	ir        []float64
	irIndex   int
	partition int
	engine    *conv.Block
}

// NewConvolver returns a convolver for ir processing partitions of the given
// size.
func NewConvolver(ir []float64, partition int) (*Convolver, error) {
	if len(ir) == 0 {
		return nil, ErrNoIR
	}
	if partition <= 0 {
		partition = defaultPartition
	}
	engine, err := conv.NewBlock(ir, partition)
	if err != nil {
		return nil, err
	}
	return &Convolver{ir: append([]float64(nil), ir...), partition: partition, engine: engine}, nil
}

func (c *Convolver) Name() string                          { return TypeConvolver }
func (c *Convolver) NaturalIO() (chans.Count, chans.Count) { return mono, mono }
func (c *Convolver) Latency() int                          { return c.engine.Latency() }
func (c *Convolver) Configure(float64, int) error          { return nil }
func (c *Convolver) Reset()                                { c.engine.Reset() }

// Params reports the impulse response index and the partition size.
func (c *Convolver) Params() Params {
	return Params{Num: map[string]float64{"ir": float64(c.irIndex), "partition": float64(c.partition)}}
}

// Process convolves the input.
func (c *Convolver) Process(in, out [][]float64, _ []buffer.Event, nframes int) {
	c.engine.Process(out[0][:nframes], in[0][:nframes])
}

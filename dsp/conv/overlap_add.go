package conv

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// OverlapAdd convolves fixed-size blocks with a kernel via FFT and carries
// the convolution tail from block to block.
type OverlapAdd struct {
	kernelFFT []complex128

	kernelLen int
	blockSize int
	fftSize   int // blockSize + kernelLen - 1, rounded to a power of 2

	plan *algofft.Plan[complex128]

	padded []complex128
	result []float64
	tail   []float64
}

// NewOverlapAdd creates a convolver for kernel and blocks of blockSize.
func NewOverlapAdd(kernel []float64, blockSize int) (*OverlapAdd, error) {
	if len(kernel) == 0 {
		return nil, ErrEmptyKernel
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}

	fftSize := fftSizeFor(blockSize + len(kernel) - 1)
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("conv: failed to create FFT plan: %w", err)
	}

	oa := &OverlapAdd{
		kernelFFT: make([]complex128, fftSize),
		kernelLen: len(kernel),
		blockSize: blockSize,
		fftSize:   fftSize,
		plan:      plan,
		padded:    make([]complex128, fftSize),
		result:    make([]float64, blockSize+len(kernel)-1),
		tail:      make([]float64, len(kernel)-1),
	}

	kernelPadded := make([]complex128, fftSize)
	for i, v := range kernel {
		kernelPadded[i] = complex(v, 0)
	}
	if err := plan.Forward(oa.kernelFFT, kernelPadded); err != nil {
		return nil, fmt.Errorf("conv: failed to compute kernel FFT: %w", err)
	}
	return oa, nil
}

// BlockSize returns the block size.
func (oa *OverlapAdd) BlockSize() int { return oa.blockSize }

// KernelLen returns the kernel length.
func (oa *OverlapAdd) KernelLen() int { return oa.kernelLen }

// FFTSize returns the FFT size.
func (oa *OverlapAdd) FFTSize() int { return oa.fftSize }

// ProcessBlockTo convolves one block. Both slices must hold blockSize
// samples; they may alias.
func (oa *OverlapAdd) ProcessBlockTo(output, input []float64) error {
	if len(input) != oa.blockSize || len(output) != oa.blockSize {
		return fmt.Errorf("%w: expected %d samples, got %d in and %d out",
			ErrLengthMismatch, oa.blockSize, len(input), len(output))
	}

	clear(oa.padded)
	for i, v := range input {
		oa.padded[i] = complex(v, 0)
	}
	if err := oa.plan.Forward(oa.padded, oa.padded); err != nil {
		return fmt.Errorf("conv: forward FFT failed: %w", err)
	}
	for i := range oa.padded {
		oa.padded[i] *= oa.kernelFFT[i]
	}
	if err := oa.plan.Inverse(oa.padded, oa.padded); err != nil {
		return fmt.Errorf("conv: inverse FFT failed: %w", err)
	}

	for i := range oa.result {
		oa.result[i] = real(oa.padded[i])
	}
	for i, v := range oa.tail {
		oa.result[i] += v
	}
	copy(output, oa.result[:oa.blockSize])

	n := copy(oa.tail, oa.result[oa.blockSize:])
	clear(oa.tail[n:])
	return nil
}

// Reset clears the tail.
func (oa *OverlapAdd) Reset() {
	clear(oa.tail)
}

// Block runs an OverlapAdd on a stream delivered in arbitrary chunk sizes.
// The output lags the input by exactly one block.
type Block struct {
	oa  *OverlapAdd
	in  []float64
	out []float64
	pos int
}

// NewBlock creates a streaming convolver with blocks of blockSize.
func NewBlock(kernel []float64, blockSize int) (*Block, error) {
	oa, err := NewOverlapAdd(kernel, blockSize)
	if err != nil {
		return nil, err
	}
	return &Block{
		oa:  oa,
		in:  make([]float64, blockSize),
		out: make([]float64, blockSize),
	}, nil
}

// Latency returns the delay between input and output in samples.
func (b *Block) Latency() int { return b.oa.blockSize }

// Process convolves input into output. The slices must be the same length
// and may alias.
func (b *Block) Process(output, input []float64) {
	n := min(len(input), len(output))
	for i := 0; i < n; i++ {
		x := input[i]
		output[i] = b.out[b.pos]
		b.in[b.pos] = x
		b.pos++
		if b.pos == len(b.in) {
			// lengths match by construction
			_ = b.oa.ProcessBlockTo(b.out, b.in)
			b.pos = 0
		}
	}
}

// Reset clears all state.
func (b *Block) Reset() {
	b.oa.Reset()
	clear(b.in)
	clear(b.out)
	b.pos = 0
}

package conv

import "errors"

// Errors returned by the convolution engines.
var (
	ErrEmptyKernel      = errors.New("conv: empty kernel")
	ErrLengthMismatch   = errors.New("conv: buffer length mismatch")
	ErrInvalidBlockSize = errors.New("conv: invalid block size")
)

// fftSizeFor returns the smallest power of two holding n samples.
func fftSizeFor(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

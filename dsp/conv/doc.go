// Package conv provides the convolution engines used by convolution plugins.
//
// OverlapAdd convolves fixed-size blocks via FFT and keeps the tail between
// blocks. Block adapts OverlapAdd to callers delivering an arbitrary number
// of samples per call, at the cost of one block of latency.
//
//	c, err := conv.NewBlock(ir, 256)
//	c.Process(out, in) // out lags in by c.Latency() samples
package conv

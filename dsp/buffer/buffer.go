package buffer

// Buffer wraps a float64 slice with reuse-friendly semantics.
// DSP functions accept raw []float64; use Samples() to bridge.
type Buffer struct {
	samples []float64
	silent  bool
}

// New returns a zero-filled Buffer of the given length.
func New(length int) *Buffer {
	if length < 0 {
		length = 0
	}
	return &Buffer{samples: make([]float64, length), silent: true}
}

// Samples returns the underlying slice.
func (b *Buffer) Samples() []float64 {
	return b.samples
}

// Len returns the current number of samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Silent reports whether the buffer was last cleared and not written since.
// The flag is informational: writers through Samples() call SetSilent(false).
func (b *Buffer) Silent() bool {
	return b.silent
}

// SetSilent records whether the buffer holds only zeros.
func (b *Buffer) SetSilent(yn bool) {
	b.silent = yn
}

// Resize sets the length to n, reusing existing capacity when possible.
// New elements beyond the previous length are zeroed.
func (b *Buffer) Resize(n int) {
	if n < 0 {
		n = 0
	}
	oldLen := len(b.samples)
	if n <= cap(b.samples) {
		b.samples = b.samples[:n]
	} else {
		s := make([]float64, n)
		copy(s, b.samples)
		b.samples = s
	}
	for i := oldLen; i < n; i++ {
		b.samples[i] = 0
	}
}

// Zero sets all samples to 0.
func (b *Buffer) Zero() {
	for i := range b.samples {
		b.samples[i] = 0
	}
	b.silent = true
}

// ZeroRange sets samples in [offset, offset+nframes) to 0.
// Indices are clamped to valid bounds.
func (b *Buffer) ZeroRange(offset, nframes int) {
	start, end := clampRange(offset, nframes, len(b.samples))
	for i := start; i < end; i++ {
		b.samples[i] = 0
	}
	if start == 0 && end == len(b.samples) {
		b.silent = true
	}
}

// ReadFrom copies nframes samples from src starting at srcOffset into b
// starting at dstOffset.
func (b *Buffer) ReadFrom(src *Buffer, nframes, dstOffset, srcOffset int) {
	if src == nil {
		return
	}
	n := minInt(nframes, len(b.samples)-dstOffset, len(src.samples)-srcOffset)
	if n <= 0 {
		return
	}
	copy(b.samples[dstOffset:dstOffset+n], src.samples[srcOffset:srcOffset+n])
	b.silent = src.silent
}

// MixFrom adds nframes samples of src into b.
func (b *Buffer) MixFrom(src *Buffer, nframes int) {
	if src == nil {
		return
	}
	n := minInt(nframes, len(b.samples), len(src.samples))
	dst := b.samples[:n]
	s := src.samples[:n]
	for i := range dst {
		dst[i] += s[i]
	}
	b.silent = false
}

// MixFromWithGain adds nframes samples of src scaled by gain into b.
func (b *Buffer) MixFromWithGain(src *Buffer, nframes int, gain float64) {
	if src == nil || gain == 0 {
		return
	}
	n := minInt(nframes, len(b.samples), len(src.samples))
	dst := b.samples[:n]
	s := src.samples[:n]
	for i := range dst {
		dst[i] += s[i] * gain
	}
	b.silent = false
}

// Scale multiplies the first nframes samples by gain.
func (b *Buffer) Scale(gain float64, nframes int) {
	if gain == 1 {
		return
	}
	if gain == 0 {
		b.ZeroRange(0, nframes)
		return
	}
	n := minInt(nframes, len(b.samples))
	for i := range b.samples[:n] {
		b.samples[i] *= gain
	}
}

func clampRange(offset, nframes, length int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	end := offset + nframes
	if end > length {
		end = length
	}
	if offset > end {
		offset = end
	}
	return offset, end
}

func minInt(v int, rest ...int) int {
	for _, r := range rest {
		if r < v {
			v = r
		}
	}
	return v
}

package delay

import (
	"errors"
	"fmt"
)

// ErrInvalidSize is returned for non-positive line sizes.
var ErrInvalidSize = errors.New("delay: size must be > 0")

// Line is a circular delay line.
type Line struct {
	buffer   []float64
	writePos int
}

// New returns a delay line of fixed size. A line of size n can delay by up
// to n-1 samples.
func New(size int) (*Line, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Line{buffer: make([]float64, size)}, nil
}

// Len returns internal buffer size.
func (d *Line) Len() int {
	return len(d.buffer)
}

// Write writes one sample.
func (d *Line) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos++
	if d.writePos >= len(d.buffer) {
		d.writePos = 0
	}
}

// Read returns the sample written delay samples before the most recent one.
// Read(0) returns the last written sample.
func (d *Line) Read(delay int) float64 {
	size := len(d.buffer)
	if delay >= size {
		delay = size - 1
	}
	if delay < 0 {
		delay = 0
	}
	readPos := d.writePos - 1 - delay
	for readPos < 0 {
		readPos += size
	}
	return d.buffer[readPos]
}

// Grow enlarges the line to size samples, keeping the history in order.
// It allocates and must not be called from the real-time thread.
func (d *Line) Grow(size int) {
	old := len(d.buffer)
	if size <= old {
		return
	}
	buf := make([]float64, size)
	// oldest sample first, newest at buf[old-1]
	for i := 0; i < old; i++ {
		buf[size-old+i] = d.buffer[(d.writePos+i)%old]
	}
	d.buffer = buf
	d.writePos = 0
}

// Reset clears line state.
func (d *Line) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}

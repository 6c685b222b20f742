// Package delay provides integer sample delays for compensating latency
// between parallel signal paths.
//
// Line is a single-channel circular buffer. Bank delays every channel of a
// buffer.Set, MIDI included, and changes its delay either immediately or
// with a linear crossfade so that a running engine does not click.
package delay

// Package buffer provides the sample and event buffers that flow through a
// processing chain. A Set bundles audio and MIDI buffers with an active
// channel count; a Pool owns the engine-wide scratch sets that are sized once
// outside the real-time path and handed out per cycle.
package buffer

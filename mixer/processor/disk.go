package processor

import (
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/core"
)

// DiskIOPoint is where a track's disk reader and writer sit.
type DiskIOPoint int

const (
	DiskIOPreFader DiskIOPoint = iota
	DiskIOPostFader
	DiskIOCustom
)

var diskIOPointNames = [...]string{"prefader", "postfader", "custom"}

func (d DiskIOPoint) String() string {
	if d >= 0 && int(d) < len(diskIOPointNames) {
		return diskIOPointNames[d]
	}
	return "unknown"
}

// ParseDiskIOPoint is the inverse of String.
func ParseDiskIOPoint(s string) (DiskIOPoint, bool) {
	for i, n := range diskIOPointNames {
		if n == s {
			return DiskIOPoint(i), true
		}
	}
	return 0, false
}

// CaptureSink receives the signal a DiskWriter sees.
type CaptureSink interface {
	Capture(bufs *buffer.Set, pos int64, nframes int)
}

// PlaybackSource fills a DiskReader's output with recorded material.
type PlaybackSource interface {
	Playback(bufs *buffer.Set, pos int64, nframes int)
}

// DiskWriter marks where a track records. The signal passes unchanged; an
// optional sink receives a copy.
type DiskWriter struct {
	Base
	sink atomic.Pointer[CaptureSink]
}

// NewDiskWriter returns a disk writer without a sink.
func NewDiskWriter(name string, cfg core.ProcessorConfig) *DiskWriter {
	w := &DiskWriter{}
	w.init(name, KindDiskWriter, cfg)
	return w
}

// SetSink attaches a capture sink; nil detaches.
func (w *DiskWriter) SetSink(s CaptureSink) {
	if s == nil {
		w.sink.Store(nil)
		return
	}
	w.sink.Store(&s)
}

// Run hands the signal to the sink.
func (w *DiskWriter) Run(bufs *buffer.Set, start, _ int64, _ float64, nframes int, _ bool) {
	if !w.Active() {
		return
	}
	if s := w.sink.Load(); s != nil {
		(*s).Capture(bufs, start, nframes)
	}
}

// DiskReader marks where a track plays back. Without a source, or while the
// track monitors input, the signal passes unchanged.
//
// The reader's input configuration is tied to its writer's output so that
// what is played back has the shape of what was recorded.
type DiskReader struct {
	Base
	source     atomic.Pointer[PlaybackSource]
	monitoring atomic.Bool
}

// NewDiskReader returns a disk reader without a source.
func NewDiskReader(name string, cfg core.ProcessorConfig) *DiskReader {
	r := &DiskReader{}
	r.init(name, KindDiskReader, cfg)
	return r
}

// SetSource attaches a playback source; nil detaches.
func (r *DiskReader) SetSource(s PlaybackSource) {
	if s == nil {
		r.source.Store(nil)
		return
	}
	r.source.Store(&s)
}

// SetMonitorDisk selects disk (true) or input (false) monitoring.
func (r *DiskReader) SetMonitorDisk(yn bool) { r.monitoring.Store(yn) }

// MonitorDisk reports whether disk is monitored.
func (r *DiskReader) MonitorDisk() bool { return r.monitoring.Load() }

// Run replaces bufs with playback while monitoring disk.
func (r *DiskReader) Run(bufs *buffer.Set, start, _ int64, _ float64, nframes int, _ bool) {
	if !r.Active() || !r.monitoring.Load() {
		return
	}
	bufs.Silence(nframes, 0)
	if s := r.source.Load(); s != nil {
		(*s).Playback(bufs, start, nframes)
	}
}

package route

import (
	"slices"

	"github.com/cwbudde/algo-mixer/mixer/processor"
)

// withInvisible rebuilds a chain from the visible processors of list and puts
// the route's plumbing at its canonical positions:
//
//	return, input meter, disk writer, delay line, disk reader, polarity,
//	trim, [visible pre-fader], pre-fader meter, fader,
//	[visible post-fader], post-fader meter, main outs, output meter
//
// with listen sends, the monitor control stage and custom meter or disk
// positions adjusted as configured.
func (r *Route) withInvisible(list []processor.Processor) []processor.Processor {
	return r.place(list, r.meterPoint)
}

// place is withInvisible for meter point mp.
func (r *Route) place(list []processor.Processor, mp processor.MeterPoint) []processor.Processor {
	np := visible(list)
	pos := func(p processor.Processor) int { return slices.Index(np, p) }
	insert := func(i int, p processor.Processor) { np = slices.Insert(np, i, p) }

	if pos(r.amp) < 0 {
		r.log.Error("fader missing from chain, re-added")
		insert(0, r.amp)
	}

	if mp == processor.MeterPreFader {
		insert(pos(r.amp), r.meter)
	}

	np = append(np, r.mainOuts)

	switch mp {
	case processor.MeterPostFader:
		insert(pos(r.mainOuts), r.meter)
	case processor.MeterOutput:
		insert(pos(r.mainOuts)+1, r.meter)
	}

	if r.monitorSend != nil && !r.IsMonitor() {
		switch r.listen.Position {
		case PreFaderListen:
			if r.listen.PFL == PFLFromBeforeProcessors {
				insert(0, r.monitorSend)
			} else {
				insert(pos(r.amp), r.monitorSend)
			}
			r.monitorSend.Panner().SetCanPan(false)
		default:
			if r.listen.AFL == AFLFromBeforeProcessors {
				insert(pos(r.amp)+1, r.monitorSend)
			} else {
				np = append(np, r.monitorSend)
			}
			r.monitorSend.Panner().SetCanPan(true)
		}
	}

	if r.monitorControl != nil {
		insert(pos(r.amp), r.monitorControl)
	}

	if r.trim.Active() {
		insert(0, r.trim)
	}

	if r.intReturn != nil {
		insert(0, r.intReturn)
	}

	if r.diskReader != nil {
		switch r.diskIOPoint {
		case processor.DiskIOPreFader:
			at := 0
			if r.trim.Active() {
				at = pos(r.trim)
			}
			insert(at, r.diskReader)
			insert(at, r.diskWriter)
		case processor.DiskIOPostFader:
			insert(pos(r.mainOuts), r.diskWriter)
			insert(pos(r.mainOuts), r.diskReader)
		}
		// the writer always precedes the reader
		if w, rd := pos(r.diskWriter), pos(r.diskReader); rd >= 0 && rd < w {
			np = slices.Delete(np, rd, rd+1)
			insert(pos(r.diskWriter)+1, r.diskReader)
		}
	}

	after := func(p processor.Processor, fallback int) int {
		if p == nil {
			return fallback
		}
		if i := pos(p); i >= 0 {
			return i + 1
		}
		return fallback
	}
	ret := processor.Processor(nil)
	if r.intReturn != nil {
		ret = r.intReturn
	}
	reader := processor.Processor(nil)
	if r.diskReader != nil {
		reader = r.diskReader
	}

	insert(after(reader, after(ret, 0)), r.polarity)

	if mp == processor.MeterInput {
		if r.diskWriter != nil {
			insert(pos(r.diskWriter), r.meter)
		} else {
			insert(after(ret, 0), r.meter)
		}
	}

	if r.delayLine != nil {
		if reader != nil {
			insert(pos(reader), r.delayLine)
		} else {
			insert(0, r.delayLine)
		}
	}
	return np
}

// enableInvisible activates the plumbing placed by withInvisible. The listen
// send keeps its state; it follows solo.
func (r *Route) enableInvisible(list []processor.Processor) {
	for _, p := range list {
		if p.DisplayToUser() || p.Active() {
			continue
		}
		if r.monitorSend != nil && p == processor.Processor(r.monitorSend) {
			continue
		}
		p.Activate()
	}
}

// markSendPositions tells every send whether it sits after the fader.
func (r *Route) markSendPositions(list []processor.Processor) {
	amp := slices.Index(list, processor.Processor(r.amp))
	for i, p := range list {
		switch s := p.(type) {
		case *processor.InternalSend:
			s.SetPostFader(i > amp)
		case *processor.Send:
			s.SetPostFader(i > amp)
		}
	}
}

package buffer

import "github.com/cwbudde/algo-mixer/dsp/chans"

// Pool owns the engine-wide scratch sets. It is sized outside the real-time
// path (Ensure) to the largest channel count any processor needs and hands out
// the same sets every cycle. Only the real-time thread writes into them.
type Pool struct {
	nframes int
	count   chans.Count

	scratch *Set
	mix     *Set
	route   *Set
	silent  *Set
}

// NewPool returns a Pool for blocks of nframes samples.
func NewPool(nframes int) *Pool {
	return &Pool{
		nframes: nframes,
		scratch: NewSet(chans.Zero, nframes),
		mix:     NewSet(chans.Zero, nframes),
		route:   NewSet(chans.Zero, nframes),
		silent:  NewSet(chans.Zero, nframes),
	}
}

// Ensure grows every set to hold count channels of nframes samples.
// It reports whether the pool grew.
func (p *Pool) Ensure(count chans.Count, nframes int) bool {
	if nframes < p.nframes {
		nframes = p.nframes
	}
	want := chans.Max(p.count, count)
	if want == p.count && nframes == p.nframes {
		return false
	}
	p.count = want
	p.nframes = nframes
	for _, s := range []*Set{p.scratch, p.mix, p.route, p.silent} {
		s.Ensure(want, nframes)
	}
	return true
}

// Count returns the channel count every set can hold.
func (p *Pool) Count() chans.Count {
	return p.count
}

// BlockSize returns the sample capacity of every buffer.
func (p *Pool) BlockSize() int {
	return p.nframes
}

// Scratch returns the scratch set with count active channels.
func (p *Pool) Scratch(count chans.Count) *Set {
	p.scratch.SetCount(count)
	return p.scratch
}

// Mix returns the mix set with count active channels.
func (p *Pool) Mix(count chans.Count) *Set {
	p.mix.SetCount(count)
	return p.mix
}

// Route returns the per-route processing set with count active channels.
func (p *Pool) Route(count chans.Count) *Set {
	p.route.SetCount(count)
	return p.route
}

// Silent returns a zeroed set with count active channels.
func (p *Pool) Silent(count chans.Count) *Set {
	p.silent.SetCount(count)
	p.silent.SilenceAll()
	return p.silent
}

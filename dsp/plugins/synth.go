package plugins

import (
	"math"

	"github.com/cwbudde/algo-mixer/dsp/buffer"
	"github.com/cwbudde/algo-mixer/dsp/chans"
)

const (
	synthVoices       = 8
	defaultSynthLevel = 0.2
)

type voice struct {
	key   uint8
	gain  float64
	phase float64
	step  float64
	on    bool
}

// Synth is a small sine instrument. It has one MIDI input and one audio
// output and no audio input.
type Synth struct {
	level      float64
	sampleRate float64
	voices     [synthVoices]voice
}

// NewSynth returns a synth with the given output level at full velocity.
func NewSynth(level float64) *Synth {
	return &Synth{level: level, sampleRate: 48000}
}

func (s *Synth) Name() string { return TypeSynth }
func (s *Synth) NaturalIO() (chans.Count, chans.Count) {
	return chans.NewCount(0, 1), mono
}
func (s *Synth) Latency() int { return 0 }

func (s *Synth) Params() Params {
	return Params{Num: map[string]float64{"level": s.level}}
}

// Configure records the sample rate.
func (s *Synth) Configure(sampleRate float64, _ int) error {
	if sampleRate > 0 {
		s.sampleRate = sampleRate
	}
	return nil
}

// Reset silences every voice.
func (s *Synth) Reset() { s.voices = [synthVoices]voice{} }

// Voices returns the number of sounding notes.
func (s *Synth) Voices() int {
	n := 0
	for _, v := range s.voices {
		if v.on {
			n++
		}
	}
	return n
}

// Process renders the notes started and stopped by events.
func (s *Synth) Process(_, out [][]float64, events []buffer.Event, nframes int) {
	dst := out[0][:nframes]
	clear(dst)

	pos := 0
	for _, ev := range events {
		t := min(max(ev.Time, pos), nframes)
		s.render(dst[pos:t])
		pos = t

		var ch, key, vel uint8
		switch {
		case ev.Msg.GetNoteStart(&ch, &key, &vel):
			s.noteOn(key, vel)
		case ev.Msg.GetNoteEnd(&ch, &key):
			s.noteOff(key)
		}
	}
	s.render(dst[pos:])
}

func (s *Synth) noteOn(key, vel uint8) {
	slot := 0
	for i, v := range s.voices {
		if !v.on || v.key == key {
			slot = i
			break
		}
	}
	freq := 440 * math.Pow(2, (float64(key)-69)/12)
	s.voices[slot] = voice{
		key:  key,
		gain: s.level * float64(vel) / 127,
		step: 2 * math.Pi * freq / s.sampleRate,
		on:   true,
	}
}

func (s *Synth) noteOff(key uint8) {
	for i := range s.voices {
		if s.voices[i].on && s.voices[i].key == key {
			s.voices[i].on = false
		}
	}
}

func (s *Synth) render(dst []float64) {
	for i := range s.voices {
		v := &s.voices[i]
		if !v.on {
			continue
		}
		for j := range dst {
			dst[j] += v.gain * math.Sin(v.phase)
			v.phase += v.step
		}
		v.phase = math.Mod(v.phase, 2*math.Pi)
	}
}

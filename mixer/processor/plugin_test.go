package processor

import (
	"errors"
	"testing"

	"github.com/cwbudde/algo-mixer/dsp/chans"
)

func newInsert(t *testing.T, f PluginFactory) *PluginInsert {
	t.Helper()
	pi, err := NewPluginInsert("plugin", f, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	return pi
}

func configure(t *testing.T, p Processor, in chans.Count) chans.Count {
	t.Helper()
	out, ok := p.CanSupportIOConfiguration(in)
	if !ok {
		t.Fatalf("%s cannot take %s", p.Name(), in)
	}
	if !p.ConfigureIO(in, out) {
		t.Fatalf("%s failed to configure %s -> %s", p.Name(), in, out)
	}
	p.Activate()
	return out
}

func TestPluginFactoryError(t *testing.T) {
	t.Parallel()

	if _, err := NewPluginInsert("x", failingFactory, testConfig()); err == nil {
		t.Fatal("expected factory error")
	}
	nilFactory := func() (Plugin, error) { return nil, nil }
	if _, err := NewPluginInsert("x", nilFactory, testConfig()); !errors.Is(err, ErrNoPlugin) {
		t.Fatalf("expected ErrNoPlugin, got %v", err)
	}
}

func TestPluginExactMatch(t *testing.T) {
	t.Parallel()

	pi := newInsert(t, scaleFactory(stereo(), stereo(), 2))
	out := configure(t, pi, stereo())
	if out != stereo() || pi.CurrentMatch().Method != MatchExact {
		t.Fatalf("match = %+v", pi.CurrentMatch())
	}

	bufs := filled(stereo(), func(c int) float64 { return float64(c + 1) })
	run(pi, bufs)
	if bufs.Audio(0).Samples()[0] != 2 || bufs.Audio(1).Samples()[0] != 4 {
		t.Fatal("plugin output not written back")
	}
}

func TestPluginDoesNotSplitMono(t *testing.T) {
	t.Parallel()

	pi := newInsert(t, scaleFactory(stereo(), stereo(), 1))
	if _, ok := pi.CanSupportIOConfiguration(mono()); ok {
		t.Fatal("a two input plugin must not accept a mono chain")
	}
	if pi.ConfigureIO(mono(), stereo()) {
		t.Fatal("ConfigureIO accepted an impossible configuration")
	}
}

func TestPluginReplicates(t *testing.T) {
	t.Parallel()

	pi := newInsert(t, scaleFactory(mono(), mono(), 0.5))
	out := configure(t, pi, stereo())
	if out != stereo() || pi.Instances() != 2 || pi.CurrentMatch().Method != MatchReplicate {
		t.Fatalf("out %s, %d instances, %s", out, pi.Instances(), pi.CurrentMatch().Method)
	}

	bufs := filled(stereo(), func(c int) float64 { return float64(c + 1) })
	run(pi, bufs)
	if bufs.Audio(0).Samples()[9] != 0.5 || bufs.Audio(1).Samples()[9] != 1 {
		t.Fatalf("replicated outputs %v %v", bufs.Audio(0).Samples()[9], bufs.Audio(1).Samples()[9])
	}

	configure(t, pi, mono())
	if pi.Instances() != 1 {
		t.Fatalf("instances after shrinking = %d", pi.Instances())
	}
}

func TestPluginStrictIO(t *testing.T) {
	t.Parallel()

	pi := newInsert(t, scaleFactory(mono(), stereo(), 1))
	if out, _ := pi.CanSupportIOConfiguration(mono()); out != stereo() {
		t.Fatalf("upmixer output = %s", out)
	}
	pi.SetStrictIO(true)
	if out, _ := pi.CanSupportIOConfiguration(mono()); out != mono() {
		t.Fatalf("strict upmixer output = %s", out)
	}
	configure(t, pi, mono())
	if got := pi.RequiredBuffers(); got.Audio() != 2 {
		t.Fatalf("required buffers = %s, want 2 audio", got)
	}
}

func TestPluginThruCarriesUnmappedChannels(t *testing.T) {
	t.Parallel()

	pi := newInsert(t, scaleFactory(mono(), mono(), 0.5))
	pi.SetCustomConfiguration(1, stereo(), mono())
	out := configure(t, pi, stereo())
	if out != stereo() || pi.CurrentMatch().Method != MatchCustom {
		t.Fatalf("custom match = %+v", pi.CurrentMatch())
	}
	if to, ok := pi.ThruMap().Get(chans.Audio, 1); !ok || to != 1 {
		t.Fatal("channel 1 should pass through")
	}

	bufs := filled(stereo(), func(int) float64 { return 1 })
	run(pi, bufs)
	if bufs.Audio(0).Samples()[0] != 0.5 || bufs.Audio(1).Samples()[0] != 1 {
		t.Fatalf("outputs %v %v", bufs.Audio(0).Samples()[0], bufs.Audio(1).Samples()[0])
	}

	pi.ClearCustomConfiguration()
	if _, _, _, ok := pi.CustomConfiguration(); ok {
		t.Fatal("custom configuration still on")
	}
}

func TestPluginUserMapsPersist(t *testing.T) {
	t.Parallel()

	pi := newInsert(t, scaleFactory(mono(), mono(), 1))
	configure(t, pi, stereo())

	m := chans.NewMapping()
	m.Set(chans.Audio, 0, 1)
	if !pi.SetInputMap(0, m) {
		t.Fatal("SetInputMap rejected instance 0")
	}
	if pi.SetInputMap(5, m) {
		t.Fatal("SetInputMap accepted a missing instance")
	}
	configure(t, pi, stereo())
	if to, _ := pi.InputMap(0).Get(chans.Audio, 0); to != 1 {
		t.Fatal("user map lost on unchanged reconfiguration")
	}

	bufs := filled(stereo(), func(c int) float64 { return float64(c + 1) })
	run(pi, bufs)
	if bufs.Audio(0).Samples()[0] != 2 {
		t.Fatalf("instance 0 should read channel 1, got %v", bufs.Audio(0).Samples()[0])
	}

	pi.ResetMaps()
	if to, _ := pi.InputMap(0).Get(chans.Audio, 0); to != 0 {
		t.Fatal("ResetMaps kept the user map")
	}
}

func TestPluginBypassSilencesExtraOutputs(t *testing.T) {
	t.Parallel()

	pi := newInsert(t, scaleFactory(mono(), stereo(), 3))
	configure(t, pi, mono())
	pi.Deactivate()

	bufs := filled(stereo(), func(int) float64 { return 1 })
	run(pi, bufs)
	if bufs.Audio(0).Samples()[0] != 1 || bufs.Audio(1).Samples()[0] != 0 {
		t.Fatal("bypass must pass channel 0 and silence channel 1")
	}
}

func TestPluginGeneratorAndFlexible(t *testing.T) {
	t.Parallel()

	gen := newInsert(t, scaleFactory(chans.Zero, stereo(), 1))
	if out, ok := gen.CanSupportIOConfiguration(chans.NewCount(4, 0)); !ok || out != stereo() {
		t.Fatalf("generator = %s, %v", out, ok)
	}

	flex := newInsert(t, func() (Plugin, error) {
		return &scalePlugin{in: mono(), out: mono(), gain: 1, flexible: true}, nil
	})
	out := configure(t, flex, chans.NewCount(5, 1))
	if out != chans.NewCount(5, 1) || flex.Instances() != 1 {
		t.Fatalf("flexible = %s with %d instances", out, flex.Instances())
	}
}

func TestPluginLatencyAndFlush(t *testing.T) {
	t.Parallel()

	var made []*scalePlugin
	pi := newInsert(t, func() (Plugin, error) {
		p := &scalePlugin{in: mono(), out: mono(), gain: 1, latency: 32}
		made = append(made, p)
		return p, nil
	})
	configure(t, pi, stereo())
	if pi.EffectiveLatency() != 32 {
		t.Fatalf("latency = %d", pi.EffectiveLatency())
	}
	pi.Flush()
	for i, p := range made {
		if p.resets != 1 {
			t.Fatalf("instance %d reset %d times", i, p.resets)
		}
	}
}

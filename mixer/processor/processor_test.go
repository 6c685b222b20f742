package processor

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/internal/testutil"
)

func TestKindRoundTrip(t *testing.T) {
	t.Parallel()

	for k := KindAmp; k <= KindPortInsert; k++ {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Fatalf("ParseKind(%q) = %v, %v", k, got, err)
		}
	}
	if _, err := ParseKind("bogus"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestReserveID(t *testing.T) {
	t.Parallel()

	ReserveID(1 << 40)
	if id := NextID(); id <= 1<<40 {
		t.Fatalf("NextID = %d after reserving 1<<40", id)
	}
}

func TestAmpRampsToNewGain(t *testing.T) {
	t.Parallel()

	a := NewAmp("gain", testConfig())
	a.ConfigureIO(mono(), mono())
	a.Activate()

	bufs := filled(mono(), func(int) float64 { return 1 })
	run(a, bufs)
	testutil.RequireSliceNearlyEqual(t, bufs.Audio(0).Samples()[:testBlock], testutil.DC(1, testBlock), 1e-12)

	a.SetGain(0.5)
	bufs = filled(mono(), func(int) float64 { return 1 })
	run(a, bufs)
	s := bufs.Audio(0).Samples()
	if s[0] <= 0.5 || s[0] >= 1 {
		t.Fatalf("first sample %v not inside the ramp", s[0])
	}
	if math.Abs(s[testBlock-1]-0.5) > 1e-12 {
		t.Fatalf("last sample %v, want 0.5", s[testBlock-1])
	}
}

func TestAmpFollowsAutomation(t *testing.T) {
	t.Parallel()

	a := NewAmp("gain", testConfig())
	a.ConfigureIO(mono(), mono())
	a.Activate()
	a.SetAutomation(GainCurveFunc(func(int64) float64 { return 0.25 }))

	bufs := filled(mono(), func(int) float64 { return 2 })
	run(a, bufs)
	testutil.RequireSliceNearlyEqual(t, bufs.Audio(0).Samples()[:testBlock], testutil.DC(0.5, testBlock), 1e-12)

	a.SetAutomation(nil)
	if a.Automated() {
		t.Fatal("automation still on")
	}
}

func TestTrimIsClamped(t *testing.T) {
	t.Parallel()

	tr := NewTrim("trim", testConfig())
	tr.SetGainDB(40)
	if got := tr.GainDB(); math.Abs(got-20) > 1e-9 {
		t.Fatalf("trim gain = %v dB, want 20", got)
	}
	if tr.Kind() != KindTrim || tr.DisplayToUser() {
		t.Fatal("trim must be a hidden KindTrim")
	}
}

func TestMuteMasterPoints(t *testing.T) {
	t.Parallel()

	m := NewMuteMaster()
	m.SetMutedByOthersSoloing(true)
	if !m.MutedAt(MuteMain) || m.MutedAt(MuteListen) {
		t.Fatal("solo mute must silence main but not listen")
	}

	m.SetMutedByOthersSoloing(false)
	m.SetMutePoints(MutePreFader)
	m.SetMuted(true)
	if !m.MutedAt(MutePreFader) || m.MutedAt(MutePostFader) {
		t.Fatalf("mute points %s not honored", m.MutePoints())
	}
	if (*MuteMaster)(nil).MutedAt(MuteMain) {
		t.Fatal("nil master must not mute")
	}
}

func TestPannerMonoToStereoIsConstantPower(t *testing.T) {
	t.Parallel()

	in := filled(mono(), func(int) float64 { return 1 })
	out := filled(stereo(), func(int) float64 { return 9 })
	NewPanner().Distribute(in, out, 1, testBlock)

	for c := 0; c < 2; c++ {
		if got := out.Audio(c).Samples()[7]; math.Abs(got-math.Sqrt2/2) > 1e-12 {
			t.Fatalf("channel %d = %v, want %v", c, got, math.Sqrt2/2)
		}
	}
}

func TestPannerBypassCopies(t *testing.T) {
	t.Parallel()

	p := NewPanner()
	p.SetBypassed(true)
	in := filled(mono(), func(int) float64 { return 1 })
	out := filled(stereo(), func(int) float64 { return 0 })
	p.Distribute(in, out, 1, testBlock)
	if out.Audio(0).Samples()[0] != 1 || out.Audio(1).Samples()[0] != 1 {
		t.Fatal("bypassed panner must copy the last input onto extra outputs")
	}
}

func TestMainOutsMute(t *testing.T) {
	t.Parallel()

	mute := NewMuteMaster()
	d := NewMainOuts("main", mute, testConfig())
	d.SetPorts(stereo())
	out, ok := d.CanSupportIOConfiguration(mono())
	if !ok || out != stereo() {
		t.Fatalf("main outs on mono = %v, %v", out, ok)
	}
	d.ConfigureIO(mono(), out)
	d.Activate()

	bufs := filled(mono(), func(int) float64 { return 1 })
	run(d, bufs)
	if got := d.Output().Audio(1).Samples()[3]; math.Abs(got-math.Sqrt2/2) > 1e-12 {
		t.Fatalf("right output = %v", got)
	}

	mute.SetMuted(true)
	run(d, bufs)
	if got := d.Output().Audio(0).Samples()[testBlock-1]; got != 0 {
		t.Fatalf("muted output did not ramp to 0: %v", got)
	}
	run(d, bufs)
	if idx := testutil.NonZero(d.Output().Audio(0).Samples()[:testBlock], 0); len(idx) != 0 {
		t.Fatalf("muted output not silent at %v", idx)
	}
	if bufs.Audio(0).Samples()[0] != 1 {
		t.Fatal("delivery must not modify route buffers")
	}
}

func TestMeterHoldsPeak(t *testing.T) {
	t.Parallel()

	m := NewMeter("meter", testConfig())
	m.ConfigureIO(stereo(), stereo())
	m.Activate()

	bufs := filled(stereo(), func(int) float64 { return 0 })
	bufs.Audio(1).Samples()[5] = -0.5
	run(m, bufs)
	bufs.Audio(1).Samples()[5] = 0.1
	run(m, bufs)

	if m.Peak(1) != 0.5 || m.Peak(0) != 0 {
		t.Fatalf("peaks = %v, %v", m.Peak(0), m.Peak(1))
	}
	m.Reset()
	if m.Peak(1) != 0 {
		t.Fatal("Reset kept the peak")
	}
}

func TestPolarityInvertsSelectedChannels(t *testing.T) {
	t.Parallel()

	p := NewPolarity("polarity", testConfig())
	p.ConfigureIO(stereo(), stereo())
	p.Activate()
	p.SetInverted(1, true)

	bufs := filled(stereo(), func(int) float64 { return 1 })
	run(p, bufs)
	if bufs.Audio(0).Samples()[0] != 1 || bufs.Audio(1).Samples()[0] != -1 {
		t.Fatal("wrong channel inverted")
	}
}

func TestPortInsertDelaysByMeasuredLatency(t *testing.T) {
	t.Parallel()

	p := NewPortInsert("insert", 10, testConfig())
	p.ConfigureIO(mono(), mono())
	p.Activate()
	if p.EffectiveLatency() != 10 {
		t.Fatalf("latency = %d", p.EffectiveLatency())
	}

	bufs := filled(mono(), func(int) float64 { return 0 })
	bufs.Audio(0).Samples()[0] = 1
	run(p, bufs)
	if idx := testutil.NonZero(bufs.Audio(0).Samples()[:testBlock], 1e-12); len(idx) != 1 || idx[0] != 10 {
		t.Fatalf("impulse at %v, want [10]", idx)
	}
}

func TestMonitorControlCutAndDim(t *testing.T) {
	t.Parallel()

	m := NewMonitorControl("monitor", testConfig())
	m.ConfigureIO(stereo(), stereo())
	m.Activate()
	m.SetCut(0, true)

	bufs := filled(stereo(), func(int) float64 { return 1 })
	run(m, bufs)
	if bufs.Audio(0).Samples()[0] != 0 || bufs.Audio(1).Samples()[0] != 1 {
		t.Fatal("cut not applied to channel 0 only")
	}
	if !m.Cut(0) || m.Cut(1) {
		t.Fatal("Cut reports wrong state")
	}
}

func TestDiskReaderPassesInputUnlessMonitoringDisk(t *testing.T) {
	t.Parallel()

	r := NewDiskReader("reader", testConfig())
	r.ConfigureIO(mono(), mono())
	r.Activate()

	bufs := filled(mono(), func(int) float64 { return 1 })
	run(r, bufs)
	if bufs.Audio(0).Samples()[0] != 1 {
		t.Fatal("input monitoring must pass the signal")
	}
	r.SetMonitorDisk(true)
	run(r, bufs)
	if bufs.Audio(0).Samples()[0] != 0 {
		t.Fatal("disk monitoring without a source must be silent")
	}
}

func TestDelayLineConfigure(t *testing.T) {
	t.Parallel()

	d := NewDelayLine("delay", testConfig())
	if !d.ConfigureIO(chans.NewCount(2, 1), chans.NewCount(2, 1)) {
		t.Fatal("configure failed")
	}
	d.Activate()
	d.SetDelay(3, false)

	bufs := filled(chans.NewCount(2, 1), func(int) float64 { return 0 })
	bufs.Audio(1).Samples()[0] = 1
	run(d, bufs)
	if idx, _ := testutil.Peak(bufs.Audio(1).Samples()[:testBlock]); idx != 3 {
		t.Fatalf("impulse at %d, want 3", idx)
	}
	if d.EffectiveLatency() != 0 {
		t.Fatal("compensation delay must not count as latency")
	}
}

package route

import (
	"errors"
	"slices"
	"testing"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/mixer/processor"
)

func TestAuxSendBindsToBus(t *testing.T) {
	t.Parallel()

	track := newRoute(t, 1, "Vox", KindTrack, mono())
	bus := newRoute(t, 2, "Reverb", KindBus, stereo())

	if err := track.AddAuxSend(bus, nil); err != nil {
		t.Fatal(err)
	}
	s := track.InternalSendFor(bus.ID())
	if s == nil || !s.Bound() || s.Role() != processor.RoleAux || s.Name() != "Aux Reverb" {
		t.Fatalf("send = %+v", s)
	}
	if !s.PostFader() {
		t.Fatal("appended send must sit after the fader")
	}
	if got := bus.InternalReturn().Sends(); len(got) != 1 || got[0] != s {
		t.Fatalf("return sends = %v", got)
	}
	if !slices.Equal(track.SendTargets(), []processor.RouteID{bus.ID()}) {
		t.Fatalf("targets = %v", track.SendTargets())
	}

	if err := track.AddAuxSend(bus, nil); err != nil {
		t.Fatal(err)
	}
	if n := len(track.InternalSends()); n != 1 {
		t.Fatalf("second aux send added, have %d", n)
	}

	if err := track.RemoveAuxOrListen(bus); err != nil {
		t.Fatal(err)
	}
	if track.InternalSendFor(bus.ID()) != nil || s.Bound() || len(bus.InternalReturn().Sends()) != 0 {
		t.Fatal("removed send still attached")
	}
}

func TestSendTargetValidation(t *testing.T) {
	t.Parallel()

	track := newRoute(t, 1, "A", KindTrack, mono())
	other := newRoute(t, 2, "B", KindTrack, mono())
	mon := newRoute(t, 3, "Monitor", KindMonitor, stereo())

	for name, target := range map[string]*Route{"self": track, "track": other, "monitor": mon, "nil": nil} {
		if err := track.AddAuxSend(target, nil); !errors.Is(err, ErrNoTarget) {
			t.Errorf("%s: %v", name, err)
		}
	}
	if err := track.EnableMonitorSend(other); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("listen to a track: %v", err)
	}
}

func TestFoldbackSendIsPreFader(t *testing.T) {
	t.Parallel()

	track := newRoute(t, 1, "A", KindTrack, mono())
	fb := newRoute(t, 2, "Wedge", KindBus, mono())
	if err := track.AddFoldbackSend(fb, false); err != nil {
		t.Fatal(err)
	}
	s := track.InternalSendFor(fb.ID())
	if s == nil || s.PostFader() || s.Role() != processor.RoleFoldback {
		t.Fatalf("foldback send = %+v", s)
	}
	if got := names(track.VisibleProcessors()); !slices.Equal(got, []string{"Foldback Wedge", "Fader"}) {
		t.Fatalf("visible = %v", got)
	}
}

func TestListenSendFollowsListen(t *testing.T) {
	t.Parallel()

	track := newRoute(t, 1, "A", KindTrack, mono(), WithListen(ListenConfig{Position: AfterFaderListen}))
	mon := newRoute(t, 9, "Monitor", KindMonitor, stereo())
	if err := track.EnableMonitorSend(mon); err != nil {
		t.Fatal(err)
	}

	ms := track.MonitorSend()
	chain := track.Processors()
	if ms == nil || chain[len(chain)-1] != processor.Processor(ms) {
		t.Fatalf("listen send not after the main outs: %v", names(chain))
	}
	if ms.DisplayToUser() || ms.Active() || track.Listening() {
		t.Fatal("listen send must start hidden and off")
	}
	if len(track.SendTargets()) != 0 {
		t.Fatal("listen sends do not feed routes")
	}

	if !track.SetListen(true) || !track.Listening() || track.SetListen(true) {
		t.Fatal("listen did not switch on exactly once")
	}

	if err := track.SetListenConfig(ListenConfig{Position: PreFaderListen}); err != nil {
		t.Fatal(err)
	}
	chain = track.Processors()
	if i, amp := slices.Index(chain, processor.Processor(ms)), slices.Index(chain, processor.Processor(track.Amp())); i != amp-1 {
		t.Fatalf("pre-fader listen at %d, fader at %d", i, amp)
	}
	if ms.Panner().CanPan() {
		t.Fatal("pre-fader listen must not pan")
	}

	if err := track.RemoveAuxOrListen(mon); err != nil {
		t.Fatal(err)
	}
	if track.MonitorSend() != nil || ms.Bound() {
		t.Fatal("listen send survived removal")
	}
}

func TestSolo(t *testing.T) {
	t.Parallel()

	h := newHost()
	r := newRoute(t, 1, "A", KindTrack, mono(), WithHost(h))

	if !r.SetSolo(true) || r.SetSolo(true) {
		t.Fatal("solo must switch once")
	}
	if !r.Soloed() || !r.SelfSoloed() || h.solo[1] != 1 {
		t.Fatalf("soloed %v, host delta %d", r.Soloed(), h.solo[1])
	}
	r.SetSolo(false)
	if r.Soloed() || h.solo[1] != 0 {
		t.Fatal("solo not released")
	}

	r.ModSoloByOthersUpstream(-1)
	if r.SoloedByOthersUpstream() != 0 {
		t.Fatal("count went negative")
	}
	r.ModSoloByOthersDownstream(2)
	if !r.Soloed() || r.SelfSoloed() {
		t.Fatal("downstream solo not counted")
	}
	r.ModSoloByOthersDownstream(-2)

	r.SetSoloSafe(true)
	if r.SetSolo(true) || r.Soloed() {
		t.Fatal("solo-safe route changed")
	}
	r.SetSoloSafe(false)

	if !r.SetSoloIsolated(true) || !r.SoloIsolated() || h.isolate[1] != 1 {
		t.Fatal("isolate not set")
	}
	r.ModSoloIsolatedByUpstream(1)
	r.SetSoloIsolated(false)
	if !r.SoloIsolated() {
		t.Fatal("isolation by upstream lost")
	}
	r.ResetSoloCounts()
	if r.SoloIsolated() {
		t.Fatal("counts not reset")
	}
}

func TestMuteByOthersSoloing(t *testing.T) {
	t.Parallel()

	r := newRoute(t, 1, "A", KindBus, mono())
	r.SetMutedByOthersSoloing(true)
	r.Process(constant(stereo(), 1), 0, testBlock, true)
	r.Process(constant(stereo(), 1), 0, testBlock, true)
	if v := r.Output().Audio(0).Samples()[testBlock-1]; v != 0 {
		t.Fatalf("implicitly muted route outputs %v", v)
	}
	if !r.MutedByOthersSoloing() || r.Muted() {
		t.Fatal("mute flags wrong")
	}
}

func TestSurroundSendsStackObjects(t *testing.T) {
	t.Parallel()

	bus := newRoute(t, 10, "Objects", KindBus, chans.NewCount(4, 0))
	a := newRoute(t, 1, "A", KindTrack, mono())
	b := newRoute(t, 2, "B", KindTrack, stereo())
	c := newRoute(t, 3, "C", KindTrack, mono())

	sa, err := a.AddSurroundSend(bus)
	if err != nil {
		t.Fatal(err)
	}
	sb, err := b.AddSurroundSend(bus)
	if err != nil {
		t.Fatal(err)
	}
	if sa.FirstObject() != 0 || sb.FirstObject() != 1 || sb.ObjectCount() != 2 || !sb.Bound() {
		t.Fatalf("objects at %d and %d (%d)", sa.FirstObject(), sb.FirstObject(), sb.ObjectCount())
	}
	if sb.Role() != processor.RoleSurround || !sb.PostFader() {
		t.Fatal("surround send must be a post-fader object send")
	}

	if _, err := a.AddSurroundSend(bus); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second send to the same bus: %v", err)
	}
	if _, err := b.AddSurroundSend(newRoute(t, 11, "Small", KindBus, mono())); !errors.Is(err, ErrInfeasibleConfiguration) {
		t.Fatalf("too many objects: %v", err)
	}
	sc, err := c.AddSurroundSend(bus)
	if err != nil {
		t.Fatal(err)
	}
	if sc.FirstObject() != 3 {
		t.Fatalf("third send starts at %d", sc.FirstObject())
	}
	if _, err := newRoute(t, 4, "D", KindTrack, mono()).AddSurroundSend(bus); !errors.Is(err, ErrInfeasibleConfiguration) {
		t.Fatalf("full bus: %v", err)
	}
}

package session

import (
	"testing"
)

func TestSoloThroughAuxSend(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	must := mustRoute(t)
	a := must(s.NewTrack("A", mono()))
	b := must(s.NewBus("B", stereo()))
	other := must(s.NewTrack("Other", mono()))
	if err := a.AddAuxSend(b, nil); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		b.SetSolo(true)
		if n := a.SoloedByOthersDownstream(); n != 1 {
			t.Fatalf("round %d: downstream count = %d, want 1", i, n)
		}
		if a.SoloedByOthersUpstream() != 0 || b.SoloedByOthersUpstream() != 0 {
			t.Fatalf("round %d: upstream counts set", i)
		}
		if !other.MutedByOthersSoloing() || a.MutedByOthersSoloing() || b.MutedByOthersSoloing() {
			t.Fatalf("round %d: implicit mutes wrong", i)
		}

		b.SetSolo(false)
		if n := a.SoloedByOthersDownstream(); n != 0 {
			t.Fatalf("round %d: downstream count after un-solo = %d", i, n)
		}
		if other.MutedByOthersSoloing() || s.Soloing() {
			t.Fatalf("round %d: still soloing", i)
		}
	}
}

func TestSoloSendsOnlyPathIsNotUpstream(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	must := mustRoute(t)
	a := must(s.NewTrack("A", mono()))
	b := must(s.NewBus("B", stereo()))
	if err := a.AddAuxSend(b, nil); err != nil {
		t.Fatal(err)
	}

	a.SetSolo(true)
	if b.SoloedByOthersUpstream() != 0 {
		t.Fatal("aux send counted as an upstream solo")
	}
	if b.MutedByOthersSoloing() {
		t.Fatal("bus in the signal flow of a soloed track is muted")
	}
	a.SetSolo(false)
}

func TestSoloFollowsTopology(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	must := mustRoute(t)
	a := must(s.NewTrack("A", mono()))
	b := must(s.NewBus("B", mono()))
	c := must(s.NewBus("C", mono()))
	if err := s.Connect(a.ID(), b.ID()); err != nil {
		t.Fatal(err)
	}

	a.SetSolo(true)
	if b.SoloedByOthersUpstream() != 1 {
		t.Fatal("connected bus not soloed by upstream")
	}

	if err := s.Connect(b.ID(), c.ID()); err != nil {
		t.Fatal(err)
	}
	if c.SoloedByOthersUpstream() != 1 || c.MutedByOthersSoloing() {
		t.Fatal("solo did not follow the new connection")
	}

	if err := s.Disconnect(a.ID(), b.ID()); err != nil {
		t.Fatal(err)
	}
	if b.SoloedByOthersUpstream() != 0 || c.SoloedByOthersUpstream() != 0 {
		t.Fatal("solo counts kept after disconnect")
	}
	if !b.MutedByOthersSoloing() {
		t.Fatal("route out of the solo flow not muted")
	}

	if err := s.Connect(a.ID(), b.ID()); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveRoute(a.ID()); err != nil {
		t.Fatal(err)
	}
	for _, r := range s.Routes() {
		if r.SoloedByOthersUpstream() != 0 || r.SoloedByOthersDownstream() != 0 || r.MutedByOthersSoloing() {
			t.Fatalf("%s keeps solo state of a removed route", r.Name())
		}
	}
}

func TestIsolateGoesDownstream(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	must := mustRoute(t)
	a := must(s.NewTrack("A", mono()))
	b := must(s.NewBus("B", mono()))
	fx := must(s.NewBus("FX", mono()))
	solo := must(s.NewTrack("Solo", mono()))
	if err := s.Connect(a.ID(), b.ID()); err != nil {
		t.Fatal(err)
	}
	if err := a.AddAuxSend(fx, nil); err != nil {
		t.Fatal(err)
	}

	a.SetSoloIsolated(true)
	if b.SoloIsolatedByUpstream() != 1 || fx.SoloIsolatedByUpstream() != 0 {
		t.Fatalf("isolated by upstream: b %d, fx %d", b.SoloIsolatedByUpstream(), fx.SoloIsolatedByUpstream())
	}

	solo.SetSolo(true)
	if a.MutedByOthersSoloing() || b.MutedByOthersSoloing() {
		t.Fatal("isolated routes muted")
	}
	if !fx.MutedByOthersSoloing() {
		t.Fatal("route fed only through a send is isolated")
	}
	solo.SetSolo(false)

	a.SetSoloIsolated(false)
	if b.SoloIsolatedByUpstream() != 0 {
		t.Fatal("isolate not released")
	}
}

func TestSoloIsListen(t *testing.T) {
	t.Parallel()

	s := newSession(t, WithSoloIsListen(true))
	must := mustRoute(t)
	a := must(s.NewTrack("A", mono()))
	must(s.AddMonitorSection(stereo()))
	late := must(s.NewTrack("Late", mono()))

	if a.MonitorSend() == nil || late.MonitorSend() == nil {
		t.Fatal("tracks have no listen send")
	}
	a.SetSolo(true)
	if !a.Listening() || late.MutedByOthersSoloing() {
		t.Fatal("solo did not turn into listen")
	}
	a.SetSolo(false)
	if a.Listening() {
		t.Fatal("listen stayed on")
	}
}

func TestMonitorHearsListenInSameCycle(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	must := mustRoute(t)
	mon := must(s.AddMonitorSection(mono()))
	a := must(s.NewTrack("A", mono()))
	if mon.ID() >= a.ID() {
		t.Fatalf("monitor id %d, track id %d", mon.ID(), a.ID())
	}
	if err := s.SetInputSource(a.ID(), constant(0.5)); err != nil {
		t.Fatal(err)
	}
	a.SetListen(true)

	if !s.Process(testBlock) {
		t.Fatal("cycle did not run")
	}
	out, err := s.Output(mon.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Audio(0).Samples()[10]; got == 0 {
		t.Fatal("monitor section ran before the listening route")
	}
}

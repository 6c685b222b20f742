package state

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/dsp/plugins"
	"github.com/cwbudde/algo-mixer/mixer/processor"
	"github.com/cwbudde/algo-mixer/mixer/route"
	"github.com/cwbudde/algo-mixer/mixer/session"
	"github.com/prometheus/client_golang/prometheus"
)

func mono() chans.Count   { return chans.NewCount(1, 0) }
func stereo() chans.Count { return chans.NewCount(2, 0) }

func newSession() *session.Session {
	return session.New(
		session.WithBlockSize(64),
		session.WithDelayRamp(16),
		session.WithMetrics(prometheus.NewRegistry()),
	)
}

func must[T any](t *testing.T) func(T, error) T {
	t.Helper()
	return func(v T, err error) T {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
}

// buildMix creates a track with a plugin, an outboard insert and an aux send
// to an effect bus, all feeding a master.
func buildMix(t *testing.T, s *session.Session) {
	t.Helper()
	r := must[*route.Route](t)
	a := r(s.NewTrack("A", mono()))
	fx := r(s.NewBus("FX", stereo()))
	m := r(s.AddMaster(stereo()))
	for _, id := range []processor.RouteID{a.ID(), fx.ID()} {
		if err := s.Connect(id, m.ID()); err != nil {
			t.Fatal(err)
		}
	}

	cfg := s.Config().Processor
	pi, err := processor.NewPluginInsert("Probe", func() (processor.Plugin, error) {
		return plugins.NewLatencyProbe(16)
	}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.AddProcessorAt(pi, route.PreFader); err != nil {
		t.Fatal(err)
	}
	if err := a.AddProcessor(processor.NewPortInsert("Outboard", 32, cfg), nil); err != nil {
		t.Fatal(err)
	}
	if err := a.AddAuxSend(fx, nil); err != nil {
		t.Fatal(err)
	}
	a.InternalSendFor(fx.ID()).Amp().SetGain(0.5)
	a.Amp().SetGain(0.25)
	a.Polarity().SetInverted(0, true)
	a.SetMuted(true)
	if err := a.SetMeterPoint(processor.MeterCustom); err != nil {
		t.Fatal(err)
	}
	fx.SetSoloSafe(true)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	src := newSession()
	buildMix(t, src)
	doc, err := Encode(src)
	if err != nil {
		t.Fatal(err)
	}
	data, err := Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	dst := newSession()
	rep, err := Load(dst, parsed, DefaultRegistry(nil))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Routes != 3 || rep.UnresolvedSends != 0 {
		t.Fatalf("report = %+v", rep)
	}

	a := dst.RouteByName("A")
	fx := dst.RouteByName("FX")
	if a == nil || fx == nil {
		t.Fatal("routes missing after load")
	}
	if snd := a.InternalSendFor(fx.ID()); snd == nil || !snd.Bound() || snd.Amp().Gain() != 0.5 {
		t.Fatal("aux send not restored")
	}
	if pi := a.NthPlugin(0); pi == nil || pi.EffectiveLatency() != 16 {
		t.Fatal("plugin not restored with its parameters")
	}
	if !a.Polarity().Inverted(0) || !a.Muted() || !fx.SoloSafe() {
		t.Fatal("route settings lost")
	}
	if a.MeterPoint() != processor.MeterCustom {
		t.Fatalf("meter point = %s", a.MeterPoint())
	}

	again, err := Encode(dst)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Marshal(again)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("saved state changed\nfirst:\n%s\nsecond:\n%s", data, out)
	}
}

func TestSurroundSendRoundTrip(t *testing.T) {
	t.Parallel()

	src := newSession()
	r := must[*route.Route](t)
	a := r(src.NewTrack("A", stereo()))
	objects := r(src.NewBus("Objects", chans.NewCount(6, 0)))
	if _, err := r(src.NewTrack("B", mono())).AddSurroundSend(objects); err != nil {
		t.Fatal(err)
	}
	snd, err := a.AddSurroundSend(objects)
	if err != nil {
		t.Fatal(err)
	}
	snd.SetObjectPosition(1, processor.ObjectPosition{X: -0.5, Y: 0.25, Z: 1})

	doc, err := Encode(src)
	if err != nil {
		t.Fatal(err)
	}
	dst := newSession()
	rep, err := Load(dst, doc, DefaultRegistry(nil))
	if err != nil {
		t.Fatal(err)
	}
	if rep.UnresolvedSends != 0 {
		t.Fatalf("report = %+v", rep)
	}
	got := dst.RouteByName("A").InternalSendFor(dst.RouteByName("Objects").ID())
	if got == nil || !got.Surround() || !got.Bound() || got.FirstObject() != 1 {
		t.Fatal("surround send not restored")
	}
	pos := got.ObjectPositions()
	if len(pos) != 2 || pos[1] != (processor.ObjectPosition{X: -0.5, Y: 0.25, Z: 1}) {
		t.Fatalf("positions = %v", pos)
	}
}

func TestLoadBindsSendsToLaterRoutes(t *testing.T) {
	t.Parallel()

	fader := Processor{Type: "amp", Name: "Fader", Active: true}
	doc := &Document{
		Version: DocumentVersion,
		Routes: []Route{
			{
				ID: 1, Name: "A", Kind: "track", Active: true, MeterPoint: "postfader", DiskIOPoint: "prefader",
				Input: Count{Audio: 1},
				Processors: []Processor{
					fader,
					{Type: "intsend", Name: "To FX", Active: true, Target: 2, Role: "aux"},
					{Type: "intsend", Name: "To Nowhere", Active: true, Target: 99, Role: "aux"},
				},
			},
			{
				ID: 2, Name: "FX", Kind: "bus", Active: true, MeterPoint: "postfader",
				Input:      Count{Audio: 2},
				Processors: []Processor{fader},
			},
		},
	}

	s := newSession()
	rep, err := Load(s, doc, DefaultRegistry(nil))
	if err != nil {
		t.Fatal(err)
	}
	if rep.UnresolvedSends != 1 {
		t.Fatalf("unresolved = %d, want 1", rep.UnresolvedSends)
	}
	a := s.Route(1)
	if snd := a.InternalSendFor(2); snd == nil || !snd.Bound() {
		t.Fatal("send to a later route not bound")
	}
	if snd := a.InternalSendFor(99); snd == nil || snd.Bound() {
		t.Fatal("send to a missing route should stay unbound")
	}
	if ok, sendsOnly := s.Feeds(1, 2); !ok || !sendsOnly {
		t.Fatal("bound send not part of the signal flow")
	}
}

func TestLoadRejectsUnknownTypes(t *testing.T) {
	t.Parallel()

	s := newSession()
	doc := &Document{Version: DocumentVersion, Routes: []Route{{
		ID: 1, Name: "A", Kind: "track", Active: true, MeterPoint: "postfader",
		Input:      Count{Audio: 1},
		Processors: []Processor{{Type: "amp", Name: "Fader"}, {Type: "vst", Name: "Reverb"}},
	}}}
	if _, err := Load(s, doc, DefaultRegistry(nil)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("unknown processor: %v", err)
	}
	if len(s.Routes()) != 0 {
		t.Fatal("failed route left in the session")
	}

	doc.Routes[0].Kind = "folder"
	doc.Routes[0].Processors = nil
	if _, err := Load(s, doc, DefaultRegistry(nil)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("unknown kind: %v", err)
	}

	if _, err := Unmarshal([]byte(`<Session version="2"></Session>`)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("newer version: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry(nil)
	if _, ok := reg.Lookup("plugin"); !ok {
		t.Fatal("plugin factory missing")
	}
	if err := reg.Register("plugin", restorePlugin); err == nil {
		t.Fatal("duplicate type registered")
	}
	if len(reg.Types()) != 12 {
		t.Fatalf("types = %v", reg.Types())
	}
}

func TestMappingCodec(t *testing.T) {
	t.Parallel()

	m := chans.FromTriples([]chans.Triple{
		{Type: chans.Audio, From: 0, To: 1},
		{Type: chans.Audio, From: 1, To: 0},
		{Type: chans.MIDI, From: 0, To: 0},
	})
	x := EncodeMapping(3, m)
	if x.Instance != 3 || len(x.Pins) != 3 {
		t.Fatalf("encoded = %+v", x)
	}
	back, err := DecodeMapping(x)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(m) {
		t.Fatalf("decoded %s, want %s", back, m)
	}

	x.Pins = append(x.Pins, Pin{Type: "video"})
	if _, err := DecodeMapping(x); err == nil {
		t.Fatal("unknown data type accepted")
	}
}

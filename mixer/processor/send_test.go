package processor

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/internal/testutil"
)

func TestSendDelayFollowsSlowerPath(t *testing.T) {
	t.Parallel()

	s := NewInternalSend("aux", 1, 2, RoleAux, NewMuteMaster(), testConfig())
	s.SetDelayIn(100, false)
	s.SetDelayOut(30, false)
	if s.SendDelay() != 70 || s.ThruDelay() != 0 || s.EffectiveLatency() != 0 {
		t.Fatalf("send %d thru %d", s.SendDelay(), s.ThruDelay())
	}

	s.SetDelayOut(150, false)
	if s.SendDelay() != 0 || s.ThruDelay() != 50 || s.EffectiveLatency() != 50 {
		t.Fatalf("send %d thru %d", s.SendDelay(), s.ThruDelay())
	}

	listen := NewInternalSend("pfl", 1, 3, RoleListen, NewMuteMaster(), testConfig())
	listen.SetDelayIn(100, false)
	listen.SetDelayOut(300, false)
	if listen.SendDelay() != 0 || listen.ThruDelay() != 0 {
		t.Fatal("listen sends must not be aligned")
	}
}

func TestDefaultSendLevels(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		role Role
		gain float64
	}{
		{RoleAux, 0}, {RoleFoldback, 0}, {RoleListen, 1}, {RoleSend, 1},
	} {
		s := NewInternalSend("s", 1, 2, tc.role, nil, testConfig())
		if s.Amp().Gain() != tc.gain {
			t.Fatalf("%s send starts at %v", tc.role, s.Amp().Gain())
		}
	}
}

func newReturn(t *testing.T, in chans.Count) *InternalReturn {
	t.Helper()
	r := NewInternalReturn("return", testConfig())
	r.ConfigureIO(in, in)
	r.Activate()
	return r
}

func TestInternalSendFeedsReturn(t *testing.T) {
	t.Parallel()

	ret := newReturn(t, stereo())
	s := NewInternalSend("aux", 1, 2, RoleAux, NewMuteMaster(), testConfig())
	s.Amp().SetGain(1)
	configure(t, s, mono())
	if !s.Bind(returns{2: ret}) || len(ret.Sends()) != 1 {
		t.Fatal("bind failed")
	}

	src := filled(mono(), func(int) float64 { return 1 })
	run(s, src)

	bus := filled(stereo(), func(int) float64 { return 0 })
	run(ret, bus)
	for c := 0; c < 2; c++ {
		if got := bus.Audio(c).Samples()[10]; math.Abs(got-math.Sqrt2/2) > 1e-12 {
			t.Fatalf("bus channel %d = %v", c, got)
		}
	}

	bus = filled(stereo(), func(int) float64 { return 0 })
	run(ret, bus)
	if idx := testutil.NonZero(bus.Audio(0).Samples()[:testBlock], 0); len(idx) != 0 {
		t.Fatal("a send that did not run must not contribute again")
	}
}

func TestUnboundSendIsInert(t *testing.T) {
	t.Parallel()

	s := NewInternalSend("aux", 1, 9, RoleSend, nil, testConfig())
	configure(t, s, mono())
	if s.Bind(returns{}) || s.Bound() {
		t.Fatal("bound to a missing route")
	}
	src := filled(mono(), func(int) float64 { return 1 })
	run(s, src)
	if src.Audio(0).Samples()[0] != 1 {
		t.Fatal("inert send modified the route signal")
	}
}

func TestRetargetMovesSend(t *testing.T) {
	t.Parallel()

	a, b := newReturn(t, stereo()), newReturn(t, mono())
	rs := returns{2: a, 3: b}
	s := NewInternalSend("aux", 1, 2, RoleSend, nil, testConfig())
	configure(t, s, mono())
	s.Bind(rs)

	if !s.Retarget(3, rs) || s.Target() != 3 {
		t.Fatal("retarget failed")
	}
	if len(a.Sends()) != 0 || len(b.Sends()) != 1 {
		t.Fatal("send still registered with the old return")
	}
	if s.MixBuffers().Count() != mono() {
		t.Fatalf("mix buffers not resized: %s", s.MixBuffers().Count())
	}
	s.Unbind()
	if len(b.Sends()) != 0 {
		t.Fatal("Unbind left the send registered")
	}
}

func TestReturnSkipsCycleWhileSendsChange(t *testing.T) {
	t.Parallel()

	ret := newReturn(t, mono())
	s := NewInternalSend("aux", 1, 2, RoleSend, nil, testConfig())
	configure(t, s, mono())
	s.Bind(returns{2: ret})
	run(s, filled(mono(), func(int) float64 { return 1 }))

	ret.mu.Lock()
	bus := filled(mono(), func(int) float64 { return 0 })
	run(ret, bus)
	ret.mu.Unlock()

	if ret.Skipped() != 1 || bus.Audio(0).Samples()[0] != 0 {
		t.Fatal("return must skip the cycle instead of blocking")
	}
}

func TestMutedSendFollowsMutePoint(t *testing.T) {
	t.Parallel()

	mute := NewMuteMaster()
	mute.SetMutePoints(MutePostFader)
	mute.SetMuted(true)

	ret := newReturn(t, mono())
	s := NewInternalSend("aux", 1, 2, RoleSend, mute, testConfig())
	configure(t, s, mono())
	s.Bind(returns{2: ret})

	run(s, filled(mono(), func(int) float64 { return 1 }))
	if s.MixBuffers().Audio(0).Samples()[5] == 0 {
		t.Fatal("pre-fader send muted by a post-fader mute")
	}

	s.SetPostFader(true)
	run(s, filled(mono(), func(int) float64 { return 1 }))
	run(s, filled(mono(), func(int) float64 { return 1 }))
	if s.MixBuffers().Audio(0).Samples()[5] != 0 {
		t.Fatal("post-fader send not muted")
	}
}

func TestExternalSend(t *testing.T) {
	t.Parallel()

	pool := &portPool{fail: true}
	if _, err := NewSend("send", pool, stereo(), nil, testConfig()); err == nil {
		t.Fatal("expected allocation error")
	}
	if _, err := NewSend("send", nil, stereo(), nil, testConfig()); !errors.Is(err, ErrNoAllocator) {
		t.Fatalf("expected ErrNoAllocator, got %v", err)
	}

	pool.fail = false
	s, err := NewSend("send", pool, stereo(), nil, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	configure(t, s, stereo())
	src := filled(stereo(), func(c int) float64 { return float64(c + 1) })
	run(s, src)
	if s.Ports().Audio(1).Samples()[0] != 2 {
		t.Fatalf("port 1 = %v", s.Ports().Audio(1).Samples()[0])
	}
	s.Release()
	if len(pool.released) != 1 {
		t.Fatal("ports not released")
	}
}

func TestSurroundSendPlacesObjects(t *testing.T) {
	t.Parallel()

	quad := chans.NewCount(4, 0)
	ret := newReturn(t, quad)
	s := NewSurroundSend("objects", 1, 2, 2, NewMuteMaster(), testConfig())
	configure(t, s, mono())
	if !s.Bind(returns{2: ret}) {
		t.Fatal("bind failed")
	}
	if !s.Surround() || s.FirstObject() != 2 || s.ObjectCount() != 1 || s.Amp().Gain() != 1 {
		t.Fatalf("first %d count %d gain %v", s.FirstObject(), s.ObjectCount(), s.Amp().Gain())
	}

	run(s, filled(mono(), func(int) float64 { return 0.5 }))
	bus := filled(quad, func(int) float64 { return 0 })
	run(ret, bus)
	for c := range 4 {
		want := 0.0
		if c == 2 {
			want = 0.5
		}
		if got := bus.Audio(c).Samples()[10]; got != want {
			t.Fatalf("object bus channel %d = %v, want %v", c, got, want)
		}
	}

	s.SetObjectPosition(0, ObjectPosition{X: 3, Y: -0.5, Z: math.NaN()})
	if got := s.ObjectPositions(); len(got) != 1 || got[0] != (ObjectPosition{X: 1, Y: -0.5}) {
		t.Fatalf("positions = %v", got)
	}

	plain := NewInternalSend("aux", 1, 2, RoleAux, nil, testConfig())
	plain.SetObjectPosition(0, ObjectPosition{X: 1})
	if plain.Surround() || plain.FirstObject() != -1 || plain.ObjectPositions() != nil {
		t.Fatal("plain send reports objects")
	}
}

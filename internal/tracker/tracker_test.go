package tracker

import (
	"errors"
	"testing"

	"github.com/cbegin/keysynth-go/internal/keys"
	"github.com/cbegin/keysynth-go/internal/pitch"
	"github.com/cbegin/keysynth-go/internal/voice"
)

type countingVoicer struct {
	failStart error
	starts    []keys.KeyID
	stops     []keys.KeyID
	slots     map[keys.KeyID]int
}

func (v *countingVoicer) StartVoice(slot int, k keys.KeyID, now float64) error {
	if v.failStart != nil {
		return v.failStart
	}
	v.starts = append(v.starts, k)
	if v.slots == nil {
		v.slots = make(map[keys.KeyID]int)
	}
	v.slots[k] = slot
	return nil
}

func (v *countingVoicer) StopVoice(slot int, k keys.KeyID, now float64) error {
	v.stops = append(v.stops, k)
	return nil
}

func newTracker(size int) (*Tracker, *voice.Pool, *pitch.Map, *countingVoicer) {
	pool := voice.NewPool(size)
	pm := pitch.New()
	v := &countingVoicer{}
	return New(pool, pm, v), pool, pm, v
}

func TestRepeatedKeyDownStartsOneVoice(t *testing.T) {
	tr, pool, _, v := newTracker(4)
	for i := 0; i < 5; i++ {
		if err := tr.KeyDown("KeyA", float64(i)*0.03); err != nil {
			t.Fatalf("key down %d: %v", i, err)
		}
	}
	if len(v.starts) != 1 {
		t.Fatalf("starts = %v, want exactly one", v.starts)
	}
	if pool.BusyCount() != 1 {
		t.Fatalf("busy = %d, want 1", pool.BusyCount())
	}
	slot, ok := pool.Lookup("KeyA")
	if !ok || slot != v.slots["KeyA"] {
		t.Fatalf("binding = %d,%v, voicer saw %d", slot, ok, v.slots["KeyA"])
	}
}

func TestKeyUpStopsAndUnbinds(t *testing.T) {
	tr, pool, _, v := newTracker(2)
	_ = tr.KeyDown("KeyS", 0)
	slot, released, err := tr.KeyUp("KeyS", 1)
	if err != nil || !released {
		t.Fatalf("KeyUp = %d,%v,%v", slot, released, err)
	}
	if len(v.stops) != 1 || v.stops[0] != "KeyS" {
		t.Fatalf("stops = %v", v.stops)
	}
	if _, ok := pool.Lookup("KeyS"); ok {
		t.Fatal("binding survived key up")
	}
	if !pool.Slot(slot).Busy {
		t.Fatal("slot reclamation is the caller's decision; slot should still be busy")
	}
	if tr.IsPressed("KeyS") {
		t.Fatal("key still marked pressed")
	}
	// A second key up is a no-op.
	if _, released, _ := tr.KeyUp("KeyS", 2); released {
		t.Fatal("second key up released again")
	}
}

func TestExhaustedPoolDropsKeyDown(t *testing.T) {
	tr, _, _, v := newTracker(2)
	_ = tr.KeyDown("KeyA", 0)
	_ = tr.KeyDown("KeyW", 0)
	err := tr.KeyDown("KeyS", 0)
	if !errors.Is(err, voice.ErrPoolExhausted) {
		t.Fatalf("third key down err = %v, want ErrPoolExhausted", err)
	}
	if len(v.starts) != 2 {
		t.Fatalf("starts = %v", v.starts)
	}
	// Releasing the dropped key must not touch any voice and must clear the press so
	// the key can retry later.
	if _, released, err := tr.KeyUp("KeyS", 1); released || err != nil {
		t.Fatalf("KeyUp of dropped key = %v,%v", released, err)
	}
	if tr.IsPressed("KeyS") {
		t.Fatal("dropped key still marked pressed")
	}
}

func TestTransposeIsMomentary(t *testing.T) {
	tr, _, pm, v := newTracker(2)
	_ = tr.KeyDown(keys.TransposeUp, 0)
	_ = tr.KeyDown(keys.TransposeUp, 0.1) // auto-repeat
	if pm.Octave() != 1 {
		t.Fatalf("octave = %d, want 1", pm.Octave())
	}
	_, released, _ := tr.KeyUp(keys.TransposeUp, 0.2)
	if released || tr.IsPressed(keys.TransposeUp) {
		t.Fatal("transpose key up should only clear the press")
	}
	_ = tr.KeyDown(keys.TransposeDown, 0.3)
	if pm.Octave() != 0 {
		t.Fatalf("octave = %d, want 0", pm.Octave())
	}
	_ = tr.KeyDown(keys.TransposeUp, 0.4)
	if pm.Octave() != 1 {
		t.Fatalf("octave = %d, want 1", pm.Octave())
	}
	if len(v.starts) != 0 {
		t.Fatalf("transpose should not start voices, got %v", v.starts)
	}
}

func TestUnknownKeyIsRejected(t *testing.T) {
	tr, pool, _, _ := newTracker(2)
	if err := tr.KeyDown("KeyZ", 0); !errors.Is(err, keys.ErrUnknownKey) {
		t.Fatalf("err = %v, want ErrUnknownKey", err)
	}
	if _, _, err := tr.KeyUp("Space", 0); !errors.Is(err, keys.ErrUnknownKey) {
		t.Fatalf("err = %v, want ErrUnknownKey", err)
	}
	if pool.BusyCount() != 0 {
		t.Fatal("unknown key acquired a voice")
	}
}

func TestPressedOrder(t *testing.T) {
	tr, _, _, _ := newTracker(4)
	_ = tr.KeyDown("KeyK", 0)
	_ = tr.KeyDown(keys.TransposeDown, 0)
	_ = tr.KeyDown("KeyA", 0)
	got := tr.Pressed()
	want := []keys.KeyID{"KeyA", "KeyK", keys.TransposeDown}
	if len(got) != len(want) {
		t.Fatalf("Pressed() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Pressed() = %v, want %v", got, want)
		}
	}
}

func TestFailedStartFreesSlotAndPress(t *testing.T) {
	tr, pool, _, v := newTracker(2)
	boom := errors.New("no graph")
	v.failStart = boom
	if err := tr.KeyDown("KeyA", 0); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if pool.BusyCount() != 0 || tr.IsPressed("KeyA") {
		t.Fatalf("busy = %d pressed = %v after failed start", pool.BusyCount(), tr.IsPressed("KeyA"))
	}
	if _, ok := pool.Lookup("KeyA"); ok {
		t.Fatal("binding survived failed start")
	}
	v.failStart = nil
	if err := tr.KeyDown("KeyA", 1); err != nil || len(v.starts) != 1 {
		t.Fatalf("retry = %v, starts = %v", err, v.starts)
	}
}

func TestFailedBindFreesSlotAndPress(t *testing.T) {
	tr, pool, _, v := newTracker(2)
	// Leave a stale binding for KeyA on another slot.
	stale, _ := pool.Acquire()
	if err := pool.Bind(stale, "KeyA"); err != nil {
		t.Fatal(err)
	}
	if err := tr.KeyDown("KeyA", 0); !errors.Is(err, voice.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if pool.BusyCount() != 1 {
		t.Fatalf("busy = %d, want only the stale slot", pool.BusyCount())
	}
	if tr.IsPressed("KeyA") || len(v.starts) != 0 {
		t.Fatalf("pressed = %v starts = %v after failed bind", tr.IsPressed("KeyA"), v.starts)
	}
}

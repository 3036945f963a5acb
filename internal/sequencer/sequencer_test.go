package sequencer

import (
	"errors"
	"testing"

	"github.com/cbegin/keysynth-go/internal/graph"
	"github.com/cbegin/keysynth-go/internal/keys"
	"github.com/cbegin/keysynth-go/internal/perf"
	"github.com/cbegin/keysynth-go/internal/synth"
)

type call struct {
	frame int64
	what  string
}

// countingTarget records the frame each call lands on and keeps one voice per held
// key, releasing it a fixed number of frames after key up.
type countingTarget struct {
	frame    int64
	calls    []call
	held     map[keys.KeyID]bool
	releases []int64
	tail     int64
	failKey  keys.KeyID
}

func newCountingTarget(tail int64) *countingTarget {
	return &countingTarget{held: make(map[keys.KeyID]bool), tail: tail}
}

func (c *countingTarget) KeyDown(k keys.KeyID) error {
	c.calls = append(c.calls, call{c.frame, "down " + string(k)})
	if k == c.failKey {
		return errors.New("no voice")
	}
	c.held[k] = true
	return nil
}

func (c *countingTarget) KeyUp(k keys.KeyID) error {
	c.calls = append(c.calls, call{c.frame, "up " + string(k)})
	if c.held[k] {
		delete(c.held, k)
		c.releases = append(c.releases, c.frame+c.tail)
	}
	return nil
}

func (c *countingTarget) SetParam(p synth.Param, v float64) error {
	c.calls = append(c.calls, call{c.frame, "set " + p.String()})
	return nil
}

func (c *countingTarget) SetWaveform(o synth.Osc, w graph.Waveform) {
	c.calls = append(c.calls, call{c.frame, "wave " + o.String() + " " + w.String()})
}

func (c *countingTarget) Process(dst []float32) {
	for i := range dst {
		dst[i] = 0.5
	}
	c.frame += int64(len(dst) / 2)
}

func (c *countingTarget) ActiveVoiceCount() int {
	n := len(c.held)
	for _, end := range c.releases {
		if c.frame < end {
			n++
		}
	}
	return n
}

func mustParse(t *testing.T, text string) *perf.Script {
	t.Helper()
	s, err := perf.Parse(text)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return s
}

func TestSequencerDispatchesOnExactFrames(t *testing.T) {
	script := mustParse(t, `
0      down KeyA
0.0125 set mix 0.2
0.0125 wave a square
0.02   up KeyA
`)
	target := newCountingTarget(0)
	seq := New(script, target, 8000)
	// Blocks of 64 frames do not line up with the event frames 100 and 160.
	buf := make([]float32, 64*2)
	for i := 0; i < 4; i++ {
		seq.Process(buf)
	}
	want := []call{
		{0, "down KeyA"},
		{100, "set mix"},
		{100, "wave a square"},
		{160, "up KeyA"},
	}
	if len(target.calls) != len(want) {
		t.Fatalf("calls = %+v", target.calls)
	}
	for i := range want {
		if target.calls[i] != want[i] {
			t.Fatalf("call %d = %+v, want %+v", i, target.calls[i], want[i])
		}
	}
	if seq.Frame() != 256 {
		t.Fatalf("frame = %d, want 256", seq.Frame())
	}
	for _, s := range buf {
		if s != 0.5 {
			t.Fatal("block not fully rendered by the target")
		}
	}
}

func TestSequencerEndsAfterReleaseTail(t *testing.T) {
	script := mustParse(t, "0 note a 0.01")
	target := newCountingTarget(400)
	var ended int
	seq := NewWithOptions(script, target, 8000, Options{
		OnEvent: func(k EventKind) {
			if k == EventPlaybackEnded {
				ended++
			}
		},
		ReleaseTailFrames: 100,
	})
	buf := make([]float32, 50*2)
	for i := 0; i < 40 && !seq.Finished(); i++ {
		seq.Process(buf)
	}
	if !seq.Finished() || ended != 1 {
		t.Fatalf("finished = %v, ended events = %d", seq.Finished(), ended)
	}
	// Key up at frame 80, voice silent at 480 (seen at 500), then 100 tail frames.
	if f := seq.Frame(); f < 530 || f > 630 {
		t.Fatalf("ended at frame %d, want about 580", f)
	}
	seq.Process(buf)
	if ended != 1 {
		t.Fatalf("playback ended fired %d times", ended)
	}
}

func TestSequencerReportsDroppedEvents(t *testing.T) {
	script := mustParse(t, "0 down KeyA\n0 down KeyS\n0.001 up KeyS")
	target := newCountingTarget(0)
	target.failKey = "KeyS"
	var failed []int
	seq := NewWithOptions(script, target, 8000, Options{
		OnError: func(ev perf.Event, err error) { failed = append(failed, ev.Line) },
	})
	seq.Process(make([]float32, 32*2))
	if len(failed) != 1 || failed[0] != 2 {
		t.Fatalf("failed lines = %v, want [2]", failed)
	}
	if len(target.calls) != 3 {
		t.Fatalf("performance should continue past a drop, calls = %+v", target.calls)
	}
}

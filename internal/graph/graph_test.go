package graph

import (
	"errors"
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestParamLinearRampChain(t *testing.T) {
	p := newParam(0)
	p.SetValueAtTime(0, 1)
	p.LinearRampToValueAtTime(1, 2)
	p.LinearRampToValueAtTime(0.5, 3)
	for _, tc := range []struct {
		t, want float64
	}{
		{0, 0},
		{1, 0},
		{1.5, 0.5},
		{2, 1},
		{2.5, 0.75},
		{3, 0.5},
		{10, 0.5},
	} {
		if got := p.ValueAt(tc.t); !approx(got, tc.want) {
			t.Errorf("ValueAt(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}
}

func TestParamValueCurve(t *testing.T) {
	p := newParam(0)
	p.SetValueAtTime(0.5, 2)
	p.SetValueCurveAtTime([]float64{0.5, 0}, 2, 0.5)
	for _, tc := range []struct {
		t, want float64
	}{
		{1.9, 0},
		{2, 0.5},
		{2.25, 0.25},
		{2.5, 0},
		{4, 0},
	} {
		if got := p.ValueAt(tc.t); !approx(got, tc.want) {
			t.Errorf("ValueAt(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}
}

func TestParamRampAfterCurveStartsAtCurveEnd(t *testing.T) {
	p := newParam(0)
	p.SetValueCurveAtTime([]float64{0, 1}, 0, 1)
	p.LinearRampToValueAtTime(0, 3)
	if got := p.ValueAt(2); !approx(got, 0.5) {
		t.Fatalf("ValueAt(2) = %v, want 0.5", got)
	}
}

func TestParamCancelScheduledValues(t *testing.T) {
	p := newParam(0)
	p.SetValueAtTime(0, 0)
	p.LinearRampToValueAtTime(1, 1)
	p.LinearRampToValueAtTime(0, 2)
	p.CancelScheduledValues(1.5)
	if got := p.ValueAt(5); !approx(got, 1) {
		t.Fatalf("after cancel ValueAt(5) = %v, want 1", got)
	}
	p.CancelScheduledValues(0)
	p.SetValueAtTime(0.25, 0)
	if got := p.ValueAt(5); !approx(got, 0.25) {
		t.Fatalf("after full cancel ValueAt(5) = %v, want 0.25", got)
	}
}

func TestParamCancelHoldsRunningCurve(t *testing.T) {
	p := newParam(0)
	p.SetValueAtTime(0.5, 1)
	p.SetValueCurveAtTime([]float64{0.5, 0}, 1, 1)
	p.CancelScheduledValues(1.5)
	if got := p.ValueAt(3); !approx(got, 0.25) {
		t.Fatalf("after cancel ValueAt(3) = %v, want held 0.25", got)
	}
	p.SetValueAtTime(0, 1.5)
	p.LinearRampToValueAtTime(1, 2)
	for _, tc := range []struct{ at, want float64 }{
		{1.5, 0},
		{1.75, 0.5},
		{2, 1},
	} {
		if got := p.ValueAt(tc.at); !approx(got, tc.want) {
			t.Errorf("ValueAt(%v) = %v, want %v", tc.at, got, tc.want)
		}
	}
}

func TestParamPruneKeepsFutureValues(t *testing.T) {
	p := newParam(0)
	p.SetValueAtTime(0, 0)
	p.LinearRampToValueAtTime(1, 1)
	p.LinearRampToValueAtTime(0.5, 2)
	p.LinearRampToValueAtTime(0, 4)
	want := []float64{p.ValueAt(1.5), p.ValueAt(2), p.ValueAt(3), p.ValueAt(5)}
	p.prune(1.2)
	if len(p.events) != 3 {
		t.Fatalf("events after prune = %d, want 3", len(p.events))
	}
	got := []float64{p.ValueAt(1.5), p.ValueAt(2), p.ValueAt(3), p.ValueAt(5)}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Fatalf("value %d changed by prune: %v -> %v", i, want[i], got[i])
		}
	}
	p.prune(10)
	if len(p.events) != 0 || p.Value() != 0 {
		t.Fatalf("full prune left %d events, value %v", len(p.events), p.Value())
	}
}

func TestContextRendersConnectedOscillator(t *testing.T) {
	c := NewContext(48000)
	osc, _ := c.CreateOscillatorPair()
	g := c.CreateGain()
	g.Gain().SetValue(0.5)
	if err := c.Connect(osc, g); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(g, c.Destination()); err != nil {
		t.Fatal(err)
	}
	osc.Frequency().SetValue(440)
	osc.Start()
	buf := make([]float32, 4800*2)
	c.Process(buf)
	var maxAbs float64
	for _, s := range buf {
		maxAbs = math.Max(maxAbs, math.Abs(float64(s)))
	}
	if maxAbs < 0.45 || maxAbs > 0.5001 {
		t.Fatalf("peak = %f, want ~0.5", maxAbs)
	}
	if got := c.Now(); !approx(got, 0.1) {
		t.Fatalf("Now() = %v, want 0.1", got)
	}
}

func TestContextStoppedOscillatorIsSilent(t *testing.T) {
	c := NewContext(48000)
	osc := c.CreateOscillator()
	if err := c.Connect(osc, c.Destination()); err != nil {
		t.Fatal(err)
	}
	buf := make([]float32, 256)
	c.Process(buf)
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %f, want silence", i, s)
		}
	}
}

func TestBandpassAttenuatesFarFrequencies(t *testing.T) {
	peak := func(freq float64) float64 {
		c := NewContext(48000)
		osc := c.CreateOscillator()
		f := c.CreateBandpassFilter()
		f.Frequency().SetValue(1000)
		f.Q().SetValue(5)
		osc.Frequency().SetValue(freq)
		osc.Start()
		if err := c.Connect(osc, f); err != nil {
			t.Fatal(err)
		}
		if err := c.Connect(f, c.Destination()); err != nil {
			t.Fatal(err)
		}
		buf := make([]float32, 48000*2/4)
		c.Process(buf)
		var m float64
		for _, s := range buf[len(buf)/2:] {
			m = math.Max(m, math.Abs(float64(s)))
		}
		return m
	}
	center, far := peak(1000), peak(100)
	if center < 0.8 {
		t.Errorf("center frequency peak = %f, want ~1", center)
	}
	if far > center/4 {
		t.Errorf("far frequency peak = %f not attenuated (center %f)", far, center)
	}
}

func TestConnectRejectsInvalidWiring(t *testing.T) {
	c := NewContext(48000)
	other := NewContext(48000)
	osc := c.CreateOscillator()
	g := c.CreateGain()
	if err := c.Connect(osc, other.Destination()); !errors.Is(err, ErrForeignNode) {
		t.Errorf("foreign node: err = %v", err)
	}
	if err := c.Connect(g, osc); err == nil {
		t.Error("connecting into an oscillator should fail")
	}
	if err := c.Connect(c.Destination(), g); err == nil {
		t.Error("destination as source should fail")
	}
}

func TestParseWaveform(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Waveform
	}{
		{"sine", Sine},
		{"SQUARE", Square},
		{"saw", Sawtooth},
		{" triangle ", Triangle},
	} {
		got, err := ParseWaveform(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseWaveform(%q) = %v,%v, want %v", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParseWaveform("noise"); err == nil {
		t.Error("expected error for unknown waveform")
	}
	if Triangle.Next() != Sine {
		t.Error("Next should wrap around")
	}
}

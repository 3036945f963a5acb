package pitch

import (
	"errors"
	"math"
	"testing"

	"github.com/cbegin/keysynth-go/internal/keys"
)

func TestDefaultTableIsEqualTempered(t *testing.T) {
	m := New()
	for i, k := range keys.Playable {
		got, err := m.FrequencyOf(k)
		if err != nil {
			t.Fatalf("FrequencyOf(%s): %v", k, err)
		}
		want := 261.63 * math.Pow(2, float64(i)/12)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("key %d (%s) = %f Hz, want %f", i, k, got, want)
		}
	}
	table := m.Table()
	for i := 1; i < len(table); i++ {
		if table[i] <= table[i-1] {
			t.Fatalf("table not strictly increasing at %d", i)
		}
		if ratio := table[i] / table[i-1]; math.Abs(ratio-math.Pow(2, 1.0/12)) > 1e-12 {
			t.Fatalf("semitone ratio at %d = %f", i, ratio)
		}
	}
}

func TestUnknownKey(t *testing.T) {
	m := New()
	if _, err := m.FrequencyOf("KeyZ"); !errors.Is(err, keys.ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	if _, err := m.FrequencyOf(keys.TransposeUp); !errors.Is(err, keys.ErrUnknownKey) {
		t.Fatalf("transpose control should not have a pitch, got %v", err)
	}
}

func TestOctaveRoundTrip(t *testing.T) {
	m := New()
	before := m.Table()
	if !m.TransposeOctave(Up) {
		t.Fatal("octave up refused at octave 0")
	}
	up := m.Table()
	for i := range up {
		if up[i] != before[i]*2 {
			t.Fatalf("octave up key %d = %f, want %f", i, up[i], before[i]*2)
		}
	}
	m.TransposeOctave(Down)
	after := m.Table()
	for i := range after {
		if math.Abs(after[i]-before[i]) > 1e-9 {
			t.Fatalf("round trip key %d = %f, want %f", i, after[i], before[i])
		}
	}
}

func TestOctaveClamp(t *testing.T) {
	m := New()
	for i := 0; i < MaxOctave; i++ {
		if !m.TransposeOctave(Up) {
			t.Fatalf("transpose %d refused", i)
		}
	}
	if m.TransposeOctave(Up) {
		t.Fatal("transpose beyond MaxOctave should be refused")
	}
	if m.Octave() != MaxOctave {
		t.Fatalf("octave = %d, want %d", m.Octave(), MaxOctave)
	}
	for m.TransposeOctave(Down) {
	}
	if m.Octave() != MinOctave {
		t.Fatalf("octave = %d, want %d", m.Octave(), MinOctave)
	}
	f, _ := m.FrequencyOf("KeyA")
	if want := BaseFrequency / 16; math.Abs(f-want) > 1e-9 {
		t.Fatalf("lowest A = %f, want %f", f, want)
	}
}

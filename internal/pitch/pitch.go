package pitch

import (
	"fmt"
	"math"

	"github.com/cbegin/keysynth-go/internal/keys"
)

// BaseFrequency is the pitch of the lowest playable key at octave 0 (middle C).
const BaseFrequency = 261.63

// Octave shift limits, matching the -4..+4 range of the master octave control.
const (
	MinOctave = -4
	MaxOctave = 4
)

type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Map resolves playable keys to equal-tempered frequencies. Transposition is kept as an
// octave offset over the untouched base table, so Up followed by Down is exact.
type Map struct {
	base   [len(keys.Playable)]float64
	octave int
}

func New() *Map {
	m := &Map{}
	for i := range m.base {
		m.base[i] = BaseFrequency * math.Pow(2, float64(i)/12)
	}
	return m
}

func (m *Map) FrequencyOf(k keys.KeyID) (float64, error) {
	i, ok := keys.Index(k)
	if !ok {
		return 0, fmt.Errorf("frequency of %q: %w", k, keys.ErrUnknownKey)
	}
	return math.Ldexp(m.base[i], m.octave), nil
}

// TransposeOctave shifts the whole table one octave. It reports false and leaves the
// table unchanged when the shift would leave [MinOctave, MaxOctave].
func (m *Map) TransposeOctave(d Direction) bool {
	next := m.octave
	if d == Up {
		next++
	} else {
		next--
	}
	if next < MinOctave || next > MaxOctave {
		return false
	}
	m.octave = next
	return true
}

func (m *Map) Octave() int { return m.octave }

// Table returns the current frequency of every playable key in pitch order.
func (m *Map) Table() []float64 {
	out := make([]float64, len(m.base))
	for i, f := range m.base {
		out[i] = math.Ldexp(f, m.octave)
	}
	return out
}

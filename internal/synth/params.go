package synth

import (
	"fmt"
	"strings"

	"github.com/cbegin/keysynth-go/internal/envelope"
	"github.com/cbegin/keysynth-go/internal/graph"
)

// ReclaimPolicy decides when a released voice returns to the free pool.
type ReclaimPolicy int

const (
	// ReclaimAfterRelease keeps the slot busy until its release ramp reaches zero.
	ReclaimAfterRelease ReclaimPolicy = iota
	// ReclaimOnKeyUp frees the slot at key-up while its release is still audible; a
	// new note may then take the slot over mid-release.
	ReclaimOnKeyUp
)

func (r ReclaimPolicy) String() string {
	if r == ReclaimOnKeyUp {
		return "keyup"
	}
	return "release"
}

func ParseReclaimPolicy(name string) (ReclaimPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "release", "":
		return ReclaimAfterRelease, nil
	case "keyup":
		return ReclaimOnKeyUp, nil
	default:
		return ReclaimAfterRelease, fmt.Errorf("invalid reclaim policy %q (expected release|keyup)", name)
	}
}

type Params struct {
	Polyphony  int
	Envelope   envelope.Params
	WaveformA  graph.Waveform
	WaveformB  graph.Waveform
	DetuneA    float64 // cents
	DetuneB    float64 // cents
	Mix        float64 // oscillator A level; B gets 1-Mix
	FilterFreq float64 // Hz
	FilterQ    float64
	Reclaim    ReclaimPolicy
}

func DefaultParams() Params {
	return Params{
		Polyphony:  10,
		Envelope:   envelope.DefaultParams(),
		WaveformA:  graph.Sine,
		WaveformB:  graph.Sine,
		Mix:        0.5,
		FilterFreq: 350,
		FilterQ:    1,
		Reclaim:    ReclaimAfterRelease,
	}
}

// Param names a numeric control exposed to hosts.
type Param int

const (
	ParamAttack Param = iota
	ParamDecay
	ParamSustain
	ParamRelease
	ParamFilterQ
	ParamFilterFreq
	ParamMix
	ParamDetuneA
	ParamDetuneB
	numParams
)

var paramNames = [numParams]string{
	"attack", "decay", "sustain", "release",
	"filter-q", "filter-freq", "mix", "detune-a", "detune-b",
}

func (p Param) String() string {
	if p < 0 || p >= numParams {
		return fmt.Sprintf("param(%d)", int(p))
	}
	return paramNames[p]
}

// AllParams lists the numeric controls in display order.
func AllParams() []Param {
	out := make([]Param, numParams)
	for i := range out {
		out[i] = Param(i)
	}
	return out
}

func ParseParam(name string) (Param, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range paramNames {
		if n == name {
			return Param(i), nil
		}
	}
	return 0, fmt.Errorf("unknown parameter %q", name)
}

// Range returns the accepted interval and a sensible UI step for a control.
func (p Param) Range() (lo, hi, step float64) {
	switch p {
	case ParamAttack, ParamDecay, ParamRelease:
		return 0, 5, 0.05
	case ParamSustain, ParamMix:
		return 0, 1, 0.05
	case ParamFilterQ:
		return 0.0001, 30, 0.5
	case ParamFilterFreq:
		return 20, 20000, 50
	default:
		return -1200, 1200, 5
	}
}

// Osc selects one oscillator of every voice's pair.
type Osc int

const (
	OscA Osc = iota
	OscB
)

func (o Osc) String() string {
	if o == OscB {
		return "b"
	}
	return "a"
}

func ParseOsc(name string) (Osc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "a", "1":
		return OscA, nil
	case "b", "2":
		return OscB, nil
	}
	return OscA, fmt.Errorf("invalid oscillator %q (expected a|b)", name)
}

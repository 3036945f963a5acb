package graph

import (
	"fmt"
	"strings"
)

// Waveform selects an oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

var waveformNames = [...]string{"sine", "square", "sawtooth", "triangle"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return fmt.Sprintf("waveform(%d)", int(w))
	}
	return waveformNames[w]
}

func ParseWaveform(name string) (Waveform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range waveformNames {
		if n == name || (len(name) >= 3 && strings.HasPrefix(n, name)) {
			return Waveform(i), nil
		}
	}
	return Sine, fmt.Errorf("invalid waveform %q (expected sine|square|sawtooth|triangle)", name)
}

// Next cycles through the waveforms in declaration order.
func (w Waveform) Next() Waveform {
	return Waveform((int(w) + 1) % len(waveformNames))
}

// Node is anything that can be wired with Connect.
type Node interface {
	node() *base
}

// Param is an automatable value. Times are transport seconds.
type Param interface {
	Value() float64
	SetValue(v float64)
	SetValueAtTime(v, t float64)
	LinearRampToValueAtTime(v, t float64)
	SetValueCurveAtTime(values []float64, start, duration float64)
	CancelScheduledValues(t float64)
	ValueAt(t float64) float64
}

type Oscillator interface {
	Node
	SetType(w Waveform)
	Type() Waveform
	Frequency() Param
	Detune() Param // cents
	Start()
	Stop()
}

type Gain interface {
	Node
	Gain() Param
}

type Filter interface {
	Node
	Frequency() Param
	Q() Param
}

// Graph is the command set the voice engine drives.
type Graph interface {
	CreateOscillatorPair() (Oscillator, Oscillator)
	CreateGain() Gain
	CreateBandpassFilter() Filter
	Connect(src, dst Node) error
	Destination() Node
	Now() float64
}

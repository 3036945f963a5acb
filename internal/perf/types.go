package perf

import (
	"github.com/cbegin/keysynth-go/internal/graph"
	"github.com/cbegin/keysynth-go/internal/keys"
	"github.com/cbegin/keysynth-go/internal/synth"
)

type EventType int

const (
	EventKeyDown EventType = iota + 1
	EventKeyUp
	EventSet
	EventWave
)

func (t EventType) String() string {
	switch t {
	case EventKeyDown:
		return "down"
	case EventKeyUp:
		return "up"
	case EventSet:
		return "set"
	case EventWave:
		return "wave"
	}
	return "unknown"
}

// Event is one timed action of a performance. Time is seconds from the start.
type Event struct {
	Type     EventType
	Time     float64
	Line     int
	Key      keys.KeyID
	Param    synth.Param
	Value    float64
	Osc      synth.Osc
	Waveform graph.Waveform
}

// Script is a parsed performance with events sorted by time. Events sharing a time
// keep their source order.
type Script struct {
	Events []Event
	End    float64
}

// Duration is the later of the last event and any explicit end marker.
func (s *Script) Duration() float64 {
	d := s.End
	if n := len(s.Events); n > 0 && s.Events[n-1].Time > d {
		d = s.Events[n-1].Time
	}
	return d
}

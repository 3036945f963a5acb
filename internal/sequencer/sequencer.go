package sequencer

import (
	"math"

	"github.com/cbegin/keysynth-go/internal/graph"
	"github.com/cbegin/keysynth-go/internal/keys"
	"github.com/cbegin/keysynth-go/internal/perf"
	"github.com/cbegin/keysynth-go/internal/synth"
)

// Target is the synth a performance is played into. Process renders interleaved
// stereo and advances the target's clock by len(dst)/2 frames.
type Target interface {
	KeyDown(k keys.KeyID) error
	KeyUp(k keys.KeyID) error
	SetParam(p synth.Param, v float64) error
	SetWaveform(o synth.Osc, w graph.Waveform)
	Process(dst []float32)
	// ActiveVoiceCount returns the number of voices still sounding, release included.
	// Used to detect when the performance has fully died away.
	ActiveVoiceCount() int
}

// EventKind identifies sequencer lifecycle events.
type EventKind int

const (
	EventPlaybackEnded EventKind = iota + 1
)

type Options struct {
	OnEvent func(EventKind)
	// OnError receives failed dispatches. A dropped key-down (no free voice) arrives
	// here too; the performance keeps going.
	OnError           func(ev perf.Event, err error)
	ReleaseTailFrames int // extra frames to render after the last voice ends (0 = use 0.1s default)
}

// Sequencer plays a performance script into a Target, dispatching every event on the
// exact frame it is scheduled for.
type Sequencer struct {
	script     *perf.Script
	target     Target
	sampleRate int
	frame      int64
	next       int
	endFrame   int64
	tailFrames int64
	silentAt   int64
	ended      bool
	onEvent    func(EventKind)
	onError    func(perf.Event, error)
}

func New(script *perf.Script, target Target, sampleRate int) *Sequencer {
	return NewWithOptions(script, target, sampleRate, Options{})
}

func NewWithOptions(script *perf.Script, target Target, sampleRate int, opts Options) *Sequencer {
	if script == nil {
		script = &perf.Script{}
	}
	tail := opts.ReleaseTailFrames
	if tail <= 0 {
		tail = sampleRate / 10
	}
	return &Sequencer{
		script:     script,
		target:     target,
		sampleRate: sampleRate,
		endFrame:   frameAt(script.Duration(), sampleRate),
		tailFrames: int64(tail),
		silentAt:   -1,
		onEvent:    opts.OnEvent,
		onError:    opts.OnError,
	}
}

func frameAt(seconds float64, sampleRate int) int64 {
	return int64(math.Round(seconds * float64(sampleRate)))
}

// Process renders len(dst)/2 frames, splitting the block at event boundaries.
func (s *Sequencer) Process(dst []float32) {
	frames := int64(len(dst) / 2)
	var pos int64
	for pos < frames {
		s.dispatchDue()
		chunk := frames - pos
		if s.next < len(s.script.Events) {
			if until := frameAt(s.script.Events[s.next].Time, s.sampleRate) - s.frame; until < chunk {
				chunk = until
			}
		}
		s.target.Process(dst[pos*2 : (pos+chunk)*2])
		s.frame += chunk
		pos += chunk
		s.checkEnded()
	}
}

func (s *Sequencer) dispatchDue() {
	for s.next < len(s.script.Events) {
		ev := s.script.Events[s.next]
		if frameAt(ev.Time, s.sampleRate) > s.frame {
			return
		}
		s.next++
		if err := s.apply(ev); err != nil && s.onError != nil {
			s.onError(ev, err)
		}
	}
}

func (s *Sequencer) apply(ev perf.Event) error {
	switch ev.Type {
	case perf.EventKeyDown:
		return s.target.KeyDown(ev.Key)
	case perf.EventKeyUp:
		return s.target.KeyUp(ev.Key)
	case perf.EventSet:
		return s.target.SetParam(ev.Param, ev.Value)
	case perf.EventWave:
		s.target.SetWaveform(ev.Osc, ev.Waveform)
	}
	return nil
}

func (s *Sequencer) checkEnded() {
	if s.ended || s.next < len(s.script.Events) || s.frame < s.endFrame {
		return
	}
	if s.target.ActiveVoiceCount() > 0 {
		s.silentAt = -1
		return
	}
	if s.silentAt < 0 {
		s.silentAt = s.frame
	}
	if s.frame-s.silentAt < s.tailFrames {
		return
	}
	s.ended = true
	if s.onEvent != nil {
		s.onEvent(EventPlaybackEnded)
	}
}

// Finished reports whether every event has fired and the last release tail has been
// rendered.
func (s *Sequencer) Finished() bool { return s.ended }

// Frame returns the number of frames rendered so far.
func (s *Sequencer) Frame() int64 { return s.frame }

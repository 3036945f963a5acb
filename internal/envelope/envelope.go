package envelope

import (
	"fmt"
	"math"
	"sort"

	"github.com/cbegin/keysynth-go/internal/voice"
)

// Params is the ADSR shape shared by every voice. Durations are seconds; Sustain is a
// gain level in [0,1].
type Params struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

func DefaultParams() Params {
	return Params{
		Attack:  0.1,
		Decay:   0.1,
		Sustain: 0.5,
		Release: 0.5,
	}
}

// Clamped returns p with durations forced non-negative and sustain into [0,1].
func (p Params) Clamped() Params {
	p.Attack = nonNegative(p.Attack)
	p.Decay = nonNegative(p.Decay)
	p.Release = nonNegative(p.Release)
	if math.IsNaN(p.Sustain) || p.Sustain < 0 {
		p.Sustain = 0
	}
	if p.Sustain > 1 {
		p.Sustain = 1
	}
	return p
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// Automation is the part of a gain parameter the scheduler drives.
type Automation interface {
	SetValueAtTime(v, t float64)
	LinearRampToValueAtTime(v, t float64)
	SetValueCurveAtTime(values []float64, start, duration float64)
	CancelScheduledValues(t float64)
}

// timeline is what the scheduler remembers about one slot's current note. The
// envelope phase itself lives in the voice pool.
type timeline struct {
	start        float64
	decayStart   float64
	sustainStart float64
	sustain      float64 // level snapshotted at note-on
	releaseEnd   float64
}

// Scheduler turns note-on/note-off into gain automation and tracks ADSR phases.
type Scheduler struct {
	pool      *voice.Pool
	params    Params
	timelines []timeline
}

func NewScheduler(pool *voice.Pool, params Params) *Scheduler {
	return &Scheduler{
		pool:      pool,
		params:    params.Clamped(),
		timelines: make([]timeline, pool.Size()),
	}
}

func (s *Scheduler) Params() Params { return s.params }

// SetParams replaces the live parameters. Ramps already scheduled keep their shape.
func (s *Scheduler) SetParams(p Params) { s.params = p.Clamped() }

// NoteOn schedules attack then decay starting at start.
func (s *Scheduler) NoteOn(slot int, gain Automation, start float64) error {
	p := s.params
	tl := timeline{
		start:        start,
		decayStart:   start + p.Attack,
		sustainStart: start + p.Attack + p.Decay,
		sustain:      p.Sustain,
		releaseEnd:   math.Inf(1),
	}
	if err := s.pool.SetPhase(slot, voice.PhaseAttack, start); err != nil {
		return fmt.Errorf("note on: %w", err)
	}
	gain.CancelScheduledValues(start)
	gain.SetValueAtTime(0, start)
	gain.LinearRampToValueAtTime(1, tl.decayStart)
	gain.LinearRampToValueAtTime(tl.sustain, tl.sustainStart)
	s.timelines[slot] = tl
	return nil
}

// NoteOff schedules the release. A release that arrives before the sustain point is
// deferred until decay has finished, so attack and decay always run to completion.
// It returns the time at which the release ramp reaches zero.
func (s *Scheduler) NoteOff(slot int, gain Automation, releaseTime float64) (float64, error) {
	if slot < 0 || slot >= len(s.timelines) {
		return 0, fmt.Errorf("note off slot %d: %w", slot, voice.ErrInvalidState)
	}
	tl := &s.timelines[slot]
	release := s.params.Release
	anchor := releaseTime
	if releaseTime <= tl.sustainStart {
		anchor = tl.sustainStart
		gain.SetValueAtTime(tl.sustain, anchor)
		gain.SetValueCurveAtTime([]float64{tl.sustain, 0}, anchor, release)
	} else {
		gain.SetValueAtTime(tl.sustain, anchor)
		gain.LinearRampToValueAtTime(0, anchor+release)
	}
	if err := s.pool.SetPhase(slot, voice.PhaseRelease, anchor); err != nil {
		return 0, fmt.Errorf("note off: %w", err)
	}
	tl.releaseEnd = anchor + release
	return tl.releaseEnd, nil
}

// SustainStart reports when the slot's current note reaches its sustain level.
func (s *Scheduler) SustainStart(slot int) float64 {
	if slot < 0 || slot >= len(s.timelines) {
		return math.NaN()
	}
	return s.timelines[slot].sustainStart
}

// ReleaseEnd reports when the slot's release ramp reaches zero, +Inf while held.
func (s *Scheduler) ReleaseEnd(slot int) float64 {
	if slot < 0 || slot >= len(s.timelines) {
		return math.NaN()
	}
	return s.timelines[slot].releaseEnd
}

// Advance moves busy slots through their phases as of now and returns the slots whose
// release finished, ordered by release end time.
func (s *Scheduler) Advance(now float64) []int {
	var done []int
	for slot := range s.timelines {
		st := s.pool.Slot(slot)
		if !st.Busy || st.Phase == voice.PhaseIdle {
			continue
		}
		tl := &s.timelines[slot]
		if st.Phase == voice.PhaseRelease {
			if now >= tl.releaseEnd {
				_ = s.pool.SetPhase(slot, voice.PhaseIdle, tl.releaseEnd)
				done = append(done, slot)
			}
			continue
		}
		next, at := voice.PhaseAttack, tl.start
		switch {
		case now >= tl.sustainStart:
			next, at = voice.PhaseSustain, tl.sustainStart
		case now >= tl.decayStart:
			next, at = voice.PhaseDecay, tl.decayStart
		}
		if next != st.Phase {
			_ = s.pool.SetPhase(slot, next, at)
		}
	}
	sort.SliceStable(done, func(i, j int) bool {
		return s.timelines[done[i]].releaseEnd < s.timelines[done[j]].releaseEnd
	})
	return done
}

// Reset forgets the slot's note, typically after it returns to the pool.
func (s *Scheduler) Reset(slot int) {
	if slot >= 0 && slot < len(s.timelines) {
		s.timelines[slot] = timeline{}
	}
}

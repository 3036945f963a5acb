package synth

import (
	"errors"
	"fmt"
	"math"

	"github.com/cbegin/keysynth-go/internal/envelope"
	"github.com/cbegin/keysynth-go/internal/graph"
	"github.com/cbegin/keysynth-go/internal/keys"
	"github.com/cbegin/keysynth-go/internal/pitch"
	"github.com/cbegin/keysynth-go/internal/tracker"
	"github.com/cbegin/keysynth-go/internal/voice"
)

// Voice holds the graph nodes of one polyphonic voice. Each oscillator feeds its own
// level gain; both gains meet in the bandpass filter, which feeds the envelope gain.
type Voice struct {
	OscA, OscB   graph.Oscillator
	GainA, GainB graph.Gain
	Filter       graph.Filter
	Envelope     graph.Gain
}

// VoiceState is a read-only view of one slot for displays.
type VoiceState struct {
	Slot      int
	Busy      bool
	Key       keys.KeyID
	Phase     voice.Phase
	Frequency float64
}

// Engine wires the pool, pitch map, envelope scheduler and key tracker to a signal
// graph. It is single-threaded; hosts with an audio thread must serialize calls.
type Engine struct {
	graph   graph.Graph
	params  Params
	pool    *voice.Pool
	pitch   *pitch.Map
	sched   *envelope.Scheduler
	tracker *tracker.Tracker
	voices  []Voice
}

func New(g graph.Graph, params Params) (*Engine, error) {
	if params.Polyphony <= 0 {
		params.Polyphony = DefaultParams().Polyphony
	}
	params.Envelope = params.Envelope.Clamped()
	e := &Engine{
		graph:  g,
		params: params,
		pool:   voice.NewPool(params.Polyphony),
		pitch:  pitch.New(),
		voices: make([]Voice, params.Polyphony),
	}
	e.sched = envelope.NewScheduler(e.pool, params.Envelope)
	e.tracker = tracker.New(e.pool, e.pitch, e)
	for i := range e.voices {
		v, err := buildVoice(g)
		if err != nil {
			return nil, fmt.Errorf("voice %d: %w", i, err)
		}
		e.voices[i] = v
	}
	for _, p := range []Param{ParamFilterQ, ParamFilterFreq, ParamMix, ParamDetuneA, ParamDetuneB} {
		e.fanOut(p, e.Value(p))
	}
	e.fanOutWaveform(OscA, params.WaveformA)
	e.fanOutWaveform(OscB, params.WaveformB)
	return e, nil
}

func buildVoice(g graph.Graph) (Voice, error) {
	var v Voice
	v.OscA, v.OscB = g.CreateOscillatorPair()
	v.GainA = g.CreateGain()
	v.GainB = g.CreateGain()
	v.Filter = g.CreateBandpassFilter()
	v.Envelope = g.CreateGain()
	for _, c := range [][2]graph.Node{
		{v.OscA, v.GainA},
		{v.OscB, v.GainB},
		{v.GainA, v.Filter},
		{v.GainB, v.Filter},
		{v.Filter, v.Envelope},
		{v.Envelope, g.Destination()},
	} {
		if err := g.Connect(c[0], c[1]); err != nil {
			return Voice{}, err
		}
	}
	v.Envelope.Gain().SetValue(0)
	v.OscA.Start()
	v.OscB.Start()
	return v, nil
}

// KeyDown presses a key at the graph's current time. Expected drops are reported as
// voice.ErrPoolExhausted or keys.ErrUnknownKey and leave the engine unchanged.
func (e *Engine) KeyDown(k keys.KeyID) error {
	now := e.graph.Now()
	advErr := e.Advance(now)
	return errors.Join(advErr, e.check(e.tracker.KeyDown(k, now)))
}

func (e *Engine) KeyUp(k keys.KeyID) error {
	now := e.graph.Now()
	slot, released, err := e.tracker.KeyUp(k, now)
	if err := e.check(err); err != nil {
		return err
	}
	if released && e.params.Reclaim == ReclaimOnKeyUp {
		return e.reclaim(slot)
	}
	return nil
}

// Advance updates envelope phases and, under ReclaimAfterRelease, returns voices whose
// release has ended to the pool in the order they finished. A slot that cannot be
// returned is reported and the remaining slots are still reclaimed.
func (e *Engine) Advance(now float64) error {
	var errs []error
	for _, slot := range e.sched.Advance(now) {
		if e.params.Reclaim == ReclaimAfterRelease {
			if err := e.reclaim(slot); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) reclaim(slot int) error {
	if err := e.check(e.pool.Release(slot)); err != nil {
		return err
	}
	e.sched.Reset(slot)
	return nil
}

// StartVoice tunes the slot to the key and starts its envelope.
func (e *Engine) StartVoice(slot int, k keys.KeyID, now float64) error {
	freq, err := e.pitch.FrequencyOf(k)
	if err != nil {
		return err
	}
	v := &e.voices[slot]
	v.OscA.Frequency().SetValueAtTime(freq, now)
	v.OscB.Frequency().SetValueAtTime(freq, now)
	return e.sched.NoteOn(slot, v.Envelope.Gain(), now)
}

func (e *Engine) StopVoice(slot int, k keys.KeyID, now float64) error {
	_, err := e.sched.NoteOff(slot, e.voices[slot].Envelope.Gain(), now)
	return err
}

// SetParam applies a control change. Timbre controls fan out to every voice, sounding
// or not, so a voice picked up later already carries the setting.
func (e *Engine) SetParam(p Param, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("set %s: invalid value %v", p, v)
	}
	lo, hi, _ := p.Range()
	v = math.Max(lo, math.Min(hi, v))
	env := e.params.Envelope
	switch p {
	case ParamAttack:
		env.Attack = v
	case ParamDecay:
		env.Decay = v
	case ParamSustain:
		env.Sustain = v
	case ParamRelease:
		env.Release = v
	case ParamFilterQ:
		e.params.FilterQ = v
	case ParamFilterFreq:
		e.params.FilterFreq = v
	case ParamMix:
		e.params.Mix = v
	case ParamDetuneA:
		e.params.DetuneA = v
	case ParamDetuneB:
		e.params.DetuneB = v
	default:
		return fmt.Errorf("set %s: unknown parameter", p)
	}
	if env != e.params.Envelope {
		e.params.Envelope = env
		e.sched.SetParams(env)
		return nil
	}
	e.fanOut(p, v)
	return nil
}

func (e *Engine) fanOut(p Param, v float64) {
	for i := range e.voices {
		vc := &e.voices[i]
		switch p {
		case ParamFilterQ:
			vc.Filter.Q().SetValue(v)
		case ParamFilterFreq:
			vc.Filter.Frequency().SetValue(v)
		case ParamMix:
			vc.GainA.Gain().SetValue(v)
			vc.GainB.Gain().SetValue(1 - v)
		case ParamDetuneA:
			vc.OscA.Detune().SetValue(v)
		case ParamDetuneB:
			vc.OscB.Detune().SetValue(v)
		}
	}
}

func (e *Engine) SetWaveform(o Osc, w graph.Waveform) {
	if o == OscB {
		e.params.WaveformB = w
	} else {
		e.params.WaveformA = w
	}
	e.fanOutWaveform(o, w)
}

func (e *Engine) fanOutWaveform(o Osc, w graph.Waveform) {
	for i := range e.voices {
		if o == OscB {
			e.voices[i].OscB.SetType(w)
		} else {
			e.voices[i].OscA.SetType(w)
		}
	}
}

// Value returns the current setting of a control.
func (e *Engine) Value(p Param) float64 {
	switch p {
	case ParamAttack:
		return e.params.Envelope.Attack
	case ParamDecay:
		return e.params.Envelope.Decay
	case ParamSustain:
		return e.params.Envelope.Sustain
	case ParamRelease:
		return e.params.Envelope.Release
	case ParamFilterQ:
		return e.params.FilterQ
	case ParamFilterFreq:
		return e.params.FilterFreq
	case ParamMix:
		return e.params.Mix
	case ParamDetuneA:
		return e.params.DetuneA
	case ParamDetuneB:
		return e.params.DetuneB
	}
	return math.NaN()
}

func (e *Engine) Waveform(o Osc) graph.Waveform {
	if o == OscB {
		return e.params.WaveformB
	}
	return e.params.WaveformA
}

func (e *Engine) Params() Params { return e.params }

func (e *Engine) ActiveVoiceCount() int { return e.pool.BusyCount() }

func (e *Engine) Octave() int { return e.pitch.Octave() }

func (e *Engine) Pressed() []keys.KeyID { return e.tracker.Pressed() }

// Voice exposes a slot's nodes; it panics for an out-of-range slot.
func (e *Engine) Voice(slot int) Voice { return e.voices[slot] }

func (e *Engine) Voices() []VoiceState {
	now := e.graph.Now()
	out := make([]VoiceState, len(e.voices))
	for i := range e.voices {
		st := e.pool.Slot(i)
		out[i] = VoiceState{
			Slot:      i,
			Busy:      st.Busy,
			Key:       st.Key,
			Phase:     st.Phase,
			Frequency: e.voices[i].OscA.Frequency().ValueAt(now),
		}
	}
	return out
}

// check enforces voice.ErrInvalidState as an assertion in keysynthdebug builds.
func (e *Engine) check(err error) error {
	if err != nil && debugAssertions && errors.Is(err, voice.ErrInvalidState) {
		panic(err)
	}
	return err
}

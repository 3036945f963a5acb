package keysynth

import (
	"errors"
	"fmt"
	"sync"

	intaudio "github.com/cbegin/keysynth-go/internal/audio"
	"github.com/cbegin/keysynth-go/internal/envelope"
	"github.com/cbegin/keysynth-go/internal/graph"
	"github.com/cbegin/keysynth-go/internal/keys"
	"github.com/cbegin/keysynth-go/internal/synth"
	"github.com/cbegin/keysynth-go/internal/voice"
)

var (
	// ErrPoolExhausted is returned by KeyDown when every voice is sounding. The key
	// press is dropped.
	ErrPoolExhausted = voice.ErrPoolExhausted
	ErrUnknownKey    = keys.ErrUnknownKey
)

type ReclaimPolicy string

const (
	// ReclaimAfterRelease keeps a voice busy until its release has died away.
	ReclaimAfterRelease ReclaimPolicy = "release"
	// ReclaimOnKeyUp frees a voice as soon as its key is released.
	ReclaimOnKeyUp ReclaimPolicy = "keyup"
)

// Envelope is the ADSR shape applied to every note. Durations are in seconds.
type Envelope struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

type Option func(*config)

type config struct {
	polyphony int
	reclaim   ReclaimPolicy
	envelope  *Envelope
	volume    float64
	sampleTap func([]float32)
}

func defaultConfig() config {
	return config{polyphony: synth.DefaultParams().Polyphony, reclaim: ReclaimAfterRelease, volume: 1}
}

func WithPolyphony(n int) Option {
	return func(cfg *config) {
		cfg.polyphony = n
	}
}

func WithReclaimPolicy(p ReclaimPolicy) Option {
	return func(cfg *config) {
		cfg.reclaim = p
	}
}

func WithEnvelope(env Envelope) Option {
	return func(cfg *config) {
		cfg.envelope = &env
	}
}

func WithMasterVolume(v float64) Option {
	return func(cfg *config) {
		cfg.volume = v
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) Option {
	return func(cfg *config) {
		cfg.sampleTap = tap
	}
}

// baseGain leaves headroom for several voices sounding at full level.
const baseGain = 0.35

// Synth is a polyphonic keyboard synthesizer. All methods are safe for concurrent
// use; key events and the audio callback are serialized by one mutex.
type Synth struct {
	mu         sync.Mutex
	sampleRate int
	graph      *graph.Context
	engine     *synth.Engine
	volume     float64
	sampleTap  func([]float32)
	audio      *intaudio.Player
	err        error
}

// VoiceInfo describes one voice slot for displays.
type VoiceInfo struct {
	Slot      int
	Busy      bool
	Key       string
	Phase     string
	Frequency float64
}

func NewSynth(sampleRate int, opts ...Option) (*Synth, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.polyphony <= 0 {
		return nil, fmt.Errorf("polyphony must be positive, got %d", cfg.polyphony)
	}
	params := synth.DefaultParams()
	params.Polyphony = cfg.polyphony
	reclaim, err := synth.ParseReclaimPolicy(string(cfg.reclaim))
	if err != nil {
		return nil, err
	}
	params.Reclaim = reclaim
	if cfg.envelope != nil {
		params.Envelope = envelope.Params{
			Attack:  cfg.envelope.Attack,
			Decay:   cfg.envelope.Decay,
			Sustain: cfg.envelope.Sustain,
			Release: cfg.envelope.Release,
		}
	}
	ctx := graph.NewContext(sampleRate)
	engine, err := synth.New(ctx, params)
	if err != nil {
		return nil, err
	}
	s := &Synth{
		sampleRate: sampleRate,
		graph:      ctx,
		engine:     engine,
		sampleTap:  cfg.sampleTap,
	}
	s.setVolume(cfg.volume)
	return s, nil
}

func (s *Synth) SampleRate() int { return s.sampleRate }

// Now returns the synth clock in seconds: the number of frames rendered so far
// divided by the sample rate.
func (s *Synth) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Now()
}

// KeyDown presses a key by its code ("KeyA".."KeyK", "ArrowUp", "ArrowDown").
// Repeats of a held key are ignored.
func (s *Synth) KeyDown(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.KeyDown(keys.KeyID(code))
}

func (s *Synth) KeyUp(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.KeyUp(keys.KeyID(code))
}

// SetParam sets a control by name (attack, decay, sustain, release, filter-q,
// filter-freq, mix, detune-a, detune-b). Values are clamped to the control's range.
func (s *Synth) SetParam(name string, v float64) error {
	p, err := synth.ParseParam(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.SetParam(p, v)
}

func (s *Synth) Param(name string) (float64, error) {
	p, err := synth.ParseParam(name)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Value(p), nil
}

// ParamNames lists the controls accepted by SetParam in display order.
func ParamNames() []string {
	all := synth.AllParams()
	out := make([]string, len(all))
	for i, p := range all {
		out[i] = p.String()
	}
	return out
}

// ParamRange returns the accepted interval of a control and a step suited to
// keyboard or slider editing.
func ParamRange(name string) (lo, hi, step float64, err error) {
	p, err := synth.ParseParam(name)
	if err != nil {
		return 0, 0, 0, err
	}
	lo, hi, step = p.Range()
	return lo, hi, step, nil
}

// SetWaveform selects the waveform of oscillator "a" or "b" for every voice.
func (s *Synth) SetWaveform(osc, waveform string) error {
	o, err := synth.ParseOsc(osc)
	if err != nil {
		return err
	}
	w, err := graph.ParseWaveform(waveform)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetWaveform(o, w)
	return nil
}

func (s *Synth) Waveform(osc string) (string, error) {
	o, err := synth.ParseOsc(osc)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Waveform(o).String(), nil
}

// CycleWaveform switches oscillator "a" or "b" to the next waveform and returns it.
func (s *Synth) CycleWaveform(osc string) (string, error) {
	o, err := synth.ParseOsc(osc)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.engine.Waveform(o).Next()
	s.engine.SetWaveform(o, w)
	return w.String(), nil
}

func (s *Synth) Octave() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Octave()
}

func (s *Synth) ActiveVoices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ActiveVoiceCount()
}

// Pressed returns the codes of the keys currently held down.
func (s *Synth) Pressed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.engine.Pressed()
	out := make([]string, len(held))
	for i, k := range held {
		out[i] = string(k)
	}
	return out
}

func (s *Synth) Voices() []VoiceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := s.engine.Voices()
	out := make([]VoiceInfo, len(states))
	for i, st := range states {
		out[i] = VoiceInfo{
			Slot:      st.Slot,
			Busy:      st.Busy,
			Key:       string(st.Key),
			Phase:     st.Phase.String(),
			Frequency: st.Frequency,
		}
	}
	return out
}

// Process renders interleaved stereo samples into dst and advances the clock.
func (s *Synth) Process(dst []float32) {
	s.mu.Lock()
	s.graph.Process(dst)
	if err := s.engine.Advance(s.graph.Now()); err != nil && s.err == nil {
		s.err = err
	}
	tap := s.sampleTap
	s.mu.Unlock()
	if tap != nil {
		tap(dst)
	}
}

// Err reports the first voice bookkeeping failure seen while rendering, if any.
func (s *Synth) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start opens the audio output on first use and resumes it afterwards. Hosts call it
// from the first user gesture.
func (s *Synth) Start() error {
	s.mu.Lock()
	pl := s.audio
	s.mu.Unlock()
	if pl == nil {
		var err error
		pl, err = intaudio.NewPlayer(s.sampleRate, s)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.audio != nil {
			s.mu.Unlock()
			_ = pl.Stop()
			pl = s.audio
		} else {
			s.audio = pl
			s.mu.Unlock()
		}
	}
	pl.Play()
	return nil
}

// Suspend pauses audio output. Voices keep their state but the clock stops.
func (s *Synth) Suspend() {
	s.mu.Lock()
	pl := s.audio
	s.mu.Unlock()
	if pl != nil {
		pl.Pause()
	}
}

func (s *Synth) Running() bool {
	s.mu.Lock()
	pl := s.audio
	s.mu.Unlock()
	return pl != nil && pl.IsPlaying()
}

func (s *Synth) Close() error {
	s.mu.Lock()
	pl := s.audio
	s.audio = nil
	s.mu.Unlock()
	if pl == nil {
		return nil
	}
	return pl.Stop()
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (s *Synth) SetMasterVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setVolume(volume)
}

func (s *Synth) setVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	s.volume = volume
	s.graph.SetMasterGain(baseGain * volume)
}

func (s *Synth) MasterVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

package keysynth

import (
	"fmt"
	"io"
	"math"

	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"

	"github.com/cbegin/keysynth-go/internal/graph"
	"github.com/cbegin/keysynth-go/internal/keys"
	"github.com/cbegin/keysynth-go/internal/perf"
	"github.com/cbegin/keysynth-go/internal/sequencer"
	"github.com/cbegin/keysynth-go/internal/synth"
)

// maxTailSeconds bounds how long a render may run past the last scripted event while
// waiting for releases to finish.
const maxTailSeconds = 30

const renderBlockFrames = 1024

// Rendering is the result of an offline performance.
type Rendering struct {
	Samples    []float32 // interleaved stereo
	SampleRate int
	// Warnings lists script events the synth rejected, such as key presses dropped
	// because every voice was busy.
	Warnings []string
}

func (r *Rendering) Seconds() float64 {
	return float64(len(r.Samples)/2) / float64(r.SampleRate)
}

// RenderPerformance plays a performance script into a fresh synth and returns the
// audio up to the point where the last release has died away.
func RenderPerformance(script string, sampleRate int, opts ...Option) (*Rendering, error) {
	sc, err := perf.Parse(script)
	if err != nil {
		return nil, err
	}
	s, err := NewSynth(sampleRate, opts...)
	if err != nil {
		return nil, err
	}
	out := &Rendering{SampleRate: sampleRate}
	seq := sequencer.NewWithOptions(sc, performer{s}, sampleRate, sequencer.Options{
		OnError: func(ev perf.Event, err error) {
			out.Warnings = append(out.Warnings, fmt.Sprintf("line %d: %v", ev.Line, err))
		},
	})
	maxFrames := int64(math.Ceil((sc.Duration() + maxTailSeconds) * float64(sampleRate)))
	block := make([]float32, renderBlockFrames*2)
	for !seq.Finished() && seq.Frame() < maxFrames {
		seq.Process(block)
		out.Samples = append(out.Samples, block...)
	}
	if err := s.Err(); err != nil {
		out.Warnings = append(out.Warnings, err.Error())
	}
	return out, nil
}

// performer lets the sequencer drive a Synth.
type performer struct{ s *Synth }

func (p performer) KeyDown(k keys.KeyID) error { return p.s.KeyDown(string(k)) }
func (p performer) KeyUp(k keys.KeyID) error   { return p.s.KeyUp(string(k)) }
func (p performer) Process(dst []float32)      { p.s.Process(dst) }
func (p performer) ActiveVoiceCount() int      { return p.s.ActiveVoices() }

func (p performer) SetParam(param synth.Param, v float64) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.engine.SetParam(param, v)
}

func (p performer) SetWaveform(o synth.Osc, w graph.Waveform) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.engine.SetWaveform(o, w)
}

// WriteWAV encodes interleaved stereo samples as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	const numChannels = 2
	encoder := wav.NewEncoder(w, sampleRate, 16, numChannels, 1)
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: numChannels,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		_ = encoder.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}

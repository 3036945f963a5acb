package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// BeepStreamer adapts a SampleSource to beep.Streamer so it can be handed to
// speaker.Play. The source never ends; Stream always fills the whole buffer.
type BeepStreamer struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

var _ beep.Streamer = (*BeepStreamer)(nil)

func NewBeepStreamer(source SampleSource) *BeepStreamer {
	return &BeepStreamer{source: source}
}

func (s *BeepStreamer) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	need := len(samples) * 2
	if cap(s.buf) < need {
		s.buf = make([]float32, need)
	}
	s.buf = s.buf[:need]
	s.source.Process(s.buf)
	for i := range samples {
		samples[i][0] = float64(s.buf[2*i])
		samples[i][1] = float64(s.buf[2*i+1])
	}
	return len(samples), true
}

func (s *BeepStreamer) Err() error { return nil }

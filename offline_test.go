package keysynth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/wav"
)

func TestRenderPerformanceRunsUntilReleaseEnds(t *testing.T) {
	r, err := RenderPerformance(`
0    set release 0.2
0    note a 0.25
0.1  note e 0.15
0.25 end
`, 8000)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("warnings = %v", r.Warnings)
	}
	// The second note reaches sustain at 0.3s, releases for 0.2s, then a 0.1s tail;
	// silence is only noticed at block boundaries.
	if sec := r.Seconds(); sec < 0.6 || sec > 0.6+2*float64(renderBlockFrames)/8000 {
		t.Fatalf("rendered %.3fs", sec)
	}
	var energy float64
	for _, s := range r.Samples[:len(r.Samples)/4] {
		if s < 0 {
			energy -= float64(s)
		} else {
			energy += float64(s)
		}
	}
	if energy == 0 {
		t.Fatalf("expected non-zero audio energy")
	}
}

func TestRenderPerformanceReportsDroppedNotes(t *testing.T) {
	r, err := RenderPerformance("0 note a 0.1\n0 note s 0.1", 8000, WithPolyphony(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Warnings) != 1 || !strings.HasPrefix(r.Warnings[0], "line 2:") {
		t.Fatalf("warnings = %v", r.Warnings)
	}
}

func TestRenderPerformanceParseError(t *testing.T) {
	if _, err := RenderPerformance("0 down KeyQ", 8000); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteWAV(t *testing.T) {
	samples := make([]float32, 500*2)
	for i := range samples {
		samples[i] = 0.25
	}
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteWAV(f, samples, 8000); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	in, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	dec := wav.NewDecoder(in)
	if !dec.IsValidFile() {
		t.Fatal("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Format.NumChannels != 2 || buf.Format.SampleRate != 8000 {
		t.Fatalf("format = %+v", buf.Format)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
}

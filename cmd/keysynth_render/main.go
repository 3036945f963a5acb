package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cbegin/keysynth-go"
)

// defaultScript plays a C major arpeggio and holds the top note.
const defaultScript = `
0.00 note a 0.30
0.25 note d 0.30
0.50 note g 0.30
0.75 note k 1.00
`

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		scriptPath = flag.String("file", "", "path to a performance script")
		inline     = flag.String("script", "", "inline performance script (';' separates lines)")
		output     = flag.String("o", "keysynth.wav", "output WAV path")
		polyphony  = flag.Int("voices", 10, "number of voices")
		reclaim    = flag.String("reclaim", "release", "voice reclaim policy: release|keyup")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		attack     = flag.Float64("attack", 0.1, "envelope attack in seconds")
		decay      = flag.Float64("decay", 0.1, "envelope decay in seconds")
		sustain    = flag.Float64("sustain", 0.5, "envelope sustain level (0..1)")
		release    = flag.Float64("release", 0.5, "envelope release in seconds")
	)
	flag.Parse()

	script, err := resolveScript(*scriptPath, *inline)
	if err != nil {
		log.Fatal(err)
	}
	r, err := keysynth.RenderPerformance(script, *sampleRate,
		keysynth.WithPolyphony(*polyphony),
		keysynth.WithReclaimPolicy(keysynth.ReclaimPolicy(*reclaim)),
		keysynth.WithMasterVolume(*volume),
		keysynth.WithEnvelope(keysynth.Envelope{Attack: *attack, Decay: *decay, Sustain: *sustain, Release: *release}),
	)
	if err != nil {
		log.Fatal(err)
	}
	for _, w := range r.Warnings {
		log.Printf("warning: %s", w)
	}

	file, err := os.Create(*output)
	if err != nil {
		log.Fatal(err)
	}
	if err := keysynth.WriteWAV(file, r.Samples, r.SampleRate); err != nil {
		file.Close()
		log.Fatal(err)
	}
	if err := file.Close(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s (%.2fs)\n", *output, r.Seconds())
}

func resolveScript(path string, inline string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return strings.ReplaceAll(inline, ";", "\n"), nil
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return defaultScript, nil
}

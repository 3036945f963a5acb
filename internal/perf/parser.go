package perf

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cbegin/keysynth-go/internal/graph"
	"github.com/cbegin/keysynth-go/internal/keys"
	"github.com/cbegin/keysynth-go/internal/synth"
)

// Parse reads a performance script. Each non-blank line holds a time in seconds and
// a command:
//
//	0.00 down KeyA
//	0.50 up a
//	0.50 note s 0.25      (down now, up 0.25s later)
//	1.00 set filter-freq 800
//	1.00 wave b sawtooth
//	3.00 end
//
// Text after '#' is a comment.
func Parse(input string) (*Script, error) {
	return ParseReader(strings.NewReader(input))
}

func ParseReader(r io.Reader) (*Script, error) {
	sc := bufio.NewScanner(r)
	script := &Script{}
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		evs, end, err := parseLine(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i := range evs {
			evs[i].Line = line
		}
		script.Events = append(script.Events, evs...)
		if end > script.End {
			script.End = end
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(script.Events, func(i, j int) bool {
		return script.Events[i].Time < script.Events[j].Time
	})
	return script, nil
}

func parseLine(f []string) ([]Event, float64, error) {
	if len(f) < 2 {
		return nil, 0, fmt.Errorf("expected '<seconds> <command>'")
	}
	at, err := parseSeconds(f[0])
	if err != nil {
		return nil, 0, err
	}
	cmd, args := strings.ToLower(f[1]), f[2:]
	switch cmd {
	case "down", "up":
		if len(args) != 1 {
			return nil, 0, fmt.Errorf("%s: expected one key", cmd)
		}
		k, err := parseKey(args[0])
		if err != nil {
			return nil, 0, err
		}
		typ := EventKeyDown
		if cmd == "up" {
			typ = EventKeyUp
		}
		return []Event{{Type: typ, Time: at, Key: k}}, 0, nil
	case "note":
		if len(args) != 2 {
			return nil, 0, fmt.Errorf("note: expected key and duration")
		}
		k, err := parseKey(args[0])
		if err != nil {
			return nil, 0, err
		}
		if !keys.IsPlayable(k) {
			return nil, 0, fmt.Errorf("note: %s is not a playable key", k)
		}
		dur, err := parseSeconds(args[1])
		if err != nil {
			return nil, 0, err
		}
		return []Event{
			{Type: EventKeyDown, Time: at, Key: k},
			{Type: EventKeyUp, Time: at + dur, Key: k},
		}, 0, nil
	case "set":
		if len(args) != 2 {
			return nil, 0, fmt.Errorf("set: expected parameter and value")
		}
		p, err := synth.ParseParam(args[0])
		if err != nil {
			return nil, 0, err
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, fmt.Errorf("set %s: invalid value %q", p, args[1])
		}
		return []Event{{Type: EventSet, Time: at, Param: p, Value: v}}, 0, nil
	case "wave":
		if len(args) != 2 {
			return nil, 0, fmt.Errorf("wave: expected oscillator and waveform")
		}
		o, err := synth.ParseOsc(args[0])
		if err != nil {
			return nil, 0, err
		}
		w, err := graph.ParseWaveform(args[1])
		if err != nil {
			return nil, 0, err
		}
		return []Event{{Type: EventWave, Time: at, Osc: o, Waveform: w}}, 0, nil
	case "end":
		if len(args) != 0 {
			return nil, 0, fmt.Errorf("end: unexpected arguments")
		}
		return nil, at, nil
	}
	return nil, 0, fmt.Errorf("unknown command %q", f[1])
}

func parseSeconds(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return v, nil
}

// parseKey accepts key codes (KeyA, ArrowUp), bare letters, and octave+/octave- for
// the transpose keys.
func parseKey(s string) (keys.KeyID, error) {
	switch strings.ToLower(s) {
	case "arrowup", "octave+":
		return keys.TransposeUp, nil
	case "arrowdown", "octave-":
		return keys.TransposeDown, nil
	}
	if r := []rune(s); len(r) == 1 {
		if k, ok := keys.FromRune(r[0]); ok && keys.IsPlayable(k) {
			return k, nil
		}
	}
	k := keys.KeyID(s)
	if keys.IsPlayable(k) {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", keys.ErrUnknownKey, s)
}

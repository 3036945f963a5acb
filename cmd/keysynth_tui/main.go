package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/cbegin/keysynth-go"
	intaudio "github.com/cbegin/keysynth-go/internal/audio"
)

// Terminals report key presses and auto-repeat but never key releases. A held key is
// considered released once its repeats stop arriving.
const (
	firstRepeatWait = 600 * time.Millisecond
	repeatGap       = 150 * time.Millisecond
	tickInterval    = 30 * time.Millisecond
)

var letterCodes = map[string]string{
	"a": "KeyA", "w": "KeyW", "s": "KeyS", "e": "KeyE", "d": "KeyD", "f": "KeyF",
	"t": "KeyT", "g": "KeyG", "y": "KeyY", "h": "KeyH", "u": "KeyU", "j": "KeyJ",
	"k": "KeyK",
}

var keyOrder = []string{"a", "w", "s", "e", "d", "f", "t", "g", "y", "h", "u", "j", "k"}

type heldKey struct {
	lastSeen time.Time
	repeats  int
}

type TickMsg time.Time

type model struct {
	synth    *keysynth.Synth
	streamer beep.Streamer
	params   []string
	selected int
	held     map[string]*heldKey
	running  bool
	status   string
	width    int
	height   int
}

func initialModel(s *keysynth.Synth, streamer beep.Streamer) model {
	return model{
		synth:    s,
		streamer: streamer,
		params:   keysynth.ParamNames(),
		held:     make(map[string]*heldKey),
		running:  true,
		status:   "ready",
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd { return tick() }

// releaseStale sends key-up for keys whose auto-repeat has stopped.
func (m model) releaseStale(now time.Time) {
	for code, h := range m.held {
		wait := firstRepeatWait
		if h.repeats > 0 {
			wait = repeatGap
		}
		if now.Sub(h.lastSeen) > wait {
			_ = m.synth.KeyUp(code)
			delete(m.held, code)
		}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.releaseStale(time.Time(msg))
		return m, tick()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEscape:
			return m, tea.Quit
		case tea.KeySpace:
			if m.running {
				speaker.Clear()
				m.status = "audio suspended"
			} else {
				speaker.Play(m.streamer)
				m.status = "audio running"
			}
			m.running = !m.running
			return m, nil
		case tea.KeyUp:
			m.transpose("ArrowUp")
			return m, nil
		case tea.KeyDown:
			m.transpose("ArrowDown")
			return m, nil
		case tea.KeyTab:
			m.selected = (m.selected + 1) % len(m.params)
			return m, nil
		case tea.KeyShiftTab:
			m.selected = (m.selected + len(m.params) - 1) % len(m.params)
			return m, nil
		case tea.KeyRight:
			m.nudge(1)
			return m, nil
		case tea.KeyLeft:
			m.nudge(-1)
			return m, nil
		}

		input := strings.ToLower(msg.String())
		switch input {
		case "z", "x":
			osc := "a"
			if input == "x" {
				osc = "b"
			}
			if w, err := m.synth.CycleWaveform(osc); err == nil {
				m.status = fmt.Sprintf("oscillator %s: %s", osc, w)
			}
			return m, nil
		case "+", "=":
			m.nudge(1)
			return m, nil
		case "-":
			m.nudge(-1)
			return m, nil
		}
		if code, ok := letterCodes[input]; ok {
			m.press(code)
		}
	}
	return m, nil
}

func (m *model) press(code string) {
	now := time.Now()
	if h, ok := m.held[code]; ok {
		h.lastSeen = now
		h.repeats++
		return
	}
	m.held[code] = &heldKey{lastSeen: now}
	if err := m.synth.KeyDown(code); err != nil {
		if errors.Is(err, keysynth.ErrPoolExhausted) {
			m.status = "all voices busy, note dropped"
		} else {
			m.status = err.Error()
		}
	}
}

// transpose taps an octave key: the terminal gives no release, so press and release
// are sent together.
func (m *model) transpose(code string) {
	_ = m.synth.KeyDown(code)
	_ = m.synth.KeyUp(code)
	m.status = fmt.Sprintf("octave %+d", m.synth.Octave())
}

func (m *model) nudge(dir float64) {
	name := m.params[m.selected]
	_, _, step, err := keysynth.ParamRange(name)
	if err != nil {
		return
	}
	v, _ := m.synth.Param(name)
	if err := m.synth.SetParam(name, v+dir*step); err != nil {
		m.status = err.Error()
	}
}

var (
	panelStyle = lipgloss.NewStyle().
			Padding(1, 3).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("#444444"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00E6C3"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00E6C3")).
			Background(lipgloss.Color("#111111")).
			Padding(0, 1)

	paramStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#00E6C3")).Bold(true)
	barStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00E6C3"))

	keyStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333333")).
			Foreground(lipgloss.Color("#AAAAAA")).
			Width(3).
			Align(lipgloss.Center)

	activeKeyStyle = keyStyle.
			BorderForeground(lipgloss.Color("#00E6C3")).
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#00E6C3")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)
)

const barWidth = 24

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	wa, _ := m.synth.Waveform("a")
	wb, _ := m.synth.Waveform("b")
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("KEYSYNTH"),
		"  ",
		infoStyle.Render(fmt.Sprintf("A: %s  B: %s  octave %+d  voices %d", wa, wb, m.synth.Octave(), m.synth.ActiveVoices())),
	)

	var rows []string
	for i, name := range m.params {
		v, _ := m.synth.Param(name)
		lo, hi, _, _ := keysynth.ParamRange(name)
		fill := int(float64(barWidth) * (v - lo) / (hi - lo))
		fill = max(0, min(barWidth, fill))
		label := fmt.Sprintf("%-12s %10.2f ", name, v)
		if i == m.selected {
			label = selectedStyle.Render(label)
		} else {
			label = paramStyle.Render(label)
		}
		rows = append(rows, label+barStyle.Render(strings.Repeat("█", fill)+strings.Repeat("·", barWidth-fill)))
	}
	params := lipgloss.JoinVertical(lipgloss.Left, rows...)

	held := make(map[string]bool)
	for _, code := range m.synth.Pressed() {
		held[code] = true
	}
	var keys []string
	for _, k := range keyOrder {
		if held[letterCodes[k]] {
			keys = append(keys, activeKeyStyle.Render(strings.ToUpper(k)))
		} else {
			keys = append(keys, keyStyle.Render(strings.ToUpper(k)))
		}
	}
	keyboard := lipgloss.JoinHorizontal(lipgloss.Top, keys...)

	help := helpStyle.Render("A-K: play  •  ↑/↓: octave  •  TAB/←/→: edit  •  Z/X: waveforms  •  SPACE: audio  •  ESC: quit\n" + m.status)

	ui := lipgloss.JoinVertical(lipgloss.Center, header, "", params, "", keyboard, help)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panelStyle.Render(ui))
}

func main() {
	var (
		rate      = flag.Int("sample-rate", 44100, "output sample rate")
		polyphony = flag.Int("voices", 10, "number of voices")
		reclaim   = flag.String("reclaim", "release", "voice reclaim policy: release|keyup")
		volume    = flag.Float64("volume", 1.0, "master volume scalar")
	)
	flag.Parse()

	s, err := keysynth.NewSynth(*rate,
		keysynth.WithPolyphony(*polyphony),
		keysynth.WithReclaimPolicy(keysynth.ReclaimPolicy(*reclaim)),
		keysynth.WithMasterVolume(*volume),
	)
	if err != nil {
		log.Fatal(err)
	}
	sr := beep.SampleRate(*rate)
	if err := speaker.Init(sr, sr.N(30*time.Millisecond)); err != nil {
		log.Fatal(err)
	}
	streamer := intaudio.NewBeepStreamer(s)
	speaker.Play(streamer)

	p := tea.NewProgram(initialModel(s, streamer), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"sync"

	"github.com/cbegin/keysynth-go"
	"github.com/cbegin/keysynth-go/internal/keys"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

const (
	windowW    = 1000
	windowH    = 680
	minWindowW = 900
	minWindowH = 620

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale

	scopeLen = 1024
)

var (
	bgColor        = color.RGBA{192, 192, 192, 255}
	panelColor     = color.RGBA{192, 192, 192, 255}
	borderColor    = color.RGBA{128, 128, 128, 255}
	highlightColor = color.RGBA{0, 0, 128, 255}
	whiteKeyColor  = color.RGBA{236, 236, 236, 255}
	blackKeyColor  = color.RGBA{24, 24, 32, 255}
	pressedColor   = color.RGBA{80, 200, 255, 255}

	bevelLight  = color.RGBA{255, 255, 255, 255}
	bevelDarker = color.RGBA{64, 64, 64, 255}

	sunkenBgColor   = color.RGBA{24, 24, 32, 255}
	sliderFillColor = color.RGBA{0, 0, 128, 255}
)

// keyCodes maps physical keys to the synth's key codes.
var keyCodes = map[ebiten.Key]string{
	ebiten.KeyA: "KeyA", ebiten.KeyW: "KeyW", ebiten.KeyS: "KeyS", ebiten.KeyE: "KeyE",
	ebiten.KeyD: "KeyD", ebiten.KeyF: "KeyF", ebiten.KeyT: "KeyT", ebiten.KeyG: "KeyG",
	ebiten.KeyY: "KeyY", ebiten.KeyH: "KeyH", ebiten.KeyU: "KeyU", ebiten.KeyJ: "KeyJ",
	ebiten.KeyK:         "KeyK",
	ebiten.KeyArrowUp:   "ArrowUp",
	ebiten.KeyArrowDown: "ArrowDown",
}

// pianoKey describes where a playable key sits on the on-screen keyboard.
type pianoKey struct {
	code  string
	label string
	black bool
	slot  int // white: index among white keys; black: white key to its left
}

var piano = []pianoKey{
	{"KeyA", "A", false, 0}, {"KeyW", "W", true, 0}, {"KeyS", "S", false, 1},
	{"KeyE", "E", true, 1}, {"KeyD", "D", false, 2}, {"KeyF", "F", false, 3},
	{"KeyT", "T", true, 3}, {"KeyG", "G", false, 4}, {"KeyY", "Y", true, 4},
	{"KeyH", "H", false, 5}, {"KeyU", "U", true, 5}, {"KeyJ", "J", false, 6},
	{"KeyK", "K", false, 7},
}

// scope keeps the most recent output for the oscilloscope.
type scope struct {
	mu   sync.Mutex
	ring []float32
	pos  int
}

func newScope() *scope { return &scope{ring: make([]float32, scopeLen)} }

// Tap is called from the audio thread. Keep it minimal: just copy into ring.
func (s *scope) Tap(samples []float32) {
	s.mu.Lock()
	for i := 0; i+1 < len(samples); i += 2 {
		s.ring[s.pos] = (samples[i] + samples[i+1]) * 0.5
		s.pos = (s.pos + 1) % len(s.ring)
	}
	s.mu.Unlock()
}

func (s *scope) Snapshot() []float32 {
	out := make([]float32, len(s.ring))
	s.mu.Lock()
	for i := range out {
		out[i] = s.ring[(s.pos+i)%len(s.ring)]
	}
	s.mu.Unlock()
	return out
}

type uiLayout struct {
	start    image.Rectangle
	waveA    image.Rectangle
	waveB    image.Rectangle
	octave   image.Rectangle
	params   image.Rectangle
	voices   image.Rectangle
	scope    image.Rectangle
	keyboard image.Rectangle
	status   image.Rectangle
}

type game struct {
	synth  *keysynth.Synth
	scope  *scope
	params []string

	selected     int
	dragging     int // -1 = none, else parameter row
	mouseHeldKey string

	status    string
	statusErr bool

	keyBuf    []ebiten.Key
	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int
}

func newGame(s *keysynth.Synth, sc *scope) *game {
	return &game{
		synth:     s,
		scope:     sc,
		params:    keysynth.ParamNames(),
		dragging:  -1,
		status:    "Press Space (or click Start) to enable audio",
		textCache: make(map[string]*ebiten.Image, 256),
		viewW:     windowW,
		viewH:     windowH,
	}
}

func (g *game) Update() error {
	g.handleKeyboard()
	g.handleMouse()
	return nil
}

func (g *game) handleKeyboard() {
	g.keyBuf = inpututil.AppendJustPressedKeys(g.keyBuf[:0])
	for _, k := range g.keyBuf {
		if code, ok := keyCodes[k]; ok {
			g.keyDown(code)
			continue
		}
		switch k {
		case ebiten.KeySpace:
			g.toggleAudio()
		case ebiten.KeyZ:
			g.cycleWave("a")
		case ebiten.KeyX:
			g.cycleWave("b")
		case ebiten.KeyTab, ebiten.KeyArrowRight:
			g.selected = (g.selected + 1) % len(g.params)
		case ebiten.KeyArrowLeft:
			g.selected = (g.selected + len(g.params) - 1) % len(g.params)
		case ebiten.KeyEqual, ebiten.KeyPeriod:
			g.nudge(1)
		case ebiten.KeyMinus, ebiten.KeyComma:
			g.nudge(-1)
		}
	}
	g.keyBuf = inpututil.AppendJustReleasedKeys(g.keyBuf[:0])
	for _, k := range g.keyBuf {
		if code, ok := keyCodes[k]; ok {
			_ = g.synth.KeyUp(code)
		}
	}
}

func (g *game) keyDown(code string) {
	if err := g.synth.KeyDown(code); err != nil {
		if errors.Is(err, keysynth.ErrPoolExhausted) {
			g.setStatus("All voices busy, note dropped")
			return
		}
		g.setError(err.Error())
	}
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()
	l := g.layoutRects()
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		switch {
		case pointInRect(mx, my, l.start):
			g.toggleAudio()
		case pointInRect(mx, my, l.waveA):
			g.cycleWave("a")
		case pointInRect(mx, my, l.waveB):
			g.cycleWave("b")
		case pointInRect(mx, my, l.params):
			if row := g.paramRow(my, l.params); row >= 0 {
				g.selected = row
				g.dragging = row
			}
		case pointInRect(mx, my, l.keyboard):
			if code := g.pianoKeyAt(mx, my, l.keyboard); code != "" {
				g.mouseHeldKey = code
				g.keyDown(code)
			}
		}
	}
	if g.dragging >= 0 && ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.setFromMouse(g.dragging, mx, l.params)
	}
	if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
		g.dragging = -1
		if g.mouseHeldKey != "" {
			_ = g.synth.KeyUp(g.mouseHeldKey)
			g.mouseHeldKey = ""
		}
	}
}

func (g *game) toggleAudio() {
	if g.synth.Running() {
		g.synth.Suspend()
		g.setStatus("Audio suspended")
		return
	}
	if err := g.synth.Start(); err != nil {
		g.setError(err.Error())
		return
	}
	g.setStatus("Audio running")
}

func (g *game) cycleWave(osc string) {
	w, err := g.synth.CycleWaveform(osc)
	if err != nil {
		g.setError(err.Error())
		return
	}
	g.setStatus(fmt.Sprintf("Oscillator %s: %s", osc, w))
}

func (g *game) nudge(dir float64) {
	name := g.params[g.selected]
	lo, hi, step, _ := keysynth.ParamRange(name)
	v, _ := g.synth.Param(name)
	if err := g.synth.SetParam(name, clamp(v+dir*step, lo, hi)); err != nil {
		g.setError(err.Error())
	}
}

func (g *game) setFromMouse(row int, mx int, rect image.Rectangle) {
	track := g.sliderTrack(row, rect)
	if track.Dx() <= 0 {
		return
	}
	name := g.params[row]
	lo, hi, _, _ := keysynth.ParamRange(name)
	frac := clamp(float64(mx-track.Min.X)/float64(track.Dx()), 0, 1)
	_ = g.synth.SetParam(name, lo+frac*(hi-lo))
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	l := g.layoutRects()

	startLabel := "Start"
	if g.synth.Running() {
		startLabel = "Suspend"
	}
	g.drawButton(screen, l.start, startLabel)
	wa, _ := g.synth.Waveform("a")
	wb, _ := g.synth.Waveform("b")
	g.drawButton(screen, l.waveA, "Z  A: "+wa)
	g.drawButton(screen, l.waveB, "X  B: "+wb)
	g.drawPanel(screen, l.octave)
	g.drawText(screen, fmt.Sprintf("Octave %+d", g.synth.Octave()), l.octave.Min.X+8, l.octave.Min.Y+8)

	g.drawPanel(screen, l.params)
	g.drawParams(screen, l.params)
	g.drawSunkenPanel(screen, l.voices)
	g.drawVoices(screen, l.voices)
	g.drawSunkenPanel(screen, l.scope)
	g.drawScope(screen, l.scope)
	g.drawKeyboard(screen, l.keyboard)
	g.drawSunkenPanel(screen, l.status)
	g.drawStatus(screen, l.status)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	if outsideW < minWindowW {
		outsideW = minWindowW
	}
	if outsideH < minWindowH {
		outsideH = minWindowH
	}
	g.viewW = outsideW
	g.viewH = outsideH
	return outsideW, outsideH
}

func (g *game) layoutRects() uiLayout {
	const pad = 10
	w, h := g.viewW, g.viewH
	topH := 44
	top := pad
	var l uiLayout
	l.start = image.Rect(pad, top, pad+160, top+topH)
	l.waveA = image.Rect(l.start.Max.X+pad, top, l.start.Max.X+pad+260, top+topH)
	l.waveB = image.Rect(l.waveA.Max.X+pad, top, l.waveA.Max.X+pad+260, top+topH)
	l.octave = image.Rect(l.waveB.Max.X+pad, top, w-pad, top+topH)

	statusH := 40
	keyboardH := 170
	l.status = image.Rect(pad, h-pad-statusH, w-pad, h-pad)
	l.keyboard = image.Rect(pad, l.status.Min.Y-pad-keyboardH, w-pad, l.status.Min.Y-pad)

	midTop := top + topH + pad
	midBottom := l.keyboard.Min.Y - pad
	paramsW := (w - 3*pad) / 2
	l.params = image.Rect(pad, midTop, pad+paramsW, midBottom)
	right := l.params.Max.X + pad
	voicesH := (midBottom - midTop) / 2
	l.voices = image.Rect(right, midTop, w-pad, midTop+voicesH)
	l.scope = image.Rect(right, l.voices.Max.Y+pad, w-pad, midBottom)
	return l
}

func (g *game) paramRow(my int, rect image.Rectangle) int {
	row := (my - rect.Min.Y - 8) / lineH
	if row < 0 || row >= len(g.params) {
		return -1
	}
	return row
}

func (g *game) sliderTrack(row int, rect image.Rectangle) image.Rectangle {
	y := rect.Min.Y + 8 + row*lineH + lineH/2 - 4
	x := rect.Min.X + 16*charW
	return image.Rect(x, y, rect.Max.X-12, y+8)
}

func (g *game) drawParams(screen *ebiten.Image, rect image.Rectangle) {
	for i, name := range g.params {
		y := rect.Min.Y + 8 + i*lineH
		if i == g.selected {
			ebitenutil.DrawRect(screen, float64(rect.Min.X+4), float64(y), float64(rect.Dx()-8), float64(lineH), highlightColor)
		}
		v, _ := g.synth.Param(name)
		g.drawText(screen, fmt.Sprintf("%-11s %s", name, formatValue(name, v)), rect.Min.X+8, y)

		track := g.sliderTrack(i, rect)
		if track.Dx() < 20 {
			continue
		}
		lo, hi, _, _ := keysynth.ParamRange(name)
		ebitenutil.DrawRect(screen, float64(track.Min.X), float64(track.Min.Y), float64(track.Dx()), 8, bevelDarker)
		fillW := int(float64(track.Dx()) * clamp((v-lo)/(hi-lo), 0, 1))
		if fillW > 2 {
			ebitenutil.DrawRect(screen, float64(track.Min.X+1), float64(track.Min.Y+1), float64(fillW-1), 6, sliderFillColor)
		}
	}
}

func formatValue(name string, v float64) string {
	switch name {
	case "filter-freq":
		return fmt.Sprintf("%.0fHz", v)
	case "detune-a", "detune-b":
		return fmt.Sprintf("%+.0fc", v)
	case "attack", "decay", "release":
		return fmt.Sprintf("%.2fs", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func (g *game) drawVoices(screen *ebiten.Image, rect image.Rectangle) {
	voices := g.synth.Voices()
	g.drawText(screen, fmt.Sprintf("Voices %d/%d", g.synth.ActiveVoices(), len(voices)), rect.Min.X+8, rect.Min.Y+6)
	cols := 2
	rows := (len(voices) + cols - 1) / cols
	colW := (rect.Dx() - 16) / cols
	for i, v := range voices {
		x := rect.Min.X + 8 + (i/rows)*colW
		y := rect.Min.Y + 6 + lineH + (i%rows)*lineH
		if y+lineH > rect.Max.Y {
			break
		}
		label := fmt.Sprintf("%d: -", v.Slot)
		if v.Busy {
			key := "~"
			if v.Key != "" {
				key = keys.Label(keys.KeyID(v.Key))
			}
			label = fmt.Sprintf("%d: %s %s", v.Slot, key, v.Phase)
		}
		g.drawText(screen, label, x, y)
	}
}

func (g *game) drawScope(screen *ebiten.Image, rect image.Rectangle) {
	inner := image.Rect(rect.Min.X+8, rect.Min.Y+8, rect.Max.X-8, rect.Max.Y-8)
	width, height := inner.Dx(), inner.Dy()
	if width < 2 || height < 4 {
		return
	}
	samples := g.scope.Snapshot()
	midY := inner.Min.Y + height/2
	ebitenutil.DrawRect(screen, float64(inner.Min.X), float64(midY), float64(width), 1, color.RGBA{40, 44, 58, 100})
	start := findZeroCrossing(samples, len(samples)/2)
	visible := len(samples) - start
	gain := float64(height/2 - 2)
	waveColor := color.RGBA{80, 200, 255, 220}
	prevY := midY - int(float64(samples[start])*gain)
	for px := 1; px < width; px++ {
		si := start + px*visible/width
		if si >= len(samples) {
			si = len(samples) - 1
		}
		y := midY - int(float64(samples[si])*gain)
		ebitenutil.DrawLine(screen, float64(inner.Min.X+px-1), float64(prevY), float64(inner.Min.X+px), float64(y), waveColor)
		prevY = y
	}
}

// findZeroCrossing finds a rising zero-crossing in samples to stabilize the waveform display.
func findZeroCrossing(samples []float32, searchLen int) int {
	if searchLen > len(samples)-2 {
		searchLen = len(samples) - 2
	}
	for i := 1; i < searchLen; i++ {
		if samples[i-1] <= 0 && samples[i] > 0 {
			return i
		}
	}
	return 0
}

func (g *game) whiteKeyWidth(rect image.Rectangle) int { return rect.Dx() / 8 }

func (g *game) pianoKeyRect(k pianoKey, rect image.Rectangle) image.Rectangle {
	ww := g.whiteKeyWidth(rect)
	if !k.black {
		x := rect.Min.X + k.slot*ww
		return image.Rect(x, rect.Min.Y, x+ww, rect.Max.Y)
	}
	bw := ww * 3 / 5
	x := rect.Min.X + (k.slot+1)*ww - bw/2
	return image.Rect(x, rect.Min.Y, x+bw, rect.Min.Y+rect.Dy()*3/5)
}

func (g *game) pianoKeyAt(mx, my int, rect image.Rectangle) string {
	for _, black := range []bool{true, false} {
		for _, k := range piano {
			if k.black == black && pointInRect(mx, my, g.pianoKeyRect(k, rect)) {
				return k.code
			}
		}
	}
	return ""
}

func (g *game) drawKeyboard(screen *ebiten.Image, rect image.Rectangle) {
	held := make(map[string]bool)
	for _, code := range g.synth.Pressed() {
		held[code] = true
	}
	for _, black := range []bool{false, true} {
		for _, k := range piano {
			if k.black != black {
				continue
			}
			r := g.pianoKeyRect(k, rect)
			fill := whiteKeyColor
			if k.black {
				fill = blackKeyColor
			}
			if held[k.code] {
				fill = pressedColor
			}
			ebitenutil.DrawRect(screen, float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()), fill)
			drawBorder(screen, r)
			g.drawText(screen, k.label, r.Min.X+(r.Dx()-charW)/2, r.Max.Y-lineH-6)
		}
	}
}

func (g *game) drawStatus(screen *ebiten.Image, rect image.Rectangle) {
	msg := "Status: " + g.status
	if g.statusErr {
		msg = "Status: ERROR - " + g.status
	}
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenEnd(msg, maxChars), rect.Min.X+8, rect.Min.Y+6)
}

func (g *game) setError(msg string) {
	g.status = msg
	g.statusErr = true
}

func (g *game) setStatus(msg string) {
	g.status = msg
	g.statusErr = false
}

func (g *game) drawPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), panelColor)
	drawBorder(screen, rect)
}

func (g *game) drawSunkenPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), sunkenBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawButton(screen *ebiten.Image, rect image.Rectangle, label string) {
	g.drawPanel(screen, rect)
	labelW := len([]rune(label)) * charW
	x := rect.Min.X + (rect.Dx()-labelW)/2
	y := rect.Min.Y + (rect.Dy()-lineH)/2
	g.drawText(screen, label, x, y)
}

// drawBorder draws a raised 3D bevel (highlight top/left, shadow bottom/right).
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+h-2, w-3, 1, borderColor)
	ebitenutil.DrawRect(screen, x+w-2, y+1, 1, h-3, borderColor)
}

// drawSunkenBorder draws a sunken 3D bevel (shadow top/left, highlight bottom/right).
func drawSunkenBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, borderColor)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, borderColor)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelLight)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelLight)
	ebitenutil.DrawRect(screen, x+1, y+1, w-3, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+2, 1, h-4, bevelDarker)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x int, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		w := max(1, len([]rune(msg))*7)
		img = ebiten.NewImage(w, 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 3000 {
			g.textCache = make(map[string]*ebiten.Image, 256)
		}
		g.textCache[msg] = img
	}
	opS := &ebiten.DrawImageOptions{}
	opS.GeoM.Scale(textScale, textScale)
	opS.GeoM.Translate(float64(x+2), float64(y+2))
	opS.ColorScale.Scale(0, 0, 0, 1)
	screen.DrawImage(img, opS)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func shortenEnd(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:max(0, maxChars)])
	}
	return string(r[:maxChars-3]) + "..."
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return x >= rect.Min.X && x < rect.Max.X && y >= rect.Min.Y && y < rect.Max.Y
}

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		polyphony  = flag.Int("voices", 10, "number of voices")
		reclaim    = flag.String("reclaim", "release", "voice reclaim policy: release|keyup")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
	)
	flag.Parse()

	sc := newScope()
	s, err := keysynth.NewSynth(*sampleRate,
		keysynth.WithPolyphony(*polyphony),
		keysynth.WithReclaimPolicy(keysynth.ReclaimPolicy(*reclaim)),
		keysynth.WithMasterVolume(*volume),
		keysynth.WithSampleTap(sc.Tap),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("keysynth")
	if err := ebiten.RunGame(newGame(s, sc)); err != nil {
		log.Fatal(err)
	}
}

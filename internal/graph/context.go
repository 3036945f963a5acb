package graph

import (
	"errors"
	"fmt"
	"math"
)

const twoPi = math.Pi * 2

var ErrForeignNode = errors.New("node belongs to another context")

type nodeKind int

const (
	kindOscillator nodeKind = iota
	kindGain
	kindBandpass
	kindDestination
)

// base is the shared node record. Nodes are pulled once per frame; the cached output
// serves any further consumers of the same frame.
type base struct {
	ctx       *Context
	kind      nodeKind
	inputs    []*base
	lastFrame int64
	lastOut   float64

	// oscillator
	waveform  Waveform
	frequency *param
	detune    *param
	phase     float64
	running   bool

	// gain
	gain *param

	// bandpass
	q              *param
	b0, b1, b2     float64
	a1, a2         float64
	x1, x2, y1, y2 float64
	coefFreq       float64
	coefQ          float64
}

func (n *base) node() *base { return n }

type oscillatorNode struct{ *base }

func (o oscillatorNode) SetType(w Waveform) { o.waveform = w }
func (o oscillatorNode) Type() Waveform      { return o.waveform }
func (o oscillatorNode) Frequency() Param    { return o.frequency }
func (o oscillatorNode) Detune() Param       { return o.detune }
func (o oscillatorNode) Start()              { o.running = true }
func (o oscillatorNode) Stop()               { o.running = false }

type gainNode struct{ *base }

func (g gainNode) Gain() Param { return g.gain }

type filterNode struct{ *base }

func (f filterNode) Frequency() Param { return f.frequency }
func (f filterNode) Q() Param         { return f.q }

// Context is a software implementation of Graph that renders interleaved stereo float32.
// Its transport clock advances with rendered frames. It is not safe for concurrent use.
type Context struct {
	sampleRate float64
	frame      int64
	dest       *base
	nodes      []*base
	masterGain float64
}

func NewContext(sampleRate int) *Context {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	c := &Context{sampleRate: float64(sampleRate), masterGain: 1}
	c.dest = c.newBase(kindDestination)
	return c
}

func (c *Context) newBase(kind nodeKind) *base {
	n := &base{ctx: c, kind: kind, lastFrame: -1}
	c.nodes = append(c.nodes, n)
	return n
}

func (c *Context) SampleRate() int { return int(c.sampleRate) }

// Now returns the transport time in seconds of the next frame to be rendered.
func (c *Context) Now() float64 { return float64(c.frame) / c.sampleRate }

func (c *Context) SetMasterGain(g float64) {
	if g < 0 {
		g = 0
	}
	c.masterGain = g
}

func (c *Context) MasterGain() float64 { return c.masterGain }

func (c *Context) CreateOscillator() Oscillator {
	n := c.newBase(kindOscillator)
	n.frequency = newParam(440)
	n.detune = newParam(0)
	return oscillatorNode{n}
}

func (c *Context) CreateOscillatorPair() (Oscillator, Oscillator) {
	return c.CreateOscillator(), c.CreateOscillator()
}

func (c *Context) CreateGain() Gain {
	n := c.newBase(kindGain)
	n.gain = newParam(1)
	return gainNode{n}
}

// CreateBandpassFilter returns a constant 0 dB peak gain biquad bandpass with the Web
// Audio defaults of 350 Hz and Q 1.
func (c *Context) CreateBandpassFilter() Filter {
	n := c.newBase(kindBandpass)
	n.frequency = newParam(350)
	n.q = newParam(1)
	n.coefFreq = math.NaN()
	return filterNode{n}
}

func (c *Context) Destination() Node { return c.dest }

func (c *Context) Connect(src, dst Node) error {
	s, d := src.node(), dst.node()
	if s.ctx != c || d.ctx != c {
		return ErrForeignNode
	}
	if s.kind == kindDestination {
		return fmt.Errorf("connect: destination cannot be a source")
	}
	if d.kind == kindOscillator {
		return fmt.Errorf("connect: oscillator takes no inputs")
	}
	for _, in := range d.inputs {
		if in == s {
			return nil
		}
	}
	d.inputs = append(d.inputs, s)
	return nil
}

// Process renders len(dst)/2 stereo frames and advances the transport.
func (c *Context) Process(dst []float32) {
	frames := len(dst) / 2
	for i := 0; i < frames; i++ {
		v := c.pull(c.dest, c.frame) * c.masterGain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i*2] = float32(v)
		dst[i*2+1] = float32(v)
		c.frame++
	}
	c.prune()
}

func (c *Context) prune() {
	now := c.Now()
	for _, n := range c.nodes {
		for _, p := range []*param{n.frequency, n.detune, n.gain, n.q} {
			if p != nil {
				p.prune(now)
			}
		}
	}
}

func (c *Context) pull(n *base, frame int64) float64 {
	if n.lastFrame == frame {
		return n.lastOut
	}
	t := float64(frame) / c.sampleRate
	var out float64
	switch n.kind {
	case kindOscillator:
		if n.running {
			out = waveformSample(n.phase, n.waveform)
			freq := n.frequency.ValueAt(t) * math.Pow(2, n.detune.ValueAt(t)/1200)
			n.phase += twoPi * freq / c.sampleRate
			if n.phase >= twoPi {
				n.phase = math.Mod(n.phase, twoPi)
			}
		}
	case kindGain:
		out = c.sumInputs(n, frame) * n.gain.ValueAt(t)
	case kindBandpass:
		out = n.biquad(c.sumInputs(n, frame), n.frequency.ValueAt(t), n.q.ValueAt(t), c.sampleRate)
	default:
		out = c.sumInputs(n, frame)
	}
	n.lastFrame = frame
	n.lastOut = out
	return out
}

func (c *Context) sumInputs(n *base, frame int64) float64 {
	var s float64
	for _, in := range n.inputs {
		s += c.pull(in, frame)
	}
	return s
}

// biquad is the RBJ cookbook bandpass with constant 0 dB peak gain.
func (n *base) biquad(x, freq, q, sampleRate float64) float64 {
	if freq != n.coefFreq || q != n.coefQ {
		n.coefFreq, n.coefQ = freq, q
		f := clamp(freq, 10, sampleRate/2*0.99)
		w0 := twoPi * f / sampleRate
		alpha := math.Sin(w0) / (2 * math.Max(q, 0.0001))
		a0 := 1 + alpha
		n.b0 = alpha / a0
		n.b1 = 0
		n.b2 = -alpha / a0
		n.a1 = -2 * math.Cos(w0) / a0
		n.a2 = (1 - alpha) / a0
	}
	y := n.b0*x + n.b1*n.x1 + n.b2*n.x2 - n.a1*n.y1 - n.a2*n.y2
	n.x2, n.x1 = n.x1, x
	n.y2, n.y1 = n.y1, y
	return y
}

func waveformSample(phase float64, w Waveform) float64 {
	switch w {
	case Square:
		if phase < math.Pi {
			return 1
		}
		return -1
	case Sawtooth:
		return phase/math.Pi - 1
	case Triangle:
		return 2*math.Abs(2*phase/twoPi-1) - 1
	default:
		return math.Sin(phase)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

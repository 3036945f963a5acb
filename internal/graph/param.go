package graph

import (
	"math"
	"sort"
)

type eventKind int

const (
	evSet eventKind = iota
	evRamp
	evCurve
)

type paramEvent struct {
	kind     eventKind
	time     float64
	value    float64
	curve    []float64
	duration float64
}

func (e paramEvent) end() float64 {
	if e.kind == evCurve {
		return e.time + e.duration
	}
	return e.time
}

func (e paramEvent) endValue() float64 {
	if e.kind == evCurve {
		return e.curve[len(e.curve)-1]
	}
	return e.value
}

// param follows the Web Audio AudioParam timeline model: a linear ramp runs from the end
// of the previous event to its own time, and the last value holds after the final event.
type param struct {
	value  float64
	events []paramEvent
}

func newParam(v float64) *param {
	return &param{value: v}
}

func (p *param) Value() float64 { return p.value }

// SetValue replaces any automation with a constant.
func (p *param) SetValue(v float64) {
	p.value = v
	p.events = p.events[:0]
}

func (p *param) SetValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: evSet, time: t, value: v})
}

func (p *param) LinearRampToValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: evRamp, time: t, value: v})
}

func (p *param) SetValueCurveAtTime(values []float64, start, duration float64) {
	if len(values) == 0 {
		return
	}
	if len(values) == 1 || duration <= 0 {
		p.SetValueAtTime(values[len(values)-1], start)
		return
	}
	curve := make([]float64, len(values))
	copy(curve, values)
	p.insert(paramEvent{kind: evCurve, time: start, curve: curve, duration: duration})
}

// CancelScheduledValues drops every event scheduled at or after t. A value curve still
// running at t is cut there and its value at t holds.
func (p *param) CancelScheduledValues(t float64) {
	hold := p.ValueAt(t)
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time >= t })
	p.events = p.events[:i]
	for j, ev := range p.events {
		if ev.kind == evCurve && ev.end() > t {
			p.events = append(p.events[:j], paramEvent{kind: evSet, time: t, value: hold})
			return
		}
	}
}

func (p *param) insert(ev paramEvent) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > ev.time })
	p.events = append(p.events, paramEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = ev
}

func (p *param) ValueAt(t float64) float64 {
	prevTime, prevVal := math.Inf(-1), p.value
	for _, ev := range p.events {
		switch ev.kind {
		case evRamp:
			if t < ev.time {
				if math.IsInf(prevTime, -1) || ev.time <= prevTime {
					return prevVal
				}
				frac := (t - prevTime) / (ev.time - prevTime)
				if frac < 0 {
					return prevVal
				}
				return prevVal + (ev.value-prevVal)*frac
			}
		case evCurve:
			if t < ev.time {
				return prevVal
			}
			if t < ev.end() {
				pos := (t - ev.time) / ev.duration * float64(len(ev.curve)-1)
				k := int(pos)
				if k >= len(ev.curve)-1 {
					return ev.curve[len(ev.curve)-1]
				}
				return ev.curve[k] + (ev.curve[k+1]-ev.curve[k])*(pos-float64(k))
			}
		default:
			if t < ev.time {
				return prevVal
			}
		}
		prevTime, prevVal = ev.end(), ev.endValue()
	}
	return prevVal
}

// prune folds events that finished at or before t into a single anchor so the timeline
// stays short during long sessions. Values at or after t are unchanged.
func (p *param) prune(t float64) {
	k := -1
	for i, ev := range p.events {
		if ev.end() > t {
			break
		}
		k = i
	}
	if k < 0 {
		return
	}
	last := p.events[k]
	if k == len(p.events)-1 {
		p.value = last.endValue()
		p.events = p.events[:0]
		return
	}
	anchor := paramEvent{kind: evSet, time: last.end(), value: last.endValue()}
	n := copy(p.events[1:], p.events[k+1:])
	p.events[0] = anchor
	p.events = p.events[:n+1]
}

package voice

import (
	"errors"
	"fmt"

	"github.com/cbegin/keysynth-go/internal/keys"
)

var (
	ErrPoolExhausted = errors.New("voice pool exhausted")
	ErrInvalidState  = errors.New("invalid voice state")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAttack
	PhaseDecay
	PhaseSustain
	PhaseRelease
)

func (p Phase) String() string {
	switch p {
	case PhaseAttack:
		return "attack"
	case PhaseDecay:
		return "decay"
	case PhaseSustain:
		return "sustain"
	case PhaseRelease:
		return "release"
	default:
		return "idle"
	}
}

// Slot is the pool's record of one voice.
type Slot struct {
	Busy       bool
	Key        keys.KeyID // empty when unbound
	Phase      Phase
	PhaseStart float64 // transport seconds
}

func (s Slot) Bound() bool { return s.Key != "" }

// Pool is a fixed set of voice slots handed out oldest-freed first. It is not safe for
// concurrent use; callers serialize access.
type Pool struct {
	slots    []Slot
	free     []int
	bindings map[keys.KeyID]int
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		slots:    make([]Slot, size),
		free:     make([]int, 0, size),
		bindings: make(map[keys.KeyID]int, size),
	}
	for i := 0; i < size; i++ {
		p.free = append(p.free, i)
	}
	return p
}

func (p *Pool) Size() int { return len(p.slots) }

func (p *Pool) BusyCount() int { return len(p.slots) - len(p.free) }

// Acquire pops the head of the free list.
func (p *Pool) Acquire() (int, error) {
	if len(p.free) == 0 {
		return -1, ErrPoolExhausted
	}
	slot := p.free[0]
	copy(p.free, p.free[1:])
	p.free = p.free[:len(p.free)-1]
	p.slots[slot] = Slot{Busy: true}
	return slot, nil
}

// Release returns a busy, unbound slot to the tail of the free list.
func (p *Pool) Release(slot int) error {
	if err := p.check(slot); err != nil {
		return err
	}
	s := &p.slots[slot]
	if !s.Busy {
		return fmt.Errorf("release slot %d: not busy: %w", slot, ErrInvalidState)
	}
	if s.Bound() {
		return fmt.Errorf("release slot %d: still bound to %s: %w", slot, s.Key, ErrInvalidState)
	}
	*s = Slot{}
	p.free = append(p.free, slot)
	return nil
}

func (p *Pool) Bind(slot int, key keys.KeyID) error {
	if err := p.check(slot); err != nil {
		return err
	}
	s := &p.slots[slot]
	if !s.Busy || s.Bound() {
		return fmt.Errorf("bind slot %d to %s: %w", slot, key, ErrInvalidState)
	}
	if other, ok := p.bindings[key]; ok {
		return fmt.Errorf("bind slot %d: %s already bound to slot %d: %w", slot, key, other, ErrInvalidState)
	}
	s.Key = key
	p.bindings[key] = slot
	return nil
}

// Unbind removes the key's binding. The slot stays busy until Release.
func (p *Pool) Unbind(key keys.KeyID) (int, bool) {
	slot, ok := p.bindings[key]
	if !ok {
		return -1, false
	}
	delete(p.bindings, key)
	p.slots[slot].Key = ""
	return slot, true
}

func (p *Pool) Lookup(key keys.KeyID) (int, bool) {
	slot, ok := p.bindings[key]
	return slot, ok
}

// SetPhase records an envelope transition for a busy slot.
func (p *Pool) SetPhase(slot int, phase Phase, at float64) error {
	if err := p.check(slot); err != nil {
		return err
	}
	s := &p.slots[slot]
	if !s.Busy && phase != PhaseIdle {
		return fmt.Errorf("set phase %s on free slot %d: %w", phase, slot, ErrInvalidState)
	}
	s.Phase = phase
	s.PhaseStart = at
	return nil
}

func (p *Pool) Slot(slot int) Slot {
	if slot < 0 || slot >= len(p.slots) {
		return Slot{}
	}
	return p.slots[slot]
}

// Free returns a copy of the free list in hand-out order.
func (p *Pool) Free() []int {
	out := make([]int, len(p.free))
	copy(out, p.free)
	return out
}

func (p *Pool) check(slot int) error {
	if slot < 0 || slot >= len(p.slots) {
		return fmt.Errorf("slot %d out of range [0,%d): %w", slot, len(p.slots), ErrInvalidState)
	}
	return nil
}

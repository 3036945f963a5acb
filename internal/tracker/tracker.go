package tracker

import (
	"errors"
	"fmt"

	"github.com/cbegin/keysynth-go/internal/keys"
	"github.com/cbegin/keysynth-go/internal/pitch"
	"github.com/cbegin/keysynth-go/internal/voice"
)

// Voicer starts and stops the sound of a slot the tracker has bound to a key.
type Voicer interface {
	StartVoice(slot int, key keys.KeyID, now float64) error
	StopVoice(slot int, key keys.KeyID, now float64) error
}

// Tracker turns raw key events, including hardware auto-repeat, into single press and
// release transitions and keeps the key to voice bindings in the pool.
type Tracker struct {
	pool    *voice.Pool
	pitch   *pitch.Map
	voicer  Voicer
	pressed map[keys.KeyID]bool
}

func New(pool *voice.Pool, pm *pitch.Map, v Voicer) *Tracker {
	return &Tracker{
		pool:    pool,
		pitch:   pm,
		voicer:  v,
		pressed: make(map[keys.KeyID]bool),
	}
}

// KeyDown handles a key press. Repeats of a held key are ignored. A press that finds
// no free voice returns voice.ErrPoolExhausted and produces no sound.
func (t *Tracker) KeyDown(k keys.KeyID, now float64) error {
	switch {
	case keys.IsPlayable(k):
		if t.pressed[k] {
			return nil
		}
		t.pressed[k] = true
		slot, err := t.pool.Acquire()
		if err != nil {
			return fmt.Errorf("key %s: %w", k, err)
		}
		if err := t.pool.Bind(slot, k); err != nil {
			delete(t.pressed, k)
			return errors.Join(err, t.pool.Release(slot))
		}
		if err := t.voicer.StartVoice(slot, k, now); err != nil {
			delete(t.pressed, k)
			t.pool.Unbind(k)
			return errors.Join(err, t.pool.Release(slot))
		}
		return nil
	case keys.IsTranspose(k):
		if t.pressed[k] {
			return nil
		}
		t.pressed[k] = true
		if k == keys.TransposeUp {
			t.pitch.TransposeOctave(pitch.Up)
		} else {
			t.pitch.TransposeOctave(pitch.Down)
		}
		return nil
	}
	return fmt.Errorf("key down %q: %w", k, keys.ErrUnknownKey)
}

// KeyUp handles a key release. When the key was sounding it returns the slot that
// just entered its release, already unbound from the key.
func (t *Tracker) KeyUp(k keys.KeyID, now float64) (int, bool, error) {
	switch {
	case keys.IsPlayable(k):
		delete(t.pressed, k)
		slot, ok := t.pool.Lookup(k)
		if !ok {
			return -1, false, nil
		}
		err := t.voicer.StopVoice(slot, k, now)
		t.pool.Unbind(k)
		return slot, true, err
	case keys.IsTranspose(k):
		delete(t.pressed, k)
		return -1, false, nil
	}
	return -1, false, fmt.Errorf("key up %q: %w", k, keys.ErrUnknownKey)
}

func (t *Tracker) IsPressed(k keys.KeyID) bool { return t.pressed[k] }

// Pressed returns the held keys in pitch order followed by held transpose controls.
func (t *Tracker) Pressed() []keys.KeyID {
	var out []keys.KeyID
	for _, k := range keys.Playable {
		if t.pressed[k] {
			out = append(out, k)
		}
	}
	for _, k := range []keys.KeyID{keys.TransposeUp, keys.TransposeDown} {
		if t.pressed[k] {
			out = append(out, k)
		}
	}
	return out
}

package keys

import "errors"

// KeyID is a logical key code in the DOM KeyboardEvent.code format ("KeyA", "ArrowUp").
type KeyID string

const (
	TransposeUp   KeyID = "ArrowUp"
	TransposeDown KeyID = "ArrowDown"
)

var ErrUnknownKey = errors.New("unknown key")

// Playable lists the note keys in ascending pitch order: one chromatic octave plus the
// upper tonic, laid out on the home and top rows of a QWERTY keyboard.
var Playable = [...]KeyID{
	"KeyA", "KeyW", "KeyS", "KeyE", "KeyD", "KeyF", "KeyT",
	"KeyG", "KeyY", "KeyH", "KeyU", "KeyJ", "KeyK",
}

var playableIndex = func() map[KeyID]int {
	m := make(map[KeyID]int, len(Playable))
	for i, k := range Playable {
		m[k] = i
	}
	return m
}()

// Index returns the pitch position of a playable key.
func Index(k KeyID) (int, bool) {
	i, ok := playableIndex[k]
	return i, ok
}

func IsPlayable(k KeyID) bool {
	_, ok := playableIndex[k]
	return ok
}

func IsTranspose(k KeyID) bool {
	return k == TransposeUp || k == TransposeDown
}

// Label returns the single character printed on the physical key ("A" for "KeyA").
func Label(k KeyID) string {
	if len(k) == 4 && k[:3] == "Key" {
		return string(k[3:])
	}
	switch k {
	case TransposeUp:
		return "↑"
	case TransposeDown:
		return "↓"
	}
	return string(k)
}

// FromRune maps a typed character to its key code. Letters are case-insensitive.
func FromRune(r rune) (KeyID, bool) {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	if r < 'A' || r > 'Z' {
		return "", false
	}
	return KeyID("Key" + string(r)), true
}

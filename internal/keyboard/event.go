// Package keyboard implements the keyboard routing pipeline: a normalized
// key event is dispatched through an overlay stack, search mode, a
// multiplexer command layer, and finally encoded for the focused PTY.
package keyboard

// Key names for non-printable keys. Printable keys are carried in
// Event.Rune instead.
const (
	KeyEscape    = "Escape"
	KeyEnter     = "Enter"
	KeyTab       = "Tab"
	KeyBackspace = "Backspace"
	KeyUp        = "ArrowUp"
	KeyDown      = "ArrowDown"
	KeyRight     = "ArrowRight"
	KeyLeft      = "ArrowLeft"
	KeyHome      = "Home"
	KeyEnd       = "End"
	KeyPageUp    = "PageUp"
	KeyPageDown  = "PageDown"
	KeyDelete    = "Delete"
	KeyInsert    = "Insert"
)

// Event is a normalized key event as delivered by the attached client.
type Event struct {
	Key     string // one of the Key* constants, or "" if Rune is set
	Rune    rune   // the printable character, if this is not a named key
	Ctrl    bool
	Alt     bool
	Shift   bool
	Meta    bool
	Release bool // true for a key-up event
}

// IsPrintable reports whether this event carries a printable rune rather
// than a named key.
func (e Event) IsPrintable() bool {
	return e.Key == "" && e.Rune != 0
}

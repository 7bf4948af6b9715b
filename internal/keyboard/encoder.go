package keyboard

import (
	"fmt"

	"termcore/internal/cellcodec"
)

// Encode produces the xterm-compatible byte sequence for ev, honoring the
// emulator's current modes: CSI vs SS3 arrow encoding under cursorKeyMode,
// control-byte encoding for Ctrl+letter, the Kitty keyboard protocol when
// enabled, and UTF-8 for printable runes.
func Encode(ev Event, modes cellcodec.Modes) []byte {
	if modes.KittyKeyboard != 0 {
		if b, ok := encodeKitty(ev); ok {
			return b
		}
	}

	if ev.IsPrintable() {
		if ev.Ctrl {
			if b, ok := ctrlByte(ev.Rune); ok {
				return []byte{b}
			}
		}
		return []byte(string(ev.Rune))
	}

	switch ev.Key {
	case KeyEscape:
		return []byte{0x1b}
	case KeyEnter:
		return []byte{'\r'}
	case KeyTab:
		if ev.Shift {
			return []byte("\x1b[Z")
		}
		return []byte{'\t'}
	case KeyBackspace:
		return []byte{0x7f}
	case KeyUp:
		return arrow('A', modes)
	case KeyDown:
		return arrow('B', modes)
	case KeyRight:
		return arrow('C', modes)
	case KeyLeft:
		return arrow('D', modes)
	case KeyHome:
		return arrow('H', modes)
	case KeyEnd:
		return arrow('F', modes)
	case KeyPageUp:
		return []byte("\x1b[5~")
	case KeyPageDown:
		return []byte("\x1b[6~")
	case KeyDelete:
		return []byte("\x1b[3~")
	case KeyInsert:
		return []byte("\x1b[2~")
	}
	return nil
}

// arrow encodes an arrow/Home/End key, using SS3 (ESC O <final>) in
// application cursor-key mode and CSI (ESC [ <final>) otherwise.
func arrow(final byte, modes cellcodec.Modes) []byte {
	if modes.CursorKeyMode == cellcodec.CursorKeyApplication {
		return []byte{0x1b, 'O', final}
	}
	return []byte{0x1b, '[', final}
}

// ctrlByte maps a Ctrl+letter combination to its 0x01..0x1A control byte.
func ctrlByte(r rune) (byte, bool) {
	upper := r
	if upper >= 'a' && upper <= 'z' {
		upper -= 'a' - 'A'
	}
	if upper < 'A' || upper > 'Z' {
		return 0, false
	}
	return byte(upper - 'A' + 1), true
}

// WrapPaste wraps text in bracketed-paste markers for forwarding to a PTY
// that has enabled bracketed paste mode.
func WrapPaste(text string) []byte {
	return []byte("\x1b[200~" + text + "\x1b[201~")
}

// kittyModifierBits maps the event's modifiers to the Kitty keyboard
// protocol's raw modifier bitmask (shift 1, alt 2, ctrl 4, meta 8); the
// caller adds 1 when writing it into a sequence.
func kittyModifierBits(ev Event) int {
	mods := 0
	if ev.Shift {
		mods |= 1
	}
	if ev.Alt {
		mods |= 2
	}
	if ev.Ctrl {
		mods |= 4
	}
	if ev.Meta {
		mods |= 8
	}
	return mods
}

// encodeKitty produces a CSI u sequence per the Kitty keyboard protocol for
// events that benefit from disambiguation (Ctrl/Alt/Meta combinations and
// key-release events); returns ok=false to fall through to legacy encoding
// for plain, unmodified keys.
func encodeKitty(ev Event) ([]byte, bool) {
	mods := kittyModifierBits(ev)
	if mods == 0 && !ev.Release {
		return nil, false
	}

	var code int
	switch {
	case ev.IsPrintable():
		code = int(ev.Rune)
	case ev.Key == KeyEscape:
		code = 27
	case ev.Key == KeyEnter:
		code = 13
	case ev.Key == KeyTab:
		code = 9
	case ev.Key == KeyBackspace:
		code = 127
	default:
		return nil, false
	}

	suffix := "u"
	eventType := ""
	if ev.Release {
		eventType = ":3"
	}
	return []byte(fmt.Sprintf("\x1b[%d;%d%s%s", code, mods+1, eventType, suffix)), true
}

package vtemu

import "termcore/internal/cellcodec"

type modeScanState int

const (
	modeScanNormal modeScanState = iota
	modeScanEsc
	modeScanCSI
)

// modeTracker scans raw PTY-output bytes for DECSET/DECRST private-mode
// sequences and Kitty keyboard protocol flag changes, maintaining the live
// Modes snapshot the Query Responder's DECRQM handler and the emulator's
// on_mode_change observer both read from. It is chunk-safe: a sequence
// split across two Write calls resumes where it left off.
type modeTracker struct {
	state  modeScanState
	prefix byte // '?', '>', '<', '=', or 0
	params []byte
	modes  cellcodec.Modes

	cursorVisible bool
	cursorStyle   cellcodec.CursorStyle
}

func newModeTracker() *modeTracker {
	return &modeTracker{cursorVisible: true}
}

// Feed processes data and returns true if any tracked mode changed.
func (m *modeTracker) Feed(data []byte) bool {
	changed := false
	for _, b := range data {
		switch m.state {
		case modeScanNormal:
			if b == 0x1B {
				m.state = modeScanEsc
			}
		case modeScanEsc:
			if b == '[' {
				m.state = modeScanCSI
				m.prefix = 0
				m.params = m.params[:0]
			} else {
				m.state = modeScanNormal
			}
		case modeScanCSI:
			switch {
			case len(m.params) == 0 && (b == '?' || b == '>' || b == '<' || b == '='):
				m.prefix = b
			case b >= 0x40 && b <= 0x7E:
				if m.applyFinal(b) {
					changed = true
				}
				m.state = modeScanNormal
			default:
				m.params = append(m.params, b)
				if len(m.params) > 256 {
					// Runaway/garbage sequence; bail out rather than grow forever.
					m.state = modeScanNormal
				}
			}
		}
	}
	return changed
}

func (m *modeTracker) applyFinal(final byte) bool {
	before := m.modes
	beforeVisible, beforeStyle := m.cursorVisible, m.cursorStyle
	switch final {
	case 'h', 'l':
		if m.prefix == '?' {
			for _, n := range splitInts(m.params) {
				m.applyDECMode(n, final == 'h')
			}
		}
	case 'u':
		n := firstInt(m.params)
		switch m.prefix {
		case '>':
			m.modes.KittyKeyboard |= uint8(n)
		case '<':
			m.modes.KittyKeyboard = 0
		case '=':
			m.modes.KittyKeyboard = uint8(n)
		}
	case 'q':
		// DECSCUSR: CSI Ps SP q, no prefix. Ps 0/1 blink block, 2 steady
		// block, 3 blink underline, 4 steady underline, 5 blink bar, 6
		// steady bar. Blink vs steady isn't tracked, only the shape.
		if m.prefix == 0 && hasSpaceIntermediate(m.params) {
			switch firstInt(m.params) {
			case 0, 1, 2:
				m.cursorStyle = cellcodec.CursorBlock
			case 3, 4:
				m.cursorStyle = cellcodec.CursorUnderline
			case 5, 6:
				m.cursorStyle = cellcodec.CursorBar
			}
		}
	}
	return before != m.modes || beforeVisible != m.cursorVisible || beforeStyle != m.cursorStyle
}

func (m *modeTracker) applyDECMode(n int, set bool) {
	switch n {
	case 1:
		if set {
			m.modes.CursorKeyMode = cellcodec.CursorKeyApplication
		} else {
			m.modes.CursorKeyMode = cellcodec.CursorKeyNormal
		}
	case 25:
		m.cursorVisible = set
	case 47, 1047, 1049:
		m.modes.AlternateScreen = set
	case 1000, 1002, 1003:
		if set {
			m.modes.MouseTracking = n
		} else if m.modes.MouseTracking == n {
			m.modes.MouseTracking = 0
		}
	case 2048:
		m.modes.InBandResize = set
	}
}

func hasSpaceIntermediate(params []byte) bool {
	for _, b := range params {
		if b == ' ' {
			return true
		}
	}
	return false
}

func (m *modeTracker) Modes() cellcodec.Modes {
	return m.modes
}

// CursorVisible reports whether DECTCEM (mode 25) last left the cursor
// shown. Defaults to true, matching a freshly spawned terminal.
func (m *modeTracker) CursorVisible() bool {
	return m.cursorVisible
}

// CursorStyle reports the shape DECSCUSR last set. Defaults to
// cellcodec.CursorBlock.
func (m *modeTracker) CursorStyle() cellcodec.CursorStyle {
	return m.cursorStyle
}

func splitInts(params []byte) []int {
	var out []int
	cur := 0
	has := false
	for _, b := range params {
		if b == ';' {
			if has {
				out = append(out, cur)
			}
			cur, has = 0, false
			continue
		}
		if b >= '0' && b <= '9' {
			cur = cur*10 + int(b-'0')
			has = true
		}
	}
	if has {
		out = append(out, cur)
	}
	return out
}

func firstInt(params []byte) int {
	ints := splitInts(params)
	if len(ints) == 0 {
		return 1
	}
	return ints[0]
}

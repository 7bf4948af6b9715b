package keyboard

// ScrollWheelHandler recognizes SGR mouse-wheel reports (`ESC[<64;col;rowM`
// for wheel-up, `ESC[<65;col;rowM` for wheel-down, both possibly OR'd with
// modifier bits) in a byte-oriented input stream and turns them into scroll
// actions, the same per-byte escape-scanning style the Query Responder uses
// for its own CSI recognition. Every other byte, including non-wheel SGR
// mouse reports, passes through unchanged: this handler only ever narrows
// the stream, it never invents bytes that weren't in it.
type ScrollWheelHandler struct {
	OnScrollUp   func()
	OnScrollDown func()

	state  wheelState
	raw    []byte
	params []byte
}

type wheelState int

const (
	wheelNormal wheelState = iota
	wheelEsc
	wheelCSI
)

const sgrWheelBit = 64 // bit 6 set marks a wheel event in the SGR Cb field
const sgrWheelDown = 1 // bit 0 distinguishes wheel-down (1) from wheel-up (0)

// Feed scans data for SGR wheel reports, invoking OnScrollUp/OnScrollDown
// for each one found, and returns data with those reports stripped.
func (g *ScrollWheelHandler) Feed(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch g.state {
		case wheelNormal:
			if b == 0x1B {
				g.state = wheelEsc
				g.raw = append(g.raw[:0], b)
				continue
			}
			out = append(out, b)

		case wheelEsc:
			g.raw = append(g.raw, b)
			if b == '[' {
				g.state = wheelCSI
				g.params = g.params[:0]
				continue
			}
			out = append(out, g.raw...)
			g.state = wheelNormal

		case wheelCSI:
			g.raw = append(g.raw, b)
			switch {
			case b == '<' && len(g.params) == 0:
				// SGR mouse prefix; keep collecting.
			case (b >= '0' && b <= '9') || b == ';':
				g.params = append(g.params, b)
			case b == 'M' || b == 'm':
				if !g.dispatchWheel() {
					out = append(out, g.raw...)
				}
				g.state = wheelNormal
			default:
				out = append(out, g.raw...)
				g.state = wheelNormal
			}
		}
	}
	return out
}

// dispatchWheel parses the collected Cb;Cx;Cy params and, if Cb marks a
// wheel event, invokes the matching callback. Returns false (meaning "not a
// wheel report, pass the raw bytes through") for anything else, including
// malformed params.
func (g *ScrollWheelHandler) dispatchWheel() bool {
	cb, ok := firstParam(g.params)
	if !ok || cb&sgrWheelBit == 0 {
		return false
	}
	if cb&sgrWheelDown != 0 {
		if g.OnScrollDown != nil {
			g.OnScrollDown()
		}
	} else if g.OnScrollUp != nil {
		g.OnScrollUp()
	}
	return true
}

func firstParam(params []byte) (int, bool) {
	n := 0
	found := false
	for _, b := range params {
		if b == ';' {
			break
		}
		if b < '0' || b > '9' {
			return 0, false
		}
		n = n*10 + int(b-'0')
		found = true
	}
	return n, found
}

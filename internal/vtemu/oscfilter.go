package vtemu

// strippedOSCCodes are stripped from the stream fed to the emulator's
// parser: 0/1/2 are handled by the title parser separately, 7 is cwd
// reporting, 22/23/9/777 are window/notification chatter the emulator has
// no business acting on.
var strippedOSCCodes = map[int]bool{
	0: true, 1: true, 2: true,
	7:   true,
	9:   true,
	22:  true,
	23:  true,
	777: true,
}

// colorSetCodes are OSC 10/11/12 when used in their "set" form. The query
// form (text starting with '?') is left untouched so a Query Responder
// upstream (or downstream retry) still sees it.
var colorSetCodes = map[int]bool{10: true, 11: true, 12: true}

type oscFilterState int

const (
	oscFilterNormal oscFilterState = iota
	oscFilterEsc
	oscFilterInOSC
	oscFilterInOSCEsc
)

// oscFilterMaxBuffer bounds how long an unterminated OSC sequence is held
// before it is given up on and flushed through verbatim.
const oscFilterMaxBuffer = 8192

// oscFilter strips problematic OSC sequences (spec §4.3) from bytes about
// to be handed to the VT parser, passing everything else through unchanged.
// It buffers a full OSC sequence before deciding whether to strip it, since
// that decision depends on its terminated body.
type oscFilter struct {
	state oscFilterState
	seq   []byte // accumulated bytes of the in-progress OSC sequence, including ESC ]
}

func newOSCFilter() *oscFilter {
	return &oscFilter{}
}

// Feed returns the bytes that should be forwarded to the VT parser.
func (f *oscFilter) Feed(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch f.state {
		case oscFilterNormal:
			if b == 0x1B {
				f.state = oscFilterEsc
				continue
			}
			out = append(out, b)
		case oscFilterEsc:
			if b == ']' {
				f.state = oscFilterInOSC
				f.seq = append(f.seq[:0], 0x1B, ']')
				continue
			}
			out = append(out, 0x1B, b)
			f.state = oscFilterNormal
		case oscFilterInOSC:
			f.seq = append(f.seq, b)
			if b == 0x07 {
				out = append(out, f.flush()...)
				f.state = oscFilterNormal
			} else if b == 0x1B {
				f.state = oscFilterInOSCEsc
			} else if len(f.seq) > oscFilterMaxBuffer {
				out = append(out, f.seq...)
				f.seq = f.seq[:0]
				f.state = oscFilterNormal
			}
		case oscFilterInOSCEsc:
			f.seq = append(f.seq, b)
			if b == '\\' {
				out = append(out, f.flush()...)
				f.state = oscFilterNormal
			} else if b == 0x1B {
				f.state = oscFilterInOSCEsc
			} else {
				f.state = oscFilterInOSC
			}
		}
	}
	return out
}

// flush decides whether the accumulated OSC sequence should be stripped or
// passed through, and returns the bytes to forward (possibly none).
func (f *oscFilter) flush() []byte {
	seq := f.seq
	f.seq = nil
	body := seq[2:] // past ESC ]
	// Trim the terminator for code parsing.
	switch {
	case len(body) >= 1 && body[len(body)-1] == 0x07:
		body = body[:len(body)-1]
	case len(body) >= 2 && body[len(body)-2] == 0x1B && body[len(body)-1] == '\\':
		body = body[:len(body)-2]
	}
	code := 0
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		code = code*10 + int(body[i]-'0')
		i++
	}
	if i == 0 {
		return seq // not numeric, pass through unchanged
	}
	if colorSetCodes[code] {
		text := ""
		if i < len(body) && body[i] == ';' {
			text = string(body[i+1:])
		}
		if len(text) > 0 && text[0] == '?' {
			return seq // query form, preserve
		}
		return nil
	}
	if strippedOSCCodes[code] {
		return nil
	}
	return seq
}

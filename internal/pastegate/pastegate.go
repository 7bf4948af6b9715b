// Package pastegate intercepts the host's stdin before any other consumer,
// recognising bracketed-paste markers and the OSC 997 color-scheme report,
// so that a burst of pasted text never reaches the keyboard router as
// individual keystrokes.
package pastegate

import "bytes"

var (
	pasteStart = []byte("\x1b[200~")
	pasteEnd   = []byte("\x1b[201~")
)

// Scheme is the reported terminal color scheme.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeLight
	SchemeDark
)

// ClipboardFunc reads the current clipboard contents, triggered when the
// host signals the start of a bracketed paste.
type ClipboardFunc func() string

// Gate is a streaming bracketed-paste and color-scheme-report filter.
type Gate struct {
	clipboard ClipboardFunc
	onPaste   func(string)
	onScheme  func(Scheme)

	inPaste bool
	pending []byte // holds a partial prefix straddling a chunk boundary
}

// New returns a Gate that calls clipboard() and onPaste(text) once per
// paste, and onScheme(s) whenever a color-scheme report arrives.
func New(clipboard ClipboardFunc, onPaste func(string), onScheme func(Scheme)) *Gate {
	return &Gate{clipboard: clipboard, onPaste: onPaste, onScheme: onScheme}
}

// Feed processes a chunk of raw host stdin and returns the bytes that
// should continue on to the keyboard router: paste payloads and
// color-scheme reports are swallowed entirely.
func (g *Gate) Feed(data []byte) []byte {
	buf := append(g.pending, data...)
	g.pending = nil
	var out []byte

	for len(buf) > 0 {
		if g.inPaste {
			idx := bytes.Index(buf, pasteEnd)
			if idx < 0 {
				// Still inside the paste; swallow everything except a
				// trailing partial terminator, which may complete next Feed.
				if n := partialPrefixLen(buf, pasteEnd); n > 0 {
					g.pending = buf[len(buf)-n:]
				}
				return out
			}
			g.inPaste = false
			buf = buf[idx+len(pasteEnd):]
			continue
		}

		pasteIdx := bytes.Index(buf, pasteStart)
		scan := buf
		if pasteIdx >= 0 {
			scan = buf[:pasteIdx]
		}
		if idx, ok := g.findScheme(scan); ok {
			out = append(out, buf[:idx.start]...)
			buf = buf[idx.end:]
			continue
		}
		if n := schemePartialSuffixLen(buf); n > 0 && pasteIdx < 0 {
			out = append(out, buf[:len(buf)-n]...)
			g.pending = buf[len(buf)-n:]
			return out
		}

		if pasteIdx >= 0 {
			out = append(out, buf[:pasteIdx]...)
			buf = buf[pasteIdx+len(pasteStart):]
			g.inPaste = true
			if g.clipboard != nil && g.onPaste != nil {
				g.onPaste(g.clipboard())
			}
			continue
		}
		if n := partialPrefixLen(buf, pasteStart); n > 0 {
			out = append(out, buf[:len(buf)-n]...)
			g.pending = buf[len(buf)-n:]
			return out
		}

		out = append(out, buf...)
		buf = nil
	}
	return out
}

var schemeMarkers = [][]byte{
	[]byte("\x1b[?997;1n"),
	[]byte("\x1b[?997;2n"),
}

type schemeMatch struct{ start, end int }

// findScheme locates a complete "ESC[?997;{1|2}n" report in buf.
func (g *Gate) findScheme(buf []byte) (schemeMatch, bool) {
	for i, marker := range schemeMarkers {
		idx := bytes.Index(buf, marker)
		if idx < 0 {
			continue
		}
		if g.onScheme != nil {
			if i == 0 {
				g.onScheme(SchemeLight)
			} else {
				g.onScheme(SchemeDark)
			}
		}
		return schemeMatch{start: idx, end: idx + len(marker)}, true
	}
	return schemeMatch{}, false
}

// schemePartialSuffixLen returns the length of the longest suffix of buf
// that is a strict, non-empty prefix of any scheme marker.
func schemePartialSuffixLen(buf []byte) int {
	best := 0
	for _, marker := range schemeMarkers {
		if n := partialPrefixLen(buf, marker); n > best {
			best = n
		}
	}
	return best
}

// partialPrefixLen returns the length of the longest suffix of buf that is
// a strict, non-empty prefix of marker.
func partialPrefixLen(buf, marker []byte) int {
	max := len(marker) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for n := max; n > 0; n-- {
		if bytes.Equal(buf[len(buf)-n:], marker[:n]) {
			return n
		}
	}
	return 0
}

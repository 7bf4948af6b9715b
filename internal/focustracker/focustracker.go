// Package focustracker maintains host focus state from the input stream
// (ESC[I focus-in / ESC[O focus-out) and computes which pane, if any,
// should receive synthesized focus-in/focus-out events.
package focustracker

import "bytes"

const ringCapacity = 8

var (
	focusIn  = []byte("\x1b[I")
	focusOut = []byte("\x1b[O")
)

// Tracker dispatches focus-in/focus-out to the currently focused pane as
// host focus and the focused pane id change.
type Tracker struct {
	onFocusOut func(ptyID string)
	onFocusIn  func(ptyID string)

	hostFocused    *bool // nil until the first report arrives; suppressed until then
	focusedPtyID   string
	lastDispatched string // "" means no pane currently holds dispatched focus
	haveLast       bool

	ring []byte // partial report bytes carried across Feed calls, ≤ ringCapacity
}

// New returns a Tracker that calls onFocusOut/onFocusIn as the effective
// focus target changes.
func New(onFocusOut, onFocusIn func(ptyID string)) *Tracker {
	return &Tracker{onFocusOut: onFocusOut, onFocusIn: onFocusIn}
}

// SetFocusedPty records which pane is the current candidate for focus; the
// tracker only dispatches to it once the host itself reports focus.
func (t *Tracker) SetFocusedPty(ptyID string) {
	t.focusedPtyID = ptyID
	t.recompute()
}

// Feed scans a chunk of host stdin for focus-in/focus-out reports and
// updates hostFocused accordingly. Bytes that aren't part of a report are
// not consumed by this function; callers typically run it ahead of the
// keyboard router on the same raw stream.
func (t *Tracker) Feed(data []byte) {
	buf := append(t.ring, data...)
	t.ring = nil

	for len(buf) > 0 {
		if idx := bytes.Index(buf, focusIn); idx == 0 {
			t.setHostFocused(true)
			buf = buf[len(focusIn):]
			continue
		}
		if idx := bytes.Index(buf, focusOut); idx == 0 {
			t.setHostFocused(false)
			buf = buf[len(focusOut):]
			continue
		}
		// Not a report at the start of buf; advance one byte and retry,
		// except near the tail where a partial report might still complete.
		if n := partialPrefixLen(buf, focusIn); n > 0 && n == len(buf) {
			t.ring = buf
			return
		}
		if n := partialPrefixLen(buf, focusOut); n > 0 && n == len(buf) {
			t.ring = buf
			return
		}
		buf = buf[1:]
	}
	if len(t.ring) > ringCapacity {
		t.ring = t.ring[len(t.ring)-ringCapacity:]
	}
}

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

func (t *Tracker) setHostFocused(v bool) {
	t.hostFocused = &v
	t.recompute()
}

// recompute computes effective = hostFocused ? focusedPtyId : "" and
// dispatches focus-out/focus-in if it differs from the last dispatched
// value. Per the spec's open-question resolution, focus events are
// suppressed entirely until hostFocused has been reported at least once.
func (t *Tracker) recompute() {
	if t.hostFocused == nil {
		return
	}
	effective := ""
	if *t.hostFocused {
		effective = t.focusedPtyID
	}
	if t.haveLast && effective == t.lastDispatched {
		return
	}
	if t.haveLast && t.lastDispatched != "" && t.onFocusOut != nil {
		t.onFocusOut(t.lastDispatched)
	}
	if effective != "" && t.onFocusIn != nil {
		t.onFocusIn(effective)
	}
	t.lastDispatched = effective
	t.haveLast = true
}

package keyboard

import "time"

// VimSequence maps an ordered combo prefix to the action it fires once
// fully matched, e.g. {Combo: []string{"g", "g"}, Action: "top"}.
type VimSequence struct {
	Combo  []string
	Action string
}

// VimResult is the structural outcome of feeding one combo to the matcher.
type VimResult struct {
	Action  string // "" if nothing fired
	Pending bool
}

// VimMatcher holds a normalized buffer and timeout timer, matching combos
// against a configured set of VimSequences.
type VimMatcher struct {
	sequences []VimSequence
	timeoutMs int

	buffer []string
	timer  *time.Timer
}

// NewVimMatcher returns a matcher for the given sequences with the given
// pending-key timeout in milliseconds. A timeoutMs <= 0 disables the timer:
// pending state persists until the next combo resolves it.
func NewVimMatcher(sequences []VimSequence, timeoutMs int) *VimMatcher {
	return &VimMatcher{sequences: sequences, timeoutMs: timeoutMs}
}

// Feed appends combo to the buffer and evaluates it against the configured
// sequences.
func (m *VimMatcher) Feed(combo string) VimResult {
	candidate := append(append([]string(nil), m.buffer...), combo)

	if action, ok := m.exactMatch(candidate); ok {
		m.reset()
		return VimResult{Action: action}
	}
	if m.anyPrefixedBy(candidate) {
		m.buffer = candidate
		m.restartTimer()
		return VimResult{Pending: true}
	}
	if len(m.buffer) > 0 {
		m.reset()
		return m.Feed(combo)
	}
	m.reset()
	return VimResult{}
}

// Reset clears the buffer and cancels the pending timer.
func (m *VimMatcher) Reset() {
	m.reset()
}

func (m *VimMatcher) reset() {
	m.buffer = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *VimMatcher) restartTimer() {
	if m.timer != nil {
		m.timer.Stop()
	}
	if m.timeoutMs <= 0 {
		m.timer = nil
		return
	}
	m.timer = time.AfterFunc(time.Duration(m.timeoutMs)*time.Millisecond, func() {
		m.reset()
	})
}

func (m *VimMatcher) exactMatch(candidate []string) (string, bool) {
	for _, seq := range m.sequences {
		if comboEqual(seq.Combo, candidate) {
			return seq.Action, true
		}
	}
	return "", false
}

func (m *VimMatcher) anyPrefixedBy(candidate []string) bool {
	for _, seq := range m.sequences {
		if len(candidate) >= len(seq.Combo) {
			continue
		}
		if comboEqual(seq.Combo[:len(candidate)], candidate) {
			return true
		}
	}
	return false
}

func comboEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package keyboard

import (
	"termcore/internal/cellcodec"
)

// Mode is the router's modal state.
type Mode int

const (
	ModeNormal Mode = iota
	ModeInsert
)

// Overlay is a UI layer that can claim an event before default routing.
// IsActive is checked first; if it returns false the overlay is skipped.
// Close, if set, is invoked when normal-mode escape reaches an active
// overlay without Handle having claimed it — the overlay's dismissal path.
type Overlay struct {
	Name     string
	IsActive func() bool
	Handle   func(ev Event) bool
	Close    func()
}

// SearchBindings names the key each search-mode action is bound to.
type SearchBindings struct {
	Cancel  Event
	Confirm Event
	Next    Event
	Prev    Event
	Delete  Event
}

// SearchHandler implements search-mode input per spec's rule: bound keys
// trigger named actions, printable runes append to the query, everything
// else is silently consumed.
type SearchHandler struct {
	Bindings SearchBindings
	OnCancel func()
	OnConfirm func(query string)
	OnNext    func()
	OnPrev    func()

	Active bool
	Query  string
}

func eventEqual(a, b Event) bool {
	return a.Key == b.Key && a.Rune == b.Rune && a.Ctrl == b.Ctrl && a.Alt == b.Alt && a.Shift == b.Shift
}

// Handle consumes ev if search mode is active, returning true if it did.
func (s *SearchHandler) Handle(ev Event) bool {
	if !s.Active {
		return false
	}
	switch {
	case eventEqual(ev, s.Bindings.Cancel):
		s.Active = false
		s.Query = ""
		if s.OnCancel != nil {
			s.OnCancel()
		}
	case eventEqual(ev, s.Bindings.Confirm):
		s.Active = false
		if s.OnConfirm != nil {
			s.OnConfirm(s.Query)
		}
	case eventEqual(ev, s.Bindings.Next):
		if s.OnNext != nil {
			s.OnNext()
		}
	case eventEqual(ev, s.Bindings.Prev):
		if s.OnPrev != nil {
			s.OnPrev()
		}
	case eventEqual(ev, s.Bindings.Delete):
		if len(s.Query) > 0 {
			s.Query = s.Query[:len(s.Query)-1]
		}
	case ev.IsPrintable():
		s.Query += string(ev.Rune)
	}
	return true
}

// Command is one global multiplexer-command-layer binding.
type Command struct {
	Binding Event
	Handle  func() bool // returns handled
}

// PTYWriter writes encoded bytes to the currently focused pane.
type PTYWriter func(data []byte)

// Router dispatches one key event through the overlay stack, search mode,
// the multiplexer command layer, and finally the normal-mode encoder.
type Router struct {
	overlays []Overlay
	search   *SearchHandler
	commands []Command

	modes   func() cellcodec.Modes
	write   PTYWriter
	onClearSelection func()

	mode    Mode
	matcher *VimMatcher
	vimOn   bool
}

// NewRouter wires a router to the focused pane's live modes and a writer
// that forwards encoded bytes to it.
func NewRouter(modes func() cellcodec.Modes, write PTYWriter) *Router {
	return &Router{modes: modes, write: write, mode: ModeNormal}
}

// SetSearchHandler installs the search-mode handler.
func (r *Router) SetSearchHandler(s *SearchHandler) { r.search = s }

// AddOverlay registers an overlay; overlays are checked in registration
// order and the first active one to claim the event wins.
func (r *Router) AddOverlay(o Overlay) { r.overlays = append(r.overlays, o) }

// SetCommands installs the multiplexer command layer's global bindings.
func (r *Router) SetCommands(cmds []Command) { r.commands = cmds }

// EnableVim turns on the overlay-vim sequence matcher for search/overlay
// consultation.
func (r *Router) EnableVim(sequences []VimSequence, timeoutMs int) {
	r.vimOn = true
	r.matcher = NewVimMatcher(sequences, timeoutMs)
}

// OnClearSelection is called whenever a non-release event reaches normal
// forwarding, per the spec's selection-clearing rule.
func (r *Router) OnClearSelection(fn func()) { r.onClearSelection = fn }

// Mode returns the router's current modal state.
func (r *Router) Mode() Mode { return r.mode }

// VimFeed lets an overlay or the search handler consult the Vim Sequence
// Matcher for combo, when overlay-vim mode is enabled. ok is false if vim
// mode was never enabled via EnableVim.
func (r *Router) VimFeed(combo string) (result VimResult, ok bool) {
	if !r.vimOn || r.matcher == nil {
		return VimResult{}, false
	}
	return r.matcher.Feed(combo), true
}

// Route dispatches ev through the pipeline. It returns true if the event
// was consumed by an overlay, search mode, or a command; false means it
// fell through to normal forwarding (or was dropped, e.g. no PTY focused).
func (r *Router) Route(ev Event) bool {
	var active *Overlay
	for i := range r.overlays {
		o := &r.overlays[i]
		if o.IsActive == nil || !o.IsActive() {
			continue
		}
		if o.Handle != nil && o.Handle(ev) {
			return true
		}
		if active == nil {
			active = o
		}
	}

	// Normal-mode escape closes the active overlay when the overlay itself
	// didn't already claim the event above.
	if r.mode == ModeNormal && ev.Key == KeyEscape && active != nil && active.Close != nil {
		active.Close()
		return true
	}

	if r.search != nil && r.search.Handle(ev) {
		return true
	}

	if r.mode == ModeNormal && ev.IsPrintable() && ev.Rune == 'i' && !ev.Ctrl && !ev.Alt {
		r.mode = ModeInsert
		return true
	}
	if r.mode == ModeInsert && ev.Key == KeyEscape {
		r.mode = ModeNormal
		if r.matcher != nil {
			r.matcher.Reset()
		}
		return true
	}

	for _, c := range r.commands {
		if eventEqual(ev, c.Binding) && c.Handle != nil {
			if c.Handle() {
				return true
			}
		}
	}

	r.forward(ev)
	return false
}

// forward encodes ev for the focused emulator and writes it into the PTY.
func (r *Router) forward(ev Event) {
	if !ev.Release && r.onClearSelection != nil {
		r.onClearSelection()
	}
	if r.write == nil || r.modes == nil {
		return
	}
	b := Encode(ev, r.modes())
	if len(b) > 0 {
		r.write(b)
	}
}

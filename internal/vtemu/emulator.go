// Package vtemu wraps midterm.Terminal, the VT100/xterm/DEC parser the
// teacher depends on, with the dirty-tracking, title-extraction, mode
// bookkeeping, and scrollback-feeding contract the host core needs from it.
package vtemu

import (
	"fmt"
	"sync"

	"github.com/vito/midterm"

	"termcore/internal/cellcodec"
	"termcore/internal/scrollback"
	"termcore/internal/titleparser"
)

// Colors is the foreground/background palette passed to Emulator.SetColors.
type Colors struct {
	Foreground [3]uint8
	Background [3]uint8
}

type dirtyState int

const (
	dirtyNone dirtyState = iota
	dirtyPartial
	dirtyFull
)

// Emulator owns one midterm.Terminal, its title parser, its mode tracker,
// and the scrollback ring/line-cache pair it feeds on scroll-off.
type Emulator struct {
	mu sync.Mutex

	vt    *midterm.Terminal
	title *titleparser.Parser
	osc   *oscFilter
	modes *modeTracker

	ring  *scrollback.Ring
	cache *scrollback.LineCache

	cols, rows int
	colors     Colors

	lastSnapshot []cellcodec.Row
	dirtyRows    map[int]bool
	dirty        dirtyState
	haveSnapshot bool

	updatesEnabled       bool
	changedWhileSuspended bool

	lastTitle    string
	lastModes    cellcodec.Modes
	haveModes    bool
	disposed     bool

	onTitleChange func(string)
	onUpdate      func()
	onModeChange  func(cellcodec.Modes)
}

// New creates an Emulator for a cols x rows grid, backed by a fresh
// midterm.Terminal and a scrollback ring of the given line limit.
func New(cols, rows, scrollbackLimit int) *Emulator {
	e := &Emulator{
		vt:             midterm.NewTerminal(rows, cols),
		title:          titleparser.New(nil),
		osc:            newOSCFilter(),
		modes:          newModeTracker(),
		ring:           scrollback.NewRing(scrollbackLimit),
		cache:          scrollback.NewLineCache(),
		cols:           cols,
		rows:           rows,
		dirtyRows:      make(map[int]bool),
		updatesEnabled: true,
	}
	e.title = titleparser.New(func(t string) { e.handleTitle(t) })
	e.vt.OnScrollback(func(line midterm.Line) {
		e.handleScrollback(line)
	})
	return e
}

// OnTitleChange registers the observer fired when the window title changes.
func (e *Emulator) OnTitleChange(fn func(string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTitleChange = fn
}

// OnUpdate registers the observer fired after a Write that produced a
// visible change, while updates are enabled.
func (e *Emulator) OnUpdate(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = fn
}

// OnModeChange registers the observer fired when alternate-screen, mouse
// tracking, cursor-key mode, or in-band-resize state changes.
func (e *Emulator) OnModeChange(fn func(cellcodec.Modes)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onModeChange = fn
}

func (e *Emulator) handleTitle(t string) {
	e.mu.Lock()
	changed := t != e.lastTitle
	if changed {
		e.lastTitle = t
	}
	cb := e.onTitleChange
	e.mu.Unlock()
	if changed && cb != nil {
		cb(t)
	}
}

func (e *Emulator) handleScrollback(line midterm.Line) {
	row := parseANSILine(line.Display(), e.cols)
	e.mu.Lock()
	e.ring.Append(row, false)
	e.cache.Invalidate()
	e.mu.Unlock()
}

// Write parses incremental PTY output. It never blocks and never returns an
// error: malformed bytes are recoverable, per spec, and are simply absorbed.
// Observers fire synchronously, after the internal lock is released, so
// callers see them in the same order the underlying writes occurred.
func (e *Emulator) Write(p []byte) {
	e.mu.Lock()

	if e.disposed {
		e.mu.Unlock()
		return
	}

	e.title.Feed(p)
	forwarded := e.osc.Feed(p)
	modesChanged := e.modes.Feed(forwarded)

	func() {
		defer func() {
			if r := recover(); r != nil {
				// midterm parse errors are recoverable: drop the bytes, keep running.
				_ = r
			}
		}()
		e.vt.Write(forwarded)
	}()

	fireUpdate := e.noteChangeLocked()

	var fireMode func(cellcodec.Modes)
	var modeArg cellcodec.Modes
	if modesChanged {
		cur := e.modes.Modes()
		if !e.haveModes || cur != e.lastModes {
			if !e.haveModes || cur.AlternateScreen != e.lastModes.AlternateScreen {
				// Alternate-screen toggle in either direction invalidates
				// the line cache: rows at cached offsets may now refer to
				// a different screen's content.
				e.cache.Invalidate()
			}
			e.haveModes = true
			e.lastModes = cur
			fireMode, modeArg = e.onModeChange, cur
		}
	}
	updateCB := e.onUpdate
	e.mu.Unlock()

	if fireUpdate && updateCB != nil {
		updateCB()
	}
	if fireMode != nil {
		fireMode(modeArg)
	}
}

// noteChangeLocked must be called with mu held. It diffs the live grid
// against the last captured snapshot to compute newly dirty rows, since
// midterm's API surface does not expose its own per-row dirty bitmap. It
// returns whether on_update should fire once the lock is released.
func (e *Emulator) noteChangeLocked() bool {
	if e.dirty == dirtyFull {
		if e.updatesEnabled {
			return true
		}
		e.changedWhileSuspended = true
		return false
	}
	if len(e.lastSnapshot) != e.rows {
		e.lastSnapshot = make([]cellcodec.Row, e.rows)
		e.haveSnapshot = false
	}
	changedAny := false
	for y := 0; y < e.rows; y++ {
		row := e.rowCells(y)
		if !e.haveSnapshot || !rowsEqual(row, e.lastSnapshot[y]) {
			e.dirtyRows[y] = true
			changedAny = true
		}
		e.lastSnapshot[y] = row
	}
	e.haveSnapshot = true
	if !changedAny {
		return false
	}
	if e.dirty == dirtyNone {
		e.dirty = dirtyPartial
	}
	if !e.updatesEnabled {
		e.changedWhileSuspended = true
		return false
	}
	return true
}

func rowsEqual(a, b cellcodec.Row) bool {
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

// rowCells extracts row y of the live grid as packed cells, using
// Format.Regions to recover per-region style the way RenderLineFrom does.
func (e *Emulator) rowCells(y int) cellcodec.Row {
	if y >= len(e.vt.Content) {
		return make(cellcodec.Row, e.cols)
	}
	line := e.vt.Content[y]
	cells := make(cellcodec.Row, 0, e.cols)
	pos := 0
	for region := range e.vt.Format.Regions(y) {
		cell := formatToCell(region.F)
		end := pos + region.Size
		for x := pos; x < end && len(cells) < e.cols; x++ {
			c := cell
			if x < len(line) {
				c.Rune = line[x]
			} else {
				c.Rune = ' '
			}
			sanitizeCell(&c)
			cells = append(cells, c)
		}
		pos = end
	}
	for len(cells) < e.cols {
		cells = append(cells, cellcodec.Cell{Rune: ' ', Width: 1})
	}
	if len(cells) > e.cols {
		cells = cells[:e.cols]
	}
	return cells
}

// formatToCell extracts style attributes from a midterm.Format by rendering
// its SGR escape and running it through the same parser scrollback lines
// use, since Format exposes no structured accessor beyond Render().
func formatToCell(f midterm.Format) cellcodec.Cell {
	row := parseANSILine(f.Render()+" ", 1)
	if len(row) == 0 {
		return cellcodec.Cell{Width: 1}
	}
	c := row[0]
	c.Rune = 0
	return c
}

// Resize reflows the grid. The scrollback ring is untouched; only the line
// cache (which memoizes rendered lines at the old width) is invalidated.
func (e *Emulator) Resize(cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.cols, e.rows = cols, rows
	e.vt.Resize(rows, cols)
	e.cache.Invalidate()
	e.dirty = dirtyFull
	e.haveSnapshot = false
}

// SetPixelSize is a no-op: midterm has no pixel-size concept of its own,
// and the requested size is not recorded.
func (e *Emulator) SetPixelSize(w, h int) {}

// Reset performs a hard reset: writes ESC c, clears the title, and drops
// the line cache.
func (e *Emulator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.vt.Write([]byte("\033c"))
	e.title.Reset()
	e.lastTitle = ""
	e.cache.Invalidate()
	e.dirty = dirtyFull
	e.haveSnapshot = false
}

// SetUpdateEnabled suspends or resumes on_update dispatch. Re-enabling
// forces a full refresh if anything changed while suspended.
func (e *Emulator) SetUpdateEnabled(enabled bool) {
	e.mu.Lock()
	e.updatesEnabled = enabled
	fire := false
	if enabled && e.changedWhileSuspended {
		e.dirty = dirtyFull
		e.changedWhileSuspended = false
		fire = true
	}
	cb := e.onUpdate
	e.mu.Unlock()
	if fire && cb != nil {
		cb()
	}
}

// SetColors stores the palette, drops the scrollback line cache, and forces
// a full refresh. It does not remap any colors: cells keep the literal RGB
// values they were parsed with (this module stores literal RGB, not palette
// indices), and default-colored cells keep the built-in default values.
func (e *Emulator) SetColors(c Colors) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.colors = c
	e.cache.Invalidate()
	e.dirty = dirtyFull
}

// GetDirtyUpdate returns the pending update and marks the parser clean.
func (e *Emulator) GetDirtyUpdate(scroll cellcodec.ScrollState) cellcodec.DirtyUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()

	cursor := e.cursor()
	modes := e.modes.Modes()

	if e.dirty == dirtyFull || !e.haveSnapshot {
		state := e.snapshotLocked()
		e.dirty = dirtyNone
		return cellcodec.DirtyUpdate{
			Cursor:    cursor,
			Scroll:    scroll,
			Cols:      e.cols,
			Rows:      e.rows,
			IsFull:    true,
			FullState: &state,
			Modes:     modes,
		}
	}

	rows := make(map[int]cellcodec.Row, len(e.dirtyRows))
	for y := range e.dirtyRows {
		rows[y] = e.lastSnapshot[y]
	}
	e.dirtyRows = make(map[int]bool)
	e.dirty = dirtyNone
	return cellcodec.DirtyUpdate{
		DirtyRows: rows,
		Cursor:    cursor,
		Scroll:    scroll,
		Cols:      e.cols,
		Rows:      e.rows,
		Modes:     modes,
	}
}

// GetTerminalState synthesises a full snapshot.
func (e *Emulator) GetTerminalState() cellcodec.TerminalState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// snapshotLocked must be called with mu held. It rebuilds lastSnapshot from
// the live grid and returns it as a TerminalState.
func (e *Emulator) snapshotLocked() cellcodec.TerminalState {
	cells := make([]cellcodec.Row, e.rows)
	for y := 0; y < e.rows; y++ {
		cells[y] = e.rowCells(y)
	}
	e.lastSnapshot = cells
	e.haveSnapshot = true
	e.dirtyRows = make(map[int]bool)
	return cellcodec.TerminalState{
		Cols:   e.cols,
		Rows:   e.rows,
		Cells:  cells,
		Cursor: e.cursor(),
		Modes:  e.modes.Modes(),
	}
}

func (e *Emulator) cursor() cellcodec.Cursor {
	return cellcodec.Cursor{
		X:       e.vt.Cursor.X,
		Y:       e.vt.Cursor.Y,
		Visible: e.modes.CursorVisible(),
		Style:   e.modes.CursorStyle(),
	}
}

// GetScrollbackLine returns the ring line at offset, consulting the line
// cache first.
func (e *Emulator) GetScrollbackLine(offset int) (cellcodec.Row, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.cache.Get(offset); ok {
		return cached.Row, true
	}
	line, ok := e.ring.Get(offset)
	if !ok {
		return nil, false
	}
	e.cache.Put(offset, line)
	return line.Row, true
}

// ScrollbackLen reports how many lines the ring currently holds.
func (e *Emulator) ScrollbackLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring.Len()
}

// ScrollbackBase reports the absolute offset of the oldest retained line.
func (e *Emulator) ScrollbackBase() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring.BaseOffset()
}

// ScrollbackRange returns up to count ring lines starting at offset.
func (e *Emulator) ScrollbackRange(offset, count int) []scrollback.Line {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring.GetRange(offset, count)
}

// TrimScrollback drops the oldest n scrollback lines and invalidates the
// line cache, per the trim-invalidation rule.
func (e *Emulator) TrimScrollback(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ring.Trim(n)
	e.cache.Invalidate()
}

// Modes returns the live mode snapshot; this is the "live mode-getter" the
// Query Responder's DECRQM handler consults before falling back to defaults.
func (e *Emulator) Modes() cellcodec.Modes {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modes.Modes()
}

// Dispose marks the emulator closed; subsequent operations are no-ops or
// return cached/empty values.
func (e *Emulator) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed = true
}

func (e *Emulator) String() string {
	return fmt.Sprintf("vtemu.Emulator(%dx%d)", e.cols, e.rows)
}

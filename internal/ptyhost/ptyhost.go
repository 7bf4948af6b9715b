// Package ptyhost spawns and owns PTY sessions, each backed by a
// vtemu.Emulator. It exposes create/write/resize/destroy, scroll state,
// scrollback search, and subscription-based notification of updates,
// exits, lifecycle, and title changes. One goroutine per session owns
// that session's PTY read loop and is the sole writer of its emulator,
// the same single-writer-under-a-mutex convention generalized to many
// sessions at once.
package ptyhost

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"termcore/internal/cellcodec"
	"termcore/internal/queryresponder"
	"termcore/internal/vtemu"
)

// PtyWriteTimeout bounds how long Write waits for the guest to drain its
// stdin before reporting the session as hung.
const PtyWriteTimeout = 2 * time.Second

// ErrPTYWriteTimeout is returned by Write when the guest is not reading its
// stdin and the kernel PTY buffer is full.
var ErrPTYWriteTimeout = fmt.Errorf("ptyhost: pty write timed out")

// ErrNotFound is returned by any per-session operation given an unknown id.
var ErrNotFound = fmt.Errorf("ptyhost: session not found")

// defaultScrollbackLimit bounds how many scrollback lines each session
// retains before the oldest are dropped.
const defaultScrollbackLimit = 10000

// Update is delivered to unified subscribers on every dirty change.
type Update struct {
	Dirty cellcodec.DirtyUpdate
	Scroll cellcodec.ScrollState
}

// LifecycleEvent reports a session's creation or destruction.
type LifecycleEvent struct {
	PtyID     string
	Created   bool
	ExitCode  int
	HadExited bool
}

// SearchMatch is one hit within a search result.
type SearchMatch struct {
	Offset   int
	StartCol int
	EndCol   int
}

// SearchResult is the outcome of a scrollback+viewport search.
type SearchResult struct {
	Matches []SearchMatch
	HasMore bool
}

// PaneKey identifies a pane within a multiplexer session.
type PaneKey struct {
	SessionID string
	PaneID    string
}

// session is the host-owned PTY session record.
type session struct {
	id   string
	ptm  *os.File
	cmd  *exec.Cmd
	emu  *vtemu.Emulator
	qr   *queryresponder.Responder

	cwd string
	pid int

	mu           sync.Mutex
	cols, rows   int
	paneX, paneY int
	scrollOffset int
	exited       bool
	exitCode     int
	hung         bool
	lastOutput   time.Time
	title        string

	pendingNotify atomic.Bool

	unifiedSubs []subscription[func(Update)]
	exitSubs    []subscription[func(int)]
	nextSubID   uint64
}

type subscription[F any] struct {
	id uint64
	fn F
}

// Host owns a map of PTY sessions plus lifecycle/title observers shared
// across all of them.
type Host struct {
	mu       sync.Mutex
	sessions map[string]*session

	paneToPty map[PaneKey]string
	ptyToPane map[string]PaneKey

	lifecycleSubs []subscription[func(LifecycleEvent)]
	titleSubs     []subscription[func(ptyID, title string)]
	nextSubID     uint64

	lock *flock.Flock

	shell string

	colorFg [3]uint8
	colorBg [3]uint8
}

// New returns an empty Host. shell is the command spawned for each new
// session; if empty, $SHELL is used, or "/bin/sh" when $SHELL is unset.
func New(shell string) *Host {
	if shell == "" {
		shell = defaultShell()
	}
	return &Host{
		sessions:  make(map[string]*session),
		paneToPty: make(map[PaneKey]string),
		ptyToPane: make(map[string]PaneKey),
		shell:     shell,
		colorFg:   [3]uint8{0, 0, 0},
		colorBg:   [3]uint8{0xff, 0xff, 0xff},
	}
}

// rgbString formats a color as the X11 "rgb:RRRR/GGGG/BBBB" form xterm's
// OSC 10/11 answer-back uses, doubling each byte to a 16-bit channel.
func rgbString(c [3]uint8) string {
	return fmt.Sprintf("rgb:%02x%02x/%02x%02x/%02x%02x", c[0], c[0], c[1], c[1], c[2], c[2])
}

// SetColors updates the palette used for future OSC 10/11 query responses
// and hands it to every live session's emulator (see vtemu.Emulator.SetColors);
// cell colors already held by a session are not remapped.
func (h *Host) SetColors(fg, bg [3]uint8) {
	h.mu.Lock()
	h.colorFg = fg
	h.colorBg = bg
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		s.emu.SetColors(vtemu.Colors{Foreground: fg, Background: bg})
	}
}

func defaultShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	return "/bin/sh"
}

// Lock acquires an advisory single-instance lock on socketDir, guarding the
// narrow race where two host processes start against the same socket path
// concurrently.
func (h *Host) Lock(socketDir string) error {
	if err := os.MkdirAll(socketDir, 0o700); err != nil {
		return fmt.Errorf("ptyhost: create socket dir: %w", err)
	}
	fl := flock.New(filepath.Join(socketDir, "host.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("ptyhost: acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("ptyhost: another host already owns %s", socketDir)
	}
	h.lock = fl
	return nil
}

// Unlock releases the advisory single-instance lock, if held.
func (h *Host) Unlock() error {
	if h.lock == nil {
		return nil
	}
	return h.lock.Unlock()
}

// Create spawns a new PTY session running the host's configured shell.
func (h *Host) Create(cols, rows int, cwd string) (string, error) {
	id := uuid.NewString()

	cmd := exec.Command(h.shell)
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "COLORTERM=truecolor")

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return "", fmt.Errorf("ptyhost: start pty: %w", err)
	}

	resolvedCwd := cwd
	if resolvedCwd == "" {
		resolvedCwd, _ = os.Getwd()
	}

	emu := vtemu.New(cols, rows, defaultScrollbackLimit)
	s := &session{
		id:   id,
		ptm:  ptm,
		cmd:  cmd,
		emu:  emu,
		cols: cols,
		rows: rows,
		cwd:  resolvedCwd,
		pid:  cmd.Process.Pid,
	}
	s.qr = queryresponder.New(ptm, func() (int, int) {
		st := emu.GetTerminalState()
		return st.Cursor.Y, st.Cursor.X
	}, emu.Modes, func() (string, string) {
		h.mu.Lock()
		fg, bg := h.colorFg, h.colorBg
		h.mu.Unlock()
		return rgbString(fg), rgbString(bg)
	}, "termcore", "1.0.0")

	emu.OnUpdate(func() { h.markPending(s) })
	emu.OnModeChange(func(cellcodec.Modes) { h.markPending(s) })
	emu.OnTitleChange(func(title string) {
		s.mu.Lock()
		s.title = title
		s.mu.Unlock()
		h.dispatchTitle(id, title)
	})

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()

	go h.pumpOutput(s)
	go h.waitExit(s)

	h.dispatchLifecycle(LifecycleEvent{PtyID: id, Created: true})
	return id, nil
}

// pumpOutput is the session's sole reader goroutine: it owns s.emu and
// s.ptm exclusively for the session's lifetime.
func (h *Host) pumpOutput(s *session) {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptm.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			forwarded := s.qr.Feed(chunk)
			s.mu.Lock()
			s.lastOutput = time.Now()
			s.mu.Unlock()
			s.emu.Write(forwarded)
		}
		if err != nil {
			return
		}
	}
}

func (h *Host) waitExit(s *session) {
	err := s.cmd.Wait()
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		return
	}
	s.exited = true
	s.exitCode = code
	exitSubs := s.exitSubs
	s.exitSubs = nil
	s.unifiedSubs = nil
	s.mu.Unlock()

	for _, sub := range exitSubs {
		sub.fn(code)
	}

	h.mu.Lock()
	delete(h.sessions, s.id)
	pane, ok := h.ptyToPane[s.id]
	if ok {
		delete(h.ptyToPane, s.id)
		delete(h.paneToPty, pane)
	}
	h.mu.Unlock()

	s.emu.Dispose()
	h.dispatchLifecycle(LifecycleEvent{PtyID: s.id, Created: false, ExitCode: code, HadExited: true})
}

// markPending coalesces notifications: at most one dispatch per tick per
// session, via a non-blocking compare-and-swap test-and-set.
func (h *Host) markPending(s *session) {
	if !s.pendingNotify.CompareAndSwap(false, true) {
		return
	}
	go func() {
		s.pendingNotify.Store(false)
		s.mu.Lock()
		subs := append([]subscription[func(Update)](nil), s.unifiedSubs...)
		offset := s.scrollOffset
		s.mu.Unlock()
		if len(subs) == 0 {
			return
		}
		scroll := h.scrollStateLocked(s, offset)
		u := Update{Dirty: s.emu.GetDirtyUpdate(scroll), Scroll: scroll}
		for _, sub := range subs {
			sub.fn(u)
		}
	}()
}

func (h *Host) scrollStateLocked(s *session, offset int) cellcodec.ScrollState {
	length := s.emu.ScrollbackLen()
	return cellcodec.ScrollState{
		ViewportOffset:      offset,
		ScrollbackLength:    length,
		IsAtBottom:          offset <= 0,
		IsAtScrollbackLimit: offset >= length,
	}
}

func (h *Host) get(id string) (*session, error) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Write sends data to the guest's stdin, enforcing PtyWriteTimeout.
func (h *Host) Write(id string, data []byte) error {
	s, err := h.get(id)
	if err != nil {
		return err
	}
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := s.ptm.Write(data)
		ch <- result{n, err}
	}()
	timer := time.NewTimer(PtyWriteTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err == nil {
			s.mu.Lock()
			s.hung = false
			s.mu.Unlock()
		}
		return r.err
	case <-timer.C:
		s.mu.Lock()
		s.hung = true
		s.mu.Unlock()
		return ErrPTYWriteTimeout
	}
}

// IsHung reports whether the session's last write timed out, i.e. the
// child is not currently reading its stdin.
func (h *Host) IsHung(id string) (bool, error) {
	s, err := h.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hung, nil
}

// idleThreshold mirrors the teacher's status-display idle cutoff.
const idleThreshold = 2 * time.Second

// IdleDuration reports how long the session's child has produced no
// output, or zero if it has never produced any or is within
// idleThreshold.
func (h *Host) IdleDuration(id string) (time.Duration, error) {
	s, err := h.get(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	last := s.lastOutput
	s.mu.Unlock()
	if last.IsZero() {
		return 0, nil
	}
	d := time.Since(last)
	if d < idleThreshold {
		return 0, nil
	}
	return d, nil
}

// Resize reflows a session's emulator and the underlying PTY.
func (h *Host) Resize(id string, cols, rows int) error {
	s, err := h.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	s.emu.Resize(cols, rows)
	return pty.Setsize(s.ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Destroy kills the session's child process. Exit handling (observer
// dispatch, map cleanup, emulator disposal) happens in waitExit.
func (h *Host) Destroy(id string) error {
	s, err := h.get(id)
	if err != nil {
		return err
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return nil
}

// DestroyAll kills every live session.
func (h *Host) DestroyAll() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		_ = h.Destroy(id)
	}
}

// SetPanePosition records a pass-through pane position for graphics-related
// systems external to the core.
func (h *Host) SetPanePosition(id string, x, y int) error {
	s, err := h.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.paneX, s.paneY = x, y
	s.mu.Unlock()
	return nil
}

// GetTerminalState returns a full grid snapshot.
func (h *Host) GetTerminalState(id string) (cellcodec.TerminalState, error) {
	s, err := h.get(id)
	if err != nil {
		return cellcodec.TerminalState{}, err
	}
	return s.emu.GetTerminalState(), nil
}

// GetScrollState returns the session's current viewport scroll position.
func (h *Host) GetScrollState(id string) (cellcodec.ScrollState, error) {
	s, err := h.get(id)
	if err != nil {
		return cellcodec.ScrollState{}, err
	}
	s.mu.Lock()
	offset := s.scrollOffset
	s.mu.Unlock()
	return h.scrollStateLocked(s, offset), nil
}

// SetScrollOffset updates the session's viewport offset into scrollback.
func (h *Host) SetScrollOffset(id string, offset int) error {
	s, err := h.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.scrollOffset = offset
	s.mu.Unlock()
	return nil
}

// ScrollToBottom resets the session's viewport to the live screen.
func (h *Host) ScrollToBottom(id string) error {
	return h.SetScrollOffset(id, 0)
}

func (h *Host) mustScrollbackLen(id string) int {
	s, err := h.get(id)
	if err != nil {
		return 0
	}
	return s.emu.ScrollbackLen()
}

// ScrollbackLine pairs a ring offset with its row content.
type ScrollbackLine struct {
	Offset int
	Row    cellcodec.Row
}

// GetScrollbackLines returns up to count lines starting at startOffset.
func (h *Host) GetScrollbackLines(id string, startOffset, count int) ([]ScrollbackLine, error) {
	s, err := h.get(id)
	if err != nil {
		return nil, err
	}
	lines := s.emu.ScrollbackRange(startOffset, count)
	out := make([]ScrollbackLine, len(lines))
	for i, l := range lines {
		out[i] = ScrollbackLine{Offset: startOffset + i, Row: l.Row}
	}
	return out, nil
}

const defaultSearchLimit = 500

// Search performs a case-insensitive substring search over scrollback
// (oldest to newest) then the live viewport, stopping after limit matches.
func (h *Host) Search(id, query string, limit int) (SearchResult, error) {
	s, err := h.get(id)
	if err != nil {
		return SearchResult{}, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	needle := strings.ToLower(query)
	var result SearchResult

	base := s.emu.ScrollbackBase()
	length := s.emu.ScrollbackLen()
	for offset := base; offset < base+length; offset++ {
		row, ok := s.emu.GetScrollbackLine(offset)
		if !ok {
			continue
		}
		if searchRow(row, needle, offset, &result, limit) {
			return result, nil
		}
	}

	state := s.emu.GetTerminalState()
	for y, row := range state.Cells {
		if searchRow(row, needle, base+length+y, &result, limit) {
			return result, nil
		}
	}
	return result, nil
}

func searchRow(row cellcodec.Row, needle string, offset int, result *SearchResult, limit int) (full bool) {
	text := rowText(row)
	lower := strings.ToLower(text)
	start := 0
	for {
		idx := strings.Index(lower[start:], needle)
		if idx < 0 {
			return false
		}
		col := start + idx
		result.Matches = append(result.Matches, SearchMatch{Offset: offset, StartCol: col, EndCol: col + len(needle)})
		if len(result.Matches) >= limit {
			result.HasMore = true
			return true
		}
		start = col + len(needle)
		if start >= len(lower) {
			return false
		}
	}
}

func rowText(row cellcodec.Row) string {
	var b bytes.Buffer
	for _, c := range row {
		if c.Rune == 0 {
			b.WriteRune(' ')
		} else {
			b.WriteRune(c.Rune)
		}
	}
	return b.String()
}

// SubscribeUnified registers a callback receiving {Dirty, Scroll} on every
// coalesced update. The returned function unsubscribes.
func (h *Host) SubscribeUnified(id string, cb func(Update)) (func(), error) {
	s, err := h.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextSubID++
	subID := s.nextSubID
	s.unifiedSubs = append(s.unifiedSubs, subscription[func(Update)]{id: subID, fn: cb})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unifiedSubs = removeSub(s.unifiedSubs, subID)
	}, nil
}

// OnExit registers a callback fired exactly once when the session's child
// exits. The returned function unsubscribes.
func (h *Host) OnExit(id string, cb func(exitCode int)) (func(), error) {
	s, err := h.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.exited {
		code := s.exitCode
		s.mu.Unlock()
		cb(code)
		return func() {}, nil
	}
	s.nextSubID++
	subID := s.nextSubID
	s.exitSubs = append(s.exitSubs, subscription[func(int)]{id: subID, fn: cb})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.exitSubs = removeSub(s.exitSubs, subID)
	}, nil
}

// SubscribeToLifecycle registers a host-wide created/destroyed observer.
func (h *Host) SubscribeToLifecycle(cb func(LifecycleEvent)) func() {
	h.mu.Lock()
	h.nextSubID++
	id := h.nextSubID
	h.lifecycleSubs = append(h.lifecycleSubs, subscription[func(LifecycleEvent)]{id: id, fn: cb})
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.lifecycleSubs = removeSub(h.lifecycleSubs, id)
	}
}

// SubscribeToAllTitleChanges registers a host-wide title-change observer.
func (h *Host) SubscribeToAllTitleChanges(cb func(ptyID, title string)) func() {
	h.mu.Lock()
	h.nextSubID++
	id := h.nextSubID
	h.titleSubs = append(h.titleSubs, subscription[func(string, string)]{id: id, fn: cb})
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.titleSubs = removeSub(h.titleSubs, id)
	}
}

func (h *Host) dispatchLifecycle(ev LifecycleEvent) {
	h.mu.Lock()
	subs := append([]subscription[func(LifecycleEvent)](nil), h.lifecycleSubs...)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.fn(ev)
	}
}

func (h *Host) dispatchTitle(ptyID, title string) {
	h.mu.Lock()
	subs := append([]subscription[func(string, string)](nil), h.titleSubs...)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.fn(ptyID, title)
	}
}

func removeSub[F any](subs []subscription[F], id uint64) []subscription[F] {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// BindPane records sessionId/paneId -> ptyId and the reverse index.
// Both maps are always touched together so one can never drift from
// the other.
func (h *Host) BindPane(key PaneKey, ptyID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paneToPty[key] = ptyID
	h.ptyToPane[ptyID] = key
}

// UnbindPane removes a pane binding from both index maps.
func (h *Host) UnbindPane(key PaneKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ptyID, ok := h.paneToPty[key]; ok {
		delete(h.paneToPty, key)
		delete(h.ptyToPane, ptyID)
	}
}

// Cwd returns the working directory a session was started in.
func (h *Host) Cwd(id string) (string, error) {
	s, err := h.get(id)
	if err != nil {
		return "", err
	}
	return s.cwd, nil
}

// Pid returns the shell process's pid, used by callers that want to
// inspect its foreground process group (e.g. via /proc).
func (h *Host) Pid(id string) (int, error) {
	s, err := h.get(id)
	if err != nil {
		return 0, err
	}
	return s.pid, nil
}

// Title returns the session's last-known window title.
func (h *Host) Title(id string) (string, error) {
	s, err := h.get(id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title, nil
}

// ListAll returns every live session's id.
func (h *Host) ListAll() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// PaneEntry is one row of a session mapping snapshot.
type PaneEntry struct {
	PaneID string
	PtyID  string
}

// SessionMapping reports a session's live pane bindings and any pane ids
// bound to a pty id that is not a live session ("stale"), such as a pane
// bound after its pty exited. Each stale binding is pruned from the index
// as it's reported, so it surfaces exactly once.
type SessionMapping struct {
	Entries      []PaneEntry
	StalePaneIDs []string
}

// GetSessionMapping returns the live pane->pty bindings for sessionID,
// pruning and reporting any binding whose pty id is not a live session. A
// pty's exit already removes its own binding, so an exit alone leaves
// nothing stale.
func (h *Host) GetSessionMapping(sessionID string) SessionMapping {
	h.mu.Lock()
	defer h.mu.Unlock()
	var entries []PaneEntry
	var stale []string
	for key, ptyID := range h.paneToPty {
		if key.SessionID != sessionID {
			continue
		}
		if _, alive := h.sessions[ptyID]; alive {
			entries = append(entries, PaneEntry{PaneID: key.PaneID, PtyID: ptyID})
		} else {
			stale = append(stale, key.PaneID)
			delete(h.paneToPty, key)
			delete(h.ptyToPane, ptyID)
		}
	}
	return SessionMapping{Entries: entries, StalePaneIDs: stale}
}

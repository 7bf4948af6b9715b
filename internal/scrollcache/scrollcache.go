// Package scrollcache holds the client-side per-pane scroll-state cache.
//
// The cache is mutated from two directions: optimistically, by the scroll
// handlers that react to local user input (PageUp, mouse wheel) before any
// round trip to the host, and authoritatively, by the ScrollState carried on
// every incoming ptyUpdate frame. Both directions write the same entry and
// the last write wins; there is no locking because both happen on the
// client's single event-processing goroutine.
package scrollcache

import "termcore/internal/cellcodec"

// Entry mirrors cellcodec.ScrollState for one pane.
type Entry struct {
	ViewportOffset      int
	ScrollbackLength    int
	IsAtBottom          bool
	IsAtScrollbackLimit bool
}

func fromState(s cellcodec.ScrollState) Entry {
	return Entry{
		ViewportOffset:      s.ViewportOffset,
		ScrollbackLength:    s.ScrollbackLength,
		IsAtBottom:          s.IsAtBottom,
		IsAtScrollbackLimit: s.IsAtScrollbackLimit,
	}
}

// Cache holds one Entry per pty, keyed by ptyId.
type Cache struct {
	entries map[string]Entry
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Get returns the cached entry for ptyID, or a zero Entry (at bottom, no
// history) if nothing has been recorded yet.
func (c *Cache) Get(ptyID string) Entry {
	e, ok := c.entries[ptyID]
	if !ok {
		return Entry{IsAtBottom: true}
	}
	return e
}

// ApplyUpdate overwrites the cached entry with the authoritative scroll
// state carried on a ptyUpdate frame.
func (c *Cache) ApplyUpdate(ptyID string, s cellcodec.ScrollState) {
	c.entries[ptyID] = fromState(s)
}

// Forget drops a pane's entry, e.g. on destroy or exit.
func (c *Cache) Forget(ptyID string) {
	delete(c.entries, ptyID)
}

// ScrollUp moves the viewport offset up (into history) by n lines,
// optimistically, clamping to the cached scrollback length. It returns the
// updated entry so the caller can request a repaint without waiting for the
// host to confirm.
func (c *Cache) ScrollUp(ptyID string, n int) Entry {
	e := c.Get(ptyID)
	e.ViewportOffset += n
	if e.ViewportOffset > e.ScrollbackLength {
		e.ViewportOffset = e.ScrollbackLength
	}
	e.IsAtBottom = e.ViewportOffset == 0
	c.entries[ptyID] = e
	return e
}

// ScrollDown moves the viewport offset down (toward the live tail) by n
// lines, optimistically, clamping at the bottom.
func (c *Cache) ScrollDown(ptyID string, n int) Entry {
	e := c.Get(ptyID)
	e.ViewportOffset -= n
	if e.ViewportOffset < 0 {
		e.ViewportOffset = 0
	}
	e.IsAtBottom = e.ViewportOffset == 0
	c.entries[ptyID] = e
	return e
}

// ScrollToBottom resets the viewport offset to 0, optimistically.
func (c *Cache) ScrollToBottom(ptyID string) Entry {
	e := c.Get(ptyID)
	e.ViewportOffset = 0
	e.IsAtBottom = true
	c.entries[ptyID] = e
	return e
}

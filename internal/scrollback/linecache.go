package scrollback

import "container/list"

// lineCacheCapacity bounds the number of rendered scrollback lines kept in
// memory per pty. Lines outside the cache are re-derived from the Ring's raw
// cells on demand.
const lineCacheCapacity = 1000

type lineCacheEntry struct {
	offset int
	line   Line
}

// LineCache is an LRU cache of rendered scrollback lines keyed by absolute
// ring offset. It exists so that repeated GetScrollbackLine calls over the
// same viewport (the common case while a client scrolls) don't redo the
// cell-to-line conversion on every call. It holds no opinion about how a
// line is produced; callers populate it via Put on a cache miss.
type LineCache struct {
	capacity int
	entries  map[int]*list.Element
	order    *list.List // front = most recently used
}

// NewLineCache returns an empty LineCache bounded to lineCacheCapacity
// entries.
func NewLineCache() *LineCache {
	return &LineCache{
		capacity: lineCacheCapacity,
		entries:  make(map[int]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached line at offset, promoting it to most-recently-used.
func (c *LineCache) Get(offset int) (Line, bool) {
	el, ok := c.entries[offset]
	if !ok {
		return Line{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lineCacheEntry).line, true
}

// Put inserts or updates the cached line at offset, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *LineCache) Put(offset int, line Line) {
	if el, ok := c.entries[offset]; ok {
		el.Value.(*lineCacheEntry).line = line
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&lineCacheEntry{offset: offset, line: line})
	c.entries[offset] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*lineCacheEntry).offset)
		}
	}
}

// Invalidate drops every entry. The emulator calls this whenever previously
// cached lines could render differently or the ring changes: a resize, a
// full reset, a color change, a transition into or out of the alternate
// screen, a trim, and every line appended to the ring.
func (c *LineCache) Invalidate() {
	c.entries = make(map[int]*list.Element)
	c.order.Init()
}

// Len returns the number of entries currently cached.
func (c *LineCache) Len() int {
	return c.order.Len()
}

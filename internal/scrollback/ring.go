// Package scrollback implements the bounded append-only scrollback ring
// and its LRU line cache (spec §4.2).
package scrollback

import "termcore/internal/cellcodec"

// Line is a completed logical row with a wrap flag.
type Line struct {
	Row     cellcodec.Row
	Wrapped bool
}

// Ring is a bounded append-only log of completed lines, addressed by
// absolute offset: the first line ever appended is offset 0, and a line
// keeps its offset for as long as it is retained. Offset 0 is the oldest
// line only until Trim or an over-capacity Append drops lines; after that
// the oldest retained line is at BaseOffset and lower offsets are absent.
type Ring struct {
	limit  int
	lines  []Line
	base   int // absolute offset of lines[0]
}

// NewRing returns a Ring bounded to at most limit lines.
func NewRing(limit int) *Ring {
	if limit <= 0 {
		limit = 1
	}
	return &Ring{limit: limit}
}

// Len returns the number of lines currently held.
func (r *Ring) Len() int {
	return len(r.lines)
}

// BaseOffset returns the absolute offset of the oldest retained line.
func (r *Ring) BaseOffset() int {
	return r.base
}

// Append adds a completed line. If the ring is full, the oldest line is
// dropped and the base offset advances.
func (r *Ring) Append(row cellcodec.Row, wrapped bool) {
	r.lines = append(r.lines, Line{Row: row, Wrapped: wrapped})
	if len(r.lines) > r.limit {
		drop := len(r.lines) - r.limit
		r.lines = r.lines[drop:]
		r.base += drop
	}
}

// Get returns the logical line at absolute offset, or ok=false if the
// offset is out of range (including offsets that have been trimmed away).
func (r *Ring) Get(offset int) (Line, bool) {
	i := offset - r.base
	if i < 0 || i >= len(r.lines) {
		return Line{}, false
	}
	return r.lines[i], true
}

// GetRange returns up to count lines starting at absolute offset, along
// with their absolute offsets.
func (r *Ring) GetRange(offset, count int) []Line {
	if offset < r.base {
		count -= r.base - offset
		offset = r.base
	}
	i := offset - r.base
	if i < 0 || i >= len(r.lines) || count <= 0 {
		return nil
	}
	end := i + count
	if end > len(r.lines) {
		end = len(r.lines)
	}
	out := make([]Line, end-i)
	copy(out, r.lines[i:end])
	return out
}

// Trim drops the oldest n lines. The caller is responsible for passing an
// amount that keeps Len() within whatever bound it wants to maintain; Trim
// itself only clamps against the current length.
func (r *Ring) Trim(n int) {
	if n <= 0 {
		return
	}
	if n > len(r.lines) {
		n = len(r.lines)
	}
	r.lines = r.lines[n:]
	r.base += n
}

// Reset clears the ring entirely, resetting the base offset to 0.
func (r *Ring) Reset() {
	r.lines = nil
	r.base = 0
}

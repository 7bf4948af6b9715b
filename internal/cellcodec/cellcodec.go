// Package cellcodec packs and unpacks the grid-cell wire format shared by
// the VT emulator, the scrollback ring, and the framing protocol.
package cellcodec

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// CellSize is the packed byte size of a single Cell.
const CellSize = 16

// CursorStyle identifies the rendered shape of the terminal cursor.
type CursorStyle uint8

const (
	CursorBlock CursorStyle = iota
	CursorUnderline
	CursorBar
)

// CursorKeyMode selects CSI vs SS3 encoding for the arrow/Home/End keys.
type CursorKeyMode uint8

const (
	CursorKeyNormal CursorKeyMode = iota
	CursorKeyApplication
)

// Flag bits for Cell.Flags.
const (
	FlagBold uint8 = 1 << iota
	FlagItalic
	FlagUnderline
	FlagStrikethrough
	FlagInverse
	FlagBlink
	FlagDim
)

// Cell is a single packed grid cell: a Unicode scalar value, 8-bit RGB
// foreground/background, a style-flag bitmap, a display width, and an
// optional hyperlink id. Sixteen bytes on the wire.
type Cell struct {
	Rune      rune
	FgR, FgG, FgB uint8
	BgR, BgG, BgB uint8
	Flags     uint8
	Width     uint8 // 1 or 2
	Hyperlink uint16
}

// Cursor is a 0-based position within the active viewport.
type Cursor struct {
	X, Y    int
	Visible bool
	Style   CursorStyle
}

// Modes holds the subset of terminal modes the core tracks for mode-change
// notification and key encoding.
type Modes struct {
	AlternateScreen bool
	MouseTracking   int // 0, 1000, 1002, or 1003
	CursorKeyMode   CursorKeyMode
	InBandResize    bool
	KittyKeyboard   uint8
}

// Row is an ordered sequence of cells, one per column.
type Row []Cell

// TerminalState is a full grid snapshot.
type TerminalState struct {
	Cols, Rows int
	Cells      []Row // length Rows, each of length Cols
	Cursor     Cursor
	Modes      Modes
}

// ErrMalformedBuffer is returned when a packed buffer has the wrong length
// or layout to decode.
var ErrMalformedBuffer = fmt.Errorf("cellcodec: malformed buffer")

// PackCell writes one cell's 16-byte wire representation into dst, which
// must be at least CellSize bytes.
func PackCell(dst []byte, c Cell) {
	_ = dst[CellSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], uint32(c.Rune))
	dst[4] = c.FgR
	dst[5] = c.FgG
	dst[6] = c.FgB
	dst[7] = c.BgR
	dst[8] = c.BgG
	dst[9] = c.BgB
	dst[10] = c.Flags
	dst[11] = c.Width
	binary.LittleEndian.PutUint16(dst[12:14], c.Hyperlink)
	dst[14] = 0
	dst[15] = 0
}

// UnpackCell decodes one cell from a 16-byte slice.
func UnpackCell(src []byte) Cell {
	_ = src[CellSize-1]
	return Cell{
		Rune:      rune(binary.LittleEndian.Uint32(src[0:4])),
		FgR:       src[4],
		FgG:       src[5],
		FgB:       src[6],
		BgR:       src[7],
		BgG:       src[8],
		BgB:       src[9],
		Flags:     src[10],
		Width:     src[11],
		Hyperlink: binary.LittleEndian.Uint16(src[12:14]),
	}
}

// PackCells packs a slice of cells into a new buffer of len(cells)*CellSize.
func PackCells(cells []Cell) []byte {
	buf := make([]byte, len(cells)*CellSize)
	for i, c := range cells {
		PackCell(buf[i*CellSize:], c)
	}
	return buf
}

// UnpackCells is the exact inverse of PackCells.
func UnpackCells(buf []byte) ([]Cell, error) {
	if len(buf)%CellSize != 0 {
		return nil, ErrMalformedBuffer
	}
	n := len(buf) / CellSize
	cells := make([]Cell, n)
	for i := 0; i < n; i++ {
		cells[i] = UnpackCell(buf[i*CellSize:])
	}
	return cells, nil
}

// PackRow packs a row as a leading u32 length followed by packed cells.
func PackRow(cells []Cell) []byte {
	buf := make([]byte, 4+len(cells)*CellSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(cells)))
	for i, c := range cells {
		PackCell(buf[4+i*CellSize:], c)
	}
	return buf
}

// UnpackRow is the inverse of PackRow.
func UnpackRow(buf []byte) ([]Cell, error) {
	if len(buf) < 4 {
		return nil, ErrMalformedBuffer
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	body := buf[4:]
	if len(body) != n*CellSize {
		return nil, ErrMalformedBuffer
	}
	return UnpackCells(body)
}

// stateHeaderSize is the 28-byte fixed header preceding packed state cells.
const stateHeaderSize = 28

// PackState packs a full TerminalState: 28-byte header + Rows*Cols*16 bytes.
func PackState(s TerminalState) []byte {
	buf := make([]byte, stateHeaderSize+s.Rows*s.Cols*CellSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.Cols))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.Rows))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(s.Cursor.X))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(s.Cursor.Y))
	if s.Cursor.Visible {
		buf[16] = 1
	}
	buf[17] = uint8(s.Cursor.Style)
	if s.Modes.AlternateScreen {
		buf[18] = 1
	}
	buf[19] = mouseTrackingByte(s.Modes.MouseTracking)
	buf[20] = uint8(s.Modes.CursorKeyMode)
	// bytes 21-27 reserved, left zero.

	off := stateHeaderSize
	for y := 0; y < s.Rows; y++ {
		row := rowOrEmpty(s.Cells, y, s.Cols)
		for x := 0; x < s.Cols; x++ {
			PackCell(buf[off:], row[x])
			off += CellSize
		}
	}
	return buf
}

// UnpackState is the exact inverse of PackState.
func UnpackState(buf []byte) (TerminalState, error) {
	if len(buf) < stateHeaderSize {
		return TerminalState{}, ErrMalformedBuffer
	}
	cols := int(binary.LittleEndian.Uint32(buf[0:4]))
	rows := int(binary.LittleEndian.Uint32(buf[4:8]))
	if len(buf) != stateHeaderSize+rows*cols*CellSize {
		return TerminalState{}, ErrMalformedBuffer
	}
	s := TerminalState{
		Cols: cols,
		Rows: rows,
		Cursor: Cursor{
			X:       int(binary.LittleEndian.Uint32(buf[8:12])),
			Y:       int(binary.LittleEndian.Uint32(buf[12:16])),
			Visible: buf[16] != 0,
			Style:   CursorStyle(buf[17]),
		},
		Modes: Modes{
			AlternateScreen: buf[18] != 0,
			MouseTracking:   mouseTrackingFromByte(buf[19]),
			CursorKeyMode:   CursorKeyMode(buf[20]),
		},
	}
	off := stateHeaderSize
	s.Cells = make([]Row, rows)
	for y := 0; y < rows; y++ {
		row := make(Row, cols)
		for x := 0; x < cols; x++ {
			row[x] = UnpackCell(buf[off:])
			off += CellSize
		}
		s.Cells[y] = row
	}
	return s, nil
}

// DirtyUpdate is a minimal delta: changed rows keyed by row index, plus
// cursor/scroll/mode state and an optional full-state fallback.
type DirtyUpdate struct {
	DirtyRows map[int]Row
	Cursor    Cursor
	Scroll    ScrollState
	Cols, Rows int
	IsFull    bool
	FullState *TerminalState
	Modes     Modes
}

// ScrollState describes the client's current scrollback viewport position.
type ScrollState struct {
	ViewportOffset      int
	ScrollbackLength    int
	IsAtBottom          bool
	IsAtScrollbackLimit bool
}

// PackedDirtyUpdate is the wire-shaped decomposition of a DirtyUpdate:
// a packed metadata header plus three payload buffers whose ordering is
// significant: (rowIndices, rowData, fullStateData).
type PackedDirtyUpdate struct {
	Meta          []byte
	RowIndices    []byte // u16 little-endian indices, one per dirty row
	RowData       []byte // concatenated row bodies, no per-row length prefix
	FullStateData []byte // empty unless IsFull
}

// dirtyMetaSize is the fixed-size metadata header: cursor(2*u32+2 bytes) +
// scroll state (2*u32+2 bytes) + cols/rows (2*u32) + isFull(1) + modes(5),
// 34 bytes in use, plus reserved padding to a stable 40 bytes.
const dirtyMetaSize = 40

// PackDirtyUpdate packs a DirtyUpdate per spec: rowData has no per-row
// length prefix — the reader reconstructs rows from Cols.
func PackDirtyUpdate(u DirtyUpdate) PackedDirtyUpdate {
	indices := make([]int, 0, len(u.DirtyRows))
	for idx := range u.DirtyRows {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	rowIndices := make([]byte, len(indices)*2)
	var rowData []byte
	for i, idx := range indices {
		binary.LittleEndian.PutUint16(rowIndices[i*2:], uint16(idx))
		row := u.DirtyRows[idx]
		for _, c := range row {
			var cb [CellSize]byte
			PackCell(cb[:], c)
			rowData = append(rowData, cb[:]...)
		}
	}

	meta := make([]byte, dirtyMetaSize)
	binary.LittleEndian.PutUint32(meta[0:4], uint32(u.Cursor.X))
	binary.LittleEndian.PutUint32(meta[4:8], uint32(u.Cursor.Y))
	if u.Cursor.Visible {
		meta[8] = 1
	}
	meta[9] = uint8(u.Cursor.Style)
	binary.LittleEndian.PutUint32(meta[10:14], uint32(u.Scroll.ViewportOffset))
	binary.LittleEndian.PutUint32(meta[14:18], uint32(u.Scroll.ScrollbackLength))
	if u.Scroll.IsAtBottom {
		meta[18] = 1
	}
	if u.Scroll.IsAtScrollbackLimit {
		meta[19] = 1
	}
	binary.LittleEndian.PutUint32(meta[20:24], uint32(u.Cols))
	binary.LittleEndian.PutUint32(meta[24:28], uint32(u.Rows))
	if u.IsFull {
		meta[28] = 1
	}
	if u.Modes.AlternateScreen {
		meta[29] = 1
	}
	meta[30] = mouseTrackingByte(u.Modes.MouseTracking)
	meta[31] = uint8(u.Modes.CursorKeyMode)
	if u.Modes.InBandResize {
		meta[32] = 1
	}
	meta[33] = u.Modes.KittyKeyboard

	var full []byte
	if u.IsFull && u.FullState != nil {
		full = PackState(*u.FullState)
	}

	return PackedDirtyUpdate{
		Meta:          meta,
		RowIndices:    rowIndices,
		RowData:       rowData,
		FullStateData: full,
	}
}

// UnpackDirtyUpdate is the exact inverse of PackDirtyUpdate.
func UnpackDirtyUpdate(p PackedDirtyUpdate) (DirtyUpdate, error) {
	if len(p.Meta) != dirtyMetaSize {
		return DirtyUpdate{}, ErrMalformedBuffer
	}
	if len(p.RowIndices)%2 != 0 {
		return DirtyUpdate{}, ErrMalformedBuffer
	}

	u := DirtyUpdate{
		Cursor: Cursor{
			X:       int(binary.LittleEndian.Uint32(p.Meta[0:4])),
			Y:       int(binary.LittleEndian.Uint32(p.Meta[4:8])),
			Visible: p.Meta[8] != 0,
			Style:   CursorStyle(p.Meta[9]),
		},
		Scroll: ScrollState{
			ViewportOffset:      int(binary.LittleEndian.Uint32(p.Meta[10:14])),
			ScrollbackLength:    int(binary.LittleEndian.Uint32(p.Meta[14:18])),
			IsAtBottom:          p.Meta[18] != 0,
			IsAtScrollbackLimit: p.Meta[19] != 0,
		},
		Cols:   int(binary.LittleEndian.Uint32(p.Meta[20:24])),
		Rows:   int(binary.LittleEndian.Uint32(p.Meta[24:28])),
		IsFull: p.Meta[28] != 0,
		Modes: Modes{
			AlternateScreen: p.Meta[29] != 0,
			MouseTracking:   mouseTrackingFromByte(p.Meta[30]),
			CursorKeyMode:   CursorKeyMode(p.Meta[31]),
			InBandResize:    p.Meta[32] != 0,
			KittyKeyboard:   p.Meta[33],
		},
	}

	if u.IsFull {
		if len(p.FullStateData) == 0 {
			return DirtyUpdate{}, ErrMalformedBuffer
		}
		st, err := UnpackState(p.FullStateData)
		if err != nil {
			return DirtyUpdate{}, err
		}
		u.FullState = &st
	} else if len(p.FullStateData) != 0 {
		return DirtyUpdate{}, ErrMalformedBuffer
	}

	n := len(p.RowIndices) / 2
	if n == 0 {
		return u, nil
	}
	if u.Cols <= 0 {
		return DirtyUpdate{}, ErrMalformedBuffer
	}
	rowBytes := u.Cols * CellSize
	if len(p.RowData) != n*rowBytes {
		return DirtyUpdate{}, ErrMalformedBuffer
	}
	u.DirtyRows = make(map[int]Row, n)
	for i := 0; i < n; i++ {
		idx := int(binary.LittleEndian.Uint16(p.RowIndices[i*2:]))
		cells, err := UnpackCells(p.RowData[i*rowBytes : (i+1)*rowBytes])
		if err != nil {
			return DirtyUpdate{}, err
		}
		u.DirtyRows[idx] = cells
	}
	return u, nil
}

func rowOrEmpty(cells []Row, y, cols int) Row {
	if y < len(cells) {
		row := cells[y]
		if len(row) == cols {
			return row
		}
	}
	return make(Row, cols)
}

func mouseTrackingByte(mode int) uint8 {
	switch mode {
	case 1000, 1002, 1003:
		return uint8(mode - 999)
	default:
		return 0
	}
}

func mouseTrackingFromByte(b uint8) int {
	switch b {
	case 1, 2, 3:
		return 999 + int(b)
	default:
		return 0
	}
}

package cellcodec

import (
	"reflect"
	"testing"
)

func sampleCells(n int) []Cell {
	cells := make([]Cell, n)
	for i := range cells {
		cells[i] = Cell{
			Rune:      rune('a' + i%26),
			FgR:       uint8(i),
			FgG:       uint8(i * 2),
			FgB:       uint8(i * 3),
			BgR:       uint8(255 - i),
			BgG:       10,
			BgB:       20,
			Flags:     FlagBold | FlagUnderline,
			Width:     1,
			Hyperlink: uint16(i),
		}
	}
	return cells
}

func TestPackUnpackCells_RoundTrip(t *testing.T) {
	cells := sampleCells(40)
	buf := PackCells(cells)
	if len(buf) != len(cells)*CellSize {
		t.Fatalf("packed length = %d, want %d", len(buf), len(cells)*CellSize)
	}
	got, err := UnpackCells(buf)
	if err != nil {
		t.Fatalf("UnpackCells: %v", err)
	}
	if !reflect.DeepEqual(got, cells) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, cells)
	}
}

func TestUnpackCells_MalformedLength(t *testing.T) {
	_, err := UnpackCells(make([]byte, CellSize+1))
	if err != ErrMalformedBuffer {
		t.Fatalf("err = %v, want ErrMalformedBuffer", err)
	}
}

func TestPackUnpackRow_RoundTrip(t *testing.T) {
	cells := sampleCells(10)
	buf := PackRow(cells)
	if len(buf) != 4+len(cells)*CellSize {
		t.Fatalf("packed row length = %d", len(buf))
	}
	got, err := UnpackRow(buf)
	if err != nil {
		t.Fatalf("UnpackRow: %v", err)
	}
	if !reflect.DeepEqual(got, cells) {
		t.Fatalf("round trip mismatch")
	}
}

func TestPackUnpackState_RoundTrip(t *testing.T) {
	rows, cols := 4, 8
	cells := make([]Row, rows)
	for y := range cells {
		cells[y] = sampleCells(cols)
	}
	s := TerminalState{
		Cols:  cols,
		Rows:  rows,
		Cells: cells,
		Cursor: Cursor{
			X: 3, Y: 2, Visible: true, Style: CursorBar,
		},
		Modes: Modes{
			AlternateScreen: true,
			MouseTracking:   1002,
			CursorKeyMode:   CursorKeyApplication,
		},
	}
	buf := PackState(s)
	wantLen := stateHeaderSize + rows*cols*CellSize
	if len(buf) != wantLen {
		t.Fatalf("packed state length = %d, want %d", len(buf), wantLen)
	}
	got, err := UnpackState(buf)
	if err != nil {
		t.Fatalf("UnpackState: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, s)
	}
}

func TestUnpackState_MalformedLength(t *testing.T) {
	_, err := UnpackState([]byte{1, 2, 3})
	if err != ErrMalformedBuffer {
		t.Fatalf("err = %v", err)
	}
}

func TestPackUnpackDirtyUpdate_RoundTrip(t *testing.T) {
	cols := 6
	u := DirtyUpdate{
		DirtyRows: map[int]Row{
			0: sampleCells(cols),
			3: sampleCells(cols),
			7: sampleCells(cols),
		},
		Cursor: Cursor{X: 1, Y: 7, Visible: true, Style: CursorUnderline},
		Scroll: ScrollState{ViewportOffset: 0, ScrollbackLength: 120, IsAtBottom: true},
		Cols:   cols,
		Rows:   24,
		Modes:  Modes{CursorKeyMode: CursorKeyNormal, MouseTracking: 1000},
	}
	packed := PackDirtyUpdate(u)
	if len(packed.RowIndices) != 3*2 {
		t.Fatalf("row indices length = %d", len(packed.RowIndices))
	}
	if len(packed.FullStateData) != 0 {
		t.Fatalf("expected empty full state data for non-full update")
	}

	got, err := UnpackDirtyUpdate(packed)
	if err != nil {
		t.Fatalf("UnpackDirtyUpdate: %v", err)
	}
	if !reflect.DeepEqual(got, u) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, u)
	}
}

func TestPackDirtyUpdate_RowIndicesAreSorted(t *testing.T) {
	u := DirtyUpdate{
		DirtyRows: map[int]Row{5: {}, 1: {}, 9: {}},
		Cols:      0,
	}
	packed := PackDirtyUpdate(u)
	want := []uint16{1, 5, 9}
	for i, w := range want {
		got := uint16(packed.RowIndices[i*2]) | uint16(packed.RowIndices[i*2+1])<<8
		if got != w {
			t.Fatalf("index %d = %d, want %d", i, got, w)
		}
	}
}

func TestPackUnpackDirtyUpdate_FullState(t *testing.T) {
	state := TerminalState{
		Cols: 2, Rows: 1,
		Cells: []Row{sampleCells(2)},
	}
	u := DirtyUpdate{
		IsFull:    true,
		FullState: &state,
		Cols:      2,
		Rows:      1,
	}
	packed := PackDirtyUpdate(u)
	if len(packed.RowData) != 0 {
		t.Fatalf("full update must carry no dirty row data")
	}
	got, err := UnpackDirtyUpdate(packed)
	if err != nil {
		t.Fatalf("UnpackDirtyUpdate: %v", err)
	}
	if !got.IsFull || got.FullState == nil {
		t.Fatalf("expected full state to round-trip")
	}
	if !reflect.DeepEqual(*got.FullState, state) {
		t.Fatalf("full state mismatch:\ngot  %+v\nwant %+v", *got.FullState, state)
	}
}

func TestUnpackDirtyUpdate_FullFlagWithoutDataIsMalformed(t *testing.T) {
	packed := PackedDirtyUpdate{
		Meta: make([]byte, dirtyMetaSize),
	}
	packed.Meta[28] = 1 // IsFull
	if _, err := UnpackDirtyUpdate(packed); err != ErrMalformedBuffer {
		t.Fatalf("err = %v, want ErrMalformedBuffer", err)
	}
}

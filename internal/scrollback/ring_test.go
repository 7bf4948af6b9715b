package scrollback

import "testing"

func TestRing_AppendAndGet(t *testing.T) {
	r := NewRing(3)
	r.Append(nil, false)
	r.Append(nil, true)
	r.Append(nil, false)
	if r.Len() != 3 {
		t.Fatalf("len = %d", r.Len())
	}
	if _, ok := r.Get(0); !ok {
		t.Fatalf("expected offset 0 present")
	}
	line, ok := r.Get(1)
	if !ok || !line.Wrapped {
		t.Fatalf("expected offset 1 wrapped")
	}
}

func TestRing_DropsOldestWhenFull(t *testing.T) {
	r := NewRing(2)
	r.Append(nil, false) // offset 0, will be dropped
	r.Append(nil, false) // offset 1
	r.Append(nil, true)  // offset 2
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
	if r.BaseOffset() != 1 {
		t.Fatalf("base = %d, want 1", r.BaseOffset())
	}
	if _, ok := r.Get(0); ok {
		t.Fatalf("offset 0 should have been dropped")
	}
	line, ok := r.Get(2)
	if !ok || !line.Wrapped {
		t.Fatalf("expected offset 2 present and wrapped")
	}
}

func TestRing_GetOutOfRange(t *testing.T) {
	r := NewRing(5)
	r.Append(nil, false)
	if _, ok := r.Get(5); ok {
		t.Fatalf("expected offset 5 to be absent")
	}
	if _, ok := r.Get(-1); ok {
		t.Fatalf("expected negative offset to be absent")
	}
}

func TestRing_GetRange(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 5; i++ {
		r.Append(nil, i%2 == 0)
	}
	got := r.GetRange(1, 2)
	if len(got) != 2 {
		t.Fatalf("got %d lines, want 2", len(got))
	}
	if got[0].Wrapped != false || got[1].Wrapped != true {
		t.Fatalf("unexpected wrap flags: %+v", got)
	}
}

func TestRing_GetRangeClampsToAvailable(t *testing.T) {
	r := NewRing(10)
	r.Append(nil, false)
	r.Append(nil, false)
	got := r.GetRange(1, 10)
	if len(got) != 1 {
		t.Fatalf("got %d, want 1", len(got))
	}
}

func TestRing_Trim(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 4; i++ {
		r.Append(nil, false)
	}
	r.Trim(2)
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
	if r.BaseOffset() != 2 {
		t.Fatalf("base = %d, want 2", r.BaseOffset())
	}
}

func TestRing_TrimMoreThanLength(t *testing.T) {
	r := NewRing(10)
	r.Append(nil, false)
	r.Trim(100)
	if r.Len() != 0 {
		t.Fatalf("len = %d, want 0", r.Len())
	}
}

func TestRing_Reset(t *testing.T) {
	r := NewRing(10)
	r.Append(nil, false)
	r.Append(nil, false)
	r.Trim(1)
	r.Reset()
	if r.Len() != 0 || r.BaseOffset() != 0 {
		t.Fatalf("expected clean reset, got len=%d base=%d", r.Len(), r.BaseOffset())
	}
}

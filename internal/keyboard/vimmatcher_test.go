package keyboard

import (
	"testing"
	"time"
)

func testSequences() []VimSequence {
	return []VimSequence{
		{Combo: []string{"g", "g"}, Action: "top"},
		{Combo: []string{"g", "e"}, Action: "word-end"},
	}
}

func TestVimMatcher_ExactSingleCombo(t *testing.T) {
	m := NewVimMatcher([]VimSequence{{Combo: []string{"x"}, Action: "cut"}}, 300)
	r := m.Feed("x")
	if r.Action != "cut" || r.Pending {
		t.Fatalf("got %+v", r)
	}
}

func TestVimMatcher_PendingThenFires(t *testing.T) {
	m := NewVimMatcher(testSequences(), 300)
	r1 := m.Feed("g")
	if !r1.Pending || r1.Action != "" {
		t.Fatalf("first feed = %+v", r1)
	}
	r2 := m.Feed("g")
	if r2.Action != "top" {
		t.Fatalf("second feed = %+v", r2)
	}
}

func TestVimMatcher_DifferentSecondComboFires(t *testing.T) {
	m := NewVimMatcher(testSequences(), 300)
	m.Feed("g")
	r := m.Feed("e")
	if r.Action != "word-end" {
		t.Fatalf("got %+v", r)
	}
}

func TestVimMatcher_TimeoutClearsBuffer(t *testing.T) {
	m := NewVimMatcher(testSequences(), 50)
	m.Feed("g")
	time.Sleep(150 * time.Millisecond)
	r := m.Feed("g")
	if !r.Pending || r.Action != "" {
		t.Fatalf("expected fresh pending after timeout, got %+v", r)
	}
}

func TestVimMatcher_NoMatchResetsAndReprocesses(t *testing.T) {
	m := NewVimMatcher(testSequences(), 300)
	m.Feed("g")
	r := m.Feed("z")
	if r.Action != "" || r.Pending {
		t.Fatalf("got %+v", r)
	}
}

func TestVimMatcher_ZeroTimeoutNeverExpires(t *testing.T) {
	m := NewVimMatcher(testSequences(), 0)
	m.Feed("g")
	time.Sleep(50 * time.Millisecond)
	r := m.Feed("g")
	if r.Action != "top" {
		t.Fatalf("got %+v", r)
	}
}

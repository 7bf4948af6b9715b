package keyboard

import (
	"testing"

	"termcore/internal/cellcodec"
)

func TestRouter_NormalForwardingWritesEncodedBytes(t *testing.T) {
	var written []byte
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) { written = append(written, b...) })
	r.Route(Event{Rune: 'x'})
	if string(written) != "x" {
		t.Fatalf("got %q", written)
	}
}

func TestRouter_OverlayClaimsEvent(t *testing.T) {
	var written []byte
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) { written = append(written, b...) })
	claimed := false
	r.AddOverlay(Overlay{
		Name:     "test",
		IsActive: func() bool { return true },
		Handle:   func(ev Event) bool { claimed = true; return true },
	})
	handled := r.Route(Event{Rune: 'x'})
	if !handled || !claimed {
		t.Fatalf("handled=%v claimed=%v", handled, claimed)
	}
	if len(written) != 0 {
		t.Fatalf("expected no forwarding, got %q", written)
	}
}

func TestRouter_InactiveOverlaySkipped(t *testing.T) {
	var written []byte
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) { written = append(written, b...) })
	r.AddOverlay(Overlay{
		IsActive: func() bool { return false },
		Handle:   func(ev Event) bool { t.Fatal("should not be called"); return true },
	})
	r.Route(Event{Rune: 'x'})
	if string(written) != "x" {
		t.Fatalf("got %q", written)
	}
}

func TestRouter_SearchModeConsumesPrintable(t *testing.T) {
	var written []byte
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) { written = append(written, b...) })
	s := &SearchHandler{Active: true, Bindings: SearchBindings{Cancel: Event{Key: KeyEscape}}}
	r.SetSearchHandler(s)
	handled := r.Route(Event{Rune: 'a'})
	if !handled || s.Query != "a" {
		t.Fatalf("handled=%v query=%q", handled, s.Query)
	}
	if len(written) != 0 {
		t.Fatalf("expected no forwarding during search, got %q", written)
	}
}

func TestRouter_SearchCancelInvokesCallback(t *testing.T) {
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) {})
	canceled := false
	s := &SearchHandler{Active: true, Bindings: SearchBindings{Cancel: Event{Key: KeyEscape}}, OnCancel: func() { canceled = true }}
	r.SetSearchHandler(s)
	r.Route(Event{Key: KeyEscape})
	if !canceled || s.Active {
		t.Fatalf("canceled=%v active=%v", canceled, s.Active)
	}
}

func TestRouter_CommandLayerHandled(t *testing.T) {
	var written []byte
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) { written = append(written, b...) })
	fired := false
	r.SetCommands([]Command{{Binding: Event{Rune: 'b', Ctrl: true}, Handle: func() bool { fired = true; return true }}})
	handled := r.Route(Event{Rune: 'b', Ctrl: true})
	if !handled || !fired {
		t.Fatalf("handled=%v fired=%v", handled, fired)
	}
	if len(written) != 0 {
		t.Fatalf("expected no forwarding, got %q", written)
	}
}

func TestRouter_InsertModeTogglesOnI(t *testing.T) {
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) {})
	if r.mode != ModeNormal {
		t.Fatal("expected to start in normal mode")
	}
	r.Route(Event{Rune: 'i'})
	if r.mode != ModeInsert {
		t.Fatal("expected insert mode after 'i'")
	}
	r.Route(Event{Key: KeyEscape})
	if r.mode != ModeNormal {
		t.Fatal("expected normal mode after escape")
	}
}

func TestRouter_NormalModeEscapeClosesActiveOverlay(t *testing.T) {
	var written []byte
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) { written = append(written, b...) })
	closed := false
	r.AddOverlay(Overlay{
		Name:     "test",
		IsActive: func() bool { return true },
		Handle:   func(ev Event) bool { return false },
		Close:    func() { closed = true },
	})
	handled := r.Route(Event{Key: KeyEscape})
	if !handled || !closed {
		t.Fatalf("handled=%v closed=%v", handled, closed)
	}
	if len(written) != 0 {
		t.Fatalf("expected no forwarding, got %q", written)
	}
}

func TestRouter_InsertModeEscapeDoesNotCloseOverlay(t *testing.T) {
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) {})
	closed := false
	r.AddOverlay(Overlay{
		Name:     "test",
		IsActive: func() bool { return true },
		Handle:   func(ev Event) bool { return false },
		Close:    func() { closed = true },
	})
	r.Route(Event{Rune: 'i'})
	r.Route(Event{Key: KeyEscape})
	if closed {
		t.Fatal("expected insert-mode escape to toggle mode, not close the overlay")
	}
	if r.mode != ModeNormal {
		t.Fatal("expected normal mode after escape")
	}
}

func TestRouter_ModeReflectsCurrentState(t *testing.T) {
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) {})
	if r.Mode() != ModeNormal {
		t.Fatal("expected to start in normal mode")
	}
	r.Route(Event{Rune: 'i'})
	if r.Mode() != ModeInsert {
		t.Fatal("expected insert mode after 'i'")
	}
}

func TestRouter_ClearSelectionFiresOnNonReleaseForward(t *testing.T) {
	r := NewRouter(func() cellcodec.Modes { return cellcodec.Modes{} }, func(b []byte) {})
	cleared := 0
	r.OnClearSelection(func() { cleared++ })
	r.Route(Event{Rune: 'x'})
	r.Route(Event{Rune: 'y', Release: true})
	if cleared != 1 {
		t.Fatalf("cleared = %d, want 1", cleared)
	}
}

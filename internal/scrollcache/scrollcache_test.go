package scrollcache

import (
	"testing"

	"termcore/internal/cellcodec"
)

func TestCache_GetUnknownPtyIsAtBottom(t *testing.T) {
	c := New()
	e := c.Get("p1")
	if !e.IsAtBottom || e.ViewportOffset != 0 {
		t.Fatalf("got %+v", e)
	}
}

func TestCache_ApplyUpdateOverwrites(t *testing.T) {
	c := New()
	c.ScrollUp("p1", 5)
	c.ApplyUpdate("p1", cellcodec.ScrollState{ViewportOffset: 2, ScrollbackLength: 100, IsAtBottom: false})
	e := c.Get("p1")
	if e.ViewportOffset != 2 || e.ScrollbackLength != 100 {
		t.Fatalf("got %+v", e)
	}
}

func TestCache_ScrollUpClampsToScrollbackLength(t *testing.T) {
	c := New()
	c.ApplyUpdate("p1", cellcodec.ScrollState{ScrollbackLength: 10})
	e := c.ScrollUp("p1", 50)
	if e.ViewportOffset != 10 {
		t.Fatalf("got %d", e.ViewportOffset)
	}
	if e.IsAtBottom {
		t.Fatal("expected not at bottom")
	}
}

func TestCache_ScrollDownClampsAtZero(t *testing.T) {
	c := New()
	c.ApplyUpdate("p1", cellcodec.ScrollState{ViewportOffset: 3, ScrollbackLength: 10})
	e := c.ScrollDown("p1", 50)
	if e.ViewportOffset != 0 || !e.IsAtBottom {
		t.Fatalf("got %+v", e)
	}
}

func TestCache_ScrollToBottom(t *testing.T) {
	c := New()
	c.ApplyUpdate("p1", cellcodec.ScrollState{ViewportOffset: 7, ScrollbackLength: 10})
	e := c.ScrollToBottom("p1")
	if e.ViewportOffset != 0 || !e.IsAtBottom {
		t.Fatalf("got %+v", e)
	}
}

func TestCache_ForgetRemovesEntry(t *testing.T) {
	c := New()
	c.ApplyUpdate("p1", cellcodec.ScrollState{ViewportOffset: 7})
	c.Forget("p1")
	e := c.Get("p1")
	if e.ViewportOffset != 0 || !e.IsAtBottom {
		t.Fatalf("expected fresh entry after forget, got %+v", e)
	}
}

func TestCache_ScrollUpThenDownRoundTrips(t *testing.T) {
	c := New()
	c.ApplyUpdate("p1", cellcodec.ScrollState{ScrollbackLength: 20})
	c.ScrollUp("p1", 5)
	e := c.ScrollDown("p1", 5)
	if e.ViewportOffset != 0 || !e.IsAtBottom {
		t.Fatalf("got %+v", e)
	}
}

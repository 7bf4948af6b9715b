package titleparser

import "testing"

func TestTitleParser_SingleChunk(t *testing.T) {
	var got []string
	p := New(func(title string) { got = append(got, title) })
	p.Feed([]byte("\x1B]0;Hello\x07"))
	if len(got) != 1 || got[0] != "Hello" {
		t.Fatalf("got %v", got)
	}
}

func TestTitleParser_ChunkStraddling(t *testing.T) {
	var got []string
	p := New(func(title string) { got = append(got, title) })
	chunks := [][]byte{[]byte("\x1B]0"), []byte(";Chunked "), []byte("Title\x07")}
	for _, c := range chunks {
		p.Feed(c)
	}
	if len(got) != 1 || got[0] != "Chunked Title" {
		t.Fatalf("got %v, want one title 'Chunked Title'", got)
	}
}

func TestTitleParser_STTerminator(t *testing.T) {
	var got []string
	p := New(func(title string) { got = append(got, title) })
	p.Feed([]byte("\x1B]2;xterm title\x1B\\"))
	if len(got) != 1 || got[0] != "xterm title" {
		t.Fatalf("got %v", got)
	}
}

func TestTitleParser_IgnoresOtherOSC(t *testing.T) {
	var got []string
	p := New(func(title string) { got = append(got, title) })
	p.Feed([]byte("\x1B]10;?\x07"))
	if len(got) != 0 {
		t.Fatalf("got %v, want none", got)
	}
}

func TestTitleParser_InvalidCodeAbortsSilently(t *testing.T) {
	var got []string
	p := New(func(title string) { got = append(got, title) })
	p.Feed([]byte("\x1B]x;garbage\x07"))
	if len(got) != 0 {
		t.Fatalf("got %v, want none", got)
	}
}

func TestTitleParser_ChunkingInvariant(t *testing.T) {
	input := []byte("A\x1B]0;first\x07B\x1B]1;second\x1B\\C")
	chunkings := [][]int{
		{len(input)},
		{1, len(input) - 1},
		{3, 5, 100},
	}
	var reference []string
	for _, sizes := range chunkings {
		var got []string
		p := New(func(title string) { got = append(got, title) })
		pos := 0
		for _, size := range sizes {
			end := pos + size
			if end > len(input) {
				end = len(input)
			}
			if pos >= end {
				continue
			}
			p.Feed(input[pos:end])
			pos = end
		}
		if reference == nil {
			reference = got
		} else if len(got) != len(reference) {
			t.Fatalf("chunking %v produced %v, want %v", sizes, got, reference)
		} else {
			for i := range got {
				if got[i] != reference[i] {
					t.Fatalf("chunking %v produced %v, want %v", sizes, got, reference)
				}
			}
		}
	}
}

func TestTitleParser_Reset(t *testing.T) {
	var got []string
	p := New(func(title string) { got = append(got, title) })
	p.Feed([]byte("\x1B]0;partial"))
	p.Reset()
	p.Feed([]byte("\x07"))
	if len(got) != 0 {
		t.Fatalf("got %v, want none after reset", got)
	}
}

package focustracker

import "testing"

func TestTracker_SuppressedUntilFirstReport(t *testing.T) {
	var ins, outs []string
	tr := New(func(id string) { outs = append(outs, id) }, func(id string) { ins = append(ins, id) })
	tr.SetFocusedPty("pty1")
	if len(ins) != 0 || len(outs) != 0 {
		t.Fatalf("expected no dispatch before first focus report, got ins=%v outs=%v", ins, outs)
	}
}

func TestTracker_FocusInDispatchesToFocusedPty(t *testing.T) {
	var ins []string
	tr := New(func(string) {}, func(id string) { ins = append(ins, id) })
	tr.SetFocusedPty("pty1")
	tr.Feed([]byte("\x1b[I"))
	if len(ins) != 1 || ins[0] != "pty1" {
		t.Fatalf("ins = %v", ins)
	}
}

func TestTracker_FocusOutThenBackIn(t *testing.T) {
	var ins, outs []string
	tr := New(func(id string) { outs = append(outs, id) }, func(id string) { ins = append(ins, id) })
	tr.SetFocusedPty("pty1")
	tr.Feed([]byte("\x1b[I"))
	tr.Feed([]byte("\x1b[O"))
	if len(outs) != 1 || outs[0] != "pty1" {
		t.Fatalf("outs = %v", outs)
	}
	tr.Feed([]byte("\x1b[I"))
	if len(ins) != 2 || ins[1] != "pty1" {
		t.Fatalf("ins = %v", ins)
	}
}

func TestTracker_SwitchingFocusedPtyWhileHostFocused(t *testing.T) {
	var ins, outs []string
	tr := New(func(id string) { outs = append(outs, id) }, func(id string) { ins = append(ins, id) })
	tr.SetFocusedPty("pty1")
	tr.Feed([]byte("\x1b[I"))
	tr.SetFocusedPty("pty2")
	if len(outs) != 1 || outs[0] != "pty1" {
		t.Fatalf("outs = %v", outs)
	}
	if len(ins) != 2 || ins[1] != "pty2" {
		t.Fatalf("ins = %v", ins)
	}
}

func TestTracker_ReportStraddlesChunks(t *testing.T) {
	var ins []string
	tr := New(func(string) {}, func(id string) { ins = append(ins, id) })
	tr.SetFocusedPty("pty1")
	tr.Feed([]byte("\x1b["))
	tr.Feed([]byte("I"))
	if len(ins) != 1 || ins[0] != "pty1" {
		t.Fatalf("ins = %v", ins)
	}
}

func TestTracker_NoDuplicateDispatchForRepeatedReport(t *testing.T) {
	var ins []string
	tr := New(func(string) {}, func(id string) { ins = append(ins, id) })
	tr.SetFocusedPty("pty1")
	tr.Feed([]byte("\x1b[I"))
	tr.Feed([]byte("\x1b[I"))
	if len(ins) != 1 {
		t.Fatalf("ins = %v, want exactly one dispatch", ins)
	}
}

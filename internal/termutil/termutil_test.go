package termutil

import "testing"

func TestRGBToX11(t *testing.T) {
	if got := RGBToX11(0, 0, 0); got != "rgb:0000/0000/0000" {
		t.Fatalf("got %q", got)
	}
	if got := RGBToX11(255, 255, 255); got != "rgb:ffff/ffff/ffff" {
		t.Fatalf("got %q", got)
	}
}

func TestFallbackOSCPalette_Dark(t *testing.T) {
	fg, bg := FallbackOSCPalette("15;0")
	if fg != "rgb:ffff/ffff/ffff" || bg != "rgb:0000/0000/0000" {
		t.Fatalf("fg=%q bg=%q", fg, bg)
	}
}

func TestFallbackOSCPalette_Light(t *testing.T) {
	fg, bg := FallbackOSCPalette("0;15")
	if fg != "rgb:0000/0000/0000" || bg != "rgb:ffff/ffff/ffff" {
		t.Fatalf("fg=%q bg=%q", fg, bg)
	}
}

func TestFallbackOSCPalette_Empty(t *testing.T) {
	fg, bg := FallbackOSCPalette("")
	if fg == "" || bg == "" {
		t.Fatalf("expected non-empty defaults")
	}
}

func TestIsTruthyEnv(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		if !IsTruthyEnv(v) {
			t.Fatalf("expected %q to be truthy", v)
		}
	}
	for _, v := range []string{"", "0", "false", "no"} {
		if IsTruthyEnv(v) {
			t.Fatalf("expected %q to be falsy", v)
		}
	}
}

func TestFormatIdleDuration(t *testing.T) {
	cases := []struct {
		secs float64
		want string
	}{
		{0, "1s"},
		{5, "5s"},
		{65, "1m"},
		{3700, "1h"},
		{100000, "1d"},
	}
	for _, c := range cases {
		if got := FormatIdleDuration(c.secs); got != c.want {
			t.Fatalf("FormatIdleDuration(%v) = %q, want %q", c.secs, got, c.want)
		}
	}
}

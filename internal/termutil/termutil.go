// Package termutil holds small terminal-color and formatting helpers; no
// other package in this module imports it. Adapted from the host-color detection and key-classification helpers
// the teacher keeps alongside its VT wrapper.
package termutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/muesli/termenv"
)

// ColorToX11 converts a termenv.Color to the X11 "rgb:rrrr/gggg/bbbb" form
// used by OSC 10/11 responses (16-bit channels = 8-bit channel * 257).
func ColorToX11(c termenv.Color) string {
	if c == nil {
		return ""
	}
	if rgb, ok := c.(termenv.RGBColor); ok {
		hex := string(rgb)
		if len(hex) == 7 && hex[0] == '#' {
			r, _ := strconv.ParseUint(hex[1:3], 16, 8)
			g, _ := strconv.ParseUint(hex[3:5], 16, 8)
			b, _ := strconv.ParseUint(hex[5:7], 16, 8)
			return fmt.Sprintf("rgb:%04x/%04x/%04x", r*0x101, g*0x101, b*0x101)
		}
	}
	rgb := termenv.ConvertToRGB(c)
	r := uint8(rgb.R*255 + 0.5)
	g := uint8(rgb.G*255 + 0.5)
	b := uint8(rgb.B*255 + 0.5)
	return fmt.Sprintf("rgb:%04x/%04x/%04x", uint16(r)*0x101, uint16(g)*0x101, uint16(b)*0x101)
}

// RGBToX11 converts 8-bit RGB channels directly to the X11 rgb: form used
// in OSC 10/11/DECRQM-adjacent responses, without requiring a termenv.Color.
func RGBToX11(r, g, b uint8) string {
	return fmt.Sprintf("rgb:%04x/%04x/%04x", uint16(r)*0x101, uint16(g)*0x101, uint16(b)*0x101)
}

// FallbackOSCPalette returns OSC 10/11-compatible X11 rgb values derived
// from a COLORFGBG-style hint. When parsing fails it defaults to a dark
// terminal palette.
func FallbackOSCPalette(colorfgbg string) (fg, bg string) {
	parts := strings.Split(strings.TrimSpace(colorfgbg), ";")
	bgDark := true
	bgField := ""
	if len(parts) >= 2 {
		bgField = strings.TrimSpace(parts[1])
	} else if len(parts) == 1 {
		bgField = strings.TrimSpace(parts[0])
	}
	if bgField != "" {
		if idx, err := strconv.Atoi(bgField); err == nil {
			bgDark = idx < 8
		}
	}
	if bgDark {
		return "rgb:ffff/ffff/ffff", "rgb:0000/0000/0000"
	}
	return "rgb:0000/0000/0000", "rgb:ffff/ffff/ffff"
}

// IsTruthyEnv reports whether an environment variable value is truthy.
func IsTruthyEnv(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// FormatIdleDuration formats a duration (seconds resolution) into a
// compact human-readable string, e.g. "42s", "3m", "2h", "1d".
func FormatIdleDuration(seconds float64) string {
	switch {
	case seconds < 60:
		s := int(seconds)
		if s < 1 {
			s = 1
		}
		return fmt.Sprintf("%ds", s)
	case seconds < 3600:
		return fmt.Sprintf("%dm", int(seconds/60))
	case seconds < 86400:
		return fmt.Sprintf("%dh", int(seconds/3600))
	default:
		return fmt.Sprintf("%dd", int(seconds/86400))
	}
}

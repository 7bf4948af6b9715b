package vtemu

import (
	"strconv"
	"strings"
	"unicode"

	"termcore/internal/cellcodec"
)

// cellWidth is a conservative East-Asian-width heuristic: no third-party
// library in the pack does grapheme-width measurement, so this mirrors the
// same two-bucket (1 or 2 column) approach midterm itself uses internally
// for CJK/emoji rows. Zero-width runes (combining marks, joiners,
// variation selectors) return 0 rather than 1, since they do not advance
// the cursor in the terminal that emitted them.
func cellWidth(r rune) uint8 {
	if isZeroWidth(r) {
		return 0
	}
	switch {
	case r >= 0x1100 && r <= 0x115F,
		r >= 0x2E80 && r <= 0xA4CF,
		r >= 0xAC00 && r <= 0xD7A3,
		r >= 0xF900 && r <= 0xFAFF,
		r >= 0xFF00 && r <= 0xFF60,
		r >= 0xFFE0 && r <= 0xFFE6,
		r >= 0x20000 && r <= 0x3FFFD:
		return 2
	default:
		return 1
	}
}

// isControlOrInvalid reports whether r is a C0/C1 control code, a lone
// (unpaired) surrogate, a Unicode noncharacter, or the replacement
// character U+FFFD — code points a rendered cell must never carry.
func isControlOrInvalid(r rune) bool {
	switch {
	case r < 0x20, r >= 0x7F && r <= 0x9F:
		return true
	case r >= 0xD800 && r <= 0xDFFF:
		return true
	case r >= 0xFDD0 && r <= 0xFDEF:
		return true
	case r&0xFFFE == 0xFFFE: // last two code points of every plane
		return true
	case r == 0xFFFD:
		return true
	}
	return false
}

// isZeroWidth reports whether r is a combining mark or other formatting
// character a terminal renders without advancing the cursor.
func isZeroWidth(r rune) bool {
	switch r {
	case 0x200B, 0x200C, 0x200D, 0x2060, 0xFEFF:
		return true
	}
	if r >= 0xFE00 && r <= 0xFE0F { // variation selectors
		return true
	}
	return unicode.In(r, unicode.Mn, unicode.Me)
}

// sanitizeCell enforces the Cell invariant: C0/C1 controls, lone
// surrogates, noncharacters, and U+FFFD collapse to a plain space; a
// zero-width rune collapses to a space whose foreground is set to match
// its background, so it renders as invisible without leaving a hole in
// the grid or disturbing the cell's background fill.
func sanitizeCell(c *cellcodec.Cell) {
	if isControlOrInvalid(c.Rune) {
		c.Rune = ' '
		c.Width = 1
		return
	}
	w := cellWidth(c.Rune)
	if w == 0 {
		c.Rune = ' '
		c.Width = 1
		c.FgR, c.FgG, c.FgB = c.BgR, c.BgG, c.BgB
		return
	}
	c.Width = w
}

var ansi16 = [16][3]uint8{
	{0, 0, 0}, {205, 0, 0}, {0, 205, 0}, {205, 205, 0},
	{0, 0, 238}, {205, 0, 205}, {0, 205, 205}, {229, 229, 229},
	{127, 127, 127}, {255, 0, 0}, {0, 255, 0}, {255, 255, 0},
	{92, 92, 255}, {255, 0, 255}, {0, 255, 255}, {255, 255, 255},
}

// ansi256 approximates the xterm 256-color cube and grayscale ramp.
func ansi256(n int) [3]uint8 {
	if n < 16 {
		return ansi16[n]
	}
	if n < 232 {
		n -= 16
		r := (n / 36) % 6
		g := (n / 6) % 6
		b := n % 6
		scale := func(v int) uint8 {
			if v == 0 {
				return 0
			}
			return uint8(55 + v*40)
		}
		return [3]uint8{scale(r), scale(g), scale(b)}
	}
	gray := uint8(8 + (n-232)*10)
	return [3]uint8{gray, gray, gray}
}

// parseANSILine decodes an SGR-formatted line (as produced by midterm's
// Line.Display()) back into packed cells, tracking style state across the
// whole string the way a terminal would. Used to populate scrollback rows
// from the OnScrollback capture path, which only hands back rendered text.
func parseANSILine(s string, cols int) cellcodec.Row {
	row := make(cellcodec.Row, 0, cols)
	var cur cellcodec.Cell
	cur.FgR, cur.FgG, cur.FgB = 229, 229, 229
	setDefaultFg := func() { cur.FgR, cur.FgG, cur.FgB = 229, 229, 229 }
	setDefaultBg := func() { cur.BgR, cur.BgG, cur.BgB = 0, 0, 0 }
	setDefaultBg()

	runes := []rune(s)
	i := 0
	for i < len(runes) {
		r := runes[i]
		if r == 0x1B && i+1 < len(runes) && runes[i+1] == '[' {
			j := i + 2
			for j < len(runes) && (runes[j] == ';' || unicode.IsDigit(runes[j])) {
				j++
			}
			if j < len(runes) && runes[j] == 'm' {
				applySGR(&cur, runes[i+2:j], setDefaultFg, setDefaultBg)
				i = j + 1
				continue
			}
			// Unrecognized CSI: skip to final byte if present, else drop it.
			for j < len(runes) && !(runes[j] >= 0x40 && runes[j] <= 0x7E) {
				j++
			}
			if j < len(runes) {
				i = j + 1
			} else {
				i = len(runes)
			}
			continue
		}
		if len(row) >= cols {
			i++
			continue
		}
		c := cur
		c.Rune = r
		sanitizeCell(&c)
		row = append(row, c)
		i++
	}
	for len(row) < cols {
		c := cur
		c.Rune = ' '
		c.Width = 1
		row = append(row, c)
	}
	return row
}

func applySGR(cur *cellcodec.Cell, params []rune, defaultFg, defaultBg func()) {
	fields := strings.Split(string(params), ";")
	for idx := 0; idx < len(fields); idx++ {
		code, _ := strconv.Atoi(fields[idx])
		switch {
		case code == 0:
			*cur = cellcodec.Cell{}
			defaultFg()
			defaultBg()
		case code == 1:
			cur.Flags |= cellcodec.FlagBold
		case code == 2:
			cur.Flags |= cellcodec.FlagDim
		case code == 3:
			cur.Flags |= cellcodec.FlagItalic
		case code == 4:
			cur.Flags |= cellcodec.FlagUnderline
		case code == 5:
			cur.Flags |= cellcodec.FlagBlink
		case code == 7:
			cur.Flags |= cellcodec.FlagInverse
		case code == 9:
			cur.Flags |= cellcodec.FlagStrikethrough
		case code == 22:
			cur.Flags &^= cellcodec.FlagBold | cellcodec.FlagDim
		case code == 23:
			cur.Flags &^= cellcodec.FlagItalic
		case code == 24:
			cur.Flags &^= cellcodec.FlagUnderline
		case code == 25:
			cur.Flags &^= cellcodec.FlagBlink
		case code == 27:
			cur.Flags &^= cellcodec.FlagInverse
		case code == 29:
			cur.Flags &^= cellcodec.FlagStrikethrough
		case code >= 30 && code <= 37:
			rgb := ansi16[code-30]
			cur.FgR, cur.FgG, cur.FgB = rgb[0], rgb[1], rgb[2]
		case code == 38:
			idx = parseExtendedColor(fields, idx, &cur.FgR, &cur.FgG, &cur.FgB)
		case code == 39:
			defaultFg()
		case code >= 40 && code <= 47:
			rgb := ansi16[code-40]
			cur.BgR, cur.BgG, cur.BgB = rgb[0], rgb[1], rgb[2]
		case code == 48:
			idx = parseExtendedColor(fields, idx, &cur.BgR, &cur.BgG, &cur.BgB)
		case code == 49:
			defaultBg()
		case code >= 90 && code <= 97:
			rgb := ansi16[8+code-90]
			cur.FgR, cur.FgG, cur.FgB = rgb[0], rgb[1], rgb[2]
		case code >= 100 && code <= 107:
			rgb := ansi16[8+code-100]
			cur.BgR, cur.BgG, cur.BgB = rgb[0], rgb[1], rgb[2]
		}
	}
}

// parseExtendedColor consumes a 38/48-prefixed extended color sequence
// starting at fields[idx+1] and returns the index of its last consumed field.
func parseExtendedColor(fields []string, idx int, r, g, b *uint8) int {
	if idx+1 >= len(fields) {
		return idx
	}
	kind, _ := strconv.Atoi(fields[idx+1])
	switch kind {
	case 5:
		if idx+2 >= len(fields) {
			return idx + 1
		}
		n, _ := strconv.Atoi(fields[idx+2])
		rgb := ansi256(n)
		*r, *g, *b = rgb[0], rgb[1], rgb[2]
		return idx + 2
	case 2:
		if idx+4 >= len(fields) {
			return len(fields) - 1
		}
		rv, _ := strconv.Atoi(fields[idx+2])
		gv, _ := strconv.Atoi(fields[idx+3])
		bv, _ := strconv.Atoi(fields[idx+4])
		*r, *g, *b = uint8(rv), uint8(gv), uint8(bv)
		return idx + 4
	}
	return idx + 1
}

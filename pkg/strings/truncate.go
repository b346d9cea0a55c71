// Package strings holds text helpers shared by the CLI output code.
package strings

import (
	"strings"
)

// DescriptionWidth is the column width used for tool descriptions in tables.
const DescriptionWidth = 60

const ellipsis = "..."

// SingleLine collapses every run of whitespace, newlines included, into one
// space and trims both ends.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate returns s on a single line, cut to at most width runes with a
// trailing "..." when it had to be shortened. Widths too small to hold one
// rune plus the ellipsis are raised to that minimum.
func Truncate(s string, width int) string {
	if floor := len(ellipsis) + 1; width < floor {
		width = floor
	}
	s = SingleLine(s)
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-len(ellipsis)]) + ellipsis
}

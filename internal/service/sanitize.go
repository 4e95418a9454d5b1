package service

import "strings"

// Sanitize flattens extracted pages into a single line of printable ASCII.
// Non-ASCII runes and control characters are dropped, every whitespace run
// becomes one space and pages are joined with a space. The result has no
// leading or trailing whitespace, so Sanitize is idempotent.
func Sanitize(pages []string) string {
	var b strings.Builder
	pendingSpace := false

	write := func(s string) {
		for _, r := range s {
			switch {
			case r > 0x7F:
				continue
			case isASCIISpace(r):
				pendingSpace = true
			case r < 0x20 || r == 0x7F:
				continue
			default:
				if pendingSpace && b.Len() > 0 {
					b.WriteByte(' ')
				}
				pendingSpace = false
				b.WriteRune(r)
			}
		}
	}

	for i, page := range pages {
		if i > 0 {
			pendingSpace = true
		}
		write(page)
	}

	return b.String()
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

package runner

import "unicode/utf8"

// Truncate cuts s to at most max runes. It returns the kept prefix and the
// number of runes dropped. max <= 0 disables truncation.
func Truncate(s string, max int) (string, int) {
	if max <= 0 {
		return s, 0
	}
	n := utf8.RuneCountInString(s)
	if n <= max {
		return s, 0
	}

	// Walk to the byte offset of rune number max.
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos], n - max
		}
		i++
	}
	return s, 0
}

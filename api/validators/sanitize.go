package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CleanText prepares free-form user text such as transaction remarks for
// storage. Control characters other than newline and tab are dropped,
// surrounding space is trimmed, and the result keeps at most maxLen runes.
// A non-positive maxLen disables the cap.
func CleanText(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, input)
	cleaned = strings.TrimSpace(cleaned)
	if maxLen <= 0 || utf8.RuneCountInString(cleaned) <= maxLen {
		return cleaned
	}
	n := 0
	for i := range cleaned {
		if n == maxLen {
			return strings.TrimRightFunc(cleaned[:i], unicode.IsSpace)
		}
		n++
	}
	return cleaned
}

package validators

import (
	"strings"
	"unicode"
)

// SanitizeText trims input, folds control characters and runs of whitespace to
// single spaces, and truncates to maxRunes characters. maxRunes <= 0 disables truncation.
func SanitizeText(input string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(input))
	pendingSpace := false
	count := 0
	for _, r := range strings.TrimSpace(input) {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if maxRunes > 0 && count >= maxRunes {
			break
		}
		if pendingSpace {
			if maxRunes > 0 && count+1 >= maxRunes {
				break
			}
			b.WriteByte(' ')
			count++
			pendingSpace = false
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

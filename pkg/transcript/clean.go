// Package transcript assembles displayed text from confirmed and partial
// hypotheses and scrubs decoder noise annotations before publishing.
package transcript

import "strings"

// Clean strips bracketed noise annotations such as [BLANK_AUDIO] or
// (wind blowing) that models emit for non-speech audio. It walks the
// input once: each "[" or "(" with a matching closer is removed together
// with everything between; an opener with no closer is kept verbatim.
// Surrounding whitespace is left untouched, and the function is
// idempotent over its own output.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '[' || s[i] == '(' {
			closer := byte(']')
			if s[i] == '(' {
				closer = ')'
			}
			if end := strings.IndexByte(s[i+1:], closer); end >= 0 {
				i += end + 2
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// Join composes the displayed transcript from confirmed text and the
// current partial hypothesis. Both sides empty yields "", one side empty
// yields the other, otherwise they are joined with a single space.
func Join(confirmed, partial string) string {
	switch {
	case confirmed == "":
		return partial
	case partial == "":
		return confirmed
	default:
		return confirmed + " " + partial
	}
}

package rewrite

import (
	"regexp"
	"strconv"
	"unicode/utf16"
)

// MeetupMaxTitleLength is Meetup's event name limit in UTF-16 code units.
const MeetupMaxTitleLength = 80

const ellipsis = "…"

var sessionPattern = regexp.MustCompile(`(?i)\s+session\s+(?P<number>[0-9]+)`)

// NextSessionTitle splits a title at its rightmost " Session N" and returns
// the text before it and N. Titles without one yield the whole title and 1.
func NextSessionTitle(title string) (string, int) {
	matches := sessionPattern.FindAllStringSubmatchIndex(title, -1)
	if len(matches) == 0 {
		return title, 1
	}
	last := matches[len(matches)-1]
	group := 2 * sessionPattern.SubexpIndex("number")
	n, err := strconv.ParseInt(title[last[group]:last[group+1]], 10, 32)
	if err != nil {
		return title, 1
	}
	return title[:last[0]], int(n)
}

// NextTitle returns the title of the session after title, shortened so
// that it is at most maxLen UTF-16 code units long.
func NextTitle(title string, maxLen int) string {
	base, n := NextSessionTitle(title)
	suffix := " Session " + strconv.Itoa(n+1)

	if utf16Len(base)+utf16Len(suffix) <= maxLen {
		return base + suffix
	}
	budget := maxLen - utf16Len(suffix) - utf16Len(ellipsis)
	return truncateUTF16(base, budget) + ellipsis + suffix
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// truncateUTF16 cuts s to at most limit code units without splitting a
// surrogate pair.
func truncateUTF16(s string, limit int) string {
	used := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if used+w > limit {
			return s[:i]
		}
		used += w
	}
	return s
}

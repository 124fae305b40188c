package search

import (
	"regexp"
	"sort"
	"strings"
)

// Part is a slice of displayed text, highlighted when it matched the query.
type Part struct {
	Text      string `json:"text"`
	Highlight bool   `json:"highlight,omitempty"`
}

// Match returns the byte ranges of text matched by the words of query.
// Each word marks its first occurrence only, case-insensitively; a word
// starting with a word character must start at a word boundary of the
// original text. Occurrences overlapping an earlier word's range are
// skipped. Ranges are sorted by start.
func Match(text, query string) [][2]int {
	var out [][2]int
	for _, word := range strings.Fields(query) {
		prefix := ""
		if isWordChar(word[0]) {
			prefix = `\b`
		}
		re := regexp.MustCompile(`(?i)` + prefix + regexp.QuoteMeta(word))
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if !overlaps(out, loc[0], loc[1]) {
				out = append(out, [2]int{loc[0], loc[1]})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func overlaps(ranges [][2]int, start, end int) bool {
	for _, r := range ranges {
		if start < r[1] && r[0] < end {
			return true
		}
	}
	return false
}

// Parse splits text into parts along matches.
func Parse(text string, matches [][2]int) []Part {
	if len(matches) == 0 {
		return []Part{{Text: text}}
	}
	var parts []Part
	if matches[0][0] > 0 {
		parts = append(parts, Part{Text: text[:matches[0][0]]})
	}
	for i, m := range matches {
		parts = append(parts, Part{Text: text[m[0]:m[1]], Highlight: true})
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		if m[1] < end {
			parts = append(parts, Part{Text: text[m[1]:end]})
		}
	}
	return parts
}

// Highlight is Parse(text, Match(text, query)).
func Highlight(text, query string) []Part {
	return Parse(text, Match(text, query))
}

func isWordChar(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// Package textutil turns editor HTML into plain text for search and previews.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// StripMarkup replaces tag-like runs and &nbsp; with spaces, collapses
// whitespace and trims the result. It is a lexical stripper, not a parser.
func StripMarkup(input string) string {
	if input == "" {
		return ""
	}
	s := tagPattern.ReplaceAllString(input, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// FoldRunes lowercases s rune by rune so that indices into the result match
// indices into []rune(s).
func FoldRunes(s string) []rune {
	r := []rune(s)
	for i, c := range r {
		r[i] = unicode.ToLower(c)
	}
	return r
}

// IndexRunes returns the rune offset of the first occurrence of sub in s, or -1.
func IndexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return 0
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// ContainsFold reports whether sub occurs in s ignoring case.
func ContainsFold(s, sub string) bool {
	return IndexRunes(FoldRunes(s), FoldRunes(sub)) >= 0
}

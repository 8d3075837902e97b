package summarizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/surgebase/porter2"
	"github.com/xaenox/memo-notes/internal/models"
	"github.com/xaenox/memo-notes/internal/textutil"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "that": {}, "have": {}, "this": {}, "with": {},
	"from": {}, "they": {}, "will": {}, "would": {}, "there": {}, "their": {},
	"what": {}, "about": {}, "which": {}, "when": {}, "were": {}, "into": {},
}

// Local is a heuristic summarizer that needs no network.
type Local struct{}

func NewLocal() *Local {
	return &Local{}
}

// SummarizeNote keeps up to five key sentences of the plain text: the first,
// the middle and the last one, then evenly spaced others, in reading order.
func (l *Local) SummarizeNote(ctx context.Context, content string) string {
	plain := textutil.StripMarkup(content)
	if utf8.RuneCountInString(plain) < shortTextChars {
		return plain
	}
	return strings.Join(pickSentences(splitSentences(plain), keySentences), " ")
}

func (l *Local) SummarizeFolder(ctx context.Context, notes []*models.Note) string {
	present := make([]*models.Note, 0, len(notes))
	for _, n := range notes {
		if n != nil {
			present = append(present, n)
		}
	}
	if len(present) == 0 {
		return EmptyFolder
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This folder contains %d notes", len(present))

	if themes := commonThemes(present, themeLimit); len(themes) > 0 {
		b.WriteString(". Common themes include: ")
		b.WriteString(strings.Join(themes, ", "))
	}

	titles := make([]string, 0, titleLimit)
	for _, n := range present[:min(titleLimit, len(present))] {
		titles = append(titles, n.Title)
	}
	if len(present) <= titleLimit {
		b.WriteString(". Notes: ")
		b.WriteString(strings.Join(titles, ", "))
	} else {
		fmt.Fprintf(&b, ". Some notes: %s, and %d more.", strings.Join(titles, ", "), len(present)-titleLimit)
	}
	return b.String()
}

// splitSentences cuts text after '.', '!' or '?' (and any closing quotes)
// when followed by whitespace or the end of the text.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && isTerminator(runes[end]) {
			end++
		}
		for end < len(runes) && (runes[end] == '"' || runes[end] == '\'') {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			sentences = append(sentences, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func pickSentences(sentences []string, count int) []string {
	n := len(sentences)
	if n <= count {
		return sentences
	}

	picked := map[int]struct{}{0: {}, n / 2: {}, n - 1: {}}
	step := max(1, n/(count-2))
	for i := 1; len(picked) < count && i < n-1; i += step {
		picked[i] = struct{}{}
	}

	indices := make([]int, 0, len(picked))
	for i := range picked {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]string, 0, len(indices))
	for _, i := range indices {
		out = append(out, sentences[i])
	}
	return out
}

// commonThemes returns the most frequent content words longer than four
// letters. Inflected forms count together under their porter2 stem and are
// reported by their shortest spelling.
func commonThemes(notes []*models.Note, limit int) []string {
	type theme struct {
		word  string
		count int
	}
	byStem := make(map[string]*theme)
	for _, n := range notes {
		for _, raw := range strings.Fields(textutil.StripMarkup(n.Content)) {
			word := lettersOnly(strings.ToLower(raw))
			if len(word) <= 4 {
				continue
			}
			if _, stop := stopWords[word]; stop {
				continue
			}
			stem := porter2.Stem(word)
			t, ok := byStem[stem]
			if !ok {
				t = &theme{word: word}
				byStem[stem] = t
			}
			t.count++
			if len(word) < len(t.word) || (len(word) == len(t.word) && word < t.word) {
				t.word = word
			}
		}
	}

	themes := make([]*theme, 0, len(byStem))
	for _, t := range byStem {
		themes = append(themes, t)
	}
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].count != themes[j].count {
			return themes[i].count > themes[j].count
		}
		return themes[i].word < themes[j].word
	})

	out := make([]string, 0, limit)
	for _, t := range themes[:min(limit, len(themes))] {
		out = append(out, t.word)
	}
	return out
}

func lettersOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, s)
}

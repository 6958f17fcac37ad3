package pii

import (
	"regexp"
	"strings"
)

const (
	minNameWords = 2
	maxNameWords = 3
)

var alphaWord = regexp.MustCompile(`\b[A-Za-z]+\b`)

type word struct {
	start, end int
	barrier    bool // a redaction token such as the NAME in "[NAME]"
}

// NameCandidates enumerates every run of 2-3 consecutive alphabetic words
// in text. Words are consecutive when only whitespace separates them. Runs
// never include the bare word of a redaction token, so "[NAME] Smith" yields
// nothing. The result overlaps freely; no stop-word filtering is applied.
func (l *Library) NameCandidates(text string) DetectionResult {
	words := l.splitWords(text)
	var out DetectionResult
	for i := range words {
		if words[i].barrier {
			continue
		}
		for n := minNameWords; n <= maxNameWords && i+n <= len(words); n++ {
			last := words[i+n-1]
			if last.barrier || !whitespaceOnly(text[words[i+n-2].end:last.start]) {
				break
			}
			out = append(out, Span{
				Start:    words[i].start,
				End:      last.end,
				Text:     text[words[i].start:last.end],
				Category: CategoryName,
			})
		}
	}
	return out
}

// ValidName reports whether a candidate is free of stop words.
func (l *Library) ValidName(s Span) bool {
	for _, w := range strings.Fields(s.Text) {
		if l.IsStopWord(w) {
			return false
		}
	}
	return true
}

// ResolveNames builds the NAME substitution plan for text: candidates from
// NameCandidates, filtered by ValidName, then resolved longest-first with no
// two accepted spans overlapping.
func (l *Library) ResolveNames(text string) []Span {
	candidates := l.NameCandidates(text)
	valid := candidates[:0]
	for _, c := range candidates {
		if l.ValidName(c) {
			valid = append(valid, c)
		}
	}
	return resolve(valid)
}

func (l *Library) splitWords(text string) []word {
	idx := alphaWord.FindAllStringIndex(text, -1)
	words := make([]word, len(idx))
	for i, m := range idx {
		w := word{start: m[0], end: m[1]}
		if m[0] > 0 && m[1] < len(text) && text[m[0]-1] == '[' && text[m[1]] == ']' {
			w.barrier = l.isToken(text[m[0]:m[1]])
		}
		words[i] = w
	}
	return words
}

func whitespaceOnly(s string) bool {
	return s != "" && strings.TrimSpace(s) == ""
}

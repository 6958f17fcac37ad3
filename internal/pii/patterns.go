package pii

import "sync"

var (
	defaultLibOnce sync.Once
	defaultLib     *Library
)

// defaultLibrary returns the embedded recognizers compiled once per process.
func defaultLibrary() *Library {
	defaultLibOnce.Do(func() { defaultLib = MustDefaultLibrary() })
	return defaultLib
}

// Detect returns every match of the structural category c in text, in
// pattern order then match order. Categories without patterns (including
// NAME) yield an empty result.
func (l *Library) Detect(c Category, text string) DetectionResult {
	var out DetectionResult
	for _, s := range l.structural {
		if s.category != c {
			continue
		}
		for _, re := range s.patterns {
			for _, m := range re.FindAllStringIndex(text, -1) {
				out = append(out, Span{Start: m[0], End: m[1], Text: text[m[0]:m[1]], Category: c})
			}
		}
	}
	return out
}

// DetectDates matches the numeric (D/M/Y, Y/M/D, D-M-Y, Y-M-D) and
// month-name date grammars.
func (l *Library) DetectDates(text string) DetectionResult {
	return l.Detect(CategoryDate, text)
}

// DetectSSN matches ddd-dd-dddd exactly.
func (l *Library) DetectSSN(text string) DetectionResult {
	return l.Detect(CategorySSN, text)
}

// DetectDates runs the embedded date grammars over text.
func DetectDates(text string) DetectionResult {
	return defaultLibrary().DetectDates(text)
}

// DetectSSN runs the embedded SSN grammar over text.
func DetectSSN(text string) DetectionResult {
	return defaultLibrary().DetectSSN(text)
}

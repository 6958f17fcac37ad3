package pii

import (
	"sort"
	"strings"
)

// Span is a half-open byte range [Start, End) of the text a detector ran
// over, flagged as a candidate of Category. Text == text[Start:End].
type Span struct {
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Text     string   `json:"text"`
	Category Category `json:"category"`
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether s and o share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// DetectionResult is the ordered candidate list of a single detector pass.
// It may contain overlapping spans.
type DetectionResult []Span

// resolve selects a non-overlapping subset of candidates: longest first,
// leftmost start on equal length, greedily rejecting anything that overlaps
// an already accepted span. The returned plan is ordered by Start.
func resolve(candidates DetectionResult) []Span {
	if len(candidates) == 0 {
		return nil
	}
	ordered := make([]Span, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Len() != ordered[j].Len() {
			return ordered[i].Len() > ordered[j].Len()
		}
		return ordered[i].Start < ordered[j].Start
	})

	var accepted []Span
	for _, c := range ordered {
		if c.Len() <= 0 {
			continue
		}
		conflict := false
		for _, a := range accepted {
			if c.Overlaps(a) {
				conflict = true
				break
			}
		}
		if !conflict {
			accepted = append(accepted, c)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}

// apply substitutes every span of plan with its category token. Offsets are
// taken against text as given; plan must be non-overlapping and sorted by
// Start, as returned by resolve.
func apply(text string, plan []Span) string {
	if len(plan) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range plan {
		b.WriteString(text[last:s.Start])
		b.WriteString(s.Category.Token())
		last = s.End
	}
	b.WriteString(text[last:])
	return b.String()
}

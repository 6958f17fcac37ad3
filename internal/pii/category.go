// Package pii detects and redacts personally identifying information in
// clinical conversation text.
//
// Redaction runs in a fixed order. Structural categories (DATE, then SSN) are
// always detected and substituted first. NAME is attempted only when the
// caller's Decision allows it, and its candidates are generated from the
// already-redacted text so that digits inside "[DATE]" or "[SSN]" can never be
// mistaken for name words.
package pii

import (
	"encoding/json"
	"sort"
	"strings"
)

// Category identifies a redaction reason.
type Category string

// Supported categories.
const (
	CategoryName Category = "NAME"
	CategoryDate Category = "DATE"
	CategorySSN  Category = "SSN"
)

// Token returns the fixed placeholder substituted for spans of this category.
func (c Category) Token() string {
	return "[" + string(c) + "]"
}

// ParseCategory normalizes s (case-insensitive, surrounding space ignored).
// The second return value is false for unknown categories.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CategoryName, CategoryDate, CategorySSN:
		return c, true
	}
	return "", false
}

// CategorySet is a small set of categories. A nil set reads as empty; build
// one with NewCategorySet before calling Add.
type CategorySet map[Category]struct{}

// NewCategorySet returns a set holding cats.
func NewCategorySet(cats ...Category) CategorySet {
	s := make(CategorySet, len(cats))
	for _, c := range cats {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is in the set. Safe on a nil set.
func (s CategorySet) Has(c Category) bool {
	_, ok := s[c]
	return ok
}

// Add inserts c.
func (s CategorySet) Add(c Category) {
	s[c] = struct{}{}
}

// Len returns the number of categories in the set.
func (s CategorySet) Len() int { return len(s) }

// Sorted returns the members in lexical order.
func (s CategorySet) Sorted() []Category {
	out := make([]Category, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the members as sorted strings (for logs and span attributes).
func (s CategorySet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, c := range sorted {
		out[i] = string(c)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array so output is stable.
func (s CategorySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of category names. Unknown names are kept
// verbatim (upper-cased) so callers can reject them explicitly.
func (s *CategorySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set := make(CategorySet, len(names))
	for _, n := range names {
		if c, ok := ParseCategory(n); ok {
			set.Add(c)
			continue
		}
		set.Add(Category(strings.ToUpper(strings.TrimSpace(n))))
	}
	*s = set
	return nil
}

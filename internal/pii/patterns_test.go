package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spanTexts(r DetectionResult) []string {
	out := make([]string, len(r))
	for i, s := range r {
		out[i] = s.Text
	}
	return out
}

func TestDetectDates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"slash D/M/Y", "I was born on 03/15/1985.", []string{"03/15/1985"}},
		{"slash two digit year", "seen 3/4/21", []string{"3/4/21"}},
		{"dash D-M-Y", "visit 15-03-85 ok", []string{"15-03-85"}},
		{"slash Y/M/D", "on 1985/03/15", []string{"1985/03/15"}},
		{"dash Y-M-D", "Last visit on 2024-01-10: fine", []string{"2024-01-10"}},
		{"month day", "see you on March 3rd", []string{"March 3rd"}},
		{"month day year", "born on March 15, 1985", []string{"March 15, 1985"}},
		{"abbreviated month lower case", "since jan 5 2020", []string{"jan 5 2020"}},
		{"two dates", "from 01/02/2020 to Feb 3", []string{"01/02/2020", "Feb 3"}},
		{"no date", "I have a headache", nil},
		{"bare year", "in 1985 I moved", nil},
		{"ssn is not a date", "SSN 987-65-4321", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectDates(tt.text)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.ElementsMatch(t, tt.want, spanTexts(got))
			for _, s := range got {
				assert.Equal(t, CategoryDate, s.Category)
				assert.Equal(t, tt.text[s.Start:s.End], s.Text)
			}
		})
	}
}

func TestDetectSSN(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"dashed", "My SSN is 123-45-6789.", []string{"123-45-6789"}},
		{"two", "123-45-6789 and 987-65-4321", []string{"123-45-6789", "987-65-4321"}},
		{"no separators", "123456789", nil},
		{"space separators", "123 45 6789", nil},
		{"too many digits", "123-45-67890", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectSSN(tt.text)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, spanTexts(got))
			for _, s := range got {
				assert.Equal(t, CategorySSN, s.Category)
			}
		})
	}
}

func TestDetect_NameHasNoPatterns(t *testing.T) {
	lib := MustDefaultLibrary()
	assert.Empty(t, lib.Detect(CategoryName, "John Smith"))
}

func TestLibraryCategoriesOrder(t *testing.T) {
	lib := MustDefaultLibrary()
	cats := lib.Categories()
	require.GreaterOrEqual(t, len(cats), 2)
	assert.Equal(t, CategoryDate, cats[0])
	assert.Equal(t, CategorySSN, cats[1])
}

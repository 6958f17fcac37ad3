package patient

import (
	"regexp"
	"strings"

	"github.com/clinicalintel/intake/internal/pii"
)

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy name is\s+([A-Za-z]+(?:[ \t]+[A-Za-z]+){0,3})`),
		regexp.MustCompile(`(?i)\bI'm\s+([A-Za-z]+(?:[ \t]+[A-Za-z]+){0,3})`),
		regexp.MustCompile(`(?i)\bname is\s+([A-Za-z]+(?:[ \t]+[A-Za-z]+){0,3})`),
		regexp.MustCompile(`(?i)\bI am\s+([A-Za-z]+(?:[ \t]+[A-Za-z]+){0,3})`),
	}
	ssnPattern  = regexp.MustCompile(`\b(\d{3}[-\s]?\d{2}[-\s]?\d{4})\b`)
	dobPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bborn on\s+([A-Za-z]+\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4})`),
		regexp.MustCompile(`\b(\d{1,2}[-/]\d{1,2}[-/]\d{4})\b`),
		regexp.MustCompile(`\b(\d{4}[-/]\d{1,2}[-/]\d{1,2})\b`),
		regexp.MustCompile(`(?i)\bbirth\D{0,40}?(\d{1,2}[-/]\d{1,2}[-/]\d{4})`),
	}
)

// Phrases like "I am having chest pain" describe symptoms, not names.
var symptomWords = map[string]struct{}{
	"suffering": {}, "having": {}, "feeling": {}, "experiencing": {},
}

// Extractor pulls identifying values out of a raw transcript. The result is
// held in memory only; callers hash it before anything is persisted.
type Extractor struct {
	lib *pii.Library
}

// NewExtractor uses lib's stop words to cut a name phrase short. A nil lib
// uses the embedded recognizers.
func NewExtractor(lib *pii.Library) *Extractor {
	if lib == nil {
		lib = pii.MustDefaultLibrary()
	}
	return &Extractor{lib: lib}
}

// Extract returns the first self-introduced name, the first SSN-shaped
// number and the first date of birth found in text, normalized.
func (e *Extractor) Extract(text string) Identity {
	id := Identity{
		Name: e.name(text),
	}
	if m := ssnPattern.FindStringSubmatch(text); m != nil {
		id.SSN = NormalizeSSN(m[1])
	}
	for _, re := range dobPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			id.DOB = NormalizeDOB(m[1])
			break
		}
	}
	return id.Normalized()
}

func (e *Extractor) name(text string) string {
	for _, re := range namePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if name := e.trimName(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

// trimName keeps the leading words of a captured phrase up to the first stop
// word. Phrases that open with a symptom verb are rejected.
func (e *Extractor) trimName(phrase string) string {
	var kept []string
	for _, w := range strings.Fields(phrase) {
		lw := strings.ToLower(w)
		if _, ok := symptomWords[lw]; ok {
			return ""
		}
		if e.lib.IsStopWord(lw) {
			break
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// Package patient stores hashed patient identities, their medical records and
// redacted conversation transcripts in SQLite.
//
// Identity values (name, SSN, date of birth) never reach the database in
// clear text: they are normalized and one-way hashed first. Conversations are
// accepted only as pii.Outcome values, so raw transcripts cannot be persisted
// through this package.
package patient

import (
	"regexp"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/clinicalintel/intake/internal/cryptoutil"
)

// Identity is the set of identifying values extracted from a transcript or
// supplied by an operator. Any field may be empty.
type Identity struct {
	Name string `json:"name,omitempty"`
	SSN  string `json:"ssn,omitempty"`
	DOB  string `json:"dob,omitempty"`
}

// Empty reports whether no identifying value is present.
func (id Identity) Empty() bool {
	return id.Name == "" && id.SSN == "" && id.DOB == ""
}

// Normalized returns id with whitespace collapsed, the SSN in ddd-dd-dddd
// form and the date of birth in YYYY-MM-DD form when it parses.
func (id Identity) Normalized() Identity {
	return Identity{
		Name: strings.Join(strings.Fields(id.Name), " "),
		SSN:  NormalizeSSN(id.SSN),
		DOB:  NormalizeDOB(id.DOB),
	}
}

var ssnDigits = regexp.MustCompile(`^\d{3}[-\s]?\d{2}[-\s]?\d{4}$`)

// NormalizeSSN rewrites "123 45 6789" and "123456789" as "123-45-6789".
// Values that are not nine digits are returned trimmed but otherwise as is.
func NormalizeSSN(ssn string) string {
	s := strings.TrimSpace(ssn)
	if !ssnDigits.MatchString(s) {
		return s
	}
	d := strings.NewReplacer("-", "", " ", "", "\t", "").Replace(s)
	return d[:3] + "-" + d[3:5] + "-" + d[5:]
}

// US month-first layouts are tried before day-first ones.
var dobLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"02/01/2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
}

var ordinalSuffix = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)

// NormalizeDOB converts a recognized date of birth to YYYY-MM-DD. Unparseable
// values are returned trimmed and lower-cased so equal spellings still hash
// equally.
func NormalizeDOB(dob string) string {
	s := strings.TrimSpace(dob)
	if s == "" {
		return ""
	}
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return strings.ToLower(s)
}

// ID derives the stable patient identifier from a normalized identity:
// "P" followed by eight upper-case hex digits.
func ID(id Identity) string {
	sum := cryptoutil.HashIdentity(id.Name + "|" + id.SSN + "|" + id.DOB)
	return "P" + strings.ToUpper(sum[:8])
}

// ValidID reports whether s has the shape produced by ID.
func ValidID(s string) bool {
	return len(s) == 9 && s[0] == 'P' && cryptoutil.IsHexString(s[1:])
}

// phoneticKey is the Double Metaphone rendering of a name, one primary code
// per word. Transcription spellings such as "Jon Smyth" and "John Smith"
// share a key.
func phoneticKey(name string) string {
	words := strings.Fields(strings.ToLower(name))
	codes := make([]string, 0, len(words))
	for _, w := range words {
		p, _ := matchr.DoubleMetaphone(w)
		if p != "" {
			codes = append(codes, p)
		}
	}
	return strings.Join(codes, " ")
}

// hashes are the stored forms of one identity.
type hashes struct {
	name, ssn, dob, phonetic string
}

func hashIdentity(id Identity) hashes {
	h := hashes{}
	if id.Name != "" {
		h.name = cryptoutil.HashIdentity(id.Name)
		if key := phoneticKey(id.Name); key != "" {
			h.phonetic = cryptoutil.HashIdentity(key)
		}
	}
	if id.SSN != "" {
		h.ssn = cryptoutil.HashIdentity(id.SSN)
	}
	if id.DOB != "" {
		h.dob = cryptoutil.HashIdentity(id.DOB)
	}
	return h
}

// Package diarize assigns speaker roles to transcribed conversation segments.
//
// Transcription output carries no speaker labels. The first segment's role is
// guessed from its shape and roles alternate from there.
package diarize

import (
	"regexp"
	"strings"
)

// Role is a conversation participant.
type Role string

// Roles.
const (
	RoleDoctor  Role = "Doctor"
	RolePatient Role = "Patient"
)

// Other returns the role that speaks after r.
func (r Role) Other() Role {
	if r == RoleDoctor {
		return RolePatient
	}
	return RoleDoctor
}

// Segment is one utterance from the transcriber.
type Segment struct {
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
	Text  string  `json:"text"`
}

// Turn is a segment with its assigned speaker.
type Turn struct {
	Speaker Role   `json:"speaker"`
	Text    string `json:"text"`
}

var (
	firstWord = regexp.MustCompile(`^[a-z]+`)
	wordRe    = regexp.MustCompile(`[a-z]+`)
)

var questionOpeners = map[string]struct{}{
	"what": {}, "how": {}, "why": {}, "when": {}, "where": {},
	"can": {}, "do": {}, "did": {}, "are": {}, "is": {},
}

var doctorTerms = map[string]struct{}{
	"doctor": {}, "dr": {}, "physician": {},
}

// IsQuestion reports whether text ends with a question mark or opens with an
// interrogative word.
func IsQuestion(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if strings.HasSuffix(t, "?") {
		return true
	}
	_, ok := questionOpeners[firstWord.FindString(t)]
	return ok
}

// mentionsDoctor reports whether text addresses or names the doctor.
func mentionsDoctor(text string) bool {
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if _, ok := doctorTerms[w]; ok {
			return true
		}
	}
	return false
}

// GuessFirstSpeaker picks the role of the opening segment. A question that
// does not mention the doctor is the doctor asking; a question that does is
// the patient addressing them. Anything else opens with the patient.
func GuessFirstSpeaker(text string) Role {
	if IsQuestion(text) && !mentionsDoctor(text) {
		return RoleDoctor
	}
	return RolePatient
}

// AssignSpeakers labels segments with alternating roles starting from
// GuessFirstSpeaker of the first segment.
func AssignSpeakers(segments []Segment) []Turn {
	if len(segments) == 0 {
		return nil
	}
	role := GuessFirstSpeaker(segments[0].Text)
	turns := make([]Turn, len(segments))
	for i, seg := range segments {
		turns[i] = Turn{Speaker: role, Text: strings.TrimSpace(seg.Text)}
		role = role.Other()
	}
	return turns
}

// Assemble renders turns as "Speaker: text" lines.
func Assemble(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Speaker))
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}

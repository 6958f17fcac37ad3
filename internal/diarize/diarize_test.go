package diarize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"How are you feeling today", true},
		{"  what brings you in", true},
		{"You feel dizzy?", true},
		{"Is it worse at night", true},
		{"I have a headache.", false},
		{"Island fever.", false},
		{"Doing fine.", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuestion(tt.text))
		})
	}
}

func TestGuessFirstSpeaker(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Role
	}{
		{"question without doctor", "What brings you in today?", RoleDoctor},
		{"question to the doctor", "Doctor, is this serious?", RolePatient},
		{"question with dr abbreviation", "Dr. Lee, can I go home?", RolePatient},
		{"statement", "I have had a cough for a week.", RolePatient},
		{"drink is not dr", "Do you drink coffee?", RoleDoctor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GuessFirstSpeaker(tt.text))
		})
	}
}

func TestAssignSpeakers(t *testing.T) {
	turns := AssignSpeakers([]Segment{
		{Text: "What brings you in today?"},
		{Text: " My name is John Smith and I have a cough. "},
		{Text: "How long has it lasted?"},
	})
	assert.Equal(t, []Turn{
		{Speaker: RoleDoctor, Text: "What brings you in today?"},
		{Speaker: RolePatient, Text: "My name is John Smith and I have a cough."},
		{Speaker: RoleDoctor, Text: "How long has it lasted?"},
	}, turns)

	assert.Nil(t, AssignSpeakers(nil))
}

func TestAssemble(t *testing.T) {
	got := Assemble([]Turn{
		{Speaker: RolePatient, Text: "Hi doctor."},
		{Speaker: RoleDoctor, Text: "Hello."},
	})
	assert.Equal(t, "Patient: Hi doctor.\nDoctor: Hello.", got)
	assert.Empty(t, Assemble(nil))
}

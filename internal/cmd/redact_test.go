package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTranscript = "Patient: My name is John Smith, SSN 123-45-6789.\n"

func TestRedactCmd_Stdin(t *testing.T) {
	isolate(t)

	tests := []struct {
		name    string
		args    []string
		wantOut string
		wantErr string
	}{
		{
			name:    "keyword gate",
			args:    []string{"redact", "--gate", "keyword"},
			wantOut: "Patient: My name is [NAME], SSN [SSN].\n",
			wantErr: "categories: NAME, SSN (gate: keyword)",
		},
		{
			name:    "semantic gate without recognizer falls back to keywords",
			args:    []string{"redact", "-"},
			wantOut: "Patient: My name is [NAME], SSN [SSN].\n",
			wantErr: "(gate: keyword)",
		},
		{
			name:    "empty allow list keeps names",
			args:    []string{"redact", "--allow="},
			wantOut: "Patient: My name is John Smith, SSN [SSN].\n",
			wantErr: "categories: SSN (gate: caller)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut, err := execute(t, sampleTranscript, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out)
			assert.Contains(t, errOut, tt.wantErr)
		})
	}
}

func TestRedactCmd_KeepsComparisons(t *testing.T) {
	isolate(t)

	out, errOut, err := execute(t, "ratio K<Na, Na>K\n", "redact", "--gate", "keyword")
	require.NoError(t, err)
	assert.Equal(t, "ratio K<Na, Na>K\n", out)
	assert.Contains(t, errOut, "categories: none")
}

func TestRedactCmd_JSON(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "Seen on March 3rd by Dr Ann Lee.", "redact", "--format", "json", "--allow", "name,date")
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Seen on [DATE] by Dr [NAME].", got["redacted_text"])
	assert.Equal(t, []interface{}{"DATE", "NAME"}, got["categories_found"])
	assert.Equal(t, "caller", got["gate_reason"])
}

func TestRedactCmd_SegmentsFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "visit.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"start": 0.0, "end": 1.5, "text": "What brings you in today?"},
  {"start": 1.5, "end": 4.0, "text": "My name is Ann Lee, born 03/04/1990."}
]`), 0o600))

	out, _, err := execute(t, "", "redact", "--gate", "keyword", path)
	require.NoError(t, err)
	assert.Equal(t, "Doctor: What brings you in today?\nPatient: My name is [NAME], born [DATE].\n", out)
}

func TestRedactCmd_Errors(t *testing.T) {
	dir := isolate(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown category", []string{"redact", "--allow", "PHONE"}},
		{"unknown format", []string{"redact", "--format", "xml"}},
		{"unknown gate", []string{"redact", "--gate", "magic"}},
		{"missing file", []string{"redact", filepath.Join(dir, "absent.txt")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "text", tt.args...)
			assert.Error(t, err)
		})
	}
}

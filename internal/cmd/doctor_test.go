package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorCmd_Text(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "", "doctor", "--skip-upstream")
	require.NoError(t, err, "warnings do not fail the command")
	assert.Contains(t, out, "✓ data_dir_writable")
	assert.Contains(t, out, "⚠ ner_backend")
	assert.Contains(t, out, "fix: Set INTAKE_API_KEYS for production")
	assert.Contains(t, out, "0 failed")
}

func TestDoctorCmd_JSON(t *testing.T) {
	isolate(t)
	t.Setenv("INTAKE_API_KEYS", "k1")

	out, _, err := execute(t, "", "doctor", "--skip-upstream", "--format", "json")
	require.NoError(t, err)

	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "warn", report.Status)
	assert.NotEmpty(t, report.Checks)
}

func TestDoctorCmd_FailsOnBadConfig(t *testing.T) {
	isolate(t)
	t.Setenv("INTAKE_METRICS_EXPORTER", "graphite")

	out, _, err := execute(t, "", "doctor", "--skip-upstream")
	assert.Error(t, err)
	assert.Contains(t, out, "config_load")
}

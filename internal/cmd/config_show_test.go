package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShowCmd_RunsAndShowsDataDir(t *testing.T) {
	dir := isolate(t)

	out, _, err := execute(t, "", "config", "show")
	require.NoError(t, err)

	assert.Contains(t, out, "Data directory:")
	assert.Contains(t, out, dir)
	assert.Contains(t, out, "(exists)")
	assert.Contains(t, out, "Patient DB:")
	assert.Contains(t, out, "NER provider:       none")
	assert.Contains(t, out, "Retention:          90 days")
	assert.NotContains(t, out, "Global rate limit:")
}

func TestConfigShowCmd_GlobalRateLimit(t *testing.T) {
	isolate(t)
	t.Setenv("INTAKE_RATE_LIMIT_GLOBAL_RPM", "600")

	out, _, err := execute(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Global rate limit:  600 req/min")
}

func TestConfigShowCmd_MasksSecrets(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.Remove(dir))
	t.Setenv("INTAKE_NER_PROVIDER", "openai")
	t.Setenv("INTAKE_NER_API_KEY", "sk-test-1234567890abcd")

	out, _, err := execute(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "(missing)")
	assert.Contains(t, out, "****abcd")
	assert.NotContains(t, out, "sk-test-1234567890abcd")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "****wxyz", maskSecret("abcdefghijklmnopqrstuvwxyz"))
}

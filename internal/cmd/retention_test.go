package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionRunCmd(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "", "patient", "seed")
	require.NoError(t, err)

	out, _, err := execute(t, "", "retention", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Conversations purged: 0")
	assert.Contains(t, out, "Duplicate records removed: 0")

	out, _, err = execute(t, "", "retention", "run", "--days", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Conversations purged: 0")
}

func TestRetentionRunCmd_InvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("INTAKE_RETENTION_SCHEDULE", "every day")

	_, _, err := execute(t, "", "retention", "run")
	assert.ErrorContains(t, err, "retention_schedule")
}

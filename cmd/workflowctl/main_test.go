package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
steps:
  - name: SENT_TO_MANAGEMENT
    default_role: SOLICITANTE
  - name: APPROVED
    default_role: GESTAO
workflows:
  - name: ADMISSION
    description: New hire
    steps:
      - step: SENT_TO_MANAGEMENT
        next: [APPROVED]
      - step: APPROVED
        final: true
`

func setup(t *testing.T) (configPath, seedPath string) {
	t.Helper()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	seedPath = filepath.Join(dir, "workflows.yaml")
	dbPath := filepath.Join(dir, "hr.db")
	require.NoError(t, os.WriteFile(configPath, []byte("database:\n  path: "+dbPath+"\n"), 0o600))
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0o600))
	return configPath, seedPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidate(t *testing.T) {
	_, seedPath := setup(t)

	out, err := execute(t, "validate", seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 steps, 1 workflows")

	_, err = execute(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeedThenShow(t *testing.T) {
	configPath, seedPath := setup(t)

	out, err := execute(t, "--config", configPath, "seed", seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "steps: 2 created, 0 updated")
	assert.Contains(t, out, "workflows: 1 created, 0 updated")

	out, err = execute(t, "--config", configPath, "seed", seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "steps: 0 created")

	out, err = execute(t, "--config", configPath, "show", "ADMISSION", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: ADMISSION")
	assert.Contains(t, out, "step: SENT_TO_MANAGEMENT")
	assert.Contains(t, out, "- APPROVED")
	assert.Contains(t, out, "final: true")

	out, err = execute(t, "--config", configPath, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "ADMISSION")
	assert.Contains(t, out, "1. SENT_TO_MANAGEMENT")
	assert.Contains(t, out, "(final)")

	_, err = execute(t, "--config", configPath, "show", "DISMISSAL")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	configPath, _ := setup(t)

	out, err := execute(t, "--config", configPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date")
}

func TestReplaceSteps(t *testing.T) {
	configPath, seedPath := setup(t)
	_, err := execute(t, "--config", configPath, "seed", seedPath)
	require.NoError(t, err)

	stepsPath := filepath.Join(t.TempDir(), "steps.yaml")
	require.NoError(t, os.WriteFile(stepsPath, []byte("- step: APPROVED\n  role: RH\n"), 0o600))

	out, err := execute(t, "--config", configPath, "replace-steps", "ADMISSION", stepsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1. APPROVED")
	assert.Contains(t, out, "RH")

	_, err = execute(t, "--config", configPath, "replace-steps", "DISMISSAL", stepsPath)
	assert.Error(t, err)
}

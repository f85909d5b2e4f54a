package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSpec = `{
	"version": "1.0.0",
	"id": "cli-test-1",
	"created_at": "2026-08-02T00:00:00Z",
	"inputs": {"prompt": "summarize the quarterly report"}
}`

func writeTempSpec(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleSpec), 0o644))
	return path
}

func TestRunExecuteCmd_WritesNDJSONTrace(t *testing.T) {
	specPath := writeTempSpec(t)
	outPath := filepath.Join(t.TempDir(), "trace.ndjson")
	var stdout, stderr bytes.Buffer

	exitCode := runExecuteCmd([]string{"--spec", specPath, "--out", outPath}, &stdout, &stderr)

	require.Equal(t, 0, exitCode)
	assert.Contains(t, stderr.String(), "trace_id=cli-test-1")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"header"`)
}

func TestRunCheckDeterminismCmd_UpdateThenCheckPasses(t *testing.T) {
	specPath := writeTempSpec(t)
	fixturePath := filepath.Join(t.TempDir(), "golden.ndjson")
	var stdout, stderr bytes.Buffer

	update := runCheckDeterminismCmd([]string{"--spec", specPath, "--fixture", fixturePath, "--update"}, &stdout, &stderr)
	require.Equal(t, 0, update)

	stdout.Reset()
	stderr.Reset()
	check := runCheckDeterminismCmd([]string{"--spec", specPath, "--fixture", fixturePath}, &stdout, &stderr)
	assert.Equal(t, 0, check)
	assert.Contains(t, stdout.String(), "OK")
}

func TestRunCheckDeterminismCmd_DetectsDriftAgainstStaleFixture(t *testing.T) {
	specPath := writeTempSpec(t)
	fixturePath := filepath.Join(t.TempDir(), "golden.ndjson")
	require.NoError(t, os.WriteFile(fixturePath, []byte(`{"type":"header","stale":true}`+"\n"), 0o644))

	var stdout, stderr bytes.Buffer
	exitCode := runCheckDeterminismCmd([]string{"--spec", specPath, "--fixture", fixturePath}, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdout.String(), "DRIFT DETECTED")
}

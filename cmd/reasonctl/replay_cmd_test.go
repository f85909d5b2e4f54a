package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunReplayCmd_VerifyRequiresSpecFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := runReplayCmd([]string{"--trace-id", "t1", "--verify"}, &stdout, &stderr)

	assert.Equal(t, 2, exitCode)
	assert.Contains(t, stderr.String(), "--verify requires --spec")
}

func TestRunReplayCmd_NoTraceFoundIsExitOne(t *testing.T) {
	t.Setenv("SQLITE_PATH", t.TempDir()+"/empty.db")
	var stdout, stderr bytes.Buffer

	exitCode := runReplayCmd([]string{"--trace-id", "does-not-exist"}, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "no trace found")
}

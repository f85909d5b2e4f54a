package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withStubServer(t *testing.T) *bool {
	t.Helper()
	called := false
	original := startServer
	startServer = func() { called = true }
	t.Cleanup(func() { startServer = original })
	return &called
}

func TestRun_NoArgsStartsServer(t *testing.T) {
	called := withStubServer(t)
	var stdout, stderr bytes.Buffer

	exitCode := Run([]string{"reasonctl"}, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.True(t, *called)
}

func TestRun_Help(t *testing.T) {
	withStubServer(t)
	var stdout, stderr bytes.Buffer

	exitCode := Run([]string{"reasonctl", "help"}, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "reasonctl")
}

func TestRun_Version(t *testing.T) {
	withStubServer(t)
	var stdout, stderr bytes.Buffer

	exitCode := Run([]string{"reasonctl", "version"}, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "reasonctl/")
}

func TestRun_UnknownCommand(t *testing.T) {
	withStubServer(t)
	var stdout, stderr bytes.Buffer

	exitCode := Run([]string{"reasonctl", "frobnicate"}, &stdout, &stderr)

	assert.Equal(t, 2, exitCode)
	assert.Contains(t, stderr.String(), "Unknown command")
}

func TestRun_UnknownFlagDefaultsToServer(t *testing.T) {
	called := withStubServer(t)
	var stdout, stderr bytes.Buffer

	exitCode := Run([]string{"reasonctl", "--foo"}, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.True(t, *called)
}

func TestRun_ServeDoesNotExecuteInline(t *testing.T) {
	called := withStubServer(t)
	var stdout, stderr bytes.Buffer

	exitCode := Run([]string{"reasonctl", "serve"}, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.True(t, *called)
}

func TestRun_ExecuteRequiresReadableSpec(t *testing.T) {
	withStubServer(t)
	var stdout, stderr bytes.Buffer

	exitCode := Run([]string{"reasonctl", "execute", "--spec", "/nonexistent/path.json"}, &stdout, &stderr)

	assert.Equal(t, 2, exitCode)
	assert.Contains(t, stderr.String(), "cannot read problem spec")
}

func TestRun_CheckDeterminismRequiresFixtureFlag(t *testing.T) {
	withStubServer(t)
	var stdout, stderr bytes.Buffer

	exitCode := Run([]string{"reasonctl", "check-determinism"}, &stdout, &stderr)

	assert.Equal(t, 2, exitCode)
	assert.Contains(t, stderr.String(), "--fixture is required")
}

func TestRun_ReplayRequiresTraceIDFlag(t *testing.T) {
	withStubServer(t)
	var stdout, stderr bytes.Buffer

	exitCode := Run([]string{"reasonctl", "replay"}, &stdout, &stderr)

	assert.Equal(t, 2, exitCode)
	assert.Contains(t, stderr.String(), "--trace-id is required")
}

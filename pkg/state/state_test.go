package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reasonkernel/core/pkg/spec"
)

func sampleProblem() spec.ProblemSpec {
	return spec.ProblemSpec{
		Version:   "1.0.0",
		ID:        "req-001",
		CreatedAt: "2026-08-02T00:00:00Z",
		Inputs: spec.Inputs{
			Prompt:      "explain the thing",
			Constraints: []string{"be concise"},
		},
	}
}

func TestNew_SeedsFromProblem(t *testing.T) {
	s := New(sampleProblem(), "trace-1", "default", "", "2026-08-02T00:00:00Z")

	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, 0, s.StepIndex)
	assert.Equal(t, []string{"be concise"}, s.Constraints)
	assert.Equal(t, "trace-1", s.Metadata.TraceID)
	assert.Equal(t, "default", s.Metadata.PolicyProfile)
	assert.Equal(t, "2026-08-02T00:00:00Z", s.Metadata.CreatedAt)
	assert.Equal(t, "2026-08-02T00:00:00Z", s.Metadata.UpdatedAt)
	assert.Empty(t, s.Artifacts)
}

func TestNew_DeepCopiesProblem(t *testing.T) {
	ps := sampleProblem()
	s := New(ps, "trace-1", "default", "", ps.CreatedAt)

	s.Problem.Inputs.Constraints[0] = "tampered"
	require.NotEqual(t, ps.Inputs.Constraints[0], s.Problem.Inputs.Constraints[0])
}

func TestWithArtifact_DoesNotMutateReceiver(t *testing.T) {
	s0 := New(sampleProblem(), "trace-1", "default", "", "2026-08-02T00:00:00Z")
	s1 := s0.WithArtifact("decomposition", map[string]interface{}{"tasks": []string{"a"}})

	assert.Empty(t, s0.Artifacts, "receiver must be unchanged")
	assert.NotEmpty(t, s1.Artifacts)
}

func TestAdvance_IncrementsStepIndexAndSetsRunning(t *testing.T) {
	s0 := New(sampleProblem(), "trace-1", "default", "", "2026-08-02T00:00:00Z")
	s1 := s0.Advance("normalized", map[string]interface{}{"normalized_prompt": "explain the thing"}, "2026-08-02T00:01:00Z")

	assert.Equal(t, 0, s0.StepIndex, "receiver must be unchanged")
	assert.Equal(t, 1, s1.StepIndex)
	assert.Equal(t, StatusRunning, s1.Status)
	assert.Equal(t, "2026-08-02T00:01:00Z", s1.Metadata.UpdatedAt)
	assert.Equal(t, map[string]interface{}{"normalized_prompt": "explain the thing"}, s1.Artifacts["normalized"])
}

func TestWithFailure_AppendsErrorsAndSetsStatus(t *testing.T) {
	s0 := New(sampleProblem(), "trace-1", "default", "", "2026-08-02T00:00:00Z")
	s1 := s0.WithFailure([]ErrorEntry{{Code: "invalid_prompt", Message: "prompt is required", Step: "normalize"}}, "2026-08-02T00:01:00Z")

	assert.Empty(t, s0.Errors, "receiver must be unchanged")
	require.Len(t, s1.Errors, 1)
	assert.Equal(t, StatusFailed, s1.Status)
	assert.Equal(t, "invalid_prompt", s1.Errors[0].Code)
}

func TestWithStatus_RefreshesUpdatedAt(t *testing.T) {
	s0 := New(sampleProblem(), "trace-1", "default", "", "2026-08-02T00:00:00Z")
	s1 := s0.WithStatus(StatusCompleted, "2026-08-02T00:05:00Z")

	assert.Equal(t, StatusPending, s0.Status)
	assert.Equal(t, StatusCompleted, s1.Status)
	assert.Equal(t, "2026-08-02T00:05:00Z", s1.Metadata.UpdatedAt)
}

func TestClone_ArtifactMutationIsolated(t *testing.T) {
	s0 := New(sampleProblem(), "trace-1", "default", "", "2026-08-02T00:00:00Z").WithArtifact("a", 1)
	s1 := s0.WithArtifact("b", 2)

	_, hasB := s0.Artifacts["b"]
	assert.False(t, hasB, "s0 must not see the artifact added to s1")
	assert.Equal(t, 1, s0.Artifacts["a"])
	assert.Equal(t, 1, s1.Artifacts["a"])
}

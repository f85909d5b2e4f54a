package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reasonkernel/core/pkg/spec"
	"github.com/reasonkernel/core/pkg/state"
)

const now = "2026-08-02T00:00:00Z"

func baseState(ps spec.ProblemSpec) state.ReasoningState {
	return state.New(ps, "trace-1", "default", "", now)
}

func TestNormalize_Success(t *testing.T) {
	ps := spec.ProblemSpec{Inputs: spec.Inputs{Prompt: "  explain   the   thing  "}}
	s0 := baseState(ps)

	s1, result := Normalize(s0, now)

	assert.Equal(t, state.ResultSuccess, result.Status)
	assert.Equal(t, 1, s1.StepIndex)
	assert.Equal(t, state.StatusRunning, s1.Status)
	assert.Equal(t, map[string]interface{}{"normalized_prompt": "explain the thing"}, s1.Artifacts["normalized"])
}

func TestNormalize_BlankPromptFails(t *testing.T) {
	ps := spec.ProblemSpec{Inputs: spec.Inputs{Prompt: "   "}}
	s0 := baseState(ps)

	s1, result := Normalize(s0, now)

	assert.Equal(t, state.ResultFailed, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "invalid_prompt", result.Errors[0].Code)
	assert.Equal(t, s0, s1, "state must be returned unchanged on Normalize failure")
}

func TestNormalize_CollapsesInteriorWhitespace(t *testing.T) {
	ps := spec.ProblemSpec{Inputs: spec.Inputs{Prompt: "a\t\tb\n\nc"}}
	s0 := baseState(ps)
	s1, _ := Normalize(s0, now)
	assert.Equal(t, "a b c", s1.Artifacts["normalized"].(map[string]interface{})["normalized_prompt"])
}

func TestDecompose_UsesGoalsInOrder(t *testing.T) {
	ps := spec.ProblemSpec{Inputs: spec.Inputs{Prompt: "x", Goals: []string{"g1", "g2"}}}
	s0 := baseState(ps)
	s1, result := Decompose(s0, now)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, []interface{}{"g1", "g2"}, output["tasks"])
	assert.Equal(t, output, s1.Artifacts["decomposition"])
}

func TestDecompose_FallsBackToNormalizedPrompt(t *testing.T) {
	ps := spec.ProblemSpec{Inputs: spec.Inputs{Prompt: "explain it"}}
	s0 := baseState(ps).WithArtifact("normalized", map[string]interface{}{"normalized_prompt": "explain it"})
	_, result := Decompose(s0, now)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, []interface{}{"explain it"}, output["tasks"])
}

func TestDecompose_FallsBackToUnspecifiedTask(t *testing.T) {
	ps := spec.ProblemSpec{Inputs: spec.Inputs{Prompt: ""}}
	s0 := baseState(ps)
	_, result := Decompose(s0, now)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, []interface{}{"unspecified task"}, output["tasks"])
}

func TestAcquireEvidence_NoEvidence(t *testing.T) {
	ps := spec.ProblemSpec{Inputs: spec.Inputs{Prompt: "x"}}
	s0 := baseState(ps)
	_, result := AcquireEvidence(s0, now)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, 0, output["evidence_count"])
	assert.Equal(t, false, output["evidence_required"])
}

func TestAcquireEvidence_WithEvidenceAndRequirement(t *testing.T) {
	ps := spec.ProblemSpec{
		Inputs:   spec.Inputs{Prompt: "x", Context: map[string]interface{}{"evidence": []interface{}{"doc1", "doc2"}}},
		Settings: &spec.Settings{EvidenceRequired: true},
	}
	s0 := baseState(ps)
	_, result := AcquireEvidence(s0, now)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, 2, output["evidence_count"])
	assert.Equal(t, true, output["evidence_required"])
}

func TestCompute_CountsTasks(t *testing.T) {
	s0 := baseState(spec.ProblemSpec{}).WithArtifact("decomposition", map[string]interface{}{"tasks": []interface{}{"a", "b", "c"}})
	_, result := Compute(s0, now)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, 3, output["task_count"])
	assert.Equal(t, "ok", output["status"])
}

func TestVerify_NoPaths_Passes(t *testing.T) {
	s0 := baseState(spec.ProblemSpec{}).
		WithArtifact("decomposition", map[string]interface{}{"tasks": []interface{}{"a"}}).
		WithArtifact("evidence", map[string]interface{}{"evidence_count": 0})
	_, result := Verify(s0, now)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, "passed", output["status"])
}

func TestVerify_NoPaths_FailsWhenEvidenceRequiredAndAbsent(t *testing.T) {
	ps := spec.ProblemSpec{Settings: &spec.Settings{EvidenceRequired: true}}
	s0 := baseState(ps).
		WithArtifact("decomposition", map[string]interface{}{"tasks": []interface{}{"a"}}).
		WithArtifact("evidence", map[string]interface{}{"evidence_count": 0})
	_, result := Verify(s0, now)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, "failed", output["status"])
}

func TestVerify_WithPaths_AggregatesPerPathResults(t *testing.T) {
	required := true
	notRequired := false
	ps := spec.ProblemSpec{
		Settings: &spec.Settings{
			VerificationPaths: []spec.VerificationPath{
				{Name: "strict", EvidenceRequired: &required},
				{Name: "lenient", EvidenceRequired: &notRequired},
			},
		},
	}
	s0 := baseState(ps).
		WithArtifact("decomposition", map[string]interface{}{"tasks": []interface{}{"a"}}).
		WithArtifact("evidence", map[string]interface{}{"evidence_count": 0})
	_, result := Verify(s0, now)

	output := result.Output.(map[string]interface{})
	aggregate := output["aggregate"].(map[string]interface{})
	assert.Equal(t, "failed", aggregate["status"])
	assert.Equal(t, 1, aggregate["failed_count"])
	assert.Equal(t, 2, aggregate["total"])
}

func TestSynthesize_Summary(t *testing.T) {
	s0 := baseState(spec.ProblemSpec{}).WithArtifact("computation", map[string]interface{}{"task_count": 4, "status": "ok"})
	_, result := Synthesize(s0, now)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, "Processed 4 task(s).", output["summary"])
}

func TestAudit_SortsArtifactKeys(t *testing.T) {
	s0 := baseState(spec.ProblemSpec{}).
		WithArtifact("decomposition", map[string]interface{}{}).
		WithArtifact("normalized", map[string]interface{}{})
	_, result := Audit(s0, now)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, []interface{}{"decomposition", "normalized"}, output["artifact_keys"])
}

func TestRegistry_HasAllSevenSteps(t *testing.T) {
	names := []string{"normalize", "decompose", "acquire_evidence", "compute", "verify", "synthesize", "audit"}
	for _, n := range names {
		_, ok := Registry[n]
		assert.True(t, ok, "missing handler for %q", n)
	}
	assert.Len(t, Registry, len(names))
}

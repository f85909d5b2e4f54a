// Package steps implements the seven pure step handlers (C6): total
// functions (state, now) -> (state', result). Handlers never touch a
// clock or any other ambient source of nondeterminism; "now" is always
// the caller-supplied timestamp, and every hashed payload is built in
// the fixed field order documented per handler so unrelated field
// reordering elsewhere in the state can never change a hash.
package steps

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/reasonkernel/core/pkg/canonicalize"
	"github.com/reasonkernel/core/pkg/state"
)

// resultVersion is the semver stamped onto every StepResult. It tracks
// the step-result payload shape (§3), not the engine_version reported
// in the trace header.
const resultVersion = "1.0.0"

// Handler is the pure-function signature every step implements.
type Handler func(s state.ReasoningState, now string) (state.ReasoningState, state.StepResult)

// Registry maps step name to its handler, the table C8 consults via
// the policy-resolved step list.
var Registry = map[string]Handler{
	"normalize":         Normalize,
	"decompose":         Decompose,
	"acquire_evidence":  AcquireEvidence,
	"compute":           Compute,
	"verify":            Verify,
	"synthesize":        Synthesize,
	"audit":             Audit,
}

func hashOf(v interface{}) string {
	h, err := canonicalize.HashJSON(v)
	if err != nil {
		// Every payload here is built from plain maps/slices/strings/ints;
		// a canonicalization failure would mean a handler smuggled in a
		// NaN/Inf float, which is a programming error, not a runtime one.
		panic(fmt.Sprintf("steps: unhashable payload: %v", err))
	}
	return h
}

func success(step string, input, output interface{}, now string) state.StepResult {
	return state.StepResult{
		Version:    resultVersion,
		Step:       step,
		Status:     state.ResultSuccess,
		InputHash:  hashOf(input),
		OutputHash: hashOf(output),
		StartedAt:  now,
		FinishedAt: now,
		Output:     output,
	}
}

func failure(step string, input interface{}, errs []state.ErrorEntry, now string) state.StepResult {
	return state.StepResult{
		Version:    resultVersion,
		Step:       step,
		Status:     state.ResultFailed,
		InputHash:  hashOf(input),
		OutputHash: hashOf(errs),
		StartedAt:  now,
		FinishedAt: now,
		Errors:     errs,
	}
}

// Normalize trims the prompt and collapses interior whitespace runs to
// a single space, then applies NFC so the same logical string always
// produces the same bytes regardless of the combining-character form
// the caller sent. If the prompt is missing or blank after trimming,
// Normalize fails without advancing step_index (§4.6 "Normalize
// failure mode"): the returned state is the input state, unchanged.
// spec.Validate already rejects a blank prompt at the boundary, so in
// practice this path only fires for a ReasoningState built directly
// rather than through Validate -- Normalize stays total either way.
func Normalize(s state.ReasoningState, now string) (state.ReasoningState, state.StepResult) {
	input := map[string]interface{}{"prompt": s.Problem.Inputs.Prompt}

	trimmed := strings.TrimSpace(s.Problem.Inputs.Prompt)
	if trimmed == "" {
		errs := []state.ErrorEntry{{Code: "invalid_prompt", Message: "prompt is required"}}
		return s, failure("normalize", input, errs, now)
	}

	collapsed := collapseWhitespace(trimmed)
	normalized := norm.NFC.String(collapsed)

	output := map[string]interface{}{"normalized_prompt": normalized}
	next := s.Advance("normalized", output, now)
	return next, success("normalize", input, output, now)
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Decompose turns goals (if any) or the normalized prompt into an
// ordered task list. Order is the caller's goal order, never
// reshuffled.
func Decompose(s state.ReasoningState, now string) (state.ReasoningState, state.StepResult) {
	normalized, _ := artifactString(s, "normalized", "normalized_prompt")

	input := map[string]interface{}{
		"goals":  toInterfaceSlice(s.Problem.Inputs.Goals),
		"prompt": normalized,
	}

	var tasks []string
	switch {
	case len(s.Problem.Inputs.Goals) > 0:
		tasks = append(tasks, s.Problem.Inputs.Goals...)
	case normalized != "":
		tasks = []string{normalized}
	default:
		tasks = []string{"unspecified task"}
	}

	output := map[string]interface{}{"tasks": toInterfaceSlice(tasks)}
	next := s.Advance("decomposition", output, now)
	return next, success("decompose", input, output, now)
}

// AcquireEvidence reads any evidence the caller supplied via
// inputs.context.evidence and reports how much of it there is.
// evidence_required reflects settings.evidence_required (default
// false) unless a verification path overrides it -- that override is
// Verify's concern, not this step's.
func AcquireEvidence(s state.ReasoningState, now string) (state.ReasoningState, state.StepResult) {
	evidence := contextEvidence(s)
	evidenceRequired := s.Problem.Settings != nil && s.Problem.Settings.EvidenceRequired

	input := map[string]interface{}{"evidence": evidence}
	output := map[string]interface{}{
		"evidence":          evidence,
		"evidence_required": evidenceRequired,
		"evidence_count":    len(evidence),
	}
	next := s.Advance("evidence", output, now)
	return next, success("acquire_evidence", input, output, now)
}

func contextEvidence(s state.ReasoningState) []interface{} {
	if s.Problem.Inputs.Context == nil {
		return []interface{}{}
	}
	raw, ok := s.Problem.Inputs.Context["evidence"]
	if !ok {
		return []interface{}{}
	}
	list, ok := raw.([]interface{})
	if !ok {
		return []interface{}{}
	}
	return list
}

// Compute reports how many tasks were decomposed. It performs no
// domain computation of its own; downstream steps (Verify, Synthesize)
// interpret the count.
func Compute(s state.ReasoningState, now string) (state.ReasoningState, state.StepResult) {
	tasks := artifactTasks(s)
	input := map[string]interface{}{"tasks": toInterfaceSlice(tasks)}
	output := map[string]interface{}{"task_count": len(tasks), "status": "ok"}
	next := s.Advance("computation", output, now)
	return next, success("compute", input, output, now)
}

// Verify checks tasks_present and, where evidence is required,
// evidence_present, either once globally or once per configured
// verification path (§4.6).
func Verify(s state.ReasoningState, now string) (state.ReasoningState, state.StepResult) {
	tasks := artifactTasks(s)
	input := map[string]interface{}{"tasks": toInterfaceSlice(tasks)}

	tasksPresent := len(tasks) > 0
	evidenceCount := artifactEvidenceCount(s)
	evidencePresent := evidenceCount > 0
	defaultEvidenceRequired := s.Problem.Settings != nil && s.Problem.Settings.EvidenceRequired

	var output map[string]interface{}

	paths := verificationPaths(s)
	if len(paths) == 0 {
		checks := map[string]interface{}{
			"tasks_present":      tasksPresent,
			"task_count":         len(tasks),
			"evidence_present":   evidencePresent,
			"evidence_required":  defaultEvidenceRequired,
		}
		passed := tasksPresent && (!defaultEvidenceRequired || evidencePresent)
		output = map[string]interface{}{
			"checks": checks,
			"status": verifyStatus(passed),
		}
	} else {
		perPath := make([]interface{}, 0, len(paths))
		failedCount := 0
		for _, p := range paths {
			required := defaultEvidenceRequired
			if p.EvidenceRequired != nil {
				required = *p.EvidenceRequired
			}
			passed := tasksPresent && (!required || evidencePresent)
			if !passed {
				failedCount++
			}
			perPath = append(perPath, map[string]interface{}{
				"name": p.Name,
				"checks": map[string]interface{}{
					"tasks_present":     tasksPresent,
					"task_count":        len(tasks),
					"evidence_present":  evidencePresent,
					"evidence_required": required,
				},
				"status": verifyStatus(passed),
			})
		}
		output = map[string]interface{}{
			"paths": perPath,
			"aggregate": map[string]interface{}{
				"status":       verifyStatus(failedCount == 0),
				"total":        len(paths),
				"failed_count": failedCount,
			},
		}
	}

	next := s.Advance("verification", output, now)
	return next, success("verify", input, output, now)
}

func verifyStatus(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

type verificationPath struct {
	Name             string
	EvidenceRequired *bool
}

func verificationPaths(s state.ReasoningState) []verificationPath {
	if s.Problem.Settings == nil || len(s.Problem.Settings.VerificationPaths) == 0 {
		return nil
	}
	out := make([]verificationPath, 0, len(s.Problem.Settings.VerificationPaths))
	for _, vp := range s.Problem.Settings.VerificationPaths {
		out = append(out, verificationPath{Name: vp.Name, EvidenceRequired: vp.EvidenceRequired})
	}
	return out
}

// Synthesize summarizes how many tasks were processed.
func Synthesize(s state.ReasoningState, now string) (state.ReasoningState, state.StepResult) {
	taskCount := artifactTaskCount(s)
	input := map[string]interface{}{"task_count": taskCount}
	output := map[string]interface{}{"summary": fmt.Sprintf("Processed %d task(s).", taskCount)}
	next := s.Advance("synthesis", output, now)
	return next, success("synthesize", input, output, now)
}

// Audit records the sorted set of artifact keys accumulated so far, a
// tamper-evident snapshot of what the execution has produced.
func Audit(s state.ReasoningState, now string) (state.ReasoningState, state.StepResult) {
	keys := make([]string, 0, len(s.Artifacts))
	for k := range s.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	input := map[string]interface{}{"artifact_keys": toInterfaceSlice(keys)}
	output := map[string]interface{}{"artifact_keys": toInterfaceSlice(keys), "status": "ok"}
	next := s.Advance("audit", output, now)
	return next, success("audit", input, output, now)
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func artifactString(s state.ReasoningState, slot, field string) (string, bool) {
	raw, ok := s.Artifacts[slot]
	if !ok {
		return "", false
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := m[field]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func artifactTasks(s state.ReasoningState) []string {
	raw, ok := s.Artifacts["decomposition"]
	if !ok {
		return nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	list, ok := m["tasks"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func artifactTaskCount(s state.ReasoningState) int {
	raw, ok := s.Artifacts["computation"]
	if !ok {
		return len(artifactTasks(s))
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return len(artifactTasks(s))
	}
	count, ok := m["task_count"].(int)
	if !ok {
		return len(artifactTasks(s))
	}
	return count
}

func artifactEvidenceCount(s state.ReasoningState) int {
	raw, ok := s.Artifacts["evidence"]
	if !ok {
		return 0
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return 0
	}
	count, ok := m["evidence_count"].(int)
	if !ok {
		return 0
	}
	return count
}

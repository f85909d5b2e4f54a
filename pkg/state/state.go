// Package state defines ReasoningState and StepResult, the two
// evolving value types threaded through an execution (§3). Both are
// treated as immutable by convention: step handlers never mutate a
// ReasoningState in place, they build and return a new one
// (copy-on-write, §5, §9 "Deep-copy-on-write for state").
package state

import "github.com/reasonkernel/core/pkg/spec"

// Status values for ReasoningState.Status. Monotonic per I5: pending
// -> running -> {completed, failed}; nothing transitions out of a
// terminal state.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
)

// Result status values for StepResult.Status.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// ErrorEntry is one entry in ReasoningState.Errors.
type ErrorEntry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
}

// Metadata carries the execution's identifying and timing context.
type Metadata struct {
	TraceID       string `json:"trace_id"`
	PolicyProfile string `json:"policy_profile"`
	ModelProfile  string `json:"model_profile,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// ReasoningState is the accumulated state of an execution at a point
// in the step sequence (§3). Artifacts is what loop stop-condition
// paths resolve against (pkg/loop descends into this map only -- never
// into Errors, Assumptions, or Constraints).
type ReasoningState struct {
	Version     string                 `json:"version"`
	Problem     spec.ProblemSpec       `json:"problem"`
	StepIndex   int                    `json:"step_index"`
	Status      string                 `json:"status"`
	Artifacts   map[string]interface{} `json:"artifacts"`
	Assumptions []string               `json:"assumptions"`
	Constraints []string               `json:"constraints"`
	Errors      []ErrorEntry           `json:"errors,omitempty"`
	Metadata    Metadata               `json:"metadata"`
}

// StepResult is the per-step record appended to the trace (§3): the
// outcome of having run a step, distinct from the ReasoningState that
// outcome produced. Exactly one of Output or Errors is set for
// success/failed; neither is set for skipped.
type StepResult struct {
	Version    string      `json:"version"`
	Step       string      `json:"step"`
	Status     string      `json:"status"`
	InputHash  string      `json:"input_hash"`
	OutputHash string      `json:"output_hash"`
	StartedAt  string      `json:"started_at"`
	FinishedAt string      `json:"finished_at"`
	Output     interface{} `json:"output,omitempty"`
	Errors     []ErrorEntry `json:"errors,omitempty"`
}

// New builds the initial ReasoningState for an execution: problem is
// deep-copied from ps (by value, since ProblemSpec contains no
// pointers a caller could alias back into except Settings and
// Provenance, which New re-copies), status is "pending", constraints
// are seeded from inputs.constraints, and metadata is filled from
// traceID/policyProfile/modelProfile/createdAt. updated_at starts
// equal to created_at.
func New(ps spec.ProblemSpec, traceID, policyProfile, modelProfile, createdAt string) ReasoningState {
	return ReasoningState{
		Version:     ps.Version,
		Problem:     deepCopyProblem(ps),
		StepIndex:   0,
		Status:      StatusPending,
		Artifacts:   map[string]interface{}{},
		Assumptions: []string{},
		Constraints: append([]string{}, ps.Inputs.Constraints...),
		Errors:      nil,
		Metadata: Metadata{
			TraceID:       traceID,
			PolicyProfile: policyProfile,
			ModelProfile:  modelProfile,
			CreatedAt:     createdAt,
			UpdatedAt:     createdAt,
		},
	}
}

func deepCopyProblem(ps spec.ProblemSpec) spec.ProblemSpec {
	cp := ps
	cp.Inputs.Constraints = append([]string{}, ps.Inputs.Constraints...)
	cp.Inputs.Goals = append([]string{}, ps.Inputs.Goals...)
	if ps.Inputs.Context != nil {
		ctx := make(map[string]interface{}, len(ps.Inputs.Context))
		for k, v := range ps.Inputs.Context {
			ctx[k] = v
		}
		cp.Inputs.Context = ctx
	}
	if ps.Settings != nil {
		s := *ps.Settings
		cp.Settings = &s
	}
	if ps.Provenance != nil {
		prov := make(map[string]interface{}, len(ps.Provenance))
		for k, v := range ps.Provenance {
			prov[k] = v
		}
		cp.Provenance = prov
	}
	return cp
}

// clone returns a deep-enough copy of s for every WithX method to
// mutate safely without the receiver observing the change.
func (s ReasoningState) clone() ReasoningState {
	artifacts := make(map[string]interface{}, len(s.Artifacts))
	for k, v := range s.Artifacts {
		artifacts[k] = v
	}
	assumptions := append([]string{}, s.Assumptions...)
	constraints := append([]string{}, s.Constraints...)
	errs := append([]ErrorEntry{}, s.Errors...)
	return ReasoningState{
		Version:     s.Version,
		Problem:     deepCopyProblem(s.Problem),
		StepIndex:   s.StepIndex,
		Status:      s.Status,
		Artifacts:   artifacts,
		Assumptions: assumptions,
		Constraints: constraints,
		Errors:      errs,
		Metadata:    s.Metadata,
	}
}

// WithArtifact returns a copy of s with artifacts[key] set to value.
func (s ReasoningState) WithArtifact(key string, value interface{}) ReasoningState {
	next := s.clone()
	next.Artifacts[key] = value
	return next
}

// Advance returns a copy of s with step_index incremented, status set
// to "running", artifacts[slot] set to output, and updated_at set to
// now -- the "advance-on-success" semantics of §4.6.
func (s ReasoningState) Advance(slot string, output interface{}, now string) ReasoningState {
	next := s.clone()
	next.StepIndex++
	next.Status = StatusRunning
	next.Artifacts[slot] = output
	next.Metadata.UpdatedAt = now
	return next
}

// WithFailure returns a copy of s with status set to "failed", the
// given errors appended, and updated_at set to now. step_index is left
// untouched: callers decide separately whether to advance it.
func (s ReasoningState) WithFailure(errs []ErrorEntry, now string) ReasoningState {
	next := s.clone()
	next.Status = StatusFailed
	next.Errors = append(next.Errors, errs...)
	next.Metadata.UpdatedAt = now
	return next
}

// WithStatus returns a copy of s with status replaced and updated_at
// refreshed.
func (s ReasoningState) WithStatus(status, now string) ReasoningState {
	next := s.clone()
	next.Status = status
	next.Metadata.UpdatedAt = now
	return next
}

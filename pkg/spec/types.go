// Package spec defines ProblemSpec, the caller-supplied, immutable
// input to an execution (§3), and the two-layer validator that
// enforces its shape and cross-field invariants (§4.2).
package spec

import "encoding/json"

// ProblemSpec is the caller-owned, read-only input to an execution.
type ProblemSpec struct {
	Version    string                 `json:"version"`
	ID         string                 `json:"id"`
	CreatedAt  string                 `json:"created_at"`
	Inputs     Inputs                 `json:"inputs"`
	Settings   *Settings              `json:"settings,omitempty"`
	Provenance map[string]interface{} `json:"provenance,omitempty"`
}

// Inputs holds the problem statement itself.
type Inputs struct {
	Prompt      string                 `json:"prompt"`
	Constraints []string               `json:"constraints,omitempty"`
	Goals       []string               `json:"goals,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// Settings configures optional behavior of the execution.
type Settings struct {
	EvidenceRequired       bool               `json:"evidence_required,omitempty"`
	MaxSteps               int                `json:"max_steps,omitempty"`
	PolicyProfile          string             `json:"policy_profile,omitempty"`
	ModelProfile           string             `json:"model_profile,omitempty"`
	OrchestrationFramework string             `json:"orchestration_framework,omitempty"`
	VerificationPaths      []VerificationPath `json:"verification_paths,omitempty"`
	Loop                   *LoopConfig        `json:"loop,omitempty"`
}

// VerificationPath names one path the Verify step should check, with
// an optional per-path override of evidence_required.
type VerificationPath struct {
	Name             string `json:"name"`
	EvidenceRequired *bool  `json:"evidence_required,omitempty"`
}

// StopOperator enumerates the comparison operators a stop_condition
// may use. OperatorEquals is also reachable via the shorthand
// {path, equals: V} form (see StopCondition.HasEquals and
// StopCondition.EffectiveOperator).
type StopOperator string

const (
	OperatorEquals    StopOperator = "equals"
	OperatorNotEquals StopOperator = "not_equals"
	OperatorGT        StopOperator = "gt"
	OperatorGTE       StopOperator = "gte"
	OperatorLT        StopOperator = "lt"
	OperatorLTE       StopOperator = "lte"
)

// StopCondition is the loop's stop predicate configuration (§3, §4.5).
// Value/Equals are kept as raw JSON so the loop controller can tell a
// configured integer apart from a float or boolean literal -- the
// spec requires comparison operators to reject non-integer values.
type StopCondition struct {
	Path     string          `json:"path"`
	Operator StopOperator    `json:"operator,omitempty"`
	Equals   json.RawMessage `json:"equals,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// LoopConfig is settings.loop (§3).
type LoopConfig struct {
	Enabled       bool          `json:"enabled"`
	StartStep     string        `json:"start_step"`
	EndStep       string        `json:"end_step"`
	MaxIterations int           `json:"max_iterations"`
	StopCondition StopCondition `json:"stop_condition"`
}

// HasEquals reports whether the stop condition used the {path, equals}
// shorthand rather than the {path, operator, value} long form.
func (s StopCondition) HasEquals() bool {
	return len(s.Equals) > 0
}

// EffectiveOperator returns the operator to apply: OperatorEquals for
// the shorthand form, or the explicit Operator for the long form.
func (s StopCondition) EffectiveOperator() StopOperator {
	if s.HasEquals() {
		return OperatorEquals
	}
	return s.Operator
}

// EffectiveValue returns the raw configured comparison value,
// regardless of which form was used.
func (s StopCondition) EffectiveValue() json.RawMessage {
	if s.HasEquals() {
		return s.Equals
	}
	return s.Value
}

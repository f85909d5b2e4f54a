package spec

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/reasonkernel/core/pkg/engineerr"
)

//go:embed schema.json
var schemaFS embed.FS

const schemaID = "https://reasonkernel.internal/schemas/problem-spec.json"

var compiledSchema *jsonschema.Schema

func init() {
	raw, err := schemaFS.ReadFile("schema.json")
	if err != nil {
		panic(fmt.Sprintf("spec: embedded schema.json missing: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaID, bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("spec: invalid embedded schema: %v", err))
	}
	sch, err := c.Compile(schemaID)
	if err != nil {
		panic(fmt.Sprintf("spec: schema compile failed: %v", err))
	}
	compiledSchema = sch
}

// Validate runs the two-layer validator from §4.2 over raw problem_spec
// JSON bytes: the primitive-rule layer (byte-level shape, required
// fields, enums, regex patterns -- enforced by the embedded JSON
// Schema) followed by the relational layer (cross-field rules the
// schema cannot express). It returns the decoded ProblemSpec only if
// both layers pass.
//
// A blank or whitespace-only inputs.prompt is rejected here, at the
// boundary, as a validation_error -- not deferred to Normalize. This
// matches the original implementation's schemas.py, which raises at
// construction time rather than letting a blank prompt become a valid
// ProblemSpec. steps.Normalize still refuses a blank prompt on its own
// terms too, as a defense-in-depth guard for callers that build a
// ReasoningState directly without going through Validate.
func Validate(raw []byte) (*ProblemSpec, error) {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, engineerr.Validationf("", "problem_spec is not valid JSON: %v", err)
	}
	generic = normalizeNumbers(generic)

	if err := compiledSchema.Validate(generic); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return nil, schemaErrorToEngineErr(ve)
		}
		return nil, engineerr.Validationf("", "schema validation failed: %v", err)
	}

	var ps ProblemSpec
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, engineerr.Validationf("", "problem_spec does not match expected shape: %v", err)
	}

	if err := validateRelational(&ps); err != nil {
		return nil, err
	}

	return &ps, nil
}

// normalizeNumbers converts json.Number-free decoding (plain
// float64-based json.Unmarshal output) into the form the jsonschema
// library expects; present for symmetry with callers that decode with
// json.Decoder.UseNumber() elsewhere in this module. A plain
// json.Unmarshal into interface{} already yields the right shapes, so
// this is a passthrough today; kept as a named seam for the relational
// layer below, which does care about number representation (see
// pkg/loop, which decodes stop_condition values with UseNumber itself).
func normalizeNumbers(v interface{}) interface{} {
	return v
}

// schemaErrorToEngineErr flattens the first leaf of a jsonschema
// validation error tree into a single *engineerr.Error. The schema
// library reports nested causes; callers only need the first concrete
// failure to act on.
func schemaErrorToEngineErr(ve *jsonschema.ValidationError) *engineerr.Error {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := leaf.InstanceLocation
	return engineerr.Validationf(field, "%s", leaf.Message)
}

// validateRelational enforces the cross-field rules §4.2 assigns to
// the schema layer that a JSON Schema cannot express on its own:
// semver major version, and shape checks on settings.loop that don't
// require the policy-resolved step list (full resolution happens in
// pkg/loop, which has that list).
func validateRelational(ps *ProblemSpec) error {
	v, err := semver.NewVersion(ps.Version)
	if err != nil {
		return engineerr.Validationf("version", "not a valid semantic version: %v", err)
	}
	if v.Major() != 1 {
		return engineerr.Validationf("version", "unsupported major version %d, expected 1", v.Major())
	}

	if strings.TrimSpace(ps.Inputs.Prompt) == "" {
		return engineerr.Validationf("inputs.prompt", "must not be blank")
	}

	if ps.Settings == nil || ps.Settings.Loop == nil {
		return nil
	}
	loop := ps.Settings.Loop
	if loop.StartStep == "" {
		return engineerr.LoopConfigf("settings.loop.start_step", "must not be empty")
	}
	if loop.EndStep == "" {
		return engineerr.LoopConfigf("settings.loop.end_step", "must not be empty")
	}
	if loop.MaxIterations < 1 {
		return engineerr.LoopConfigf("settings.loop.max_iterations", "must be >= 1, got %d", loop.MaxIterations)
	}
	if loop.StopCondition.Path == "" {
		return engineerr.LoopConfigf("settings.loop.stop_condition.path", "must not be empty")
	}
	if len(loop.StopCondition.EffectiveValue()) == 0 {
		return engineerr.LoopConfigf("settings.loop.stop_condition", "must set either \"equals\" or \"operator\"+\"value\"")
	}
	if !loop.StopCondition.HasEquals() {
		switch loop.StopCondition.Operator {
		case OperatorEquals, OperatorNotEquals, OperatorGT, OperatorGTE, OperatorLT, OperatorLTE:
		default:
			return engineerr.LoopConfigf("settings.loop.stop_condition.operator", "unknown operator %q", loop.StopCondition.Operator)
		}
	}

	return nil
}

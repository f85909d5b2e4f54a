// Package loop implements the Loop Controller (C5): parsing
// settings.loop into resolved bounds against a step graph, evaluating
// the stop predicate against a ReasoningState's artifacts, and the
// cursor-advance protocol the engine runner consults after the step at
// end_index finishes.
package loop

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/reasonkernel/core/pkg/canonicalize"
	"github.com/reasonkernel/core/pkg/engineerr"
	"github.com/reasonkernel/core/pkg/graph"
	"github.com/reasonkernel/core/pkg/spec"
)

// Bounds is a resolved, index-space loop segment.
type Bounds struct {
	StartIndex int
	EndIndex   int
	StartStep  string
	EndStep    string
}

// Length returns the inclusive segment length.
func (b Bounds) Length() int {
	return b.EndIndex - b.StartIndex + 1
}

// ResolveBounds resolves cfg's start_step/end_step against g, failing
// if either step is absent from the graph or start comes after end.
func ResolveBounds(cfg *spec.LoopConfig, g *graph.Graph) (*Bounds, error) {
	if cfg == nil {
		return nil, nil
	}
	startIdx, ok := g.IndexOf(cfg.StartStep)
	if !ok {
		return nil, engineerr.LoopConfigf("settings.loop.start_step", "step %q is not part of the resolved step list", cfg.StartStep)
	}
	endIdx, ok := g.IndexOf(cfg.EndStep)
	if !ok {
		return nil, engineerr.LoopConfigf("settings.loop.end_step", "step %q is not part of the resolved step list", cfg.EndStep)
	}
	if startIdx > endIdx {
		return nil, engineerr.LoopConfigf("settings.loop", "start_step %q (index %d) must not come after end_step %q (index %d)", cfg.StartStep, startIdx, cfg.EndStep, endIdx)
	}
	return &Bounds{StartIndex: startIdx, EndIndex: endIdx, StartStep: cfg.StartStep, EndStep: cfg.EndStep}, nil
}

// ResolvePath walks path's dotted segments into a mapping only (no
// list indexing, per the "Open question" design note restricting
// resolve_path to map descent). path is expected to start with
// "artifacts."; the leading segment is stripped before descending into
// artifacts. A missing segment at any point yields (nil, false).
func ResolvePath(artifacts map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	if len(segments) == 0 || segments[0] != "artifacts" {
		return nil, false
	}
	var cur interface{} = artifacts
	for _, seg := range segments[1:] {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// EvaluateStop evaluates cond's predicate against artifacts. A missing
// path is false, never an error: the predicate is defined as false on
// absence (§4.5).
func EvaluateStop(cond spec.StopCondition, artifacts map[string]interface{}) (bool, error) {
	left, ok := ResolvePath(artifacts, cond.Path)
	if !ok {
		return false, nil
	}

	op := cond.EffectiveOperator()
	rawRight := cond.EffectiveValue()

	switch op {
	case spec.OperatorEquals, spec.OperatorNotEquals:
		eq, err := structuralEqual(left, rawRight)
		if err != nil {
			return false, err
		}
		if op == spec.OperatorNotEquals {
			return !eq, nil
		}
		return eq, nil

	case spec.OperatorGT, spec.OperatorGTE, spec.OperatorLT, spec.OperatorLTE:
		leftInt, ok := asNonBooleanInteger(left)
		if !ok {
			return false, nil
		}
		rightInt, ok, err := decodeRawInteger(rawRight)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		switch op {
		case spec.OperatorGT:
			return leftInt > rightInt, nil
		case spec.OperatorGTE:
			return leftInt >= rightInt, nil
		case spec.OperatorLT:
			return leftInt < rightInt, nil
		case spec.OperatorLTE:
			return leftInt <= rightInt, nil
		}
	}
	return false, fmt.Errorf("loop: unknown stop operator %q", op)
}

// structuralEqual compares left (a native Go value from artifacts)
// against the raw configured JSON value via canonical-JSON
// byte-equality, so "3" and 3.0 and int(3) all compare equal and
// representation differences introduced by JSON round-tripping never
// cause a false predicate.
func structuralEqual(left interface{}, rawRight json.RawMessage) (bool, error) {
	var right interface{}
	if err := json.Unmarshal(rawRight, &right); err != nil {
		return false, fmt.Errorf("loop: decode configured stop value: %w", err)
	}
	return canonicalize.Equal(left, right)
}

// asNonBooleanInteger reports whether v is a native Go integer type
// (never a bool, even though bool is a Go kind distinct from int).
func asNonBooleanInteger(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	default:
		return 0, false
	}
}

// decodeRawInteger decodes rawRight as a JSON number and reports
// whether it is an integer literal (no fractional part, no exponent).
// A JSON boolean decodes successfully as a value but is rejected here
// ("non-boolean integer").
func decodeRawInteger(rawRight json.RawMessage) (int64, bool, error) {
	dec := json.NewDecoder(strings.NewReader(string(rawRight)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, false, fmt.Errorf("loop: decode configured stop value: %w", err)
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, false, nil
	}
	s := num.String()
	if strings.ContainsAny(s, ".eE") {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// Action is a cursor-protocol outcome (§4.5).
type Action string

const (
	ActionStop                 Action = "stop"
	ActionRepeat               Action = "repeat"
	ActionMaxIterationsReached Action = "max_iterations_reached"
)

// NextAction decides the cursor action once the step at end_index has
// finished, given the stop predicate's result and the current 1-based
// iteration count.
func NextAction(stopHolds bool, iteration, maxIterations int) Action {
	if stopHolds {
		return ActionStop
	}
	if iteration < maxIterations {
		return ActionRepeat
	}
	return ActionMaxIterationsReached
}

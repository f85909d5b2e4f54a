// Package engine implements the Engine Runner (C8): the orchestrator
// that validates a request, resolves a policy and graph, parses any
// loop configuration, and drives the step-by-step execution loop that
// produces a hash-chained trace and a final ReasoningState.
package engine

import (
	"fmt"

	"github.com/reasonkernel/core/pkg/canonicalize"
	"github.com/reasonkernel/core/pkg/engineerr"
	"github.com/reasonkernel/core/pkg/graph"
	"github.com/reasonkernel/core/pkg/loop"
	"github.com/reasonkernel/core/pkg/policy"
	"github.com/reasonkernel/core/pkg/spec"
	"github.com/reasonkernel/core/pkg/state"
	"github.com/reasonkernel/core/pkg/steps"
	"github.com/reasonkernel/core/pkg/trace"
)

// DefaultEngineVersion is reported in the trace header when neither
// the Engine nor the caller supplies one.
const DefaultEngineVersion = "reasonkernel-engine/1.0.0"

// Engine ties the policy registry to the step-handler table and runs
// executions against them. An Engine holds no per-execution state; the
// same Engine value may run many executions concurrently (§5).
type Engine struct {
	registry      *policy.Registry
	engineVersion string
}

// New returns an Engine backed by reg. If engineVersion is empty,
// DefaultEngineVersion is used unless a call overrides it via Options.
func New(reg *policy.Registry, engineVersion string) *Engine {
	if engineVersion == "" {
		engineVersion = DefaultEngineVersion
	}
	return &Engine{registry: reg, engineVersion: engineVersion}
}

// Options lets a caller override values the preamble would otherwise
// derive from the ProblemSpec (§4.8, §6: the HTTP surface's
// trace_id/engine_version/now request fields).
type Options struct {
	TraceID       string
	EngineVersion string
	Now           string
}

// ExecutionResult is what a successful (or failed-but-completed) run
// returns: the engine never returns an error once execution has
// actually started -- failure is represented inside FinalState and the
// trace, per §5 "traces are produced entirely or not at all."
type ExecutionResult struct {
	TraceID       string
	EngineVersion string
	Trace         []trace.Record
	FinalState    state.ReasoningState
}

// Execute runs the full preamble-execution-finalization pipeline over
// rawProblemSpec (§4.8). It returns an error only for preamble
// failures (validation, unknown policy, bad loop config, max-steps
// guard) -- never for a failure that occurs mid-execution, which is
// instead reflected in the returned ExecutionResult.
func Execute(e *Engine, rawProblemSpec []byte, opts Options) (*ExecutionResult, error) {
	ps, err := spec.Validate(rawProblemSpec)
	if err != nil {
		return nil, err
	}

	engineVersion := opts.EngineVersion
	if engineVersion == "" {
		engineVersion = e.engineVersion
	}
	now := opts.Now
	if now == "" {
		now = ps.CreatedAt
	}
	traceID := opts.TraceID
	if traceID == "" {
		traceID = ps.ID
	}

	policyProfile := policy.DefaultPolicyName
	if ps.Settings != nil && ps.Settings.PolicyProfile != "" {
		policyProfile = ps.Settings.PolicyProfile
	}
	stepNames, err := e.registry.Get(policyProfile)
	if err != nil {
		return nil, engineerr.Policyf("settings.policy_profile", "%v", err)
	}
	for _, name := range stepNames {
		if _, ok := steps.Registry[name]; !ok {
			return nil, engineerr.Policyf("settings.policy_profile", "policy %q references unknown step %q", policyProfile, name)
		}
	}

	g, err := graph.Build(stepNames)
	if err != nil {
		return nil, engineerr.Policyf("settings.policy_profile", "%v", err)
	}

	var bounds *loop.Bounds
	var loopCfg *spec.LoopConfig
	if ps.Settings != nil && ps.Settings.Loop != nil {
		loopCfg = ps.Settings.Loop
		bounds, err = loop.ResolveBounds(loopCfg, g)
		if err != nil {
			return nil, err
		}
	}

	required := g.Len()
	if bounds != nil {
		required = g.Len() + (loopCfg.MaxIterations-1)*bounds.Length()
	}
	if ps.Settings != nil && ps.Settings.MaxSteps > 0 && ps.Settings.MaxSteps < required {
		return nil, engineerr.MaxStepsf("settings.max_steps", "configured max_steps=%d is smaller than the %d steps this execution requires", ps.Settings.MaxSteps, required)
	}

	modelProfile := ""
	if ps.Settings != nil {
		modelProfile = ps.Settings.ModelProfile
	}
	initial := state.New(*ps, traceID, policyProfile, modelProfile, now)

	problemSpecHash, err := canonicalize.HashJSON(ps)
	if err != nil {
		return nil, engineerr.New(engineerr.KindNonCanonicalJSON, "", err.Error())
	}
	initialStateHash, err := canonicalize.HashJSON(initial)
	if err != nil {
		return nil, engineerr.New(engineerr.KindNonCanonicalJSON, "", err.Error())
	}

	header, err := trace.NewHeader(ps.Version, traceID, now, engineVersion, problemSpecHash, initialStateHash)
	if err != nil {
		return nil, err
	}

	result, err := run(g, bounds, loopCfg, header, initial, now)
	if err != nil {
		return nil, err
	}
	result.TraceID = traceID
	result.EngineVersion = engineVersion
	return result, nil
}

// run drives steps 1-7 of §4.8's execution loop plus finalization.
func run(g *graph.Graph, bounds *loop.Bounds, loopCfg *spec.LoopConfig, header *trace.HeaderRecord, initial state.ReasoningState, now string) (*ExecutionResult, error) {
	records := []trace.Record{header}
	prevHash := header.RecordHash
	index := 1

	current := initial
	cursor := 0
	loopIteration := 0
	failed := false

	for {
		stepName, ok := g.StepAt(cursor)
		if !ok {
			break
		}

		stateBefore := current
		stateBeforeHash, err := canonicalize.HashJSON(stateBefore)
		if err != nil {
			return nil, engineerr.New(engineerr.KindNonCanonicalJSON, "", err.Error())
		}

		handler := steps.Registry[stepName]
		stateAfter, stepResult := handler(stateBefore, now)

		if bounds != nil && cursor == bounds.StartIndex && loopIteration == 0 {
			loopIteration = 1
		}

		if stepResult.Status == state.ResultFailed {
			failed = true
			stateAfter = stateAfter.WithFailure(stepResult.Errors, now)
		}

		stateAfterHash, err := canonicalize.HashJSON(stateAfter)
		if err != nil {
			return nil, engineerr.New(engineerr.KindNonCanonicalJSON, "", err.Error())
		}

		stepRecord, err := trace.NewStep(index, stateAfter.StepIndex, stepResult, stateBeforeHash, stateAfterHash, prevHash)
		if err != nil {
			return nil, err
		}
		records = append(records, stepRecord)
		prevHash = stepRecord.RecordHash
		index++
		current = stateAfter

		if !failed && bounds != nil && cursor == bounds.EndIndex && loopIteration > 0 {
			holds, err := loop.EvaluateStop(loopCfg.StopCondition, current.Artifacts)
			if err != nil {
				return nil, fmt.Errorf("engine: evaluate stop condition: %w", err)
			}
			action := loop.NextAction(holds, loopIteration, loopCfg.MaxIterations)

			stateHash, err := canonicalize.HashJSON(current)
			if err != nil {
				return nil, engineerr.New(engineerr.KindNonCanonicalJSON, "", err.Error())
			}
			controlRecord, err := trace.NewControl(index, string(action), loopIteration, bounds.StartStep, bounds.EndStep, loopCfg.StopCondition.Path, string(loopCfg.StopCondition.EffectiveOperator()), loopCfg.StopCondition.EffectiveValue(), stateHash, prevHash)
			if err != nil {
				return nil, err
			}
			records = append(records, controlRecord)
			prevHash = controlRecord.RecordHash
			index++

			switch action {
			case loop.ActionStop:
				cursor = bounds.EndIndex + 1
			case loop.ActionRepeat:
				cursor = bounds.StartIndex
				loopIteration++
			case loop.ActionMaxIterationsReached:
				failed = true
				current = current.WithFailure([]state.ErrorEntry{{
					Code:    "loop_max_iterations_reached",
					Message: fmt.Sprintf("Loop stop condition not met after %d iteration(s).", loopIteration),
					Step:    bounds.EndStep,
				}}, now)
			}
		} else {
			cursor++
		}

		if failed {
			break
		}
	}

	if !failed && current.Status == state.StatusRunning {
		current = current.WithStatus(state.StatusCompleted, now)
	}

	return &ExecutionResult{Trace: records, FinalState: current}, nil
}

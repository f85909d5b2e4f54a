package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"

	"github.com/reasonkernel/core/internal/determinism"
	"github.com/reasonkernel/core/pkg/engine"
	"github.com/reasonkernel/core/pkg/policy"
	"github.com/reasonkernel/core/pkg/trace"
)

// runCheckDeterminismCmd implements `reasonctl check-determinism`: it
// executes --spec and diffs the resulting trace against the fixture
// at --fixture, exactly as §8 scenario 6 requires. --update writes the
// current run as the new fixture instead of checking it, for the
// one-time (or intentional-change) regeneration step.
//
// Exit codes:
//
//	0 = byte-identical to the fixture (or fixture written with --update)
//	1 = drift detected
//	2 = usage/runtime error
func runCheckDeterminismCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("check-determinism", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		specPath    string
		fixturePath string
		update      bool
	)
	cmd.StringVar(&specPath, "spec", "-", "Path to a ProblemSpec JSON file, or - for stdin")
	cmd.StringVar(&fixturePath, "fixture", "", "Path to the golden NDJSON fixture (REQUIRED)")
	cmd.BoolVar(&update, "update", false, "Write the current trace as the new fixture instead of checking it")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if fixturePath == "" {
		fmt.Fprintln(stderr, "Error: --fixture is required")
		return 2
	}

	raw, err := readInput(specPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot read problem spec: %v\n", err)
		return 2
	}

	eng := engine.New(policy.New(), "")
	result, err := engine.Execute(eng, raw, engine.Options{})
	if err != nil {
		fmt.Fprintf(stderr, "Error: execution failed: %v\n", err)
		return 2
	}

	var buf bytes.Buffer
	if err := trace.WriteNDJSON(&buf, result.Trace); err != nil {
		fmt.Fprintf(stderr, "Error: cannot serialize trace: %v\n", err)
		return 2
	}

	if update {
		if err := determinism.WriteFixture(fixturePath, buf.Bytes()); err != nil {
			fmt.Fprintf(stderr, "Error: cannot write fixture: %v\n", err)
			return 2
		}
		fmt.Fprintf(stdout, "fixture written: %s\n", fixturePath)
		return 0
	}

	diff, ok, err := determinism.CheckAgainstFixture(fixturePath, buf.Bytes())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if !ok {
		fmt.Fprintln(stdout, "DRIFT DETECTED")
		fmt.Fprintln(stdout, diff)
		return 1
	}
	fmt.Fprintln(stdout, "OK: trace matches fixture")
	return 0
}

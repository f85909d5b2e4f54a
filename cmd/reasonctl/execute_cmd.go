package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/reasonkernel/core/internal/envconfig"
	"github.com/reasonkernel/core/internal/store"
	"github.com/reasonkernel/core/pkg/engine"
	"github.com/reasonkernel/core/pkg/engineerr"
	"github.com/reasonkernel/core/pkg/policy"
	"github.com/reasonkernel/core/pkg/trace"
)

// runExecuteCmd implements `reasonctl execute`: runs the engine against
// a ProblemSpec read from --spec (or stdin) and writes the resulting
// trace as NDJSON to --out (or stdout).
//
// Exit codes:
//
//	0 = completed (trace written)
//	1 = validation or engine error
//	2 = usage/runtime error
func runExecuteCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("execute", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		specPath      string
		outPath       string
		traceID       string
		engineVersion string
		now           string
		policyPath    string
		persist       bool
	)

	cmd.StringVar(&specPath, "spec", "-", "Path to a ProblemSpec JSON file, or - for stdin")
	cmd.StringVar(&outPath, "out", "-", "Path to write the NDJSON trace, or - for stdout")
	cmd.StringVar(&traceID, "trace-id", "", "Override the trace ID (default: problem_spec.id)")
	cmd.StringVar(&engineVersion, "engine-version", "", "Override the recorded engine version")
	cmd.StringVar(&now, "now", "", "Override the clock reading (RFC3339), for reproducible runs")
	cmd.StringVar(&policyPath, "policies", "", "Path to a YAML policy registry file to load before executing")
	cmd.BoolVar(&persist, "persist", false, "Persist the trace to the configured trace store")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(specPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot read problem spec: %v\n", err)
		return 2
	}

	reg := policy.New()
	if policyPath != "" {
		policyRaw, err := os.ReadFile(policyPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: cannot read policy file: %v\n", err)
			return 2
		}
		if err := reg.LoadYAML(policyRaw); err != nil {
			fmt.Fprintf(stderr, "Error: cannot load policies: %v\n", err)
			return 2
		}
	}

	cfg := envconfig.Load()
	eng := engine.New(reg, firstNonEmpty(engineVersion, cfg.EngineVersion))

	result, err := engine.Execute(eng, raw, engine.Options{
		TraceID:       traceID,
		EngineVersion: engineVersion,
		Now:           now,
	})
	if err != nil {
		if ee, ok := engineerr.As(err); ok {
			fmt.Fprintf(stderr, "Error: %s: %s\n", ee.Kind, ee.Error())
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}

	out, err := os.Stdout, error(nil)
	if outPath != "-" {
		out, err = os.Create(outPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: cannot open --out: %v\n", err)
			return 2
		}
		defer out.Close()
	}
	if err := writeTraceNDJSON(out, result); err != nil {
		fmt.Fprintf(stderr, "Error: cannot write trace: %v\n", err)
		return 2
	}

	if persist {
		if err := persistResult(cfg, result); err != nil {
			fmt.Fprintf(stderr, "Error: cannot persist trace: %v\n", err)
			return 2
		}
	}

	fmt.Fprintf(stderr, "trace_id=%s status=%s steps=%d\n", result.TraceID, result.FinalState.Status, len(result.Trace))
	return 0
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeTraceNDJSON(w io.Writer, result *engine.ExecutionResult) error {
	return trace.WriteNDJSON(w, result.Trace)
}

func openTraceStore(cfg *envconfig.Config) (store.TraceStore, error) {
	if cfg.DatabaseURL != "" {
		return store.OpenPostgres(cfg.DatabaseURL)
	}
	return store.OpenSQLite(cfg.SQLitePath)
}

func persistResult(cfg *envconfig.Config, result *engine.ExecutionResult) error {
	ts, err := openTraceStore(cfg)
	if err != nil {
		return err
	}
	defer ts.Close()

	problemSpecJSON, err := json.Marshal(result.FinalState.Problem)
	if err != nil {
		return err
	}
	finalStateJSON, err := json.Marshal(result.FinalState)
	if err != nil {
		return err
	}
	st, err := store.NewStoredTrace(result.FinalState.Problem.ID, result.Trace, problemSpecJSON, finalStateJSON)
	if err != nil {
		return err
	}
	return ts.Put(context.Background(), *st)
}

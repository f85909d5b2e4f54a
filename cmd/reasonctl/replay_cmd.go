package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/reasonkernel/core/internal/envconfig"
	"github.com/reasonkernel/core/internal/store"
	"github.com/reasonkernel/core/pkg/engine"
	"github.com/reasonkernel/core/pkg/policy"
	"github.com/reasonkernel/core/pkg/replaysession"
	"github.com/reasonkernel/core/pkg/trace"
)

// runReplayCmd implements `reasonctl replay`: fetches a previously
// persisted trace by ID from the configured store and writes it back
// out as NDJSON, exactly as it was stored. With --verify and --spec,
// it additionally re-executes the ProblemSpec and reports whether the
// recomputed trace is byte-identical to the stored one.
//
// Exit codes:
//
//	0 = found (and, with --verify, byte-identical)
//	1 = no trace with that ID, or verification diverged
//	2 = usage/runtime error
func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("replay", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		traceID  string
		verify   bool
		specPath string
	)
	cmd.StringVar(&traceID, "trace-id", "", "Trace ID to replay (REQUIRED)")
	cmd.BoolVar(&verify, "verify", false, "Re-execute the original ProblemSpec and diff against the stored trace")
	cmd.StringVar(&specPath, "spec", "", "Path to the original ProblemSpec JSON, required with --verify")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if traceID == "" {
		fmt.Fprintln(stderr, "Error: --trace-id is required")
		return 2
	}
	if verify && specPath == "" {
		fmt.Fprintln(stderr, "Error: --verify requires --spec")
		return 2
	}

	cfg := envconfig.Load()
	ts, err := openTraceStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot open trace store: %v\n", err)
		return 2
	}
	defer ts.Close()

	st, err := ts.Get(context.Background(), traceID)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(stderr, "Error: no trace found for %s\n", traceID)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	traceNDJSON := st.NDJSON()

	if !verify {
		if _, err := stdout.Write(traceNDJSON); err != nil {
			fmt.Fprintf(stderr, "Error: cannot write trace: %v\n", err)
			return 2
		}
		return 0
	}

	return runReplayVerify(traceID, traceNDJSON, specPath, stdout, stderr)
}

func runReplayVerify(traceID string, storedNDJSON []byte, specPath string, stdout, stderr io.Writer) int {
	stored, err := trace.ReadNDJSON(bytes.NewReader(storedNDJSON))
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot parse stored trace: %v\n", err)
		return 2
	}

	raw, err := readInput(specPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot read problem spec: %v\n", err)
		return 2
	}

	eng := engine.New(policy.New(), "")
	result, err := engine.Execute(eng, raw, engine.Options{TraceID: traceID})
	if err != nil {
		fmt.Fprintf(stderr, "Error: re-execution failed: %v\n", err)
		return 2
	}

	session := replaysession.Verify(traceID, stored, result.Trace, time.Now)
	body, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot encode session: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, string(body))

	if session.Status != replaysession.StatusComplete {
		return 1
	}
	return 0
}

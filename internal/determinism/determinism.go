// Package determinism implements the golden-trace diff checker from
// §8 scenario 6: a fixed ProblemSpec's trace (the full trace in the
// check-determinism CLI, the header + first step record in the golden
// test) must serialize byte-identically to a committed fixture on
// every run: any
// drift -- a hash algorithm change, a reordered field, a canonicalizer
// regression -- must make CI fail loudly rather than silently drift.
package determinism

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Diff returns a unified-ish line diff between got and want, and
// whether they are byte-identical. It is intentionally simple --
// NDJSON lines are already one canonical-JSON object each, so a
// per-line comparison pinpoints the offending record without needing
// a general-purpose diff algorithm.
func Diff(got, want []byte) (string, bool) {
	if bytes.Equal(got, want) {
		return "", true
	}
	gotLines := strings.Split(string(got), "\n")
	wantLines := strings.Split(string(want), "\n")

	var b strings.Builder
	max := len(gotLines)
	if len(wantLines) > max {
		max = len(wantLines)
	}
	for i := 0; i < max; i++ {
		var g, w string
		if i < len(gotLines) {
			g = gotLines[i]
		}
		if i < len(wantLines) {
			w = wantLines[i]
		}
		if g == w {
			continue
		}
		fmt.Fprintf(&b, "line %d:\n- want: %s\n+ got:  %s\n", i, w, g)
	}
	return b.String(), false
}

// CheckAgainstFixture compares got against the committed fixture at
// path, returning a human-readable diff and false on any mismatch. A
// missing fixture is reported as an error, not treated as "no
// baseline" -- a golden test with no fixture to check against is not
// a passing test.
func CheckAgainstFixture(path string, got []byte) (diff string, ok bool, err error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("determinism: read fixture %s: %w", path, err)
	}
	diff, ok = Diff(got, want)
	return diff, ok, nil
}

// WriteFixture writes got to path, for use by an explicit
// "--update" regeneration step. It is never called implicitly
// by CheckAgainstFixture: a fixture only changes when a human asks it
// to.
func WriteFixture(path string, got []byte) error {
	return os.WriteFile(path, got, 0o644)
}

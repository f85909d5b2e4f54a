// Package replaysession implements trace-vs-trace divergence checking,
// adapted from the teacher's pkg/replay engine: instead of replaying
// recorded events against a live executor, it compares a stored trace
// record-by-record against a freshly recomputed one and reports the
// first point -- if any -- where their record hashes stop matching.
package replaysession

import (
	"fmt"
	"time"

	"github.com/reasonkernel/core/pkg/trace"
)

// Status is the lifecycle state of a verification session.
type Status string

const (
	StatusComplete   Status = "complete"
	StatusDiverged   Status = "diverged"
	StatusMismatched Status = "record_count_mismatch"
)

// Step records one compared record pair's outcome.
type Step struct {
	Index      int    `json:"index"`
	Kind       string `json:"kind"`
	StoredHash string `json:"stored_hash"`
	RedoneHash string `json:"redone_hash"`
}

// Session is the outcome of comparing a stored trace against one
// recomputed from the same ProblemSpec.
type Session struct {
	TraceID         string    `json:"trace_id"`
	Status          Status    `json:"status"`
	TotalRecords    int       `json:"total_records"`
	VerifiedRecords int       `json:"verified_records"`
	DivergencePoint int       `json:"divergence_point,omitempty"`
	DivergenceInfo  string    `json:"divergence_info,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	Steps           []Step    `json:"steps"`
}

// Verify walks stored and redone in lockstep, comparing each pair's
// record hash. It stops at the first mismatch -- per I2/I3 a divergent
// chain is meaningless past that point -- and reports it as the
// session's DivergencePoint.
func Verify(traceID string, stored, redone []trace.Record, now func() time.Time) *Session {
	s := &Session{
		TraceID:   traceID,
		StartedAt: now(),
		Steps:     make([]Step, 0, len(stored)),
	}

	if len(stored) != len(redone) {
		s.Status = StatusMismatched
		s.TotalRecords = len(stored)
		s.DivergenceInfo = fmt.Sprintf("stored trace has %d records, recomputed trace has %d", len(stored), len(redone))
		s.CompletedAt = now()
		return s
	}
	s.TotalRecords = len(stored)

	for i := range stored {
		step := Step{
			Index:      i,
			Kind:       stored[i].Kind(),
			StoredHash: stored[i].Hash(),
			RedoneHash: redone[i].Hash(),
		}
		s.Steps = append(s.Steps, step)
		s.VerifiedRecords = i + 1

		if stored[i].Kind() != redone[i].Kind() || stored[i].Hash() != redone[i].Hash() {
			s.Status = StatusDiverged
			s.DivergencePoint = i
			s.DivergenceInfo = fmt.Sprintf(
				"record %d diverged: stored %s record hash %s, recomputed %s record hash %s",
				i, stored[i].Kind(), stored[i].Hash(), redone[i].Kind(), redone[i].Hash(),
			)
			s.CompletedAt = now()
			return s
		}
	}

	s.Status = StatusComplete
	s.CompletedAt = now()
	return s
}

// Package trace implements Trace Records (C7): the header/step/control
// union, their constructors (which always compute record_hash last,
// over the record with that field absent), and the append-only NDJSON
// writer and chain validator.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/reasonkernel/core/pkg/canonicalize"
	"github.com/reasonkernel/core/pkg/state"
)

const (
	TypeHeader  = "header"
	TypeStep    = "step"
	TypeControl = "control"

	HashAlgorithm    = "sha256"
	Canonicalization = "json-c14n-v1"
)

// Record is implemented by HeaderRecord, StepRecord, and ControlRecord.
// Index, Hash, and Kind expose what the chain validator and writer
// need without a type switch on every call site.
type Record interface {
	Index() int
	Hash() string
	Kind() string
}

// HeaderRecord is the chain anchor, always at index 0.
type HeaderRecord struct {
	Type              string `json:"type"`
	Version           string `json:"version"`
	TraceID           string `json:"trace_id"`
	CreatedAt         string `json:"created_at"`
	EngineVersion     string `json:"engine_version"`
	HashAlgorithm     string `json:"hash_algorithm"`
	Canonicalization  string `json:"canonicalization"`
	ProblemSpecHash   string `json:"problem_spec_hash"`
	InitialStateHash  string `json:"initial_state_hash"`
	RecordHash        string `json:"record_hash"`
}

func (h *HeaderRecord) Index() int    { return 0 }
func (h *HeaderRecord) Hash() string  { return h.RecordHash }
func (h *HeaderRecord) Kind() string  { return TypeHeader }

// NewHeader builds and hashes a header record.
func NewHeader(version, traceID, createdAt, engineVersion, problemSpecHash, initialStateHash string) (*HeaderRecord, error) {
	h := &HeaderRecord{
		Type:             TypeHeader,
		Version:          version,
		TraceID:          traceID,
		CreatedAt:        createdAt,
		EngineVersion:    engineVersion,
		HashAlgorithm:    HashAlgorithm,
		Canonicalization: Canonicalization,
		ProblemSpecHash:  problemSpecHash,
		InitialStateHash: initialStateHash,
	}
	hash, err := canonicalize.HashWithoutField(h, "record_hash")
	if err != nil {
		return nil, fmt.Errorf("trace: hash header: %w", err)
	}
	h.RecordHash = hash
	return h, nil
}

// StepRecord records one step handler's execution (§3).
type StepRecord struct {
	Type            string           `json:"type"`
	IndexVal        int              `json:"index"`
	StepIndex       int              `json:"step_index"`
	Result          state.StepResult `json:"result"`
	StateBeforeHash string           `json:"state_before_hash"`
	StateAfterHash  string           `json:"state_after_hash"`
	PrevHash        string           `json:"prev_hash"`
	RecordHash      string           `json:"record_hash"`
}

func (s *StepRecord) Index() int   { return s.IndexVal }
func (s *StepRecord) Hash() string { return s.RecordHash }
func (s *StepRecord) Kind() string { return TypeStep }

// NewStep builds and hashes a step record.
func NewStep(index, stepIndex int, result state.StepResult, stateBeforeHash, stateAfterHash, prevHash string) (*StepRecord, error) {
	s := &StepRecord{
		Type:            TypeStep,
		IndexVal:        index,
		StepIndex:       stepIndex,
		Result:          result,
		StateBeforeHash: stateBeforeHash,
		StateAfterHash:  stateAfterHash,
		PrevHash:        prevHash,
	}
	hash, err := canonicalize.HashWithoutField(s, "record_hash")
	if err != nil {
		return nil, fmt.Errorf("trace: hash step record: %w", err)
	}
	s.RecordHash = hash
	return s, nil
}

// ControlRecord records a loop controller decision (§3). Only
// control_type "loop" exists today; the field is carried explicitly so
// future control kinds don't require a new record type.
type ControlRecord struct {
	Type          string          `json:"type"`
	IndexVal      int             `json:"index"`
	ControlType   string          `json:"control_type"`
	Action        string          `json:"action"`
	LoopIteration int             `json:"loop_iteration"`
	StartStep     string          `json:"start_step"`
	EndStep       string          `json:"end_step"`
	StopPath      string          `json:"stop_path"`
	StopOperator  string          `json:"stop_operator"`
	StopValue     json.RawMessage `json:"stop_value"`
	StateHash     string          `json:"state_hash"`
	PrevHash      string          `json:"prev_hash"`
	RecordHash    string          `json:"record_hash"`
}

func (c *ControlRecord) Index() int   { return c.IndexVal }
func (c *ControlRecord) Hash() string { return c.RecordHash }
func (c *ControlRecord) Kind() string { return TypeControl }

// NewControl builds and hashes a loop control record.
func NewControl(index int, action string, loopIteration int, startStep, endStep, stopPath, stopOperator string, stopValue json.RawMessage, stateHash, prevHash string) (*ControlRecord, error) {
	c := &ControlRecord{
		Type:          TypeControl,
		IndexVal:      index,
		ControlType:   "loop",
		Action:        action,
		LoopIteration: loopIteration,
		StartStep:     startStep,
		EndStep:       endStep,
		StopPath:      stopPath,
		StopOperator:  stopOperator,
		StopValue:     stopValue,
		StateHash:     stateHash,
		PrevHash:      prevHash,
	}
	hash, err := canonicalize.HashWithoutField(c, "record_hash")
	if err != nil {
		return nil, fmt.Errorf("trace: hash control record: %w", err)
	}
	c.RecordHash = hash
	return c, nil
}

// ValidateChain enforces I2/I3: index starts at 0 and increases by 1
// per record, and every non-header record's prev_hash equals the
// preceding record's record_hash.
func ValidateChain(records []Record) error {
	if len(records) == 0 {
		return fmt.Errorf("trace: chain is empty")
	}
	if records[0].Kind() != TypeHeader {
		return fmt.Errorf("trace: first record must be a header, got %q", records[0].Kind())
	}
	for i, r := range records {
		if r.Index() != i {
			return fmt.Errorf("trace: record %d has index %d, expected %d", i, r.Index(), i)
		}
		if i == 0 {
			continue
		}
		prevHash := PrevHash(r)
		if prevHash != records[i-1].Hash() {
			return fmt.Errorf("trace: record %d prev_hash %q does not match record %d's record_hash %q", i, prevHash, i-1, records[i-1].Hash())
		}
	}
	return nil
}

// PrevHash returns the prev_hash field of a step or control record, or
// "" for a header, which has none.
func PrevHash(r Record) string {
	switch t := r.(type) {
	case *StepRecord:
		return t.PrevHash
	case *ControlRecord:
		return t.PrevHash
	default:
		return ""
	}
}

// WriteNDJSON appends one canonical-JSON object per record to w,
// LF-terminated (§4.7).
func WriteNDJSON(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		b, err := canonicalize.JSON(r)
		if err != nil {
			return fmt.Errorf("trace: canonicalize record %d: %w", r.Index(), err)
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadNDJSON parses the union-typed NDJSON format WriteNDJSON produces
// back into the concrete record types, dispatching on each line's
// "type" field.
func ReadNDJSON(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var records []Record
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("trace: line %d: %w", line, err)
		}
		switch probe.Type {
		case TypeHeader:
			var h HeaderRecord
			if err := json.Unmarshal(raw, &h); err != nil {
				return nil, fmt.Errorf("trace: line %d: %w", line, err)
			}
			records = append(records, &h)
		case TypeStep:
			var s StepRecord
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("trace: line %d: %w", line, err)
			}
			records = append(records, &s)
		case TypeControl:
			var c ControlRecord
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, fmt.Errorf("trace: line %d: %w", line, err)
			}
			records = append(records, &c)
		default:
			return nil, fmt.Errorf("trace: line %d: unknown record type %q", line, probe.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

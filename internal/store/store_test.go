package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reasonkernel/core/pkg/trace"
)

func newTestHeader(t *testing.T) (*trace.HeaderRecord, error) {
	t.Helper()
	return trace.NewHeader("1.0.0", "trace-1", "2026-08-02T00:00:00Z", "reasonkernel-engine/1.0.0", "spec-hash", "state-hash")
}

func sampleTrace() StoredTrace {
	return StoredTrace{
		TraceID:          "trace-1",
		RequestID:        "req-1",
		EngineVersion:    "reasonkernel-engine/1.0.0",
		ProblemSpecHash:  "spec-hash",
		InitialStateHash: "state-hash",
		HeadHash:         "head-hash",
		RecordCount:      1,
		ProblemSpecJSON:  []byte(`{"id":"req-1"}`),
		FinalStateJSON:   []byte(`{"status":"completed"}`),
		Records: []RecordRow{
			{Index: 0, RecordHash: "head-hash", PrevHash: "", RecordJSON: []byte(`{"type":"header"}`)},
		},
	}
}

func TestPut_UpsertsTraceAndRecordsInATransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewFromDB(db)
	st := sampleTrace()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO traces").
		WithArgs(st.TraceID, st.RequestID, st.EngineVersion, st.ProblemSpecHash, st.InitialStateHash,
			st.HeadHash, st.RecordCount, string(st.ProblemSpecJSON), string(st.FinalStateJSON)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO trace_records").
		WithArgs(st.TraceID, 0, "head-hash", "", `{"type":"header"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Put(context.Background(), st))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_ReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewFromDB(db)
	mock.ExpectQuery("SELECT trace_id, request_id").
		WithArgs("missing-trace").
		WillReturnRows(sqlmock.NewRows([]string{
			"trace_id", "request_id", "engine_version", "problem_spec_hash", "initial_state_hash",
			"head_hash", "record_count", "problem_spec", "final_state",
		}))

	_, err = s.Get(context.Background(), "missing-trace")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_ReturnsStoredTraceWithRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewFromDB(db)
	traceRow := sqlmock.NewRows([]string{
		"trace_id", "request_id", "engine_version", "problem_spec_hash", "initial_state_hash",
		"head_hash", "record_count", "problem_spec", "final_state",
	}).AddRow("trace-1", "req-1", "reasonkernel-engine/1.0.0", "spec-hash", "state-hash", "head-hash", 1, `{"id":"req-1"}`, `{"status":"completed"}`)
	mock.ExpectQuery("SELECT trace_id, request_id").
		WithArgs("trace-1").
		WillReturnRows(traceRow)

	recordRows := sqlmock.NewRows([]string{"index", "record_hash", "prev_hash", "record"}).
		AddRow(0, "head-hash", "", `{"type":"header"}`)
	mock.ExpectQuery(`SELECT "index", record_hash, prev_hash, record FROM trace_records`).
		WithArgs("trace-1").
		WillReturnRows(recordRows)

	st, err := s.Get(context.Background(), "trace-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", st.RequestID)
	assert.Equal(t, 1, st.RecordCount)
	require.Len(t, st.Records, 1)
	assert.Equal(t, `{"type":"header"}`+"\n", string(st.NDJSON()))
}

func TestGet_NullFinalStateIsNilBytes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewFromDB(db)
	traceRow := sqlmock.NewRows([]string{
		"trace_id", "request_id", "engine_version", "problem_spec_hash", "initial_state_hash",
		"head_hash", "record_count", "problem_spec", "final_state",
	}).AddRow("trace-1", "req-1", "reasonkernel-engine/1.0.0", "spec-hash", "state-hash", "head-hash", 1, `{"id":"req-1"}`, nil)
	mock.ExpectQuery("SELECT trace_id, request_id").
		WithArgs("trace-1").
		WillReturnRows(traceRow)
	mock.ExpectQuery(`SELECT "index", record_hash, prev_hash, record FROM trace_records`).
		WithArgs("trace-1").
		WillReturnRows(sqlmock.NewRows([]string{"index", "record_hash", "prev_hash", "record"}))

	st, err := s.Get(context.Background(), "trace-1")
	require.NoError(t, err)
	assert.Nil(t, st.FinalStateJSON)
}

func TestNewStoredTrace_DerivesColumnsFromTheChain(t *testing.T) {
	h, err := newTestHeader(t)
	require.NoError(t, err)

	st, err := NewStoredTrace("req-1", []trace.Record{h}, []byte(`{}`), []byte(`{"status":"completed"}`))
	require.NoError(t, err)
	assert.Equal(t, h.TraceID, st.TraceID)
	assert.Equal(t, h.EngineVersion, st.EngineVersion)
	assert.Equal(t, h.RecordHash, st.HeadHash)
	assert.Equal(t, 1, st.RecordCount)
	require.Len(t, st.Records, 1)
	assert.Equal(t, h.RecordHash, st.Records[0].RecordHash)
}

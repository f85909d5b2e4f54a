// Package store implements the trace-persistence collaborator (§5,
// §6): the engine neither opens nor closes it, the HTTP layer writes
// to it after a successful execution. TraceStore is backed by
// database/sql (lib/pq for Postgres, modernc.org/sqlite for local/test
// use), following the teacher's pkg/store/ledger SQL-ledger idiom:
// a thin struct wrapping *sql.DB, schema as embedded sequential .sql
// files, hand-written queries, no ORM.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/reasonkernel/core/pkg/canonicalize"
	"github.com/reasonkernel/core/pkg/trace"
)

// ErrNotFound is returned by Get/GetByRequestID when no matching row
// exists.
var ErrNotFound = errors.New("trace not found")

//go:embed migrations/*.sql
var migrationFS embed.FS

// TraceStore persists finished executions per the relational schema in
// spec.md §6: a `traces` row per execution plus one `trace_records`
// row per trace record, keyed by (trace_id, index).
type TraceStore interface {
	Put(ctx context.Context, st StoredTrace) error
	Get(ctx context.Context, traceID string) (*StoredTrace, error)
	GetByRequestID(ctx context.Context, requestID string) (*StoredTrace, error)
	Close() error
}

// RecordRow is one row of the trace_records table.
type RecordRow struct {
	Index      int
	RecordHash string
	PrevHash   string
	RecordJSON []byte
}

// StoredTrace is the full persisted shape of one execution: the
// traces row plus its trace_records rows, reassembled into a single
// value for callers.
type StoredTrace struct {
	TraceID          string
	RequestID        string
	EngineVersion    string
	ProblemSpecHash  string
	InitialStateHash string
	HeadHash         string
	RecordCount      int
	ProblemSpecJSON  []byte
	FinalStateJSON   []byte // nil if this execution's final_state has not been recorded yet
	Records          []RecordRow
}

// NDJSON reconstructs the on-disk trace format (§4.7) from the stored
// per-record rows in index order -- each row's canonical-JSON record
// bytes, LF-terminated.
func (st *StoredTrace) NDJSON() []byte {
	var buf bytes.Buffer
	for _, r := range st.Records {
		buf.Write(r.RecordJSON)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// NewStoredTrace builds a StoredTrace from a completed execution's
// trace records, deriving every `traces` column the chain itself
// already carries (engine_version, the three hashes, record_count)
// from the header and the chain's tail, and canonicalizing each record
// the same way trace.WriteNDJSON does so the persisted bytes are the
// exact bytes §4.7 specifies, not a plain encoding/json re-marshal.
func NewStoredTrace(requestID string, records []trace.Record, problemSpecJSON, finalStateJSON []byte) (*StoredTrace, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("store: cannot persist an empty trace")
	}
	header, ok := records[0].(*trace.HeaderRecord)
	if !ok {
		return nil, fmt.Errorf("store: first record is not a header")
	}

	rows := make([]RecordRow, len(records))
	for i, r := range records {
		b, err := canonicalize.JSON(r)
		if err != nil {
			return nil, fmt.Errorf("store: canonicalize record %d: %w", i, err)
		}
		rows[i] = RecordRow{Index: r.Index(), RecordHash: r.Hash(), PrevHash: trace.PrevHash(r), RecordJSON: b}
	}

	return &StoredTrace{
		TraceID:          header.TraceID,
		RequestID:        requestID,
		EngineVersion:    header.EngineVersion,
		ProblemSpecHash:  header.ProblemSpecHash,
		InitialStateHash: header.InitialStateHash,
		HeadHash:         records[len(records)-1].Hash(),
		RecordCount:      len(records),
		ProblemSpecJSON:  problemSpecJSON,
		FinalStateJSON:   finalStateJSON,
		Records:          rows,
	}, nil
}

// SQLStore is the shared implementation behind both the Postgres and
// SQLite drivers -- the query set is portable ANSI SQL, only the
// driver name and DSN differ.
type SQLStore struct {
	db *sql.DB
}

// NewFromDB wraps an already-open *sql.DB without running migrations,
// the seam tests use to inject a go-sqlmock connection.
func NewFromDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenPostgres opens a Postgres-backed TraceStore via lib/pq, running
// migrations first.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens a pure-Go SQLite-backed TraceStore, suitable for
// local development and tests that want a real database without a
// running Postgres server, running migrations first.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies every embedded migrations/*.sql file in filename
// order. Each statement is written as CREATE ... IF NOT EXISTS, so
// reapplying the full sequence on every startup is itself the
// idempotency guarantee -- there is no separate schema_migrations
// version table to get out of sync with the files on disk.
func (s *SQLStore) migrate() error {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		sqlBytes, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("store: read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("store: apply migration %s: %w", name, err)
		}
	}
	return nil
}

const upsertTraceSQL = `
INSERT INTO traces (trace_id, request_id, engine_version, problem_spec_hash, initial_state_hash, head_hash, record_count, problem_spec, final_state)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (trace_id) DO UPDATE SET
	request_id = $2, engine_version = $3, problem_spec_hash = $4, initial_state_hash = $5,
	head_hash = $6, record_count = $7, problem_spec = $8, final_state = $9
`

const upsertRecordSQL = `
INSERT INTO trace_records (trace_id, "index", record_hash, prev_hash, record)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (trace_id, "index") DO UPDATE SET record_hash = $3, prev_hash = $4, record = $5
`

// Put upserts a StoredTrace: one row into traces, one row per record
// into trace_records, all inside a single transaction so a trace is
// visible to readers fully or not at all.
func (s *SQLStore) Put(ctx context.Context, st StoredTrace) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	var finalState interface{}
	if len(st.FinalStateJSON) > 0 {
		finalState = string(st.FinalStateJSON)
	}

	if _, err := tx.ExecContext(ctx, upsertTraceSQL,
		st.TraceID, st.RequestID, st.EngineVersion, st.ProblemSpecHash, st.InitialStateHash,
		st.HeadHash, st.RecordCount, string(st.ProblemSpecJSON), finalState,
	); err != nil {
		return fmt.Errorf("store: upsert trace: %w", err)
	}

	for _, row := range st.Records {
		if _, err := tx.ExecContext(ctx, upsertRecordSQL, st.TraceID, row.Index, row.RecordHash, row.PrevHash, string(row.RecordJSON)); err != nil {
			return fmt.Errorf("store: upsert trace record %d: %w", row.Index, err)
		}
	}

	return tx.Commit()
}

// Get returns the stored trace for traceID.
func (s *SQLStore) Get(ctx context.Context, traceID string) (*StoredTrace, error) {
	return s.get(ctx, "trace_id", traceID)
}

// GetByRequestID returns the most recently created stored trace for
// requestID (§6
// `GET /v1/replay/{request_id}`, keyed by `problem_spec.id`).
func (s *SQLStore) GetByRequestID(ctx context.Context, requestID string) (*StoredTrace, error) {
	return s.get(ctx, "request_id", requestID)
}

// get looks up a traces row by column (always one of the two literals
// above, never caller-controlled) and joins in its trace_records rows.
func (s *SQLStore) get(ctx context.Context, column, value string) (*StoredTrace, error) {
	query := fmt.Sprintf(`SELECT trace_id, request_id, engine_version, problem_spec_hash, initial_state_hash, head_hash, record_count, problem_spec, final_state FROM traces WHERE %s = $1 ORDER BY created_at DESC LIMIT 1`, column)

	var st StoredTrace
	var problemSpec string
	var finalState sql.NullString
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&st.TraceID, &st.RequestID, &st.EngineVersion, &st.ProblemSpecHash, &st.InitialStateHash,
		&st.HeadHash, &st.RecordCount, &problemSpec, &finalState,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: query trace: %w", err)
	}
	st.ProblemSpecJSON = []byte(problemSpec)
	if finalState.Valid {
		st.FinalStateJSON = []byte(finalState.String)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT "index", record_hash, prev_hash, record FROM trace_records WHERE trace_id = $1 ORDER BY "index" ASC`, st.TraceID)
	if err != nil {
		return nil, fmt.Errorf("store: query trace records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row RecordRow
		var record string
		if err := rows.Scan(&row.Index, &row.RecordHash, &row.PrevHash, &record); err != nil {
			return nil, fmt.Errorf("store: scan trace record: %w", err)
		}
		row.RecordJSON = []byte(record)
		st.Records = append(st.Records, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate trace records: %w", err)
	}

	return &st, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

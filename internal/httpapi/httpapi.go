// Package httpapi implements the HTTP surface collaborator (§6):
// GET /health, POST /v1/execute, GET /v1/replay/{request_id}. Routing
// follows the teacher's console package idiom -- a plain
// http.ServeMux, hand-written handlers, no web framework -- extended
// with golang.org/x/time/rate request throttling and OpenTelemetry
// span/metric instrumentation around the one call that matters:
// invoking the engine.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/reasonkernel/core/internal/cache"
	"github.com/reasonkernel/core/internal/store"
	"github.com/reasonkernel/core/pkg/engine"
	"github.com/reasonkernel/core/pkg/engineerr"
	"github.com/reasonkernel/core/pkg/trace"
)

var tracer = otel.Tracer("github.com/reasonkernel/core/internal/httpapi")
var meter = otel.Meter("github.com/reasonkernel/core/internal/httpapi")

// Server wires the engine to HTTP, with an optional trace store and
// idempotency cache. The engine itself never touches either.
type Server struct {
	eng     *engine.Engine
	traces  store.TraceStore
	cache   cache.IdempotencyCache
	logger  *slog.Logger
	limiter *rate.Limiter

	executeCount metric.Int64Counter
}

// Option configures a Server.
type Option func(*Server)

// WithTraceStore attaches a persistence layer; without one, executed
// traces are returned to the caller but not retained.
func WithTraceStore(s store.TraceStore) Option {
	return func(srv *Server) { srv.traces = s }
}

// WithCache attaches an idempotency cache; without one, NoopCache is
// used, so every request executes.
func WithCache(c cache.IdempotencyCache) Option {
	return func(srv *Server) { srv.cache = c }
}

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// WithRateLimit sets requests-per-second and burst for /v1/execute.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(srv *Server) { srv.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewServer constructs a Server around eng.
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		eng:     eng,
		cache:   cache.NoopCache{},
		logger:  slog.Default(),
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
	for _, opt := range opts {
		opt(s)
	}
	counter, err := meter.Int64Counter("reasonkernel_executions_total")
	if err == nil {
		s.executeCount = counter
	}
	return s
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/execute", s.handleExecute)
	mux.HandleFunc("/v1/replay/", s.handleReplay)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type executeRequest struct {
	ProblemSpec   json.RawMessage `json:"problem_spec"`
	TraceID       string          `json:"trace_id,omitempty"`
	EngineVersion string          `json:"engine_version,omitempty"`
	Now           string          `json:"now,omitempty"`
}

type executeResponse struct {
	TraceID       string        `json:"trace_id"`
	EngineVersion string        `json:"engine_version"`
	Trace         []trace.Record `json:"trace"`
	FinalState    interface{}   `json:"final_state"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}

	ctx, span := tracer.Start(r.Context(), "httpapi.execute")
	defer span.End()

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed request body: "+err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" {
		if cached, hit, err := s.cache.Get(ctx, idempotencyKey); err == nil && hit {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotency-Replayed", "true")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
	}

	result, err := engine.Execute(s.eng, req.ProblemSpec, engine.Options{
		TraceID:       req.TraceID,
		EngineVersion: req.EngineVersion,
		Now:           req.Now,
	})
	if err != nil {
		span.RecordError(err)
		s.writeEngineError(w, err)
		return
	}

	if s.executeCount != nil {
		s.executeCount.Add(ctx, 1, metric.WithAttributes(attribute.String("status", result.FinalState.Status)))
	}

	resp := executeResponse{
		TraceID:       result.TraceID,
		EngineVersion: result.EngineVersion,
		Trace:         result.Trace,
		FinalState:    result.FinalState,
	}
	body, err := json.Marshal(resp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to encode response")
		return
	}

	if s.traces != nil {
		problemSpecJSON, err := json.Marshal(result.FinalState.Problem)
		if err != nil {
			s.logger.Error("failed to encode problem spec for persistence", "trace_id", result.TraceID, "error", err)
		} else if stateJSON, err := json.Marshal(result.FinalState); err != nil {
			s.logger.Error("failed to encode final state for persistence", "trace_id", result.TraceID, "error", err)
		} else if st, err := store.NewStoredTrace(result.FinalState.Problem.ID, result.Trace, problemSpecJSON, stateJSON); err != nil {
			s.logger.Error("failed to build stored trace", "trace_id", result.TraceID, "error", err)
		} else if err := s.traces.Put(ctx, *st); err != nil {
			s.logger.Error("failed to persist trace", "trace_id", result.TraceID, "error", err)
		}
	}
	if idempotencyKey != "" {
		if err := s.cache.Set(ctx, idempotencyKey, body, 24*time.Hour); err != nil {
			s.logger.Warn("failed to write idempotency cache", "key", idempotencyKey, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type replayResponse struct {
	TraceID    string          `json:"trace_id"`
	RequestID  string          `json:"request_id"`
	TraceNDJSON string         `json:"trace_ndjson"`
	FinalState json.RawMessage `json:"final_state"`
}

// handleReplay implements `GET /v1/replay/{request_id}` (§6): it looks
// up the most recent execution keyed by problem_spec.id == request_id,
// not by trace_id, and answers with {trace_id, request_id, trace_ndjson,
// final_state} rebuilt from the stored trace. It does not return the
// original execute response body (engine_version and the trace as a
// JSON array are not part of it).
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	if s.traces == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "persistence is not configured")
		return
	}
	requestID := strings.TrimPrefix(r.URL.Path, "/v1/replay/")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "request_id is required")
		return
	}

	st, err := s.traces.GetByRequestID(r.Context(), requestID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no trace for "+requestID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if len(st.FinalStateJSON) == 0 {
		writeError(w, http.StatusConflict, "incomplete", "stored trace for "+requestID+" is missing final_state")
		return
	}

	writeJSON(w, http.StatusOK, replayResponse{
		TraceID:     st.TraceID,
		RequestID:   st.RequestID,
		TraceNDJSON: string(st.NDJSON()),
		FinalState:  json.RawMessage(st.FinalStateJSON),
	})
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	ee, ok := engineerr.As(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	status := http.StatusBadRequest
	writeError(w, status, string(ee.Kind), ee.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]interface{}{"code": code, "detail": detail})
}

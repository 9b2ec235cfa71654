// Package server exposes the policy gate and allocator over HTTP. It
// owns extraction of request facts, JSON shapes, status-code mapping,
// the periodic eviction sweep, and hot reload of the rule table; the
// core packages stay transport-free.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openpantry/gatekeeper/internal/allocator"
	"github.com/openpantry/gatekeeper/internal/classify"
	"github.com/openpantry/gatekeeper/internal/events"
	"github.com/openpantry/gatekeeper/internal/gate"
	"github.com/openpantry/gatekeeper/internal/ledger"
	"github.com/openpantry/gatekeeper/internal/model"
	"github.com/openpantry/gatekeeper/internal/rules"
	"github.com/openpantry/gatekeeper/internal/tracker"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr        string
	RulesPath   string
	WeightsPath string
	LedgerPath  string
	SweepSpec   string // cron spec for the eviction sweep, default @hourly
	Logger      *slog.Logger
}

// Server wires the gate, tracker, allocator, and ledger behind an HTTP
// API. The rule table is hot-swappable; all other state survives a
// reload.
type Server struct {
	cfg Config
	log *slog.Logger

	mu        sync.RWMutex // guards g and rulesHash across reloads
	g         *gate.Gate
	rulesHash string

	tracker *tracker.Tracker
	alloc   *allocator.Allocator
	led     *ledger.Ledger
	sink    events.Sink

	cron *cron.Cron
	srv  *http.Server
}

// New creates a server with loaded rule table and allocation weights.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = "@hourly"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rulesCfg, rulesHash, err := rules.LoadWithHash(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	weights, err := allocator.LoadConfig(cfg.WeightsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load weights: %w", err)
	}

	var led *ledger.Ledger
	if cfg.LedgerPath != "" {
		led, err = ledger.Open(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
	}

	sink := events.Sink(events.SlogSink{Logger: cfg.Logger})
	tr := tracker.New(rulesCfg)

	s := &Server{
		cfg:       cfg,
		log:       cfg.Logger,
		g:         gate.New(classify.New(rulesCfg), tr, sink),
		rulesHash: rulesHash,
		tracker:   tr,
		alloc:     allocator.New(weights),
		led:       led,
		sink:      sink,
		cron:      cron.New(),
	}

	if _, err := s.cron.AddFunc(cfg.SweepSpec, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep spec %q: %w", cfg.SweepSpec, err)
	}

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Serve starts the eviction sweep scheduler and the HTTP listener.
// Blocks until the server is shut down.
func (s *Server) Serve() error {
	s.cron.Start()
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeOn starts the server on the given listener. For testing.
func (s *Server) ServeOn(lis net.Listener) error {
	s.cron.Start()
	err := s.srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// GracefulStop drains in-flight requests and stops the sweep scheduler.
func (s *Server) GracefulStop(ctx context.Context) error {
	<-s.cron.Stop().Done()
	return s.srv.Shutdown(ctx)
}

// Close releases resources.
func (s *Server) Close() error {
	if s.led != nil {
		return s.led.Close()
	}
	return nil
}

// Handler returns the HTTP handler. For testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ReloadRules atomically swaps the rule table. Called by the
// hot-reloader on file change. Tracker state is preserved; the new
// thresholds apply from the next fold.
func (s *Server) ReloadRules() error {
	rulesCfg, rulesHash, err := rules.LoadWithHash(s.cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to reload rules: %w", err)
	}

	s.tracker.UpdateConfig(rulesCfg)

	s.mu.Lock()
	s.g = gate.New(classify.New(rulesCfg), s.tracker, s.sink)
	s.rulesHash = rulesHash
	s.mu.Unlock()

	s.log.Info("rules reloaded", "rules_hash", rulesHash)
	return nil
}

func (s *Server) currentGate() (*gate.Gate, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g, s.rulesHash
}

func (s *Server) sweep() {
	now := time.Now().UTC()
	evicted := s.tracker.Sweep(now)
	s.sink.Emit(events.Event{
		Time:     now,
		Category: events.CategorySweep,
		Fields:   map[string]any{"evicted": evicted, "tracked": s.tracker.Len()},
	})
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/projects", s.handleSubmit)
	mux.HandleFunc("POST /v1/projects/dispatch", s.handleDispatch)
	mux.HandleFunc("POST /v1/projects/{id}/reject", s.handleReject)
	mux.HandleFunc("GET /v1/projects/{id}", s.handleGetProject)
	mux.HandleFunc("GET /v1/sources/{id}", s.handleGetSource)
	mux.HandleFunc("POST /v1/sources/{id}/reset", s.handleResetSource)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// evaluateRequest is the JSON body for /v1/evaluate. Header and query
// keys are lowercased during extraction so rule matching behaves the
// same regardless of caller casing.
type evaluateRequest struct {
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Headers  map[string]string `json:"headers"`
	Query    map[string]string `json:"query"`
	Body     string            `json:"body"`
	SourceID string            `json:"source_id"`
}

type evaluateResponse struct {
	Action     model.Action              `json:"action"`
	Verdict    model.Verdict             `json:"verdict"`
	Escalation *model.EscalationDecision `json:"escalation,omitempty"`
	RulesHash  string                    `json:"rules_hash"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	sourceID := req.SourceID
	if sourceID == "" {
		sourceID = remoteHost(r)
	}

	facts := model.RequestFacts{
		Method:     req.Method,
		Path:       req.Path,
		Headers:    lowerKeys(req.Headers),
		Query:      lowerKeys(req.Query),
		Body:       req.Body,
		SourceID:   sourceID,
		ReceivedAt: time.Now().UTC(),
	}

	g, rulesHash := s.currentGate()
	dec := g.Evaluate(facts)

	if s.led != nil {
		entry := ledger.Entry{
			Kind:      ledger.KindDecision,
			SourceID:  sourceID,
			Decision:  string(dec.Action),
			RulesHash: rulesHash,
		}
		if dec.Escalation != nil {
			entry.Score = dec.Escalation.Score
		}
		if err := s.led.Record(entry); err != nil {
			s.log.Error("ledger write failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		Action:     dec.Action,
		Verdict:    dec.Verdict,
		Escalation: dec.Escalation,
		RulesHash:  rulesHash,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in allocator.WorkItemInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	item, err := s.alloc.Submit(in)
	if err != nil {
		var verr *allocator.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.sink.Emit(events.Event{
		Time:     item.SubmittedAt,
		Category: events.CategorySubmit,
		ItemID:   item.ID,
		Fields:   map[string]any{"submitter_id": item.SubmitterID, "priority": item.Priority},
	})
	if s.led != nil {
		if err := s.led.Record(ledger.Entry{
			Kind:        ledger.KindSubmit,
			ItemID:      item.ID,
			SubmitterID: item.SubmitterID,
			Priority:    item.Priority,
		}); err != nil {
			s.log.Error("ledger write failed", "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	capacity := s.alloc.Capacity()
	if raw := r.URL.Query().Get("capacity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid capacity %q", raw))
			return
		}
		capacity = n
	}

	items := s.alloc.DispatchNext(capacity)
	now := time.Now().UTC()
	for _, item := range items {
		s.sink.Emit(events.Event{
			Time:     now,
			Category: events.CategoryDispatch,
			ItemID:   item.ID,
			Fields:   map[string]any{"submitter_id": item.SubmitterID, "priority": item.Priority},
		})
		if s.led != nil {
			if err := s.led.Record(ledger.Entry{
				Kind:        ledger.KindDispatch,
				ItemID:      item.ID,
				SubmitterID: item.SubmitterID,
				Priority:    item.Priority,
			}); err != nil {
				s.log.Error("ledger write failed", "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"dispatched": items})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		// Reason is optional; a missing or invalid body rejects with
		// an empty reason rather than failing the call.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if err := s.alloc.Reject(id, body.Reason); err != nil {
		var nferr *allocator.NotFoundError
		if errors.As(err, &nferr) {
			writeError(w, http.StatusNotFound, nferr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.sink.Emit(events.Event{
		Time:     time.Now().UTC(),
		Category: events.CategoryReject,
		ItemID:   id,
		Fields:   map[string]any{"reason": body.Reason},
	})
	if s.led != nil {
		if err := s.led.Record(ledger.Entry{
			Kind:   ledger.KindReject,
			ItemID: id,
			Reason: body.Reason,
		}); err != nil {
			s.log.Error("ledger write failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "rejected"})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	item, ok := s.alloc.Item(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown work item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.tracker.Record(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResetSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.tracker.Reset(id) {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}
	s.sink.Emit(events.Event{
		Time:     time.Now().UTC(),
		Category: events.CategoryReset,
		SourceID: id,
	})
	writeJSON(w, http.StatusOK, map[string]string{"source_id": id, "escalation": string(model.Clean)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, rulesHash := s.currentGate()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"rules_hash": rulesHash,
		"sources":    s.tracker.Len(),
		"queued":     len(s.alloc.Queued()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func lowerKeys(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

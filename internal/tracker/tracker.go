// Package tracker maintains per-source rolling activity records. It
// consumes classification verdicts, escalates standing monotonically,
// and evicts stale records on a caller-driven sweep.
package tracker

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/openpantry/gatekeeper/internal/model"
	"github.com/openpantry/gatekeeper/internal/rules"
)

// record is the per-source state. The mutex serializes folds, resets,
// and eviction for a single source; unrelated sources never contend.
type record struct {
	mu sync.Mutex

	firstSeen    time.Time
	lastSeen     time.Time
	requestCount int
	score        float64
	distinct     map[string]struct{}
	escalation   model.Escalation

	// evicted marks a record removed by the sweep while a fold was
	// waiting on its lock; the fold retries against a fresh record.
	evicted bool
}

// Snapshot is a read-only copy of a source record.
type Snapshot struct {
	SourceID           string           `json:"source_id"`
	FirstSeen          time.Time        `json:"first_seen"`
	LastSeen           time.Time        `json:"last_seen"`
	RequestCount       int              `json:"request_count"`
	Score              float64          `json:"score"`
	DistinctIndicators []string         `json:"distinct_indicators,omitempty"`
	Escalation         model.Escalation `json:"escalation"`
}

// Tracker owns the sourceID → record map.
type Tracker struct {
	mu      sync.Mutex // guards sources and cfg
	sources map[string]*record
	cfg     *rules.Config
}

// New creates a tracker using the thresholds, decay factor, and idle
// TTL from the rule table. A nil config falls back to defaults.
func New(cfg *rules.Config) *Tracker {
	if cfg == nil {
		cfg = rules.DefaultConfig()
	}
	return &Tracker{
		sources: make(map[string]*record),
		cfg:     cfg,
	}
}

// UpdateConfig swaps the threshold/decay configuration. Existing
// records keep their state; the new values apply from the next fold.
func (t *Tracker) UpdateConfig(cfg *rules.Config) {
	if cfg == nil {
		return
	}
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
}

// Fold applies one verdict to the source's history and returns the
// resulting standing.
//
// Blocked sources short-circuit: no decay, no score update, O(1). This
// both protects against score manipulation after blocking and keeps the
// hot path for abusive sources cheap. Activity stamps still advance so
// a persistent offender never counts as idle for the sweep. Otherwise
// the cumulative score decays lazily from lastSeen, the verdict's
// commercial score is added, and escalation is recomputed,
// monotonically non-decreasing.
//
// Unknown sources get a fresh clean record; Fold never fails.
func (t *Tracker) Fold(sourceID string, v model.Verdict, now time.Time) model.EscalationDecision {
	for {
		rec, cfg := t.getOrCreate(sourceID, now)
		rec.mu.Lock()
		if rec.evicted {
			rec.mu.Unlock()
			continue
		}
		dec := rec.fold(sourceID, v, now, cfg)
		rec.mu.Unlock()
		return dec
	}
}

// fold runs under rec.mu.
func (r *record) fold(sourceID string, v model.Verdict, now time.Time, cfg *rules.Config) model.EscalationDecision {
	if r.escalation == model.Blocked {
		r.requestCount++
		if now.After(r.lastSeen) {
			r.lastSeen = now
		}
		return model.EscalationDecision{
			SourceID:     sourceID,
			Escalation:   model.Blocked,
			Score:        r.score,
			RequestCount: r.requestCount,
			Reasons:      []string{"source blocked"},
		}
	}

	if elapsed := now.Sub(r.lastSeen); elapsed > 0 {
		r.score *= math.Pow(cfg.DecayPerHour, elapsed.Hours())
	}
	r.score += float64(v.CommercialScore)
	// Two-decimal precision: decay over second-scale gaps must not leave
	// a score epsilon-short of an integer threshold.
	r.score = math.Round(r.score*100) / 100
	r.requestCount++
	if now.After(r.lastSeen) {
		r.lastSeen = now
	}
	for _, ind := range v.MatchedIndicators {
		r.distinct[ind] = struct{}{}
	}

	next := model.Clean
	switch {
	case r.score >= float64(cfg.Thresholds.Block):
		next = model.Blocked
	case r.score >= float64(cfg.Thresholds.Warn):
		next = model.Monitored
	}
	r.escalation = model.MaxEscalation(r.escalation, next)

	return model.EscalationDecision{
		SourceID:     sourceID,
		Escalation:   r.escalation,
		Score:        r.score,
		RequestCount: r.requestCount,
		Reasons:      v.MatchedIndicators,
	}
}

func (t *Tracker) getOrCreate(sourceID string, now time.Time) (*record, *rules.Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.sources[sourceID]
	if !ok {
		rec = &record{
			firstSeen:  now,
			lastSeen:   now,
			distinct:   make(map[string]struct{}),
			escalation: model.Clean,
		}
		t.sources[sourceID] = rec
	}
	return rec, t.cfg
}

// Sweep evicts records idle longer than the configured TTL and returns
// how many were removed. It snapshots the key set first and takes each
// record's lock before removal, so it never races an in-flight fold.
// Eviction is advisory cleanup: a re-created record starts clean.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	ttl := t.cfg.IdleTTL()
	snapshot := make(map[string]*record, len(t.sources))
	for id, rec := range t.sources {
		snapshot[id] = rec
	}
	t.mu.Unlock()

	evicted := 0
	for id, rec := range snapshot {
		t.mu.Lock()
		if t.sources[id] != rec {
			t.mu.Unlock()
			continue
		}
		rec.mu.Lock()
		if now.Sub(rec.lastSeen) >= ttl {
			rec.evicted = true
			delete(t.sources, id)
			evicted++
		}
		rec.mu.Unlock()
		t.mu.Unlock()
	}
	return evicted
}

// Reset administratively restores a source to clean standing. It is the
// only sanctioned way escalation can decrease. Returns false if the
// source is unknown.
func (t *Tracker) Reset(sourceID string) bool {
	t.mu.Lock()
	rec, ok := t.sources[sourceID]
	t.mu.Unlock()
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.evicted {
		return false
	}
	rec.score = 0
	rec.escalation = model.Clean
	rec.distinct = make(map[string]struct{})
	return true
}

// Record returns a copy of the source's state, if tracked.
func (t *Tracker) Record(sourceID string) (Snapshot, bool) {
	t.mu.Lock()
	rec, ok := t.sources[sourceID]
	t.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	snap := Snapshot{
		SourceID:     sourceID,
		FirstSeen:    rec.firstSeen,
		LastSeen:     rec.lastSeen,
		RequestCount: rec.requestCount,
		Score:        rec.score,
		Escalation:   rec.escalation,
	}
	for ind := range rec.distinct {
		snap.DistinctIndicators = append(snap.DistinctIndicators, ind)
	}
	sort.Strings(snap.DistinctIndicators)
	return snap, true
}

// Len returns the number of tracked sources.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sources)
}

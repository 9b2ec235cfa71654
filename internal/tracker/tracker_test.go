package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/openpantry/gatekeeper/internal/model"
	"github.com/openpantry/gatekeeper/internal/rules"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func verdict(commercial int, indicators ...string) model.Verdict {
	return model.Verdict{
		IsBot:             true,
		CommercialScore:   commercial,
		MatchedIndicators: indicators,
	}
}

// --- Fold tests ---

func TestFoldCreatesCleanRecord(t *testing.T) {
	tr := New(nil)
	dec := tr.Fold("1.2.3.4", verdict(0), t0)
	if dec.Escalation != model.Clean {
		t.Errorf("expected clean, got %s", dec.Escalation)
	}
	if dec.RequestCount != 1 {
		t.Errorf("expected count 1, got %d", dec.RequestCount)
	}
	if tr.Len() != 1 {
		t.Errorf("expected 1 tracked source, got %d", tr.Len())
	}
}

func TestEscalationProgression(t *testing.T) {
	tr := New(nil) // warn 4, block 6

	if dec := tr.Fold("s", verdict(2, "kw-resell"), t0); dec.Escalation != model.Clean {
		t.Errorf("score 2: expected clean, got %s", dec.Escalation)
	}
	if dec := tr.Fold("s", verdict(2, "kw-resell"), t0.Add(time.Second)); dec.Escalation != model.Monitored {
		t.Errorf("score 4: expected monitored, got %s", dec.Escalation)
	}
	if dec := tr.Fold("s", verdict(2, "kw-resell"), t0.Add(2*time.Second)); dec.Escalation != model.Blocked {
		t.Errorf("score 6: expected blocked, got %s", dec.Escalation)
	}
}

func TestBlockedFoldIsScoreNoOp(t *testing.T) {
	tr := New(nil)
	for i := 0; i < 3; i++ {
		tr.Fold("s", verdict(2), t0.Add(time.Duration(i)*time.Second))
	}
	before, _ := tr.Record("s")
	if before.Escalation != model.Blocked {
		t.Fatalf("setup: expected blocked, got %s", before.Escalation)
	}

	dec := tr.Fold("s", verdict(100, "kw-resell"), t0.Add(time.Minute))
	if dec.Escalation != model.Blocked {
		t.Errorf("expected blocked, got %s", dec.Escalation)
	}
	after, _ := tr.Record("s")
	if after.Score != before.Score {
		t.Errorf("blocked fold must not change score: %v -> %v", before.Score, after.Score)
	}
	if after.RequestCount != before.RequestCount+1 {
		t.Errorf("blocked fold still counts the request: %d -> %d", before.RequestCount, after.RequestCount)
	}
	if !after.LastSeen.After(before.LastSeen) {
		t.Errorf("blocked fold must refresh last-seen: %v -> %v", before.LastSeen, after.LastSeen)
	}
}

func TestSecondScaleGapsStillReachThresholds(t *testing.T) {
	// Decay over gaps of a few seconds is rounding noise; it must not
	// hold a score epsilon-short of an integer threshold.
	tr := New(nil) // warn 4, block 6

	var dec model.EscalationDecision
	for i := 0; i < 3; i++ {
		dec = tr.Fold("s", verdict(2, "kw-resell"), t0.Add(time.Duration(i*2)*time.Second))
	}
	if dec.Escalation != model.Blocked {
		t.Errorf("expected blocked on third request, got %s (score %v)", dec.Escalation, dec.Score)
	}
	if dec.Score != 6 {
		t.Errorf("expected score 6, got %v", dec.Score)
	}
}

func TestBlockedSourceKeepsRecordAlive(t *testing.T) {
	// A blocked source that keeps hammering is active, not idle; the
	// sweep must measure the TTL from its latest request.
	tr := New(nil) // TTL 24h
	for i := 0; i < 3; i++ {
		tr.Fold("s", verdict(2), t0.Add(time.Duration(i)*time.Second))
	}
	tr.Fold("s", verdict(2), t0.Add(23*time.Hour)) // blocked fast path

	if evicted := tr.Sweep(t0.Add(25 * time.Hour)); evicted != 0 {
		t.Errorf("expected no eviction, got %d", evicted)
	}
	dec := tr.Fold("s", verdict(0), t0.Add(25*time.Hour))
	if dec.Escalation != model.Blocked {
		t.Errorf("expected blocked standing to survive the sweep, got %s", dec.Escalation)
	}
}

func TestEscalationMonotonicUnderDecay(t *testing.T) {
	tr := New(nil)
	tr.Fold("s", verdict(5), t0) // monitored
	// Two days later the decayed score is far below the warn threshold,
	// but standing must not improve on its own.
	dec := tr.Fold("s", verdict(0), t0.Add(48*time.Hour))
	if dec.Score >= 4 {
		t.Fatalf("setup: expected decayed score below warn, got %v", dec.Score)
	}
	if dec.Escalation != model.Monitored {
		t.Errorf("expected monitored to persist, got %s", dec.Escalation)
	}
}

func TestDecayIsMultiplicative(t *testing.T) {
	cfg := rules.DefaultConfig()
	cfg.DecayPerHour = 0.5
	tr := New(cfg)

	tr.Fold("s", verdict(2), t0)
	dec := tr.Fold("s", verdict(0), t0.Add(2*time.Hour))
	// 2 * 0.5^2 = 0.5
	if dec.Score < 0.499 || dec.Score > 0.501 {
		t.Errorf("expected score 0.5 after two half-lives, got %v", dec.Score)
	}
}

func TestFoldMergesDistinctIndicators(t *testing.T) {
	tr := New(nil)
	tr.Fold("s", verdict(1, "kw-resell", "ua-curl"), t0)
	tr.Fold("s", verdict(1, "kw-resell", "kw-marketing"), t0.Add(time.Second))
	snap, ok := tr.Record("s")
	if !ok {
		t.Fatal("expected record")
	}
	if len(snap.DistinctIndicators) != 3 {
		t.Errorf("expected 3 distinct indicators, got %v", snap.DistinctIndicators)
	}
}

func TestRecordIndicatorsSorted(t *testing.T) {
	tr := New(nil)
	tr.Fold("s", verdict(1, "ua-curl", "kw-resell"), t0)
	tr.Fold("s", verdict(1, "kw-marketing"), t0.Add(time.Second))
	snap, _ := tr.Record("s")
	want := []string{"kw-marketing", "kw-resell", "ua-curl"}
	for i, ind := range snap.DistinctIndicators {
		if ind != want[i] {
			t.Fatalf("expected sorted indicators %v, got %v", want, snap.DistinctIndicators)
		}
	}
}

// --- Scenario: repeated commercial scraping ---

func TestCurlResellerBlockedOnFourthRequest(t *testing.T) {
	cfg := rules.DefaultConfig()
	tr := New(cfg)

	// Three requests with commercial score 2 inside one second each.
	var last model.EscalationDecision
	for i := 0; i < 3; i++ {
		last = tr.Fold("203.0.113.9", verdict(2, "ua-curl", "kw-resell"), t0.Add(time.Duration(i)*time.Second))
	}
	if last.Escalation != model.Blocked {
		t.Fatalf("expected blocked after three requests, got %s (score %v)", last.Escalation, last.Score)
	}

	// Fourth request looks benign; still blocked.
	dec := tr.Fold("203.0.113.9", verdict(0), t0.Add(3*time.Second))
	if dec.Escalation != model.Blocked {
		t.Errorf("expected benign fourth request to stay blocked, got %s", dec.Escalation)
	}
}

// --- Sweep tests ---

func TestSweepEvictsIdleRecords(t *testing.T) {
	tr := New(nil) // TTL 24h
	tr.Fold("stale", verdict(1), t0)
	tr.Fold("fresh", verdict(1), t0.Add(23*time.Hour))

	evicted := tr.Sweep(t0.Add(25 * time.Hour))
	if evicted != 1 {
		t.Errorf("expected 1 eviction, got %d", evicted)
	}
	if _, ok := tr.Record("stale"); ok {
		t.Error("stale record must be gone")
	}
	if _, ok := tr.Record("fresh"); !ok {
		t.Error("fresh record must survive")
	}
}

func TestEvictedBlockedSourceRestartsClean(t *testing.T) {
	// Documented trade-off: waiting out the TTL resets standing.
	tr := New(nil)
	for i := 0; i < 3; i++ {
		tr.Fold("s", verdict(2), t0.Add(time.Duration(i)*time.Second))
	}
	tr.Sweep(t0.Add(48 * time.Hour))

	dec := tr.Fold("s", verdict(0), t0.Add(49*time.Hour))
	if dec.Escalation != model.Clean {
		t.Errorf("re-created record starts clean, got %s", dec.Escalation)
	}
}

// --- Reset tests ---

func TestResetRestoresCleanStanding(t *testing.T) {
	tr := New(nil)
	for i := 0; i < 3; i++ {
		tr.Fold("s", verdict(2), t0.Add(time.Duration(i)*time.Second))
	}
	if !tr.Reset("s") {
		t.Fatal("expected reset to succeed")
	}
	dec := tr.Fold("s", verdict(0), t0.Add(time.Minute))
	if dec.Escalation != model.Clean {
		t.Errorf("expected clean after reset, got %s", dec.Escalation)
	}
	if dec.Score != 0 {
		t.Errorf("expected zero score after reset, got %v", dec.Score)
	}
}

func TestResetUnknownSource(t *testing.T) {
	tr := New(nil)
	if tr.Reset("nobody") {
		t.Error("reset of unknown source must return false")
	}
}

// --- Concurrency ---

func TestConcurrentFoldsSameSourceLoseNothing(t *testing.T) {
	cfg := rules.DefaultConfig()
	cfg.Thresholds = rules.Thresholds{Warn: 10_000, Block: 20_000}
	tr := New(cfg)

	const workers = 8
	const perWorker = 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tr.Fold("shared", verdict(1), t0)
			}
		}()
	}
	wg.Wait()

	snap, _ := tr.Record("shared")
	if snap.RequestCount != workers*perWorker {
		t.Errorf("expected %d folds applied, got %d", workers*perWorker, snap.RequestCount)
	}
	if snap.Score != float64(workers*perWorker) {
		t.Errorf("expected score %d, got %v", workers*perWorker, snap.Score)
	}
}

func TestConcurrentSweepAndFold(t *testing.T) {
	tr := New(nil)
	tr.Fold("s", verdict(1), t0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			tr.Fold("s", verdict(0), t0.Add(48*time.Hour))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			tr.Sweep(t0.Add(48 * time.Hour))
		}
	}()
	wg.Wait()

	// No deadlock, no panic; a fold racing an eviction retries on a
	// fresh record, so the source is always foldable afterwards.
	dec := tr.Fold("s", verdict(0), t0.Add(49*time.Hour))
	if dec.RequestCount < 1 {
		t.Errorf("expected live record, got count %d", dec.RequestCount)
	}
}

package gate

import (
	"testing"
	"time"

	"github.com/openpantry/gatekeeper/internal/classify"
	"github.com/openpantry/gatekeeper/internal/events"
	"github.com/openpantry/gatekeeper/internal/model"
	"github.com/openpantry/gatekeeper/internal/rules"
	"github.com/openpantry/gatekeeper/internal/tracker"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestGate(sink events.Sink) *Gate {
	cfg := rules.DefaultConfig()
	return New(classify.New(cfg), tracker.New(cfg), sink)
}

func request(ua, sourceID string, headers map[string]string, at time.Time) model.RequestFacts {
	h := map[string]string{"user-agent": ua}
	for k, v := range headers {
		h[k] = v
	}
	return model.RequestFacts{
		Method:     "GET",
		Path:       "/data",
		Headers:    h,
		SourceID:   sourceID,
		ReceivedAt: at,
	}
}

// --- Pipeline tests ---

func TestHumanTrafficAllowsWithoutTracking(t *testing.T) {
	cfg := rules.DefaultConfig()
	tr := tracker.New(cfg)
	g := New(classify.New(cfg), tr, nil)

	dec := g.Evaluate(request("Mozilla/5.0 (X11; Linux x86_64) Chrome/119.0", "10.0.0.1",
		map[string]string{"accept-language": "en"}, t0))
	if dec.Action != model.Allow {
		t.Errorf("expected allow, got %s", dec.Action)
	}
	if dec.Escalation != nil {
		t.Error("human traffic must not reach the tracker")
	}
	if tr.Len() != 0 {
		t.Errorf("tracker must be untouched, has %d sources", tr.Len())
	}
}

func TestAllowlistedBotAllowed(t *testing.T) {
	g := newTestGate(nil)
	dec := g.Evaluate(request("Googlebot/2.1 (+http://www.google.com/bot.html)", "66.249.66.1",
		map[string]string{"x-purpose": "reselling marketing"}, t0))
	if dec.Action != model.Allow {
		t.Errorf("expected allow for allowlisted agent, got %s", dec.Action)
	}
	if !dec.Verdict.Allowlisted || dec.Verdict.CommercialScore != 0 {
		t.Error("allowlist override must zero commercial score")
	}
}

func TestCleanBotAllowed(t *testing.T) {
	g := newTestGate(nil)
	dec := g.Evaluate(request("curl/7.0", "198.51.100.7", nil, t0))
	if dec.Action != model.Allow {
		t.Errorf("expected allow for clean bot, got %s", dec.Action)
	}
	if dec.Escalation == nil || dec.Escalation.Escalation != model.Clean {
		t.Errorf("expected clean escalation, got %+v", dec.Escalation)
	}
}

func TestCommercialBotEscalatesToBlock(t *testing.T) {
	g := newTestGate(nil)
	commercial := map[string]string{"x-purpose": "reselling"}

	actions := make([]model.Action, 0, 4)
	for i := 0; i < 3; i++ {
		dec := g.Evaluate(request("curl/7.0", "203.0.113.9", commercial, t0.Add(time.Duration(i)*time.Second)))
		actions = append(actions, dec.Action)
	}
	// Fourth request with benign headers is still blocked.
	dec := g.Evaluate(request("curl/7.0", "203.0.113.9", nil, t0.Add(3*time.Second)))
	actions = append(actions, dec.Action)

	want := []model.Action{model.Allow, model.WarnAndMonitor, model.Block, model.Block}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("request %d: expected %s, got %s", i+1, want[i], actions[i])
		}
	}
}

func TestEvaluateZeroTimestampUsesClock(t *testing.T) {
	g := newTestGate(nil)
	g.now = func() time.Time { return t0 }
	dec := g.Evaluate(model.RequestFacts{
		Headers:  map[string]string{"user-agent": "curl/7.0"},
		SourceID: "s",
	})
	if dec.Escalation == nil {
		t.Fatal("expected fold for bot traffic")
	}
}

// --- Event emission ---

func TestEvaluateEmitsEvents(t *testing.T) {
	var got []events.Event
	sink := events.SinkFunc(func(e events.Event) { got = append(got, e) })
	g := newTestGate(sink)

	g.Evaluate(request("curl/7.0", "198.51.100.7", nil, t0))
	if len(got) != 2 {
		t.Fatalf("expected classify+fold events, got %d", len(got))
	}
	if got[0].Category != events.CategoryClassify || got[1].Category != events.CategoryFold {
		t.Errorf("unexpected categories: %s, %s", got[0].Category, got[1].Category)
	}
	if got[0].SourceID != "198.51.100.7" {
		t.Errorf("expected source id on event, got %q", got[0].SourceID)
	}
}

func TestHumanTrafficEmitsClassifyOnly(t *testing.T) {
	var got []events.Event
	g := newTestGate(events.SinkFunc(func(e events.Event) { got = append(got, e) }))

	g.Evaluate(request("Mozilla/5.0 Chrome/119", "10.0.0.1", map[string]string{"accept-language": "en"}, t0))
	if len(got) != 1 || got[0].Category != events.CategoryClassify {
		t.Errorf("expected single classify event, got %d", len(got))
	}
}

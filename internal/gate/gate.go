// Package gate is the composition root for inbound-traffic policy:
// classifier → tracker → action. All state lives in the injected
// collaborators; the gate itself is stateless and disposable.
package gate

import (
	"time"

	"github.com/openpantry/gatekeeper/internal/classify"
	"github.com/openpantry/gatekeeper/internal/events"
	"github.com/openpantry/gatekeeper/internal/model"
	"github.com/openpantry/gatekeeper/internal/tracker"
)

// Decision is the gate's answer for one inbound request.
type Decision struct {
	Action     model.Action              `json:"action"`
	Verdict    model.Verdict             `json:"verdict"`
	Escalation *model.EscalationDecision `json:"escalation,omitempty"`
}

// Gate orchestrates classification and abuse tracking.
type Gate struct {
	classifier *classify.Classifier
	tracker    *tracker.Tracker
	sink       events.Sink
	now        func() time.Time
}

// New wires a gate from its collaborators. A nil sink discards events.
func New(c *classify.Classifier, t *tracker.Tracker, sink events.Sink) *Gate {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Gate{
		classifier: c,
		tracker:    t,
		sink:       sink,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs the policy pipeline for one request.
//
// Non-bot traffic is never scored for commercial violation: commercial
// use detection applies to automated consumers only, so human-looking
// requests return allow without touching the tracker.
func (g *Gate) Evaluate(facts model.RequestFacts) Decision {
	now := facts.ReceivedAt
	if now.IsZero() {
		now = g.now()
	}

	verdict := g.classifier.Classify(facts)
	g.sink.Emit(events.Event{
		Time:     now,
		Category: events.CategoryClassify,
		SourceID: facts.SourceID,
		Fields: map[string]any{
			"bot_score":        verdict.BotScore,
			"human_score":      verdict.HumanScore,
			"commercial_score": verdict.CommercialScore,
			"is_bot":           verdict.IsBot,
			"allowlisted":      verdict.Allowlisted,
		},
	})

	if !verdict.IsBot {
		return Decision{Action: model.Allow, Verdict: verdict}
	}

	esc := g.tracker.Fold(facts.SourceID, verdict, now)
	g.sink.Emit(events.Event{
		Time:     now,
		Category: events.CategoryFold,
		SourceID: facts.SourceID,
		Fields: map[string]any{
			"escalation":    string(esc.Escalation),
			"score":         esc.Score,
			"request_count": esc.RequestCount,
		},
	})

	return Decision{
		Action:     model.ActionForEscalation(esc.Escalation),
		Verdict:    verdict,
		Escalation: &esc,
	}
}

// Package classify labels inbound traffic as automated or human and
// scores it for commercial intent against a static rule table. It is a
// pure function of the request and the table: no state, no I/O.
package classify

import (
	"github.com/openpantry/gatekeeper/internal/model"
	"github.com/openpantry/gatekeeper/internal/rules"
)

// Classifier applies a rule table to single requests.
type Classifier struct {
	cfg *rules.Config
}

// New creates a classifier over the given rule table. A nil config
// falls back to the built-in defaults.
func New(cfg *rules.Config) *Classifier {
	if cfg == nil {
		cfg = rules.DefaultConfig()
	}
	return &Classifier{cfg: cfg}
}

// Classify evaluates one request.
//
// Evaluation order (must not be changed):
//  1. Allowlist check — known-good agents short-circuit to non-bot,
//     commercial score zero, regardless of any other signal.
//  2. Generic rule pass — bot, human, and commercial indicator sets are
//     summed independently; matched labels are collected in rule order.
//  3. Derivation — bot classification is a ratio of opposing evidence,
//     commercial flags are plain threshold comparisons.
//
// Malformed or missing fields contribute no score; Classify never fails.
func (c *Classifier) Classify(facts model.RequestFacts) model.Verdict {
	if c.cfg.Allowlisted(facts.UserAgent()) {
		return model.Verdict{Allowlisted: true}
	}

	botScore, botMatched := rules.EvaluateSet(c.cfg.Bot, facts)
	humanScore, _ := rules.EvaluateSet(c.cfg.Human, facts)
	commercialScore, commercialMatched := rules.EvaluateSet(c.cfg.Commercial, facts)

	matched := make([]string, 0, len(botMatched)+len(commercialMatched))
	matched = append(matched, botMatched...)
	matched = append(matched, commercialMatched...)

	total := botScore + humanScore
	if total < 1 {
		total = 1
	}

	v := model.Verdict{
		BotScore:        botScore,
		HumanScore:      humanScore,
		CommercialScore: commercialScore,
		IsBot:           float64(botScore)/float64(total) > c.cfg.BotRatio,
		Suspicious:      commercialScore >= c.cfg.Thresholds.Warn,
		ViolatesPolicy:  commercialScore >= c.cfg.Thresholds.Block,
	}
	if len(matched) > 0 {
		v.MatchedIndicators = matched
	}
	return v
}

package gatekeeper

import (
	"fmt"
	"strings"

	"github.com/openpantry/gatekeeper/internal/gate"
	"github.com/openpantry/gatekeeper/internal/model"
)

// Decision is the enforcement outcome for one inbound request.
type Decision string

const (
	Allow          Decision = Decision(model.Allow)
	WarnAndMonitor Decision = Decision(model.WarnAndMonitor)
	Block          Decision = Decision(model.Block)
)

// Request describes one inbound request for evaluation. Header and
// query keys may use any casing; they are normalized before matching.
type Request struct {
	Method   string
	Path     string
	Headers  map[string]string
	Query    map[string]string
	Body     string
	SourceID string
}

// Result is the gate's answer for one request.
type Result struct {
	Decision          Decision
	IsBot             bool
	Allowlisted       bool
	BotScore          int
	HumanScore        int
	CommercialScore   int
	MatchedIndicators []string
	Escalation        string  // source standing after this request, "" for non-bot traffic
	SourceScore       float64 // cumulative decayed score, 0 for non-bot traffic
}

// Allowed returns true if the decision permits the request.
func (r Result) Allowed() bool {
	return r.Decision != Block
}

// BlockedError is returned by Wrap when the gate blocks a request.
type BlockedError struct {
	Request  Request
	Decision Decision
	Result   Result
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("gatekeeper blocked (%s): source %s escalated to %s",
		e.Decision, e.Request.SourceID, e.Result.Escalation)
}

// toFacts maps an SDK Request to internal request facts.
func toFacts(r Request) model.RequestFacts {
	return model.RequestFacts{
		Method:   r.Method,
		Path:     r.Path,
		Headers:  lowerKeys(r.Headers),
		Query:    lowerKeys(r.Query),
		Body:     r.Body,
		SourceID: r.SourceID,
	}
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

// toResult maps an internal gate decision to an SDK Result.
func toResult(d gate.Decision) Result {
	res := Result{
		Decision:          Decision(d.Action),
		IsBot:             d.Verdict.IsBot,
		Allowlisted:       d.Verdict.Allowlisted,
		BotScore:          d.Verdict.BotScore,
		HumanScore:        d.Verdict.HumanScore,
		CommercialScore:   d.Verdict.CommercialScore,
		MatchedIndicators: d.Verdict.MatchedIndicators,
	}
	if d.Escalation != nil {
		res.Escalation = string(d.Escalation.Escalation)
		res.SourceScore = d.Escalation.Score
	}
	return res
}

package model

import "time"

// Escalation is the cumulative standing of a traffic source.
type Escalation string

const (
	Clean     Escalation = "clean"
	Monitored Escalation = "monitored"
	Blocked   Escalation = "blocked"
)

// EscalationRank maps escalation levels to comparable integers for
// monotonic comparison.
var EscalationRank = map[Escalation]int{
	Clean:     0,
	Monitored: 1,
	Blocked:   2,
}

// MaxEscalation returns the higher of two escalation levels.
func MaxEscalation(a, b Escalation) Escalation {
	if EscalationRank[b] > EscalationRank[a] {
		return b
	}
	return a
}

// Action is the policy enforcement outcome for one inbound request.
type Action string

const (
	Allow          Action = "allow"
	WarnAndMonitor Action = "warn_and_monitor"
	Block          Action = "block"
)

// ActionForEscalation maps a source's standing to the enforcement action.
func ActionForEscalation(e Escalation) Action {
	switch e {
	case Blocked:
		return Block
	case Monitored:
		return WarnAndMonitor
	default:
		return Allow
	}
}

// RequestFacts is the flattened view of an inbound request that the
// classifier reasons about. The HTTP layer owns extraction; header and
// query keys are stored lowercased. Every field may be empty and an
// empty field simply contributes no signal.
type RequestFacts struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Query      map[string]string `json:"query"`
	Body       string            `json:"body"`
	SourceID   string            `json:"source_id"`
	ReceivedAt time.Time         `json:"received_at"`
}

// Header returns the named header (lowercase key), or "".
func (rf RequestFacts) Header(name string) string {
	if rf.Headers == nil {
		return ""
	}
	return rf.Headers[name]
}

// UserAgent returns the user-agent header, if any.
func (rf RequestFacts) UserAgent() string {
	return rf.Header("user-agent")
}

// Referer returns the referer header, if any.
func (rf RequestFacts) Referer() string {
	return rf.Header("referer")
}

// Verdict is the classification result for one request. It is created
// fresh per request and never mutated afterwards.
type Verdict struct {
	BotScore          int      `json:"bot_score"`
	HumanScore        int      `json:"human_score"`
	CommercialScore   int      `json:"commercial_score"`
	IsBot             bool     `json:"is_bot"`
	Allowlisted       bool     `json:"allowlisted"`
	Suspicious        bool     `json:"suspicious_commercial"`
	ViolatesPolicy    bool     `json:"violates_policy"`
	MatchedIndicators []string `json:"matched_indicators,omitempty"`
}

// EscalationDecision is the tracker's answer for one fold: the source's
// standing after the verdict was applied, plus the evidence behind it.
type EscalationDecision struct {
	SourceID     string     `json:"source_id"`
	Escalation   Escalation `json:"escalation"`
	Score        float64    `json:"score"`
	RequestCount int        `json:"request_count"`
	Reasons      []string   `json:"reasons,omitempty"`
}

// WorkItemStatus is the lifecycle state of a submitted work item.
// Transitions are queued→dispatched or queued→rejected, exactly once.
type WorkItemStatus string

const (
	StatusQueued     WorkItemStatus = "queued"
	StatusDispatched WorkItemStatus = "dispatched"
	StatusRejected   WorkItemStatus = "rejected"
)

// WorkItem is one submitted unit of work competing for allocation
// capacity. Priority is computed once at submission and never re-derived.
type WorkItem struct {
	ID           string             `json:"id"`
	SubmitterID  string             `json:"submitter_id"`
	SubmittedAt  time.Time          `json:"submitted_at"`
	Attributes   map[string]float64 `json:"attributes"`
	Priority     float64            `json:"priority"`
	Status       WorkItemStatus     `json:"status"`
	RejectReason string             `json:"reject_reason,omitempty"`
}

// Clone returns a copy of the work item safe to hand outside the
// allocator's lock.
func (w *WorkItem) Clone() *WorkItem {
	cp := *w
	cp.Attributes = make(map[string]float64, len(w.Attributes))
	for k, v := range w.Attributes {
		cp.Attributes[k] = v
	}
	return &cp
}

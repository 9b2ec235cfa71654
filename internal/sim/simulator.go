// Package sim exercises the policy pipeline without live traffic: it
// generates synthetic request streams from bot profiles, or replays a
// recorded request log against a candidate rule table and reports
// decision diffs before the rules are deployed.
package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/openpantry/gatekeeper/internal/classify"
	"github.com/openpantry/gatekeeper/internal/gate"
	"github.com/openpantry/gatekeeper/internal/model"
	"github.com/openpantry/gatekeeper/internal/rules"
	"github.com/openpantry/gatekeeper/internal/tracker"
)

// Profile is one synthetic traffic source: a fixed request shape
// replayed Count times at Interval spacing.
type Profile struct {
	Name      string            `json:"name"`
	UserAgent string            `json:"user_agent"`
	Headers   map[string]string `json:"headers,omitempty"`
	Path      string            `json:"path,omitempty"`
	Body      string            `json:"body,omitempty"`
	SourceID  string            `json:"source_id"`
	Count     int               `json:"count"`
	Interval  time.Duration     `json:"interval"`
}

// DefaultProfiles returns the built-in traffic mix: a browser user, a
// plain scripted client, a commercial scraper, and an allowlisted
// crawler.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name:      "browser",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			Headers:   map[string]string{"accept-language": "en-US,en;q=0.9"},
			SourceID:  "192.0.2.10",
			Count:     5,
			Interval:  time.Second,
		},
		{
			Name:      "scripted-clean",
			UserAgent: "curl/8.4.0",
			SourceID:  "198.51.100.7",
			Count:     5,
			Interval:  time.Second,
		},
		{
			Name:      "commercial-scraper",
			UserAgent: "curl/7.0",
			Headers:   map[string]string{"x-purpose": "reselling"},
			SourceID:  "203.0.113.9",
			Count:     5,
			Interval:  time.Second,
		},
		{
			Name:      "allowlisted-crawler",
			UserAgent: "Googlebot/2.1 (+http://www.google.com/bot.html)",
			SourceID:  "66.249.66.1",
			Count:     5,
			Interval:  time.Second,
		},
	}
}

// ProfileResult tallies the actions one profile received.
type ProfileResult struct {
	Name            string           `json:"name"`
	Requests        int              `json:"requests"`
	Allowed         int              `json:"allowed"`
	Warned          int              `json:"warned"`
	Blocked         int              `json:"blocked"`
	FinalEscalation model.Escalation `json:"final_escalation"`
}

// RunResult holds a full synthetic run.
type RunResult struct {
	RulesPath string          `json:"rules_path,omitempty"`
	Profiles  []ProfileResult `json:"profiles"`
}

// Run drives the given profiles through a fresh gate built from the
// rule table at rulesPath (defaults when empty). The run is
// deterministic: requests are timestamped from a fixed epoch.
func Run(rulesPath string, profiles []Profile) (*RunResult, error) {
	cfg, err := rules.Load(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}

	tr := tracker.New(cfg)
	g := gate.New(classify.New(cfg), tr, nil)
	epoch := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	result := &RunResult{RulesPath: rulesPath}
	for _, p := range profiles {
		pr := ProfileResult{Name: p.Name, FinalEscalation: model.Clean}
		at := epoch
		for i := 0; i < p.Count; i++ {
			dec := g.Evaluate(factsFor(p, at))
			pr.Requests++
			switch dec.Action {
			case model.Block:
				pr.Blocked++
			case model.WarnAndMonitor:
				pr.Warned++
			default:
				pr.Allowed++
			}
			if dec.Escalation != nil {
				pr.FinalEscalation = dec.Escalation.Escalation
			}
			at = at.Add(p.Interval)
		}
		result.Profiles = append(result.Profiles, pr)
	}
	return result, nil
}

func factsFor(p Profile, at time.Time) model.RequestFacts {
	headers := map[string]string{"user-agent": p.UserAgent}
	for k, v := range p.Headers {
		headers[k] = v
	}
	path := p.Path
	if path == "" {
		path = "/"
	}
	return model.RequestFacts{
		Method:     "GET",
		Path:       path,
		Headers:    headers,
		Body:       p.Body,
		SourceID:   p.SourceID,
		ReceivedAt: at,
	}
}

// LogLine is one recorded request with the action it received.
type LogLine struct {
	Facts  model.RequestFacts `json:"facts"`
	Action model.Action       `json:"action"`
}

// DiffEntry represents one request where the decision changed under
// the candidate rules.
type DiffEntry struct {
	Line      int          `json:"line"`
	SourceID  string       `json:"source_id"`
	UserAgent string       `json:"user_agent"`
	OldAction model.Action `json:"old_action"`
	NewAction model.Action `json:"new_action"`
}

// ReplayResult holds the complete replay output.
type ReplayResult struct {
	RulesPath     string      `json:"rules_path"`
	TotalRequests int         `json:"total_requests"`
	Changed       int         `json:"changed"`
	NewlyBlocked  int         `json:"newly_blocked"`
	NewlyAllowed  int         `json:"newly_allowed"`
	Changes       []DiffEntry `json:"changes"`
}

// Replay re-evaluates a recorded request log (JSONL of LogLine) against
// the candidate rule table and reports every decision change. Tracker
// state accumulates in log order, matching a live run.
func Replay(logPath, rulesPath string) (*ReplayResult, error) {
	cfg, err := rules.Load(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	f, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("open request log: %w", err)
	}
	defer f.Close()

	g := gate.New(classify.New(cfg), tracker.New(cfg), nil)
	result := &ReplayResult{RulesPath: rulesPath}

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var line LogLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("request log line %d: %w", lineNum, err)
		}
		result.TotalRequests++

		dec := g.Evaluate(line.Facts)
		if dec.Action == line.Action {
			continue
		}
		result.Changed++
		if dec.Action == model.Block && line.Action != model.Block {
			result.NewlyBlocked++
		}
		if dec.Action == model.Allow && line.Action != model.Allow {
			result.NewlyAllowed++
		}
		result.Changes = append(result.Changes, DiffEntry{
			Line:      lineNum,
			SourceID:  line.Facts.SourceID,
			UserAgent: line.Facts.UserAgent(),
			OldAction: line.Action,
			NewAction: dec.Action,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan request log: %w", err)
	}
	return result, nil
}

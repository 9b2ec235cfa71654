package scenario

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openpantry/gatekeeper/internal/classify"
	"github.com/openpantry/gatekeeper/internal/events"
	"github.com/openpantry/gatekeeper/internal/gate"
	"github.com/openpantry/gatekeeper/internal/model"
	"github.com/openpantry/gatekeeper/internal/rules"
	"github.com/openpantry/gatekeeper/internal/tracker"
)

// Fixed epoch so decay never bleeds into assertions.
var caseEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Run evaluates all cases in a scenario against the given rule table.
// Each case gets a fresh gate and tracker (cases are independent).
func Run(s *Scenario, cfg *rules.Config) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		g := gate.New(classify.New(cfg), tracker.New(cfg), events.NopSink{})

		repeat := c.Repeat
		if repeat < 1 {
			repeat = 1
		}
		facts := factsFor(c.Request, i)

		var last gate.Decision
		for n := 0; n < repeat; n++ {
			facts.ReceivedAt = caseEpoch.Add(time.Duration(n) * time.Second)
			last = g.Evaluate(facts)
		}

		actual := string(last.Action)
		expected := strings.ToLower(strings.TrimSpace(c.Expect))

		cr := CaseResult{
			Index:      i + 1,
			UserAgent:  c.Request.UserAgent,
			Source:     facts.SourceID,
			Expected:   expected,
			Actual:     actual,
			Indicators: last.Verdict.MatchedIndicators,
		}

		if actual == expected {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}

		result.Cases = append(result.Cases, cr)
	}

	return result
}

func factsFor(r Request, index int) model.RequestFacts {
	headers := map[string]string{}
	for name, value := range r.Headers {
		headers[strings.ToLower(name)] = value
	}
	if r.UserAgent != "" {
		headers["user-agent"] = r.UserAgent
	}

	source := r.Source
	if source == "" {
		source = fmt.Sprintf("case-%d", index+1)
	}

	path := r.Path
	if path == "" {
		path = "/"
	}

	return model.RequestFacts{
		Method:   "GET",
		Path:     path,
		Headers:  headers,
		Body:     r.Body,
		SourceID: source,
	}
}

// LoadAndRun loads a scenario YAML file and the rule table, and runs.
func LoadAndRun(path, rulesPath string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	cfg, err := rules.Load(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	result := Run(&s, cfg)
	result.File = path

	return result, nil
}

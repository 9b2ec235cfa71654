package model

import "testing"

func TestMaxEscalationKeepsHigher(t *testing.T) {
	if got := MaxEscalation(Monitored, Clean); got != Monitored {
		t.Errorf("expected monitored, got %s", got)
	}
	if got := MaxEscalation(Clean, Blocked); got != Blocked {
		t.Errorf("expected blocked, got %s", got)
	}
	if got := MaxEscalation(Blocked, Monitored); got != Blocked {
		t.Errorf("expected blocked, got %s", got)
	}
}

func TestActionForEscalation(t *testing.T) {
	cases := []struct {
		esc  Escalation
		want Action
	}{
		{Clean, Allow},
		{Monitored, WarnAndMonitor},
		{Blocked, Block},
		{Escalation("bogus"), Allow},
	}
	for _, c := range cases {
		if got := ActionForEscalation(c.esc); got != c.want {
			t.Errorf("escalation %q: expected %s, got %s", c.esc, c.want, got)
		}
	}
}

func TestRequestFactsNilMaps(t *testing.T) {
	var rf RequestFacts
	if rf.Header("user-agent") != "" {
		t.Error("expected empty header on nil map")
	}
	if rf.UserAgent() != "" || rf.Referer() != "" {
		t.Error("expected empty helpers on nil map")
	}
}

func TestWorkItemClone(t *testing.T) {
	item := &WorkItem{
		ID:         "w-1",
		Attributes: map[string]float64{"publicBenefit": 0.5},
	}
	cp := item.Clone()
	cp.Attributes["publicBenefit"] = 0.9
	if item.Attributes["publicBenefit"] != 0.5 {
		t.Error("clone must not share the attributes map")
	}
}

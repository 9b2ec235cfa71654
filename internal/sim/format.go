package sim

import (
	"fmt"
	"strings"
)

// FormatRun renders a synthetic run as human-readable text.
func FormatRun(r *RunResult) string {
	var b strings.Builder
	rules := r.RulesPath
	if rules == "" {
		rules = "built-in defaults"
	}
	fmt.Fprintf(&b, "Simulated traffic against %s\n\n", rules)
	fmt.Fprintf(&b, "%-22s %8s %8s %8s %8s  %s\n", "PROFILE", "REQS", "ALLOW", "WARN", "BLOCK", "ESCALATION")
	for _, p := range r.Profiles {
		fmt.Fprintf(&b, "%-22s %8d %8d %8d %8d  %s\n",
			p.Name, p.Requests, p.Allowed, p.Warned, p.Blocked, p.FinalEscalation)
	}
	return b.String()
}

// FormatReplay renders a replay diff as human-readable text.
func FormatReplay(r *ReplayResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Replayed %d recorded requests against %s\n", r.TotalRequests, orDefault(r.RulesPath))

	if r.Changed == 0 {
		b.WriteString("\nNo decision changes.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "\n%d decisions changed (%d newly blocked, %d newly allowed):\n\n",
		r.Changed, r.NewlyBlocked, r.NewlyAllowed)
	for _, c := range r.Changes {
		fmt.Fprintf(&b, "  line %-5d %-18s %s -> %s  (%s)\n",
			c.Line, c.SourceID, c.OldAction, c.NewAction, c.UserAgent)
	}
	return b.String()
}

func orDefault(path string) string {
	if path == "" {
		return "built-in defaults"
	}
	return path
}

package rules

import (
	"sort"
	"strings"

	"github.com/openpantry/gatekeeper/internal/model"
)

// Field names the request field an indicator rule is matched against.
type Field string

const (
	FieldUserAgent Field = "user_agent"
	FieldReferer   Field = "referer"
	FieldHeader    Field = "header"
	FieldBody      Field = "body"
	FieldPath      Field = "path"
)

// Rule is one weighted indicator: a case-insensitive substring pattern
// tested against a single request field. Rules are immutable after load.
type Rule struct {
	Label   string `yaml:"label"`
	Pattern string `yaml:"pattern"`
	Field   Field  `yaml:"field"`
	Weight  int    `yaml:"weight"`
}

// Matches reports whether the rule's pattern occurs within its field.
// Empty patterns and unknown fields never match.
func (r Rule) Matches(facts model.RequestFacts) bool {
	if r.Pattern == "" {
		return false
	}
	text := fieldText(r.Field, facts)
	if text == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(r.Pattern))
}

// fieldText extracts the text a rule field refers to. Header rules see
// all headers flattened to "name: value" lines so a pattern can match
// either a header name or its value.
func fieldText(f Field, facts model.RequestFacts) string {
	switch f {
	case FieldUserAgent:
		return facts.UserAgent()
	case FieldReferer:
		return facts.Referer()
	case FieldHeader:
		return flattenHeaders(facts.Headers)
	case FieldBody:
		return facts.Body
	case FieldPath:
		return facts.Path
	default:
		return ""
	}
}

func flattenHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(headers[name])
		b.WriteByte('\n')
	}
	return b.String()
}

// EvaluateSet runs every rule in the set against the request and returns
// the summed weight plus the labels of matched rules in rule order.
func EvaluateSet(set []Rule, facts model.RequestFacts) (score int, matched []string) {
	for _, r := range set {
		if r.Matches(facts) {
			score += r.Weight
			matched = append(matched, r.Label)
		}
	}
	return score, matched
}

// Allowlisted reports whether the user-agent belongs to a declared
// known-good automated agent. Entries match case-insensitively: a
// trailing "*" makes the entry a prefix match, otherwise exact.
func (c *Config) Allowlisted(userAgent string) bool {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return false
	}
	for _, entry := range c.Allowlist {
		e := strings.ToLower(strings.TrimSpace(entry))
		if e == "" {
			continue
		}
		if strings.HasSuffix(e, "*") {
			if strings.HasPrefix(ua, strings.TrimSuffix(e, "*")) {
				return true
			}
			continue
		}
		if ua == e {
			return true
		}
	}
	return false
}

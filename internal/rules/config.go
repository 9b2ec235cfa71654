package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Thresholds defines cumulative commercial score boundaries for source
// escalation. Warn must be below Block.
type Thresholds struct {
	Warn  int `yaml:"warn"`
	Block int `yaml:"block"`
}

// Config holds the full classification and tracking rule table. It is
// plain data loaded once at startup; the core never reads files itself
// beyond this loader.
type Config struct {
	// BotRatio is the bot-evidence share above which a request is
	// classified automated: bot / max(bot+human, 1) > BotRatio.
	BotRatio float64 `yaml:"bot_ratio"`

	Thresholds Thresholds `yaml:"thresholds"`

	// DecayPerHour is the multiplicative factor applied to a source's
	// cumulative commercial score per hour of inactivity.
	DecayPerHour float64 `yaml:"decay_per_hour"`

	// IdleTTLHours controls eviction of stale source records.
	IdleTTLHours float64 `yaml:"idle_ttl_hours"`

	// Allowlist holds known-good automated agents by user-agent,
	// exact or prefix (trailing "*") match.
	Allowlist []string `yaml:"allowlist"`

	Bot        []Rule `yaml:"bot_indicators"`
	Human      []Rule `yaml:"human_indicators"`
	Commercial []Rule `yaml:"commercial_indicators"`
}

// IdleTTL returns the idle TTL as a duration.
func (c *Config) IdleTTL() time.Duration {
	return time.Duration(c.IdleTTLHours * float64(time.Hour))
}

// DefaultConfig returns the built-in rule table with thresholds carried
// from observed source behavior (warn 4, block 6, ratio 0.6, 0.98/hour).
func DefaultConfig() *Config {
	return &Config{
		BotRatio:     0.6,
		Thresholds:   Thresholds{Warn: 4, Block: 6},
		DecayPerHour: 0.98,
		IdleTTLHours: 24,
		Allowlist: []string{
			"googlebot*",
			"bingbot*",
			"duckduckbot*",
			"ia_archiver*",
		},
		Bot: []Rule{
			{Label: "ua-curl", Pattern: "curl", Field: FieldUserAgent, Weight: 3},
			{Label: "ua-wget", Pattern: "wget", Field: FieldUserAgent, Weight: 3},
			{Label: "ua-python", Pattern: "python-requests", Field: FieldUserAgent, Weight: 3},
			{Label: "ua-go-http", Pattern: "go-http-client", Field: FieldUserAgent, Weight: 3},
			{Label: "ua-scrapy", Pattern: "scrapy", Field: FieldUserAgent, Weight: 4},
			{Label: "ua-headless", Pattern: "headless", Field: FieldUserAgent, Weight: 3},
			{Label: "ua-bot-token", Pattern: "bot", Field: FieldUserAgent, Weight: 2},
			{Label: "ua-spider", Pattern: "spider", Field: FieldUserAgent, Weight: 2},
			{Label: "ua-crawler", Pattern: "crawl", Field: FieldUserAgent, Weight: 2},
			{Label: "empty-ua-probe", Pattern: "/wp-", Field: FieldPath, Weight: 1},
		},
		Human: []Rule{
			{Label: "ua-mozilla", Pattern: "mozilla", Field: FieldUserAgent, Weight: 2},
			{Label: "ua-chrome", Pattern: "chrome", Field: FieldUserAgent, Weight: 1},
			{Label: "ua-firefox", Pattern: "firefox", Field: FieldUserAgent, Weight: 1},
			{Label: "ua-safari", Pattern: "safari", Field: FieldUserAgent, Weight: 1},
			{Label: "accept-language", Pattern: "accept-language", Field: FieldHeader, Weight: 2},
			{Label: "sec-fetch", Pattern: "sec-fetch-", Field: FieldHeader, Weight: 2},
			{Label: "cookie-present", Pattern: "cookie:", Field: FieldHeader, Weight: 1},
		},
		Commercial: []Rule{
			{Label: "kw-resell", Pattern: "resell", Field: FieldHeader, Weight: 2},
			{Label: "kw-marketing", Pattern: "marketing", Field: FieldHeader, Weight: 2},
			{Label: "kw-advertising", Pattern: "advertis", Field: FieldHeader, Weight: 2},
			{Label: "kw-monetize", Pattern: "monetiz", Field: FieldHeader, Weight: 2},
			{Label: "kw-revenue", Pattern: "revenue", Field: FieldHeader, Weight: 2},
			{Label: "kw-sales", Pattern: "sales", Field: FieldHeader, Weight: 2},
			{Label: "body-profit", Pattern: "profit", Field: FieldBody, Weight: 2},
			{Label: "body-commercial", Pattern: "commercial", Field: FieldBody, Weight: 2},
			{Label: "body-affiliate", Pattern: "affiliate", Field: FieldBody, Weight: 2},
			{Label: "ref-shop", Pattern: "shop", Field: FieldReferer, Weight: 1},
			{Label: "path-export", Pattern: "/export", Field: FieldPath, Weight: 1},
		},
	}
}

// Load loads the rule table from a YAML file. Empty path or a missing
// file returns defaults; invalid YAML returns an error. YAML overrides
// only the fields it specifies, on top of defaults.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads the rule table and returns the SHA-256 hash of the
// raw YAML bytes for provenance. When defaults are used the hash is the
// SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		h := sha256.Sum256(nil)
		return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("failed to read rules config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse rules config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return cfg, hash, nil
}

// Validate rejects configurations that would make escalation undecidable.
func (c *Config) Validate() error {
	if c.Thresholds.Warn <= 0 || c.Thresholds.Block <= 0 {
		return fmt.Errorf("thresholds must be positive (warn=%d block=%d)", c.Thresholds.Warn, c.Thresholds.Block)
	}
	if c.Thresholds.Warn >= c.Thresholds.Block {
		return fmt.Errorf("warn threshold %d must be below block threshold %d", c.Thresholds.Warn, c.Thresholds.Block)
	}
	if c.BotRatio <= 0 || c.BotRatio >= 1 {
		return fmt.Errorf("bot_ratio %v must be in (0,1)", c.BotRatio)
	}
	if c.DecayPerHour <= 0 || c.DecayPerHour > 1 {
		return fmt.Errorf("decay_per_hour %v must be in (0,1]", c.DecayPerHour)
	}
	if c.IdleTTLHours <= 0 {
		return fmt.Errorf("idle_ttl_hours %v must be positive", c.IdleTTLHours)
	}
	return nil
}

// DefaultConfigYAML returns a commented YAML template for init-rules.
func DefaultConfigYAML() string {
	return `# gatekeeper rule table
# Generated by: gatekeeper init-rules
#
# Classification is a ratio of opposing weighted evidence:
#   is_bot = bot_score / max(bot_score + human_score, 1) > bot_ratio
# Commercial scoring accumulates per source with hourly decay:
#   score >= thresholds.warn  -> monitored (warn_and_monitor)
#   score >= thresholds.block -> blocked

bot_ratio: 0.6

thresholds:
  warn: 4
  block: 6

# Multiplicative score decay per hour of inactivity, applied lazily.
decay_per_hour: 0.98

# Source records idle longer than this are evicted by the sweep.
idle_ttl_hours: 24

# Known-good automated agents by user-agent. Trailing "*" = prefix match.
# Allowlisted agents always classify as non-bot with commercial score 0.
allowlist:
  - "googlebot*"
  - "bingbot*"
  - "duckduckbot*"
  - "ia_archiver*"

# Indicator rules: case-insensitive substring match against one field.
# Fields: user_agent | referer | header | body | path
bot_indicators:
  - { label: ua-curl, pattern: curl, field: user_agent, weight: 3 }
  - { label: ua-wget, pattern: wget, field: user_agent, weight: 3 }
  - { label: ua-python, pattern: python-requests, field: user_agent, weight: 3 }
  - { label: ua-go-http, pattern: go-http-client, field: user_agent, weight: 3 }
  - { label: ua-scrapy, pattern: scrapy, field: user_agent, weight: 4 }
  - { label: ua-headless, pattern: headless, field: user_agent, weight: 3 }
  - { label: ua-bot-token, pattern: bot, field: user_agent, weight: 2 }
  - { label: ua-spider, pattern: spider, field: user_agent, weight: 2 }
  - { label: ua-crawler, pattern: crawl, field: user_agent, weight: 2 }
  - { label: empty-ua-probe, pattern: /wp-, field: path, weight: 1 }

human_indicators:
  - { label: ua-mozilla, pattern: mozilla, field: user_agent, weight: 2 }
  - { label: ua-chrome, pattern: chrome, field: user_agent, weight: 1 }
  - { label: ua-firefox, pattern: firefox, field: user_agent, weight: 1 }
  - { label: ua-safari, pattern: safari, field: user_agent, weight: 1 }
  - { label: accept-language, pattern: accept-language, field: header, weight: 2 }
  - { label: sec-fetch, pattern: sec-fetch-, field: header, weight: 2 }
  - { label: cookie-present, pattern: "cookie:", field: header, weight: 1 }

commercial_indicators:
  - { label: kw-resell, pattern: resell, field: header, weight: 2 }
  - { label: kw-marketing, pattern: marketing, field: header, weight: 2 }
  - { label: kw-advertising, pattern: advertis, field: header, weight: 2 }
  - { label: kw-monetize, pattern: monetiz, field: header, weight: 2 }
  - { label: kw-revenue, pattern: revenue, field: header, weight: 2 }
  - { label: kw-sales, pattern: sales, field: header, weight: 2 }
  - { label: body-profit, pattern: profit, field: body, weight: 2 }
  - { label: body-commercial, pattern: commercial, field: body, weight: 2 }
  - { label: body-affiliate, pattern: affiliate, field: body, weight: 2 }
  - { label: ref-shop, pattern: shop, field: referer, weight: 1 }
  - { label: path-export, pattern: /export, field: path, weight: 1 }
`
}

package allocator

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Factor is one named priority component. Required factors must be
// supplied at submission; optional factors default to 0.
type Factor struct {
	Name     string  `yaml:"name"`
	Weight   float64 `yaml:"weight"`
	Required bool    `yaml:"required"`
}

// Config holds the factor-weight table and the default dispatch
// capacity. Weights must sum to 1.0.
type Config struct {
	Factors  []Factor `yaml:"factors"`
	Capacity int      `yaml:"capacity"`
}

// DefaultConfig returns the built-in factor-weight table.
func DefaultConfig() *Config {
	return &Config{
		Factors: []Factor{
			{Name: "publicBenefit", Weight: 0.4, Required: true},
			{Name: "verifiedStatus", Weight: 0.2, Required: true},
			{Name: "transparencyCommitment", Weight: 0.2, Required: true},
			{Name: "urgency", Weight: 0.1},
			{Name: "communityEndorsement", Weight: 0.1},
		},
		Capacity: 3,
	}
}

// LoadConfig loads the factor-weight table from a YAML file. Empty path
// or missing file returns defaults; invalid YAML or weights return an
// error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read weights config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse weights config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the factor table is usable: at least one factor,
// non-negative weights summing to 1.0, unique names, positive capacity.
func (c *Config) Validate() error {
	if len(c.Factors) == 0 {
		return fmt.Errorf("at least one priority factor is required")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity %d must be positive", c.Capacity)
	}
	seen := make(map[string]bool, len(c.Factors))
	sum := 0.0
	for _, f := range c.Factors {
		if f.Name == "" {
			return fmt.Errorf("factor with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate factor %q", f.Name)
		}
		seen[f.Name] = true
		if f.Weight < 0 {
			return fmt.Errorf("factor %q has negative weight %v", f.Name, f.Weight)
		}
		sum += f.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("factor weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// DefaultConfigYAML returns a commented YAML template for init-rules.
func DefaultConfigYAML() string {
	return `# gatekeeper allocation weights
# Generated by: gatekeeper init-rules
#
# priority = sum(weight * attribute) over the factors below.
# Weights must sum to 1.0. Required factors must be supplied on
# submission; optional factors default to 0. All values live in [0,1].

capacity: 3

factors:
  - { name: publicBenefit, weight: 0.4, required: true }
  - { name: verifiedStatus, weight: 0.2, required: true }
  - { name: transparencyCommitment, weight: 0.2, required: true }
  - { name: urgency, weight: 0.1 }
  - { name: communityEndorsement, weight: 0.1 }
`
}

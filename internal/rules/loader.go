package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const supportedSchemaVersion = 1

// FamilyRules configures evaluation for one control-panel row family.
// Overrides are keyed by item ID; an override fully replaces the family
// default rule set for that item.
type FamilyRules struct {
	Defaults  ColorRuleSet            `yaml:"defaults"`
	Popups    PopupSet                `yaml:"popups"`
	Overrides map[string]ColorRuleSet `yaml:"overrides,omitempty"`
}

// Config is the full threshold-rule configuration file.
type Config struct {
	SchemaVersion int                    `yaml:"schema_version"`
	Families      map[string]FamilyRules `yaml:"families"`
}

// Load reads and validates a rules configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rules config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rules config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.SchemaVersion != supportedSchemaVersion {
		problems = append(problems, fmt.Sprintf("unsupported schema_version: %d", c.SchemaVersion))
	}

	for family, fr := range c.Families {
		problems = append(problems, validateRuleSet(family+".defaults", fr.Defaults)...)
		for item, rs := range fr.Overrides {
			problems = append(problems, validateRuleSet(family+".overrides."+item, rs)...)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func validateRuleSet(path string, rs ColorRuleSet) []string {
	var problems []string
	for _, tier := range []struct {
		name string
		cond ConditionConfig
	}{
		{"green", rs.Green},
		{"yellow", rs.Yellow},
		{"red", rs.Red},
	} {
		if !tier.cond.Enabled {
			continue
		}
		if !ValidOperator(tier.cond.Operator) {
			problems = append(problems, fmt.Sprintf("%s.%s: invalid operator %q", path, tier.name, tier.cond.Operator))
		}
		if tier.cond.Operator == OpBetween && tier.cond.ValueMax == nil {
			problems = append(problems, fmt.Sprintf("%s.%s: between requires value_max", path, tier.name))
		}
		if tier.cond.ValueMax != nil && *tier.cond.ValueMax < tier.cond.Value {
			problems = append(problems, fmt.Sprintf("%s.%s: value_max is below value", path, tier.name))
		}
	}
	return problems
}

// Source resolves the rule source for an item of the given family: the
// item's override when one exists, otherwise the family default. The second
// return is false when the family is not configured at all.
func (c *Config) Source(family, itemID string) (RuleSource, bool) {
	fr, ok := c.Families[family]
	if !ok {
		return RuleSource{}, false
	}
	if rs, ok := fr.Overrides[itemID]; ok {
		return ItemOverride(rs), true
	}
	return CategoryDefault(fr.Defaults), true
}

// Alerter returns the alerter for one family, or nil when the family has no
// configuration (rows of such a family keep their previous status untouched).
func (c *Config) Alerter(family string) *Alerter {
	fr, ok := c.Families[family]
	if !ok {
		return nil
	}
	return NewAlerter(fr.Popups)
}

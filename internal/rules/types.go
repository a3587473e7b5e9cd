// Package rules implements the three-tier threshold evaluation engine used by
// the control-panel rows: a monitored numeric value is checked against
// configurable green/yellow/red conditions, and a matching tier may surface a
// popup alert to the operator.
package rules

import "fmt"

// Level is the outcome of a rule evaluation for a monitored value.
type Level string

const (
	LevelGreen  Level = "green"
	LevelYellow Level = "yellow"
	LevelRed    Level = "red"
)

// precedence is fixed: green is checked first, then yellow, then red.
// First enabled, satisfied condition wins.
var precedence = [3]Level{LevelGreen, LevelYellow, LevelRed}

// Operator is a comparison applied between the monitored value and the
// configured threshold(s). Semantics are literal, no tolerance.
type Operator string

const (
	OpGreater        Operator = ">"
	OpLess           Operator = "<"
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpBetween        Operator = "between"
)

var validOperators = map[Operator]bool{
	OpGreater:        true,
	OpLess:           true,
	OpEqual:          true,
	OpNotEqual:       true,
	OpGreaterOrEqual: true,
	OpLessOrEqual:    true,
	OpBetween:        true,
}

// ValidOperator reports whether op is one of the supported comparisons.
func ValidOperator(op Operator) bool {
	return validOperators[op]
}

// ConditionConfig is a single threshold rule for one tier.
// ValueMax is only meaningful for OpBetween.
type ConditionConfig struct {
	Operator Operator `yaml:"operator"`
	Value    float64  `yaml:"value"`
	ValueMax *float64 `yaml:"value_max,omitempty"`
	Enabled  bool     `yaml:"enabled"`
}

// ColorRuleSet holds exactly one condition per tier.
type ColorRuleSet struct {
	Green  ConditionConfig `yaml:"green"`
	Yellow ConditionConfig `yaml:"yellow"`
	Red    ConditionConfig `yaml:"red"`
}

func (rs ColorRuleSet) tier(l Level) ConditionConfig {
	switch l {
	case LevelGreen:
		return rs.Green
	case LevelYellow:
		return rs.Yellow
	default:
		return rs.Red
	}
}

// PopupConfig describes the alert surfaced when a tier matches.
// MessageTemplate supports a single {value} placeholder that is replaced
// with the literal monitored value.
type PopupConfig struct {
	Title           string `yaml:"title"`
	MessageTemplate string `yaml:"message_template"`
	Enabled         bool   `yaml:"enabled"`
}

// PopupSet holds one popup configuration per tier.
type PopupSet struct {
	Green  PopupConfig `yaml:"green"`
	Yellow PopupConfig `yaml:"yellow"`
	Red    PopupConfig `yaml:"red"`
}

func (ps PopupSet) tier(l Level) PopupConfig {
	switch l {
	case LevelGreen:
		return ps.Green
	case LevelYellow:
		return ps.Yellow
	default:
		return ps.Red
	}
}

// RuleSource selects the rule set for one evaluation: either the item's own
// override or the category default. An override fully replaces the default,
// tiers are never merged between the two.
type RuleSource struct {
	override *ColorRuleSet
	fallback ColorRuleSet
}

// ItemOverride builds a RuleSource that evaluates against rs only.
func ItemOverride(rs ColorRuleSet) RuleSource {
	return RuleSource{override: &rs}
}

// CategoryDefault builds a RuleSource that evaluates against the category
// default rule set.
func CategoryDefault(rs ColorRuleSet) RuleSource {
	return RuleSource{fallback: rs}
}

// Resolve returns the effective rule set for this source.
func (s RuleSource) Resolve() ColorRuleSet {
	if s.override != nil {
		return *s.override
	}
	return s.fallback
}

// Alert is the one-shot popup payload produced alongside a tier match.
// It is a notification to the operator, never persisted with the draft.
type Alert struct {
	Level   Level
	Title   string
	Message string
}

func (a Alert) String() string {
	return fmt.Sprintf("[%s] %s: %s", a.Level, a.Title, a.Message)
}

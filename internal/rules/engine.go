package rules

import (
	"strconv"
	"strings"
)

// ValuePlaceholder is the token in a popup message template that is replaced
// with the literal monitored value.
const ValuePlaceholder = "{value}"

// Evaluate checks value against the rule set in fixed tier precedence
// (green, then yellow, then red) and returns the first enabled, satisfied
// tier. The second return is false when no enabled condition matches.
//
// Precedence is deliberate: if both the green and red conditions are
// independently satisfiable by the same value, green wins.
func Evaluate(value float64, rs ColorRuleSet) (Level, bool) {
	for _, lvl := range precedence {
		c := rs.tier(lvl)
		if c.Enabled && satisfies(value, c) {
			return lvl, true
		}
	}
	return "", false
}

// EvaluatePtr is Evaluate for optional values. A nil value never evaluates:
// no tier, no alert, regardless of rule configuration.
func EvaluatePtr(value *float64, rs ColorRuleSet) (Level, bool) {
	if value == nil {
		return "", false
	}
	return Evaluate(*value, rs)
}

func satisfies(value float64, c ConditionConfig) bool {
	switch c.Operator {
	case OpGreater:
		return value > c.Value
	case OpLess:
		return value < c.Value
	case OpEqual:
		return value == c.Value
	case OpNotEqual:
		return value != c.Value
	case OpGreaterOrEqual:
		return value >= c.Value
	case OpLessOrEqual:
		return value <= c.Value
	case OpBetween:
		if c.ValueMax == nil {
			return false
		}
		return value >= c.Value && value <= *c.ValueMax
	default:
		return false
	}
}

// Alerter couples a rule set source with per-tier popup configuration.
type Alerter struct {
	popups PopupSet
}

// NewAlerter creates an Alerter for the given popup set.
func NewAlerter(popups PopupSet) *Alerter {
	return &Alerter{popups: popups}
}

// Evaluate resolves the rule source once, evaluates the value, and when the
// produced tier has an enabled popup, returns the rendered alert payload.
// The alert is nil when no tier matches or the tier's popup is disabled.
func (a *Alerter) Evaluate(value float64, src RuleSource) (Level, *Alert, bool) {
	lvl, ok := Evaluate(value, src.Resolve())
	if !ok {
		return "", nil, false
	}

	popup := a.popups.tier(lvl)
	if !popup.Enabled {
		return lvl, nil, true
	}

	return lvl, &Alert{
		Level:   lvl,
		Title:   popup.Title,
		Message: renderMessage(popup.MessageTemplate, value),
	}, true
}

func renderMessage(template string, value float64) string {
	rendered := strconv.FormatFloat(value, 'f', -1, 64)
	return strings.ReplaceAll(template, ValuePlaceholder, rendered)
}

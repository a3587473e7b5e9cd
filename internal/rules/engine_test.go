package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func threeTier() ColorRuleSet {
	return ColorRuleSet{
		Green:  ConditionConfig{Operator: OpGreater, Value: 80, Enabled: true},
		Yellow: ConditionConfig{Operator: OpBetween, Value: 50, ValueMax: floatPtr(80), Enabled: true},
		Red:    ConditionConfig{Operator: OpLess, Value: 50, Enabled: true},
	}
}

func TestEvaluate_TierPrecedence(t *testing.T) {
	rs := threeTier()

	lvl, ok := Evaluate(90, rs)
	require.True(t, ok)
	assert.Equal(t, LevelGreen, lvl)

	lvl, ok = Evaluate(65, rs)
	require.True(t, ok)
	assert.Equal(t, LevelYellow, lvl)

	lvl, ok = Evaluate(40, rs)
	require.True(t, ok)
	assert.Equal(t, LevelRed, lvl)
}

func TestEvaluate_GreenWinsWhenTiersOverlap(t *testing.T) {
	// Green and red both match 90; fixed precedence picks green.
	rs := ColorRuleSet{
		Green: ConditionConfig{Operator: OpGreater, Value: 80, Enabled: true},
		Red:   ConditionConfig{Operator: OpGreater, Value: 0, Enabled: true},
	}
	lvl, ok := Evaluate(90, rs)
	require.True(t, ok)
	assert.Equal(t, LevelGreen, lvl)
}

func TestEvaluate_DisabledTierSkipped(t *testing.T) {
	rs := threeTier()
	rs.Yellow.Enabled = false

	// 65 only matches yellow, which is disabled: falls through to no match
	// because red wants < 50.
	_, ok := Evaluate(65, rs)
	assert.False(t, ok)
}

func TestEvaluate_NoEnabledConditions(t *testing.T) {
	_, ok := Evaluate(10, ColorRuleSet{})
	assert.False(t, ok)
}

func TestEvaluate_BetweenBoundsInclusive(t *testing.T) {
	rs := ColorRuleSet{
		Yellow: ConditionConfig{Operator: OpBetween, Value: 50, ValueMax: floatPtr(80), Enabled: true},
	}

	for _, v := range []float64{50, 65, 80} {
		lvl, ok := Evaluate(v, rs)
		require.True(t, ok, "value %v", v)
		assert.Equal(t, LevelYellow, lvl)
	}
	for _, v := range []float64{49.999, 80.001} {
		_, ok := Evaluate(v, rs)
		assert.False(t, ok, "value %v", v)
	}
}

func TestEvaluate_BetweenWithoutMaxNeverMatches(t *testing.T) {
	rs := ColorRuleSet{
		Red: ConditionConfig{Operator: OpBetween, Value: 10, Enabled: true},
	}
	_, ok := Evaluate(15, rs)
	assert.False(t, ok)
}

func TestEvaluate_Operators(t *testing.T) {
	cases := []struct {
		op    Operator
		value float64
		want  bool
	}{
		{OpGreater, 11, true},
		{OpGreater, 10, false},
		{OpLess, 9, true},
		{OpLess, 10, false},
		{OpEqual, 10, true},
		{OpEqual, 10.5, false},
		{OpNotEqual, 10.5, true},
		{OpNotEqual, 10, false},
		{OpGreaterOrEqual, 10, true},
		{OpGreaterOrEqual, 9.9, false},
		{OpLessOrEqual, 10, true},
		{OpLessOrEqual, 10.1, false},
	}
	for _, tc := range cases {
		rs := ColorRuleSet{
			Red: ConditionConfig{Operator: tc.op, Value: 10, Enabled: true},
		}
		_, ok := Evaluate(tc.value, rs)
		assert.Equal(t, tc.want, ok, "%s %v", tc.op, tc.value)
	}
}

func TestEvaluatePtr_NilNeverEvaluates(t *testing.T) {
	_, ok := EvaluatePtr(nil, threeTier())
	assert.False(t, ok)

	lvl, ok := EvaluatePtr(floatPtr(90), threeTier())
	require.True(t, ok)
	assert.Equal(t, LevelGreen, lvl)
}

func TestAlerter_RendersPlaceholder(t *testing.T) {
	a := NewAlerter(PopupSet{
		Yellow: PopupConfig{
			Title:           "Attention",
			MessageTemplate: "Monitored value is {value} now",
			Enabled:         true,
		},
	})

	lvl, alert, ok := a.Evaluate(65, CategoryDefault(threeTier()))
	require.True(t, ok)
	assert.Equal(t, LevelYellow, lvl)
	require.NotNil(t, alert)
	assert.Equal(t, "Attention", alert.Title)
	assert.Equal(t, "Monitored value is 65 now", alert.Message)
}

func TestAlerter_DisabledPopupTierStillReported(t *testing.T) {
	a := NewAlerter(PopupSet{})

	lvl, alert, ok := a.Evaluate(40, CategoryDefault(threeTier()))
	require.True(t, ok)
	assert.Equal(t, LevelRed, lvl)
	assert.Nil(t, alert)
}

func TestRuleSource_OverrideReplacesDefault(t *testing.T) {
	// The default would classify 65 as yellow; the override has no yellow
	// tier at all, so the two must not merge.
	override := ColorRuleSet{
		Red: ConditionConfig{Operator: OpLess, Value: 100, Enabled: true},
	}

	lvl, ok := Evaluate(65, ItemOverride(override).Resolve())
	require.True(t, ok)
	assert.Equal(t, LevelRed, lvl)
}

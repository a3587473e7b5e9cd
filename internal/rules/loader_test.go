package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRules = `
schema_version: 1
families:
  critical_balance:
    defaults:
      green:
        operator: ">="
        value: 10
        enabled: true
      red:
        operator: "<"
        value: 3
        enabled: true
    popups:
      red:
        title: Critical balance
        message_template: "Stock down to {value}"
        enabled: true
    overrides:
      part-9:
        red:
          operator: "<"
          value: 20
          enabled: true
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeRules(t, validRules))
	require.NoError(t, err)

	src, ok := cfg.Source("critical_balance", "part-1")
	require.True(t, ok)
	lvl, matched := Evaluate(2, src.Resolve())
	require.True(t, matched)
	assert.Equal(t, LevelRed, lvl)
}

func TestLoad_OverrideSelectedByItemID(t *testing.T) {
	cfg, err := Load(writeRules(t, validRules))
	require.NoError(t, err)

	// part-9's override reds out below 20; the default would be green at 15.
	src, ok := cfg.Source("critical_balance", "part-9")
	require.True(t, ok)
	lvl, matched := Evaluate(15, src.Resolve())
	require.True(t, matched)
	assert.Equal(t, LevelRed, lvl)
}

func TestLoad_UnknownFamily(t *testing.T) {
	cfg, err := Load(writeRules(t, validRules))
	require.NoError(t, err)

	_, ok := cfg.Source("shelf_life", "x")
	assert.False(t, ok)
	assert.Nil(t, cfg.Alerter("shelf_life"))
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	bad := `
schema_version: 7
families:
  shelf_life:
    defaults:
      green:
        operator: "~"
        value: 1
        enabled: true
      yellow:
        operator: between
        value: 5
        enabled: true
      red:
        operator: between
        value: 10
        value_max: 2
        enabled: true
`
	_, err := Load(writeRules(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema_version: 7")
	assert.Contains(t, err.Error(), "invalid operator")
	assert.Contains(t, err.Error(), "between requires value_max")
	assert.Contains(t, err.Error(), "value_max is below value")
}

func TestValidate_DisabledTiersNotChecked(t *testing.T) {
	cfg := &Config{
		SchemaVersion: 1,
		Families: map[string]FamilyRules{
			"in_transit": {
				Defaults: ColorRuleSet{
					Red: ConditionConfig{Operator: "~", Enabled: false},
				},
			},
		},
	}
	assert.NoError(t, cfg.Validate())
}

package events

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRoutingConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.hcl")
	body := `
rule "schema-all" {
  pattern  = "*.schema.*"
  priority = 100
  targets  = ["MSG_BUS", "CLOUD_BUS"]
  strategy = "ALL"
}

rule "action-primary" {
  pattern  = "*.action.*"
  priority = 80
  targets  = ["MSG_BUS"]
  strategy = "PRIMARY_ONLY"
}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	rules, err := LoadRoutingConfig(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "schema-all", rules[0].Name)
	assert.Equal(t, StrategyAll, rules[0].Strategy)
	assert.Equal(t, []string{"MSG_BUS", "CLOUD_BUS"}, rules[0].Targets)
	assert.Equal(t, StrategyPrimaryOnly, rules[1].Strategy)
}

func TestLoadRoutingConfigRejectsUnknownStrategy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.hcl")
	body := `
rule "bad" {
  pattern  = "*"
  priority = 1
  targets  = ["MSG_BUS"]
  strategy = "BOGUS"
}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := LoadRoutingConfig(path)
	assert.Error(t, err)
}

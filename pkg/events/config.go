package events

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// RoutingConfig is the HCL shape operators use to override the §4.7
// default routing rules without a code change.
//
// Grounded on cmd/notifier/main.go's hclsimple.DecodeFile pattern: one
// top-level config struct, `hcl:"...,block"` repeated blocks for the
// list-valued pieces.
type RoutingConfig struct {
	Rule []RuleConfig `hcl:"rule,block"`
}

// RuleConfig is one `rule "name" { ... }` block.
type RuleConfig struct {
	Name     string   `hcl:",label"`
	Pattern  string   `hcl:"pattern"`
	Priority int      `hcl:"priority"`
	Targets  []string `hcl:"targets"`
	Strategy string   `hcl:"strategy"`
}

// LoadRoutingConfig reads a routing rule set from an HCL file. An
// empty/missing rule list is not an error: callers fall back to
// DefaultRules.
func LoadRoutingConfig(path string) ([]Rule, error) {
	var cfg RoutingConfig
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("events: loading routing config %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(cfg.Rule))
	for _, rc := range cfg.Rule {
		strategy, err := parseStrategy(rc.Strategy)
		if err != nil {
			return nil, fmt.Errorf("events: rule %q: %w", rc.Name, err)
		}
		rules = append(rules, Rule{
			Name:     rc.Name,
			Pattern:  rc.Pattern,
			Priority: rc.Priority,
			Targets:  rc.Targets,
			Strategy: strategy,
		})
	}
	return rules, nil
}

func parseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAll, StrategyPrimaryOnly, StrategyFailover, StrategyConditional:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

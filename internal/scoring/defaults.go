package scoring

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/david/opp-radar/internal/models"
)

//go:embed defaults.yaml
var defaultRulesYAML []byte

type ruleFile struct {
	Rules []struct {
		Label          string         `yaml:"label"`
		RuleType       string         `yaml:"rule_type"`
		ConditionType  string         `yaml:"condition_type"`
		ConditionValue map[string]any `yaml:"condition_value"`
		Points         int            `yaml:"points"`
		Priority       int            `yaml:"priority"`
	} `yaml:"rules"`
}

// DefaultRules returns the built-in rule table. The embedded file is
// validated at build time by the tests, so parsing cannot fail at runtime.
func DefaultRules() []models.ScoringRule {
	rules, err := ParseRulesYAML(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default rules are invalid: %v", err))
	}
	return rules
}

// ParseRulesYAML decodes a rule table from YAML. Used for the embedded
// defaults and by the seed tool for operator-provided rule files.
func ParseRulesYAML(data []byte) ([]models.ScoringRule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}

	rules := make([]models.ScoringRule, 0, len(file.Rules))
	for i, r := range file.Rules {
		if r.Label == "" {
			return nil, fmt.Errorf("rule %d: missing label", i)
		}
		rules = append(rules, models.ScoringRule{
			Label:          r.Label,
			RuleType:       r.RuleType,
			ConditionType:  r.ConditionType,
			ConditionValue: r.ConditionValue,
			Points:         r.Points,
			Priority:       r.Priority,
			IsActive:       true,
		})
	}
	return rules, nil
}

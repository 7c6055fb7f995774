// Package scoring evaluates a prioritized, declarative rule set against one
// opportunity and returns an integer score with an auditable breakdown.
package scoring

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/david/opp-radar/internal/models"
)

// Engine holds an immutable snapshot of active rules for one scoring
// session. Configuration changes never affect an engine already built.
type Engine struct {
	rules  []models.ScoringRule
	logger zerolog.Logger
}

// NewEngine filters to active rules and fixes the evaluation order:
// priority descending, label ascending as the stable tie-break. An empty
// rule set falls back to the built-in default table.
func NewEngine(rules []models.ScoringRule, logger zerolog.Logger) *Engine {
	active := make([]models.ScoringRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		active = DefaultRules()
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].Label < active[j].Label
	})

	return &Engine{rules: active, logger: logger}
}

// Score evaluates every rule against the opportunity. At most one URGENCY
// rule contributes (the first matching by priority); all other rule types
// accumulate. The total is clamped at zero; the breakdown records every
// matched rule and per-type subtotals.
func (e *Engine) Score(opp models.Opportunity, now time.Time) (int, models.ScoreBreakdown) {
	breakdown := models.ScoreBreakdown{
		Matched:   []models.RuleHit{},
		Subtotals: map[string]int{},
	}

	total := 0
	urgencyApplied := false

	for _, rule := range e.rules {
		if rule.RuleType == models.RuleTypeUrgency && urgencyApplied {
			continue
		}

		matched, err := evalCondition(rule, opp, now)
		if err != nil {
			// One bad rule must never block scoring of the record.
			e.logger.Warn().
				Str("rule", rule.Label).
				Str("condition_type", rule.ConditionType).
				Err(err).
				Msg("skipping malformed scoring rule")
			continue
		}
		if !matched {
			continue
		}

		if rule.RuleType == models.RuleTypeUrgency {
			urgencyApplied = true
		}

		total += rule.Points
		breakdown.Matched = append(breakdown.Matched, models.RuleHit{
			Label:    rule.Label,
			Points:   rule.Points,
			RuleType: rule.RuleType,
		})
		breakdown.Subtotals[rule.RuleType] += rule.Points
	}

	if total < 0 {
		total = 0
	}
	breakdown.Total = total

	return total, breakdown
}

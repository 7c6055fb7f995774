package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/david/opp-radar/internal/models"
)

// RuleStore reads scoring-rule configuration. The table is owned by the
// configuration surface; this core never mutates rules except through the
// seed tool.
type RuleStore struct {
	db DBTX
}

func NewRuleStore(db DBTX) *RuleStore {
	return &RuleStore{db: db}
}

// LoadActive returns the active rules in evaluation order. An empty result
// is not an error; the scoring engine falls back to its built-in table.
func (s *RuleStore) LoadActive(ctx context.Context) ([]models.ScoringRule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, rule_type, condition_type, condition_value, points, label, priority, is_active
		FROM scoring_rules
		WHERE is_active = TRUE
		ORDER BY priority DESC, label ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load scoring rules: %w", err)
	}
	defer rows.Close()

	var rules []models.ScoringRule
	for rows.Next() {
		var r models.ScoringRule
		var conditionRaw []byte
		if err := rows.Scan(&r.ID, &r.RuleType, &r.ConditionType, &conditionRaw, &r.Points, &r.Label, &r.Priority, &r.IsActive); err != nil {
			return nil, fmt.Errorf("scan scoring rule: %w", err)
		}
		if err := json.Unmarshal(conditionRaw, &r.ConditionValue); err != nil {
			// A malformed stored value is the engine's problem to skip,
			// not a reason to fail the whole load.
			r.ConditionValue = nil
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// Upsert writes one rule; used by the seed tool only.
func (s *RuleStore) Upsert(ctx context.Context, r models.ScoringRule) error {
	conditionRaw, err := json.Marshal(r.ConditionValue)
	if err != nil {
		return fmt.Errorf("marshal condition: %w", err)
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO scoring_rules (id, rule_type, condition_type, condition_value, points, label, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			rule_type = EXCLUDED.rule_type,
			condition_type = EXCLUDED.condition_type,
			condition_value = EXCLUDED.condition_value,
			points = EXCLUDED.points,
			label = EXCLUDED.label,
			priority = EXCLUDED.priority,
			is_active = EXCLUDED.is_active
	`, r.ID, r.RuleType, r.ConditionType, conditionRaw, r.Points, r.Label, r.Priority, r.IsActive)
	if err != nil {
		return fmt.Errorf("upsert scoring rule: %w", err)
	}
	return nil
}

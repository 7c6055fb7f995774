package models

import "github.com/google/uuid"

// Rule types. URGENCY is mutually exclusive per evaluation (first match by
// priority wins); all other types accumulate.
const (
	RuleTypeUrgency  = "URGENCY"
	RuleTypeEventFit = "EVENT_FIT"
	RuleTypeQuality  = "QUALITY"
	RuleTypeValue    = "VALUE"
	RuleTypePenalty  = "PENALTY"
)

// Condition types understood by the scoring engine.
const (
	ConditionDeadlineDays     = "deadline_days"
	ConditionKeywords         = "keywords"
	ConditionHasField         = "has_field"
	ConditionMissingFields    = "missing_fields"
	ConditionOrganizationType = "organization_type"
	ConditionRegex            = "regex"
	ConditionCategory         = "category"
)

// ScoringRule is externally managed configuration, read-only for this core.
// ConditionValue shape depends on ConditionType and is validated at
// evaluation time; a malformed value skips the rule, never the record.
type ScoringRule struct {
	ID             uuid.UUID      `json:"id"`
	RuleType       string         `json:"rule_type"`
	ConditionType  string         `json:"condition_type"`
	ConditionValue map[string]any `json:"condition_value"`
	Points         int            `json:"points"`
	Label          string         `json:"label"`
	Priority       int            `json:"priority"`
	IsActive       bool           `json:"is_active"`
}

// RuleHit is one matched rule inside a breakdown.
type RuleHit struct {
	Label    string `json:"label"`
	Points   int    `json:"points"`
	RuleType string `json:"rule_type"`
}

// ScoreBreakdown itemizes every rule that contributed to a score, plus
// per-type subtotals, for auditability.
type ScoreBreakdown struct {
	Total     int            `json:"total"`
	Matched   []RuleHit      `json:"matched"`
	Subtotals map[string]int `json:"subtotals"`
}

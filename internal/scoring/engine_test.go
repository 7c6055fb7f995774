package scoring

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/david/opp-radar/internal/models"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func rule(label, ruleType, condType string, value map[string]any, points, priority int) models.ScoringRule {
	return models.ScoringRule{
		Label:          label,
		RuleType:       ruleType,
		ConditionType:  condType,
		ConditionValue: value,
		Points:         points,
		Priority:       priority,
		IsActive:       true,
	}
}

func deadlineIn(days int) *time.Time {
	d := testNow.Add(time.Duration(days)*24*time.Hour + time.Hour)
	return &d
}

func TestScore_FirstUrgencyRuleWins(t *testing.T) {
	rules := []models.ScoringRule{
		rule("under 7 days", models.RuleTypeUrgency, models.ConditionDeadlineDays,
			map[string]any{"op": "lt", "days": 7}, 6, 100),
		rule("under 30 days", models.RuleTypeUrgency, models.ConditionDeadlineDays,
			map[string]any{"op": "lt", "days": 30}, 2, 90),
	}
	engine := NewEngine(rules, zerolog.Nop())

	opp := models.Opportunity{Title: "Residency", DeadlineAt: deadlineIn(5)}
	total, breakdown := engine.Score(opp, testNow)

	// Both conditions hold, but only the higher-priority urgency rule fires.
	if total != 6 {
		t.Fatalf("expected exactly 6 urgency points, got %d", total)
	}
	if len(breakdown.Matched) != 1 || breakdown.Matched[0].Label != "under 7 days" {
		t.Fatalf("unexpected matched rules: %+v", breakdown.Matched)
	}
	if breakdown.Subtotals[models.RuleTypeUrgency] != 6 {
		t.Fatalf("unexpected urgency subtotal: %+v", breakdown.Subtotals)
	}
}

func TestScore_ClampsAtZero(t *testing.T) {
	rules := []models.ScoringRule{
		rule("missing deadline and link", models.RuleTypePenalty, models.ConditionMissingFields,
			map[string]any{"fields": []any{"deadline", "url"}}, -4, 10),
	}
	engine := NewEngine(rules, zerolog.Nop())

	total, breakdown := engine.Score(models.Opportunity{Title: "Mystery call"}, testNow)
	if total != 0 {
		t.Fatalf("score must clamp at zero, got %d", total)
	}
	// The penalty still shows up in the audit trail.
	if len(breakdown.Matched) != 1 || breakdown.Matched[0].Points != -4 {
		t.Fatalf("penalty must be recorded in breakdown: %+v", breakdown.Matched)
	}
	if breakdown.Total != 0 {
		t.Fatalf("breakdown total must match clamped score, got %d", breakdown.Total)
	}
}

func TestScore_NonUrgencyTypesAccumulate(t *testing.T) {
	rules := []models.ScoringRule{
		rule("open call", models.RuleTypeEventFit, models.ConditionKeywords,
			map[string]any{"keywords": []any{"open call"}}, 5, 80),
		rule("festival", models.RuleTypeEventFit, models.ConditionKeywords,
			map[string]any{"keywords": []any{"festival"}}, 3, 75),
		rule("budget disclosed", models.RuleTypeValue, models.ConditionHasField,
			map[string]any{"fields": []any{"budget"}}, 4, 50),
	}
	engine := NewEngine(rules, zerolog.Nop())

	opp := models.Opportunity{
		Title:        "Open call: summer festival",
		BudgetAmount: 15000,
	}
	total, breakdown := engine.Score(opp, testNow)
	if total != 12 {
		t.Fatalf("expected 5+3+4=12, got %d", total)
	}
	if breakdown.Subtotals[models.RuleTypeEventFit] != 8 || breakdown.Subtotals[models.RuleTypeValue] != 4 {
		t.Fatalf("unexpected subtotals: %+v", breakdown.Subtotals)
	}
}

func TestScore_MalformedRuleSkipped(t *testing.T) {
	rules := []models.ScoringRule{
		rule("broken regex", models.RuleTypeQuality, models.ConditionRegex,
			map[string]any{"field": "title", "pattern": "("}, 3, 90),
		rule("broken comparator", models.RuleTypeUrgency, models.ConditionDeadlineDays,
			map[string]any{"op": "soon"}, 6, 85),
		rule("open call", models.RuleTypeEventFit, models.ConditionKeywords,
			map[string]any{"keywords": []any{"open call"}}, 5, 80),
	}
	engine := NewEngine(rules, zerolog.Nop())

	total, _ := engine.Score(models.Opportunity{Title: "Open call for artists"}, testNow)
	if total != 5 {
		t.Fatalf("malformed rules must be skipped, not abort scoring; got %d", total)
	}
}

func TestScore_Deterministic(t *testing.T) {
	engine := NewEngine(nil, zerolog.Nop()) // defaults
	opp := models.Opportunity{
		Title:        "Open call: Spring Festival",
		Organization: "Arts Foundation",
		Snippet:      "Budget of 20000 EUR, fee included",
		DeadlineAt:   deadlineIn(5),
		BudgetAmount: 20000,
		URLPrimary:   "https://example.com/call",
	}

	total1, bd1 := engine.Score(opp, testNow)
	total2, bd2 := engine.Score(opp, testNow)
	if total1 != total2 {
		t.Fatalf("scores differ between runs: %d vs %d", total1, total2)
	}
	if !reflect.DeepEqual(bd1, bd2) {
		t.Fatalf("breakdowns differ between runs:\n%+v\n%+v", bd1, bd2)
	}
}

func TestScore_NeverNegative(t *testing.T) {
	rules := []models.ScoringRule{
		rule("penalty a", models.RuleTypePenalty, models.ConditionMissingFields,
			map[string]any{"fields": []any{"budget"}}, -10, 20),
		rule("penalty b", models.RuleTypePenalty, models.ConditionMissingFields,
			map[string]any{"fields": []any{"deadline"}}, -10, 10),
	}
	engine := NewEngine(rules, zerolog.Nop())
	if total, _ := engine.Score(models.Opportunity{Title: "Bare"}, testNow); total != 0 {
		t.Fatalf("expected clamp to 0, got %d", total)
	}
}

func TestNewEngine_OrderIsPriorityThenLabel(t *testing.T) {
	rules := []models.ScoringRule{
		rule("zeta", models.RuleTypeEventFit, models.ConditionKeywords, map[string]any{"keywords": []any{"x"}}, 1, 50),
		rule("alpha", models.RuleTypeEventFit, models.ConditionKeywords, map[string]any{"keywords": []any{"x"}}, 1, 50),
		rule("low", models.RuleTypeEventFit, models.ConditionKeywords, map[string]any{"keywords": []any{"x"}}, 1, 10),
	}
	engine := NewEngine(rules, zerolog.Nop())

	_, breakdown := engine.Score(models.Opportunity{Title: "x"}, testNow)
	got := []string{}
	for _, hit := range breakdown.Matched {
		got = append(got, hit.Label)
	}
	want := []string{"alpha", "zeta", "low"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("evaluation order wrong: got %v want %v", got, want)
	}
}

func TestNewEngine_FallsBackToDefaults(t *testing.T) {
	engine := NewEngine(nil, zerolog.Nop())
	if len(engine.rules) == 0 {
		t.Fatal("empty configuration must fall back to built-in defaults")
	}

	inactive := []models.ScoringRule{{Label: "off", RuleType: models.RuleTypeQuality, IsActive: false}}
	engine = NewEngine(inactive, zerolog.Nop())
	for _, r := range engine.rules {
		if r.Label == "off" {
			t.Fatal("inactive rules must not be evaluated")
		}
	}
	if len(engine.rules) == 0 {
		t.Fatal("all-inactive configuration must fall back to defaults")
	}
}

func TestScore_DeadlineInPastNeverUrgent(t *testing.T) {
	past := testNow.Add(-24 * time.Hour)
	engine := NewEngine([]models.ScoringRule{
		rule("under 7 days", models.RuleTypeUrgency, models.ConditionDeadlineDays,
			map[string]any{"op": "lt", "days": 7}, 6, 100),
	}, zerolog.Nop())

	if total, _ := engine.Score(models.Opportunity{Title: "Late", DeadlineAt: &past}, testNow); total != 0 {
		t.Fatalf("past deadlines must not match deadline rules, got %d", total)
	}
}

func TestEvalDeadlineDays_UnknownComparatorErrors(t *testing.T) {
	// The comparator is validated before the deadline short-circuit, so
	// the malformed rule is reported even for records without a deadline.
	_, err := evalDeadlineDays(map[string]any{"op": "soon", "days": 7}, models.Opportunity{}, testNow)
	if err == nil {
		t.Fatal("unknown comparator with no deadline must error, not match false")
	}
}

func TestScore_UnknownComparatorLoggedWithoutDeadline(t *testing.T) {
	var buf bytes.Buffer
	engine := NewEngine([]models.ScoringRule{
		rule("broken comparator", models.RuleTypeUrgency, models.ConditionDeadlineDays,
			map[string]any{"op": "soon", "days": 7}, 6, 100),
	}, zerolog.New(&buf))

	total, _ := engine.Score(models.Opportunity{Title: "No deadline"}, testNow)
	if total != 0 {
		t.Fatalf("broken rule must contribute nothing, got %d", total)
	}
	if !strings.Contains(buf.String(), "unknown comparator") {
		t.Fatalf("malformed comparator must be logged for deadline-less records, log: %s", buf.String())
	}
}

func TestDefaultRules_Valid(t *testing.T) {
	rules := DefaultRules()
	if len(rules) == 0 {
		t.Fatal("default rule table must not be empty")
	}
	for _, r := range rules {
		if r.Label == "" || r.RuleType == "" || r.ConditionType == "" {
			t.Fatalf("incomplete default rule: %+v", r)
		}
	}
}

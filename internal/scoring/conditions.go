package scoring

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/david/opp-radar/internal/models"
)

// evalCondition checks one rule's condition against an opportunity. A
// malformed condition value returns an error so the engine can skip the
// rule without aborting the record.
func evalCondition(rule models.ScoringRule, opp models.Opportunity, now time.Time) (bool, error) {
	switch rule.ConditionType {
	case models.ConditionDeadlineDays:
		return evalDeadlineDays(rule.ConditionValue, opp, now)
	case models.ConditionKeywords:
		return evalKeywords(rule.ConditionValue, opp)
	case models.ConditionHasField:
		return evalHasField(rule.ConditionValue, opp)
	case models.ConditionMissingFields:
		return evalMissingFields(rule.ConditionValue, opp)
	case models.ConditionOrganizationType:
		return evalOrganizationType(rule.ConditionValue, opp)
	case models.ConditionRegex:
		return evalRegex(rule.ConditionValue, opp)
	case models.ConditionCategory:
		return evalCategory(rule.ConditionValue, opp)
	default:
		return false, fmt.Errorf("unknown condition type %q", rule.ConditionType)
	}
}

// textBlob is the haystack for keyword containment: every free-text field
// concatenated and lowercased.
func textBlob(opp models.Opportunity) string {
	parts := []string{opp.Title, opp.Organization, opp.Snippet}
	parts = append(parts, opp.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

func evalDeadlineDays(value map[string]any, opp models.Opportunity, now time.Time) (bool, error) {
	op, err := stringValue(value, "op")
	if err != nil {
		return false, err
	}
	days, err := intValue(value, "days")
	if err != nil {
		return false, err
	}
	switch op {
	case "lt", "lte", "gt", "gte", "eq":
	default:
		// Validated before the deadline short-circuit so a malformed
		// comparator is reported even for records without a deadline.
		return false, fmt.Errorf("unknown comparator %q", op)
	}

	// Past or absent deadlines never satisfy a deadline rule.
	if opp.DeadlineAt == nil || !opp.DeadlineAt.After(now) {
		return false, nil
	}
	remaining := int(opp.DeadlineAt.Sub(now).Hours() / 24)

	switch op {
	case "lt":
		return remaining < days, nil
	case "lte":
		return remaining <= days, nil
	case "gt":
		return remaining > days, nil
	case "gte":
		return remaining >= days, nil
	default: // eq
		return remaining == days, nil
	}
}

func evalKeywords(value map[string]any, opp models.Opportunity) (bool, error) {
	keywords, err := stringListValue(value, "keywords")
	if err != nil {
		return false, err
	}
	blob := textBlob(opp)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(blob, strings.ToLower(kw)) {
			return true, nil
		}
	}
	return false, nil
}

// evalHasField matches when ANY listed field is non-empty.
func evalHasField(value map[string]any, opp models.Opportunity) (bool, error) {
	fields, err := stringListValue(value, "fields")
	if err != nil {
		return false, err
	}
	for _, f := range fields {
		present, err := fieldPresent(opp, f)
		if err != nil {
			return false, err
		}
		if present {
			return true, nil
		}
	}
	return false, nil
}

// evalMissingFields matches when ALL listed fields are empty.
func evalMissingFields(value map[string]any, opp models.Opportunity) (bool, error) {
	fields, err := stringListValue(value, "fields")
	if err != nil {
		return false, err
	}
	if len(fields) == 0 {
		return false, nil
	}
	for _, f := range fields {
		present, err := fieldPresent(opp, f)
		if err != nil {
			return false, err
		}
		if present {
			return false, nil
		}
	}
	return true, nil
}

func evalOrganizationType(value map[string]any, opp models.Opportunity) (bool, error) {
	values, err := stringListValue(value, "values")
	if err != nil {
		return false, err
	}
	org := strings.ToLower(opp.Organization)
	if org == "" {
		return false, nil
	}
	for _, v := range values {
		if v != "" && strings.Contains(org, strings.ToLower(v)) {
			return true, nil
		}
	}
	return false, nil
}

func evalRegex(value map[string]any, opp models.Opportunity) (bool, error) {
	field, err := stringValue(value, "field")
	if err != nil {
		return false, err
	}
	pattern, err := stringValue(value, "pattern")
	if err != nil {
		return false, err
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	text, err := fieldText(opp, field)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

func evalCategory(value map[string]any, opp models.Opportunity) (bool, error) {
	categories, err := stringListValue(value, "categories")
	if err != nil {
		return false, err
	}
	for _, want := range categories {
		for _, tag := range opp.Tags {
			if strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(tag)) {
				return true, nil
			}
		}
	}
	return false, nil
}

func fieldPresent(opp models.Opportunity, field string) (bool, error) {
	switch field {
	case "title":
		return opp.Title != "", nil
	case "organization":
		return opp.Organization != "", nil
	case "city":
		return opp.City != "", nil
	case "snippet", "description":
		return opp.Snippet != "", nil
	case "url", "url_primary":
		return opp.URLPrimary != "", nil
	case "external_id":
		return opp.ExternalID != "", nil
	case "contact_email":
		return opp.ContactEmail != "", nil
	case "deadline", "deadline_at":
		return opp.DeadlineAt != nil, nil
	case "budget", "budget_amount":
		return opp.BudgetAmount > 0, nil
	case "tags":
		return len(opp.Tags) > 0, nil
	default:
		return false, fmt.Errorf("unknown field %q", field)
	}
}

func fieldText(opp models.Opportunity, field string) (string, error) {
	switch field {
	case "title":
		return opp.Title, nil
	case "organization":
		return opp.Organization, nil
	case "city":
		return opp.City, nil
	case "snippet", "description":
		return opp.Snippet, nil
	case "url", "url_primary":
		return opp.URLPrimary, nil
	case "external_id":
		return opp.ExternalID, nil
	case "contact_email":
		return opp.ContactEmail, nil
	default:
		return "", fmt.Errorf("field %q is not regex-matchable", field)
	}
}

func stringValue(value map[string]any, key string) (string, error) {
	raw, ok := value[key]
	if !ok {
		return "", fmt.Errorf("missing %q", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%q must be a non-empty string", key)
	}
	return s, nil
}

func intValue(value map[string]any, key string) (int, error) {
	raw, ok := value[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	// JSONB decodes numbers as float64, YAML as int.
	switch n := raw.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%q must be a number", key)
	}
}

func stringListValue(value map[string]any, key string) ([]string, error) {
	raw, ok := value[key]
	if !ok {
		return nil, fmt.Errorf("missing %q", key)
	}
	switch list := raw.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%q must contain only strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%q must be a list of strings", key)
	}
}

package db

import (
	"strings"
	"testing"
)

func TestMatchableConstraint_ExcludesDeadStatuses(t *testing.T) {
	for _, status := range []string{"archived", "lost", "won"} {
		if !strings.Contains(matchableConstraint, "'"+status+"'") {
			t.Fatalf("matchable constraint must exclude %q: %s", status, matchableConstraint)
		}
	}
	if strings.Contains(matchableConstraint, "'active'") {
		t.Fatalf("active records must not be filtered out: %s", matchableConstraint)
	}
}

func TestSelectCols_CoverTheAggregate(t *testing.T) {
	required := []string{
		"external_id", "canonical_url", "title_prefix", "score_breakdown",
		"possible_duplicate", "duplicate_of_id", "status",
	}
	for _, col := range required {
		if !strings.Contains(selectCols, col) {
			t.Fatalf("selectCols missing %q", col)
		}
	}
}

// Package dedup implements the online duplicate check that runs once per
// ingested candidate, before scoring. It never merges or deletes records:
// certain duplicates are rejected, borderline ones are inserted flagged
// for human review.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/david/opp-radar/internal/models"
	"github.com/david/opp-radar/internal/textmatch"
)

const (
	// CertainThreshold and above means the candidate is the same
	// opportunity; it is rejected instead of inserted.
	CertainThreshold = 0.9
	// PossibleThreshold and above (but below certain) inserts the record
	// flagged possible_duplicate with duplicate_of_id set.
	PossibleThreshold = 0.7

	// deadlineBoost is added when both deadlines fall within
	// deadlineWindowDays of each other, capped at 1.0.
	deadlineBoost      = 0.1
	deadlineWindowDays = 7

	// prefixTokens is the length of the cheap title-prefix candidate filter.
	prefixTokens = 3
)

// Decision classifies a candidate relative to the existing working set.
type Decision string

const (
	DecisionNew               Decision = "new"
	DecisionDuplicate         Decision = "duplicate"
	DecisionPossibleDuplicate Decision = "possible_duplicate"
)

// Result is the outcome of one duplicate check.
type Result struct {
	Decision   Decision            `json:"decision"`
	Matched    *models.Opportunity `json:"matched,omitempty"`
	Similarity float64             `json:"similarity,omitempty"`
	MatchType  string              `json:"match_type,omitempty"`
}

// IsDuplicate reports a certain duplicate (reject, do not insert).
func (r Result) IsDuplicate() bool { return r.Decision == DecisionDuplicate }

// Store is the read surface the duplicate check needs. Lookups must run
// inside the caller's transaction so concurrent ingestions of the same
// item cannot both pass the exact-match checks.
type Store interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.Opportunity, error)
	FindByCanonicalURL(ctx context.Context, canonicalURL string) (*models.Opportunity, error)
	// FindNearMatches returns matchable records sharing the title prefix or
	// the organization (case-insensitive), excluding archived/lost/won.
	FindNearMatches(ctx context.Context, titlePrefix, organization string) ([]models.Opportunity, error)
}

type Service struct {
	store  Store
	logger zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CheckDuplicate runs the three-stage duplicate check, short-circuiting on
// the first hit: exact external id, exact canonical URL, then lexical
// similarity over prefix/organization candidates. Re-running on an already
// inserted record re-finds the same exact match by external id.
func (s *Service) CheckDuplicate(ctx context.Context, cand models.Opportunity) (Result, error) {
	// 1. Source-level idempotency key.
	if cand.ExternalID != "" {
		match, err := s.store.FindByExternalID(ctx, cand.ExternalID)
		if err != nil {
			return Result{}, fmt.Errorf("external id lookup: %w", err)
		}
		if match != nil {
			return Result{Decision: DecisionDuplicate, Matched: match, Similarity: 1.0, MatchType: "external_id"}, nil
		}
	}

	// 2. Canonical URL: the strongest content-independent signal.
	if canonical := textmatch.CanonicalURL(cand.URLPrimary); canonical != "" {
		match, err := s.store.FindByCanonicalURL(ctx, canonical)
		if err != nil {
			return Result{}, fmt.Errorf("canonical url lookup: %w", err)
		}
		if match != nil {
			return Result{Decision: DecisionDuplicate, Matched: match, Similarity: 1.0, MatchType: models.MatchTypeURL}, nil
		}
	}

	// 3. Lexical candidate search.
	best, bestSim, err := s.bestLexicalMatch(ctx, cand)
	if err != nil {
		return Result{}, err
	}

	switch {
	case best != nil && bestSim >= CertainThreshold:
		return Result{Decision: DecisionDuplicate, Matched: best, Similarity: bestSim, MatchType: models.MatchTypeLexical}, nil
	case best != nil && bestSim >= PossibleThreshold:
		return Result{Decision: DecisionPossibleDuplicate, Matched: best, Similarity: bestSim, MatchType: models.MatchTypeLexical}, nil
	default:
		return Result{Decision: DecisionNew}, nil
	}
}

func (s *Service) bestLexicalMatch(ctx context.Context, cand models.Opportunity) (*models.Opportunity, float64, error) {
	prefix := textmatch.TitlePrefix(cand.Title, prefixTokens)
	candidates, err := s.store.FindNearMatches(ctx, prefix, cand.Organization)
	if err != nil {
		return nil, 0, fmt.Errorf("candidate search: %w", err)
	}

	candText := cand.Title + " " + cand.Organization

	var best *models.Opportunity
	bestSim := 0.0
	for i := range candidates {
		other := candidates[i]
		sim := textmatch.Similarity(candText, other.Title+" "+other.Organization)
		if deadlinesClose(cand.DeadlineAt, other.DeadlineAt) {
			sim += deadlineBoost
			if sim > 1.0 {
				sim = 1.0
			}
		}
		if sim > bestSim {
			bestSim = sim
			best = &candidates[i]
		}
	}

	if best != nil {
		s.logger.Debug().
			Str("candidate", cand.Title).
			Str("matched", best.Title).
			Float64("similarity", bestSim).
			Msg("lexical duplicate search")
	}

	return best, bestSim, nil
}

// deadlinesClose reports whether both deadlines exist and fall within the
// proximity window of each other.
func deadlinesClose(a, b *time.Time) bool {
	if a == nil || b == nil {
		return false
	}
	diff := a.Sub(*b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= deadlineWindowDays*24*time.Hour
}

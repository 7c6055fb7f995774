package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/david/opp-radar/internal/db"
	"github.com/david/opp-radar/internal/dedup"
	"github.com/david/opp-radar/internal/models"
	"github.com/david/opp-radar/internal/scoring"
)

// ErrMissingTitle rejects candidates whose extraction produced no title.
var ErrMissingTitle = errors.New("candidate has no title")

// Result reports what intake did with one candidate.
type Result struct {
	Opportunity *models.Opportunity `json:"opportunity,omitempty"`
	Dedup       dedup.Result        `json:"dedup"`
	Inserted    bool                `json:"inserted"`
}

// Intake drives the online path: duplicate check, insert (flagged when
// borderline), then scoring — all inside one transaction per candidate so
// exact-match lookups cannot race a concurrent insert of the same item.
type Intake struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewIntake(pool *pgxpool.Pool, logger zerolog.Logger) *Intake {
	return &Intake{pool: pool, logger: logger}
}

func (in *Intake) Process(ctx context.Context, cand Candidate) (*Result, error) {
	opp := cand.ToOpportunity()
	if opp.Title == "" {
		return nil, ErrMissingTitle
	}

	tx, err := in.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin intake tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := db.NewStore(tx)

	check, err := dedup.NewService(store, in.logger).CheckDuplicate(ctx, opp)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	if check.IsDuplicate() {
		// Nothing written; the existing record stands.
		in.logger.Info().
			Str("title", opp.Title).
			Str("match_type", check.MatchType).
			Str("matched_id", check.Matched.ID.String()).
			Msg("candidate rejected as duplicate")
		return &Result{Dedup: check}, nil
	}

	if check.Decision == dedup.DecisionPossibleDuplicate {
		// Insert flagged for review, never silently merged.
		opp.PossibleDuplicate = true
		opp.DuplicateOfID = &check.Matched.ID
	}

	rules, err := db.NewRuleStore(tx).LoadActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scoring rules: %w", err)
	}
	engine := scoring.NewEngine(rules, in.logger)
	opp.Score, opp.ScoreBreakdown = scoreInto(engine, opp)

	if err := store.Insert(ctx, &opp); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit intake: %w", err)
	}

	in.logger.Info().
		Str("id", opp.ID.String()).
		Str("title", opp.Title).
		Int("score", opp.Score).
		Bool("possible_duplicate", opp.PossibleDuplicate).
		Msg("candidate inserted")

	return &Result{Opportunity: &opp, Dedup: check, Inserted: true}, nil
}

func scoreInto(engine *scoring.Engine, opp models.Opportunity) (int, *models.ScoreBreakdown) {
	total, breakdown := engine.Score(opp, time.Now().UTC())
	return total, &breakdown
}

package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/david/opp-radar/internal/models"
	"github.com/david/opp-radar/internal/textmatch"
)

// Store handles opportunity persistence. It runs against either the pool
// or a transaction; the online intake path wraps each candidate in its
// own transaction so exact-match lookups cannot race concurrent inserts.
type Store struct {
	db DBTX
}

func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// selectCols is the comprehensive column list for all queries.
const selectCols = `id, external_id, title, organization, city, snippet,
	url_primary, urls_all, canonical_url, title_prefix, tags, contact_email,
	deadline_at, budget_amount, score, score_breakdown,
	possible_duplicate, duplicate_of_id, status, created_at, updated_at`

func scanOpportunity(scan func(dest ...any) error) (models.Opportunity, error) {
	var o models.Opportunity
	var breakdownRaw []byte

	err := scan(
		&o.ID, &o.ExternalID, &o.Title, &o.Organization, &o.City, &o.Snippet,
		&o.URLPrimary, &o.URLsAll, &o.CanonicalURL, &o.TitlePrefix, &o.Tags, &o.ContactEmail,
		&o.DeadlineAt, &o.BudgetAmount, &o.Score, &breakdownRaw,
		&o.PossibleDuplicate, &o.DuplicateOfID, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	if len(breakdownRaw) > 0 {
		var bd models.ScoreBreakdown
		if err := json.Unmarshal(breakdownRaw, &bd); err == nil {
			o.ScoreBreakdown = &bd
		}
	}

	return o, nil
}

// matchableConstraint excludes records duplicate search and clustering
// must never consider. Status is owned elsewhere; this core only reads it.
const matchableConstraint = " AND status NOT IN ('archived', 'lost', 'won')"

func (s *Store) Insert(ctx context.Context, o *models.Opportunity) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = models.StatusActive
	}
	o.CanonicalURL = textmatch.CanonicalURL(o.URLPrimary)
	o.TitlePrefix = textmatch.TitlePrefix(o.Title, 3)

	// pgx encodes nil slices as SQL NULL, which the NOT NULL array
	// columns reject; a candidate with no URLs or tags is valid input.
	if o.URLsAll == nil {
		o.URLsAll = []string{}
	}
	if o.Tags == nil {
		o.Tags = []string{}
	}

	var breakdownRaw []byte
	if o.ScoreBreakdown != nil {
		var err error
		breakdownRaw, err = json.Marshal(o.ScoreBreakdown)
		if err != nil {
			return fmt.Errorf("marshal breakdown: %w", err)
		}
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO opportunities (
			id, external_id, title, organization, city, snippet,
			url_primary, urls_all, canonical_url, title_prefix, tags, contact_email,
			deadline_at, budget_amount, score, score_breakdown,
			possible_duplicate, duplicate_of_id, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19
		)
		RETURNING created_at, updated_at
	`,
		o.ID, o.ExternalID, o.Title, o.Organization, o.City, o.Snippet,
		o.URLPrimary, o.URLsAll, o.CanonicalURL, o.TitlePrefix, o.Tags, o.ContactEmail,
		o.DeadlineAt, o.BudgetAmount, o.Score, breakdownRaw,
		o.PossibleDuplicate, o.DuplicateOfID, o.Status,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM opportunities WHERE id = $1", selectCols), id)
	o, err := scanOpportunity(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get opportunity: %w", err)
	}
	return &o, nil
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*models.Opportunity, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM opportunities WHERE external_id = $1%s", selectCols, matchableConstraint,
	), externalID)
	o, err := scanOpportunity(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by external id: %w", err)
	}
	return &o, nil
}

func (s *Store) FindByCanonicalURL(ctx context.Context, canonicalURL string) (*models.Opportunity, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM opportunities WHERE canonical_url = $1%s LIMIT 1", selectCols, matchableConstraint,
	), canonicalURL)
	o, err := scanOpportunity(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by canonical url: %w", err)
	}
	return &o, nil
}

// FindNearMatches is the cheap candidate filter for the lexical duplicate
// search: records sharing the first significant title tokens or the same
// organization.
func (s *Store) FindNearMatches(ctx context.Context, titlePrefix, organization string) ([]models.Opportunity, error) {
	if titlePrefix == "" && organization == "" {
		return nil, nil
	}

	sql := fmt.Sprintf(`
		SELECT %s FROM opportunities
		WHERE ((title_prefix <> '' AND title_prefix = $1)
			OR (organization <> '' AND LOWER(organization) = LOWER($2)))%s
		ORDER BY created_at DESC
		LIMIT 200
	`, selectCols, matchableConstraint)

	rows, err := s.db.Query(ctx, sql, titlePrefix, organization)
	if err != nil {
		return nil, fmt.Errorf("near-match query: %w", err)
	}
	defer rows.Close()

	var out []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("near-match scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListActive returns the most recent matchable records, newest first.
// This is the cluster builder's working set. A non-positive limit returns
// the whole matchable set.
func (s *Store) ListActive(ctx context.Context, limit int) ([]models.Opportunity, error) {
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}
	sql := fmt.Sprintf(`
		SELECT %s FROM opportunities
		WHERE 1=1%s
		ORDER BY created_at DESC
		LIMIT $1
	`, selectCols, matchableConstraint)

	rows, err := s.db.Query(ctx, sql, limitArg)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	defer rows.Close()

	var out []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list active scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateScore persists a scoring result, keeping the audit breakdown.
func (s *Store) UpdateScore(ctx context.Context, id uuid.UUID, score int, breakdown models.ScoreBreakdown) error {
	raw, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE opportunities SET score = $2, score_breakdown = $3, updated_at = NOW()
		WHERE id = $1
	`, id, score, raw)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update score: opportunity %s not found", id)
	}
	return nil
}

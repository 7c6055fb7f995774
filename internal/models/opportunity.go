package models

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle statuses. Status is owned by the workflow layer; this core only
// reads it to exclude dead records from matching.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
	StatusLost     = "lost"
	StatusWon      = "won"
)

type Opportunity struct {
	ID                uuid.UUID       `json:"id"`
	ExternalID        string          `json:"external_id"`
	Title             string          `json:"title"`
	Organization      string          `json:"organization"`
	City              string          `json:"city"`
	Snippet           string          `json:"snippet"`
	URLPrimary        string          `json:"url_primary"`
	URLsAll           []string        `json:"urls_all"`
	CanonicalURL      string          `json:"canonical_url"`
	TitlePrefix       string          `json:"-"`
	Tags              []string        `json:"tags"`
	ContactEmail      string          `json:"contact_email"`
	DeadlineAt        *time.Time      `json:"deadline_at"`
	BudgetAmount      float64         `json:"budget_amount"`
	Score             int             `json:"score"`
	ScoreBreakdown    *ScoreBreakdown `json:"score_breakdown"`
	PossibleDuplicate bool            `json:"possible_duplicate"`
	DuplicateOfID     *uuid.UUID      `json:"duplicate_of_id"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Matchable reports whether the record participates in duplicate search and
// clustering. Archived/lost/won records are excluded, never deleted.
func (o Opportunity) Matchable() bool {
	switch o.Status {
	case StatusArchived, StatusLost, StatusWon:
		return false
	}
	return true
}

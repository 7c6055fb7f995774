// Package ingest is the online intake path: it converts extracted
// candidates into opportunities, runs the duplicate check, and scores
// whatever gets inserted — one transaction per candidate.
package ingest

import (
	"strings"
	"time"

	"github.com/david/opp-radar/internal/models"
)

// Candidate is what extraction hands us: already field-extracted, source
// format unknown and irrelevant here. Only Title is required.
type Candidate struct {
	ExternalID   string     `json:"external_id"`
	Title        string     `json:"title"`
	Organization string     `json:"organization"`
	City         string     `json:"city"`
	Snippet      string     `json:"snippet"`
	URL          string     `json:"url"`
	URLs         []string   `json:"urls"`
	Tags         []string   `json:"tags"`
	ContactEmail string     `json:"contact_email"`
	DeadlineAt   *time.Time `json:"deadline_at"`
	BudgetAmount float64    `json:"budget_amount"`
}

// ToOpportunity converts a candidate into the canonical aggregate. Snippets
// may arrive as HTML; they are sanitized and flattened to text here so
// every matcher downstream sees plain words.
func (c Candidate) ToOpportunity() models.Opportunity {
	opp := models.Opportunity{
		URLsAll:      []string{},
		Tags:         []string{},
		ExternalID:   strings.TrimSpace(c.ExternalID),
		Title:        cleanText(c.Title),
		Organization: cleanText(c.Organization),
		City:         cleanText(c.City),
		Snippet:      HTMLToText(c.Snippet),
		URLPrimary:   strings.TrimSpace(c.URL),
		ContactEmail: strings.TrimSpace(c.ContactEmail),
		DeadlineAt:   c.DeadlineAt,
		BudgetAmount: c.BudgetAmount,
		Status:       models.StatusActive,
	}

	for _, u := range append([]string{c.URL}, c.URLs...) {
		opp.URLsAll = appendUnique(opp.URLsAll, u)
	}
	for _, tag := range c.Tags {
		opp.Tags = appendUnique(opp.Tags, tag)
	}

	return opp
}

// cleanText collapses whitespace runs and trims.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// appendUnique appends a string to a slice if it doesn't already exist
// (case-insensitive).
func appendUnique(list []string, v string) []string {
	vClean := strings.TrimSpace(v)
	if vClean == "" {
		return list
	}

	vLower := strings.ToLower(vClean)
	for _, existing := range list {
		if strings.ToLower(existing) == vLower {
			return list
		}
	}
	return append(list, vClean)
}

// Package cluster rebuilds the full duplicate-cluster set over a bounded
// working set of active opportunities. Rebuilds are batch-only and
// all-or-nothing: a new generation is written and atomically swapped in,
// so readers never observe a half-built cluster set.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/david/opp-radar/internal/models"
	"github.com/david/opp-radar/internal/textmatch"
)

const (
	// DefaultBatchSize bounds the working set; the lexical pass is O(k²)
	// in its remainder, so the batch size is the runtime bound.
	DefaultBatchSize = 1000
	MinBatchSize     = 100
	MaxBatchSize     = 5000

	// DefaultThreshold is the lexical pass similarity cutoff.
	DefaultThreshold = 0.86

	urlClusterScore         = 1.0
	fingerprintClusterScore = 0.95
)

// ErrRebuildInProgress is returned when another rebuild holds the lock.
var ErrRebuildInProgress = errors.New("cluster rebuild already in progress")

// Member is one opportunity inside a built cluster.
type Member struct {
	OpportunityID   uuid.UUID
	SimilarityScore float64
	MatchType       string
}

// Built is a cluster computed in memory, before persistence.
type Built struct {
	CanonicalID  uuid.UUID
	ClusterScore float64
	MatchType    string
	Members      []Member
}

// Summary is the result of one rebuild.
type Summary struct {
	ClustersCreated        int     `json:"clusters_created"`
	OpportunitiesClustered int     `json:"opportunities_clustered"`
	DurationSeconds        float64 `json:"duration_seconds"`
	WorkingSetSize         int     `json:"working_set_size"`
	SimilarityThreshold    float64 `json:"similarity_threshold"`
}

// Store is the persistence surface the builder needs.
type Store interface {
	// TryRebuildLock acquires the single-flight rebuild guard. The release
	// function must be called even when the rebuild fails.
	TryRebuildLock(ctx context.Context) (release func(), acquired bool, err error)
	// ListActiveOpportunities returns the most recent matchable records,
	// newest first.
	ListActiveOpportunities(ctx context.Context, limit int) ([]models.Opportunity, error)
	// SwapClusters persists the built clusters as a new generation and
	// atomically makes it the active one, inside a single transaction.
	SwapClusters(ctx context.Context, clusters []Built) error
}

type Builder struct {
	store  Store
	logger zerolog.Logger
}

func NewBuilder(store Store, logger zerolog.Logger) *Builder {
	return &Builder{store: store, logger: logger}
}

// Rebuild recomputes the entire cluster set. batchSize <= 0 uses the
// default; out-of-range values are clamped. threshold <= 0 uses the
// default lexical cutoff.
func (b *Builder) Rebuild(ctx context.Context, batchSize int, threshold float64) (*Summary, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize < MinBatchSize {
		batchSize = MinBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	release, acquired, err := b.store.TryRebuildLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire rebuild lock: %w", err)
	}
	if !acquired {
		return nil, ErrRebuildInProgress
	}
	defer release()

	start := time.Now()

	opps, err := b.store.ListActiveOpportunities(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("load working set: %w", err)
	}

	clusters := buildClusters(opps, threshold)

	if err := b.store.SwapClusters(ctx, clusters); err != nil {
		return nil, fmt.Errorf("persist clusters: %w", err)
	}

	summary := &Summary{
		ClustersCreated:     len(clusters),
		DurationSeconds:     time.Since(start).Seconds(),
		WorkingSetSize:      len(opps),
		SimilarityThreshold: threshold,
	}
	for _, c := range clusters {
		summary.OpportunitiesClustered += len(c.Members)
	}

	b.logger.Info().
		Int("clusters", summary.ClustersCreated).
		Int("opportunities", summary.OpportunitiesClustered).
		Int("working_set", summary.WorkingSetSize).
		Float64("duration_s", summary.DurationSeconds).
		Msg("cluster rebuild complete")

	return summary, nil
}

// buildClusters runs the three sequential passes over the working set.
// Input order is recency (newest first); pass 3 relies on it for its
// higher-index scan. Each opportunity joins at most one cluster.
func buildClusters(opps []models.Opportunity, threshold float64) []Built {
	var clusters []Built
	processed := make(map[uuid.UUID]bool, len(opps))

	// Pass 1 — exact canonical URL.
	clusters = append(clusters, groupPass(opps, processed, models.MatchTypeURL, urlClusterScore, func(o models.Opportunity) string {
		return textmatch.CanonicalURL(o.URLPrimary)
	})...)

	// Pass 2 — content fingerprint, URL-independent.
	clusters = append(clusters, groupPass(opps, processed, models.MatchTypeFingerprint, fingerprintClusterScore, func(o models.Opportunity) string {
		return textmatch.Fingerprint(o.Title, o.Organization, o.City)
	})...)

	// Pass 3 — pairwise lexical similarity over the remainder. O(k²).
	for i := range opps {
		if processed[opps[i].ID] {
			continue
		}
		seed := opps[i]
		seedText := seed.Title + " " + seed.Snippet

		group := []models.Opportunity{seed}
		sims := []float64{1.0}
		for j := i + 1; j < len(opps); j++ {
			if processed[opps[j].ID] {
				continue
			}
			sim := textmatch.Similarity(seedText, opps[j].Title+" "+opps[j].Snippet)
			if sim >= threshold {
				group = append(group, opps[j])
				sims = append(sims, sim)
			}
		}
		if len(group) < 2 {
			continue
		}

		members := make([]Member, len(group))
		for k, o := range group {
			members[k] = Member{OpportunityID: o.ID, SimilarityScore: sims[k], MatchType: models.MatchTypeLexical}
			processed[o.ID] = true
		}
		clusters = append(clusters, Built{
			CanonicalID: canonicalOf(group),
			// The configured threshold, not a per-pair score, is recorded
			// as the cluster confidence.
			ClusterScore: threshold,
			MatchType:    models.MatchTypeLexical,
			Members:      members,
		})
	}

	return clusters
}

// groupPass clusters records sharing a non-empty key. Iteration preserves
// input order so rebuilds are deterministic.
func groupPass(opps []models.Opportunity, processed map[uuid.UUID]bool, matchType string, score float64, keyFn func(models.Opportunity) string) []Built {
	groups := make(map[string][]models.Opportunity)
	var order []string
	for _, o := range opps {
		if processed[o.ID] {
			continue
		}
		key := keyFn(o)
		if key == "" {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], o)
	}

	var clusters []Built
	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		members := make([]Member, len(group))
		for k, o := range group {
			members[k] = Member{OpportunityID: o.ID, SimilarityScore: score, MatchType: matchType}
			processed[o.ID] = true
		}
		clusters = append(clusters, Built{
			CanonicalID:  canonicalOf(group),
			ClusterScore: score,
			MatchType:    matchType,
			Members:      members,
		})
	}
	return clusters
}

// canonicalOf picks the highest-scored member; ties keep the most recent
// (earliest in the recency-ordered input).
func canonicalOf(group []models.Opportunity) uuid.UUID {
	best := group[0]
	for _, o := range group[1:] {
		if o.Score > best.Score {
			best = o
		}
	}
	return best.ID
}

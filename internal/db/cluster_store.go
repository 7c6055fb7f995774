package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/opp-radar/internal/cluster"
	"github.com/david/opp-radar/internal/models"
)

// rebuildLockKey is the advisory lock guarding cluster rebuilds. Rebuilds
// delete-and-repopulate shared state, so only one may run at a time.
const rebuildLockKey int64 = 0x4f5050434c555354 // "OPPCLUST"

// ClusterStore persists the derived cluster set. Writes are generational:
// a rebuild lands a complete new generation and flips the active pointer
// in the same transaction, so readers never see a partial rebuild.
type ClusterStore struct {
	pool *pgxpool.Pool
}

func NewClusterStore(pool *pgxpool.Pool) *ClusterStore {
	return &ClusterStore{pool: pool}
}

// TryRebuildLock takes the session-level advisory lock on a dedicated
// connection held until release.
func (s *ClusterStore) TryRebuildLock(ctx context.Context) (func(), bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", rebuildLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", rebuildLockKey); err != nil {
			// The session still holds the lock; returning the connection
			// to the pool would wedge every future rebuild. Closing the
			// session releases the lock server-side.
			_ = conn.Hijack().Close(context.Background())
			return
		}
		conn.Release()
	}
	return release, true, nil
}

func (s *ClusterStore) ListActiveOpportunities(ctx context.Context, limit int) ([]models.Opportunity, error) {
	return NewStore(s.pool).ListActive(ctx, limit)
}

// SwapClusters writes the built clusters as generation N+1, points readers
// at it, and removes superseded generations — one transaction, one commit.
// A failure anywhere rolls back and leaves the previous generation active.
func (s *ClusterStore) SwapClusters(ctx context.Context, clusters []cluster.Built) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rebuild tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int64
	if err := tx.QueryRow(ctx, "SELECT active_generation FROM cluster_state WHERE id = 1 FOR UPDATE").Scan(&current); err != nil {
		return fmt.Errorf("read cluster state: %w", err)
	}
	next := current + 1

	for _, c := range clusters {
		var clusterID uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO clusters (generation, canonical_opportunity_id, cluster_score, match_type, member_count)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, next, c.CanonicalID, c.ClusterScore, c.MatchType, len(c.Members)).Scan(&clusterID)
		if err != nil {
			return fmt.Errorf("insert cluster: %w", err)
		}

		for _, m := range c.Members {
			if _, err := tx.Exec(ctx, `
				INSERT INTO cluster_members (cluster_id, opportunity_id, generation, similarity_score, match_type)
				VALUES ($1, $2, $3, $4, $5)
			`, clusterID, m.OpportunityID, next, m.SimilarityScore, m.MatchType); err != nil {
				return fmt.Errorf("insert cluster member: %w", err)
			}
		}
	}

	if _, err := tx.Exec(ctx, "UPDATE cluster_state SET active_generation = $1, updated_at = NOW() WHERE id = 1", next); err != nil {
		return fmt.Errorf("advance cluster generation: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM clusters WHERE generation <> $1", next); err != nil {
		return fmt.Errorf("purge superseded generations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}

// GetClusterForOpportunity returns the active-generation cluster the
// opportunity belongs to, with all members, or nil when it is unclustered.
func (s *ClusterStore) GetClusterForOpportunity(ctx context.Context, oppID uuid.UUID) (*models.ClusterDetail, error) {
	var c models.Cluster
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.generation, c.canonical_opportunity_id, c.cluster_score, c.match_type, c.member_count, c.created_at
		FROM clusters c
		JOIN cluster_members m ON m.cluster_id = c.id
		JOIN cluster_state st ON st.id = 1 AND c.generation = st.active_generation
		WHERE m.opportunity_id = $1
	`, oppID).Scan(&c.ID, &c.Generation, &c.CanonicalOpportunityID, &c.ClusterScore, &c.MatchType, &c.MemberCount, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cluster lookup: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT m.cluster_id, m.opportunity_id, m.similarity_score, m.match_type,
		       o.title, o.organization, o.score
		FROM cluster_members m
		JOIN opportunities o ON o.id = m.opportunity_id
		WHERE m.cluster_id = $1
		ORDER BY m.similarity_score DESC, o.score DESC
	`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("cluster members: %w", err)
	}
	defer rows.Close()

	detail := &models.ClusterDetail{Cluster: c, Members: []models.ClusterMember{}}
	for rows.Next() {
		var m models.ClusterMember
		if err := rows.Scan(&m.ClusterID, &m.OpportunityID, &m.SimilarityScore, &m.MatchType,
			&m.Title, &m.Organization, &m.Score); err != nil {
			return nil, fmt.Errorf("member scan: %w", err)
		}
		detail.Members = append(detail.Members, m)
	}
	return detail, rows.Err()
}

// Stats summarizes the active generation.
func (s *ClusterStore) Stats(ctx context.Context) (*models.ClusterStats, error) {
	stats := &models.ClusterStats{ByMatchType: map[string]int{}}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(member_count), 0)
		FROM clusters c
		JOIN cluster_state st ON st.id = 1 AND c.generation = st.active_generation
	`).Scan(&stats.TotalClusters, &stats.ClusteredOpportunities)
	if err != nil {
		return nil, fmt.Errorf("cluster totals: %w", err)
	}
	if stats.TotalClusters > 0 {
		stats.AvgMembersPerCluster = float64(stats.ClusteredOpportunities) / float64(stats.TotalClusters)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.match_type, COUNT(*)
		FROM clusters c
		JOIN cluster_state st ON st.id = 1 AND c.generation = st.active_generation
		GROUP BY c.match_type
	`)
	if err != nil {
		return nil, fmt.Errorf("cluster match-type counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var matchType string
		var count int
		if err := rows.Scan(&matchType, &count); err != nil {
			return nil, fmt.Errorf("match-type scan: %w", err)
		}
		stats.ByMatchType[matchType] = count
	}
	return stats, rows.Err()
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Match types, strongest signal first. A cluster records the pass that
// created it; members record the signal that pulled them in.
const (
	MatchTypeURL         = "url"
	MatchTypeFingerprint = "fingerprint"
	MatchTypeLexical     = "lexical"
)

// Cluster is a derived, disposable grouping of duplicate opportunities.
// The whole cluster set is rebuilt from scratch each batch run; only the
// generation referenced by the active pointer is visible to readers.
type Cluster struct {
	ID                     uuid.UUID `json:"id"`
	Generation             int64     `json:"-"`
	CanonicalOpportunityID uuid.UUID `json:"canonical_opportunity_id"`
	ClusterScore           float64   `json:"cluster_score"`
	MatchType              string    `json:"match_type"`
	MemberCount            int       `json:"member_count"`
	CreatedAt              time.Time `json:"created_at"`
}

type ClusterMember struct {
	ClusterID       uuid.UUID `json:"cluster_id"`
	OpportunityID   uuid.UUID `json:"opportunity_id"`
	SimilarityScore float64   `json:"similarity_score"`
	MatchType       string    `json:"match_type"`
	Title           string    `json:"title,omitempty"`
	Organization    string    `json:"organization,omitempty"`
	Score           int       `json:"score,omitempty"`
}

// ClusterDetail is the read model for "which cluster does this record
// belong to", with all members included.
type ClusterDetail struct {
	Cluster Cluster         `json:"cluster"`
	Members []ClusterMember `json:"members"`
}

// ClusterStats summarizes the active generation.
type ClusterStats struct {
	TotalClusters          int            `json:"total_clusters"`
	ClusteredOpportunities int            `json:"clustered_opportunities"`
	AvgMembersPerCluster   float64        `json:"avg_members_per_cluster"`
	ByMatchType            map[string]int `json:"by_match_type"`
}

package cluster

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/david/opp-radar/internal/models"
)

func opp(title, org, url string, score int) models.Opportunity {
	return models.Opportunity{
		ID:           uuid.New(),
		Title:        title,
		Organization: org,
		URLPrimary:   url,
		Score:        score,
		Status:       models.StatusActive,
	}
}

func TestBuildClusters_URLPass(t *testing.T) {
	a := opp("Spring Festival call", "Arts Council", "https://www.example.com/jobs/42", 10)
	b := opp("Totally different words here", "Someone Else", "http://example.com/jobs/42/", 30)
	c := opp("Unrelated residency", "Other Org", "https://other.example/residency", 5)

	clusters := buildClusters([]models.Opportunity{a, b, c}, DefaultThreshold)
	if len(clusters) != 1 {
		t.Fatalf("expected one cluster, got %d", len(clusters))
	}

	got := clusters[0]
	if got.MatchType != models.MatchTypeURL || got.ClusterScore != 1.0 {
		t.Fatalf("URL pass must score 1.0/url, got %+v", got)
	}
	if got.CanonicalID != b.ID {
		t.Fatal("canonical must be the highest-scored member")
	}
	if len(got.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(got.Members))
	}
}

func TestBuildClusters_FingerprintPass(t *testing.T) {
	// Different URLs, same content after filler stripping.
	a := opp("Call for Proposals: Spring Festival", "City Arts", "https://feed-a.example/1", 4)
	b := opp("Spring Festival — open call", "City Arts", "https://feed-b.example/99", 9)

	clusters := buildClusters([]models.Opportunity{a, b}, DefaultThreshold)
	if len(clusters) != 1 {
		t.Fatalf("expected one cluster, got %d", len(clusters))
	}
	got := clusters[0]
	if got.MatchType != models.MatchTypeFingerprint || got.ClusterScore != 0.95 {
		t.Fatalf("fingerprint pass must score 0.95/fingerprint, got %+v", got)
	}
	if got.CanonicalID != b.ID {
		t.Fatal("canonical must be the highest-scored member")
	}
}

func TestBuildClusters_LexicalPass(t *testing.T) {
	a := opp("Call for Proposals — Spring Festival", "City Arts", "https://feed-a.example/1", 2)
	a.Snippet = "Annual spring festival seeks artists"
	b := opp("Call for Proposals: Spring Festival 2025", "City Arts Council", "https://feed-b.example/2", 7)
	b.Snippet = "Annual spring festival seeks artists"
	c := opp("Harbor bridge maintenance tender", "Public Works", "https://feed-c.example/3", 1)

	threshold := 0.7
	clusters := buildClusters([]models.Opportunity{a, b, c}, threshold)
	if len(clusters) != 1 {
		t.Fatalf("expected one lexical cluster, got %d", len(clusters))
	}
	got := clusters[0]
	if got.MatchType != models.MatchTypeLexical {
		t.Fatalf("expected lexical match, got %q", got.MatchType)
	}
	// The cluster records the configured threshold, not pairwise scores.
	if got.ClusterScore != threshold {
		t.Fatalf("lexical cluster score must equal the threshold %f, got %f", threshold, got.ClusterScore)
	}
	if got.CanonicalID != b.ID {
		t.Fatal("canonical must be the highest-scored member")
	}
	for _, m := range got.Members {
		if m.OpportunityID == c.ID {
			t.Fatal("unrelated record must not join the cluster")
		}
	}
}

func TestBuildClusters_SingletonsFormNoCluster(t *testing.T) {
	a := opp("Alpha", "Org A", "https://a.example/1", 1)
	b := opp("Beta", "Org B", "https://b.example/2", 1)
	if clusters := buildClusters([]models.Opportunity{a, b}, DefaultThreshold); len(clusters) != 0 {
		t.Fatalf("expected no clusters, got %d", len(clusters))
	}
}

func TestBuildClusters_NoOpportunityInTwoClusters(t *testing.T) {
	// a and b share a URL; b and c share content; b must only appear once,
	// claimed by the earlier (stronger) pass.
	a := opp("First wording of the call", "Arts Council", "https://example.com/call/7", 3)
	b := opp("Spring Festival", "Arts Council", "http://www.example.com/call/7", 5)
	c := opp("Spring Festival", "Arts Council", "https://mirror.example/xyz", 2)
	d := opp("Spring Festival", "Arts Council", "https://mirror2.example/abc", 1)

	clusters := buildClusters([]models.Opportunity{a, b, c, d}, DefaultThreshold)

	seen := map[uuid.UUID]int{}
	for _, cl := range clusters {
		for _, m := range cl.Members {
			seen[m.OpportunityID]++
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Fatalf("opportunity %s appears in %d clusters", id, n)
		}
	}
	if seen[b.ID] != 1 {
		t.Fatal("b must be claimed by exactly one pass")
	}
}

func TestBuildClusters_Deterministic(t *testing.T) {
	a := opp("Spring Festival call", "Arts", "https://example.com/1", 1)
	b := opp("Spring Festival call", "Arts", "https://mirror.example/1", 2)
	c := opp("Autumn Fair tender", "City", "https://example.com/2", 3)
	d := opp("Autumn Fair tender", "City", "https://mirror.example/2", 4)
	working := []models.Opportunity{a, b, c, d}

	first := buildClusters(working, DefaultThreshold)
	second := buildClusters(working, DefaultThreshold)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("consecutive rebuilds over an unchanged working set must match")
	}
}

// fakeStore drives Builder.Rebuild without a database.
type fakeStore struct {
	opps    []models.Opportunity
	locked  bool
	swapped []Built
	swapErr error
}

func (f *fakeStore) TryRebuildLock(context.Context) (func(), bool, error) {
	if f.locked {
		return func() {}, false, nil
	}
	f.locked = true
	return func() { f.locked = false }, true, nil
}

func (f *fakeStore) ListActiveOpportunities(_ context.Context, limit int) ([]models.Opportunity, error) {
	if len(f.opps) > limit {
		return f.opps[:limit], nil
	}
	return f.opps, nil
}

func (f *fakeStore) SwapClusters(_ context.Context, clusters []Built) error {
	if f.swapErr != nil {
		return f.swapErr
	}
	f.swapped = clusters
	return nil
}

func TestRebuild_Summary(t *testing.T) {
	a := opp("Spring Festival call", "Arts", "https://example.com/1", 1)
	b := opp("Different words entirely", "Other", "https://www.example.com/1/", 2)
	c := opp("Standalone tender", "City", "https://example.com/9", 3)
	store := &fakeStore{opps: []models.Opportunity{a, b, c}}

	builder := NewBuilder(store, zerolog.Nop())
	summary, err := builder.Rebuild(context.Background(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if summary.ClustersCreated != 1 || summary.OpportunitiesClustered != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.SimilarityThreshold != DefaultThreshold {
		t.Fatalf("zero threshold must fall back to the default, got %f", summary.SimilarityThreshold)
	}
	if len(store.swapped) != 1 {
		t.Fatalf("expected one persisted cluster, got %d", len(store.swapped))
	}
}

func TestRebuild_SingleFlight(t *testing.T) {
	store := &fakeStore{locked: true}
	builder := NewBuilder(store, zerolog.Nop())
	if _, err := builder.Rebuild(context.Background(), 0, 0); err != ErrRebuildInProgress {
		t.Fatalf("expected ErrRebuildInProgress, got %v", err)
	}
}

func TestRebuild_SwapFailurePropagates(t *testing.T) {
	a := opp("Spring Festival call", "Arts", "https://example.com/1", 1)
	b := opp("Other words", "Arts", "https://www.example.com/1", 2)
	store := &fakeStore{opps: []models.Opportunity{a, b}, swapErr: context.DeadlineExceeded}

	builder := NewBuilder(store, zerolog.Nop())
	if _, err := builder.Rebuild(context.Background(), 0, 0); err == nil {
		t.Fatal("storage failure during swap must propagate to the caller")
	}
	if store.locked {
		t.Fatal("rebuild lock must be released after a failed rebuild")
	}
}

func TestRebuild_BatchSizeClamped(t *testing.T) {
	opps := make([]models.Opportunity, 0, 200)
	for i := 0; i < 200; i++ {
		opps = append(opps, opp("Unique title", "Org", "", i))
	}
	store := &fakeStore{opps: opps}
	builder := NewBuilder(store, zerolog.Nop())

	summary, err := builder.Rebuild(context.Background(), 1, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if summary.WorkingSetSize != MinBatchSize {
		t.Fatalf("batch size below the floor must clamp to %d, got %d", MinBatchSize, summary.WorkingSetSize)
	}
}

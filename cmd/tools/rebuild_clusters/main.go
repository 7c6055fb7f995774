package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/opp-radar/internal/cluster"
	"github.com/david/opp-radar/internal/config"
	"github.com/david/opp-radar/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	batchSize := flag.Int("batch-size", cfg.ClusterBatchSize, "working set size (clamped to 100..5000)")
	threshold := flag.Float64("threshold", cfg.ClusterSimilarityThreshold, "lexical similarity threshold")
	flag.Parse()

	logger, err := config.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	builder := cluster.NewBuilder(db.NewClusterStore(pool), logger)
	summary, err := builder.Rebuild(ctx, *batchSize, *threshold)
	if err != nil {
		log.Fatalf("rebuild failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Clusters", "Clustered Records", "Working Set", "Threshold", "Duration"})
	t.AppendRow(table.Row{
		summary.ClustersCreated,
		summary.OpportunitiesClustered,
		summary.WorkingSetSize,
		fmt.Sprintf("%.2f", summary.SimilarityThreshold),
		fmt.Sprintf("%.2fs", summary.DurationSeconds),
	})
	t.Render()
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/david/opp-radar/internal/config"
	"github.com/david/opp-radar/internal/db"
	"github.com/david/opp-radar/internal/scoring"
)

type output struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

func main() {
	limit := flag.Int("limit", 0, "max records to rescore (0 = all matchable)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
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

	store := db.NewStore(pool)
	rules, err := db.NewRuleStore(pool).LoadActive(ctx)
	if err != nil {
		log.Fatalf("rule load failed: %v", err)
	}
	engine := scoring.NewEngine(rules, logger)

	opps, err := store.ListActive(ctx, *limit)
	if err != nil {
		log.Fatalf("list failed: %v", err)
	}

	now := time.Now().UTC()
	result := output{Scanned: len(opps)}
	for _, opp := range opps {
		score, breakdown := engine.Score(opp, now)
		if err := store.UpdateScore(ctx, opp.ID, score, breakdown); err != nil {
			logger.Error().Err(err).Str("id", opp.ID.String()).Msg("rescore failed")
			result.Errors++
			continue
		}
		result.Updated++
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal(err)
	}
}

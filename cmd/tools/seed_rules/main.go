package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/david/opp-radar/internal/config"
	"github.com/david/opp-radar/internal/db"
	"github.com/david/opp-radar/internal/models"
	"github.com/david/opp-radar/internal/scoring"
)

func main() {
	rulesPath := flag.String("file", "", "rules YAML file (empty seeds the built-in defaults)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := config.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}

	var rules []models.ScoringRule
	if *rulesPath != "" {
		data, err := os.ReadFile(*rulesPath)
		if err != nil {
			log.Fatalf("read rules file: %v", err)
		}
		rules, err = scoring.ParseRulesYAML(data)
		if err != nil {
			log.Fatalf("parse rules file: %v", err)
		}
	} else {
		rules = scoring.DefaultRules()
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

	ruleStore := db.NewRuleStore(pool)
	for _, r := range rules {
		if err := ruleStore.Upsert(ctx, r); err != nil {
			log.Fatalf("seed rule %q: %v", r.Label, err)
		}
	}
	logger.Info().Int("rules", len(rules)).Msg("scoring rules seeded")
}

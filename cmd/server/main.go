package main

import (
	"context"
	"log"

	"github.com/david/opp-radar/internal/api"
	"github.com/david/opp-radar/internal/config"
	"github.com/david/opp-radar/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	srv := api.NewServer(pool, cfg, logger)
	logger.Info().Str("port", cfg.Port).Msg("server starting")
	if err := srv.Start(cfg.Port); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

package main

import (
	"context"
	"os"

	"github.com/Bacorsx/EcoEnergy-IC/internal/config"
	"github.com/Bacorsx/EcoEnergy-IC/internal/logger"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
	"github.com/Bacorsx/EcoEnergy-IC/migrations"
)

// loadConfig reads the same YAML, .env and environment chain as the server.
func loadConfig() (config.Config, error) {
	return config.Load(os.Getenv("CONFIG_FILE"))
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)
	log := logger.WithComponent("migrate")

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer store.Close()

	err = migrations.Apply(ctx, store.Pool, func(name string) {
		log.Info().Str("file", name).Msg("applied migration")
	})
	if err != nil {
		log.Error().Err(err).Msg("migration failed")
		store.Close()
		os.Exit(1)
	}
}

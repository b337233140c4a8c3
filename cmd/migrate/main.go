package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/quatton/batchffmpeg/pkg/db"
	"github.com/quatton/batchffmpeg/pkg/qlog"
)

func main() {
	log := qlog.NewDefault()

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found")
	} else {
		log.Info("loaded .env file")
	}

	ctx := context.Background()

	cfg := db.Config{
		Host:     "localhost",
		Port:     5432,
		User:     "ffqm",
		Password: "password",
		Database: "ffqm",
		SSLMode:  "disable",
	}

	if err := envconfig.Process("DB", &cfg); err != nil {
		log.Fatalf("failed to process env vars: %v", err)
	}
	if cfg.URL == "" {
		cfg.URL = os.Getenv("METRICS_DATABASE_URL")
	}

	database, err := db.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Info("running migrations")
	if err := db.Migrate(ctx, database, log); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	log.Info("migrations completed successfully")
}

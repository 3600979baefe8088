package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mbarreto/almox/internal/app"
	"github.com/mbarreto/almox/internal/config"
	"github.com/mbarreto/almox/internal/db"
	"github.com/mbarreto/almox/internal/migrate"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// local development convenience; missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer database.Close()

	if cfg.AutoMigrate {
		if err := migrate.Run(ctx, database, cfg.MigrationsDir); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
	}

	application, err := app.New(cfg, database)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}

	log.Printf("almox api listening on %s", cfg.HTTPAddr)
	if err := application.Run(ctx); err != nil {
		log.Fatalf("run server: %v", err)
	}
}

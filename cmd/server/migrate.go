package main

import (
	"context"
	"fmt"
	"log/slog"

	"mrsh/internal/db"
)

func runMigrate(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.OpenWithoutMigrations(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	before, err := database.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx); err != nil {
		return err
	}
	after, err := database.MigrationVersion(ctx)
	if err != nil {
		return err
	}

	slog.Info("database migrated", "path", cfg.Database.Path, "from", before, "to", after)
	return nil
}

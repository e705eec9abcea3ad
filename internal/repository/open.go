package repository

import (
	"context"
	"fmt"
	"log/slog"

	"truefantix/internal/database"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Open выбирает хранилище по DB_DRIVER; для postgres прогоняет миграции
func Open(ctx context.Context, driver string, cfg database.Config) (Store, error) {
	if driver == DriverMemory {
		slog.Warn("Using in-memory store, data is lost on restart")
		return NewMemoryStore(), nil
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	db.ValidateConnectionPool()
	return NewPostgresStore(db), nil
}

package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"quackscribe/pkg/logger"
	"quackscribe/pkg/model"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PostgresStorage holds the per-user usage counters.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(databaseURL string) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database migrations completed successfully")

	return &PostgresStorage{pool: pool}, nil
}

func runMigrations(databaseURL string) error {
	migrationsPath, err := filepath.Abs("migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}
	migrationsURL := fmt.Sprintf("file://%s", filepath.ToSlash(migrationsPath))

	logger.Info("Running migrations", zap.String("path", migrationsURL))

	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	db := stdlib.OpenDB(*connConfig)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) Close() {
	s.pool.Close()
}

// AddUsage accumulates transcribed seconds for a user: insert on first
// sighting, add-in-place afterwards.
func (s *PostgresStorage) AddUsage(ctx context.Context, userID, seconds int64) error {
	query := `
		INSERT INTO usage_stats (user_id, transcribed_seconds, requests, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET transcribed_seconds = usage_stats.transcribed_seconds + EXCLUDED.transcribed_seconds,
		    requests = usage_stats.requests + 1,
		    updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, userID, seconds)
	if err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}

	return nil
}

// GetUsage returns the counters for a user, or a zero row when the user has
// never transcribed anything.
func (s *PostgresStorage) GetUsage(ctx context.Context, userID int64) (*model.UsageStats, error) {
	query := `
		SELECT user_id, transcribed_seconds, requests, updated_at
		FROM usage_stats
		WHERE user_id = $1`

	var stats model.UsageStats
	row := s.pool.QueryRow(ctx, query, userID)

	err := row.Scan(&stats.UserID, &stats.TranscribedSeconds, &stats.Requests, &stats.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &model.UsageStats{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	return &stats, nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"coursepay/internal/config"
)

// NewPostgres opens the connection pool and verifies it with a ping.
func NewPostgres(cfg config.Postgres) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.Schema,
	)

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the schema. Idempotent; runs at startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		title TEXT NOT NULL,
		price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
		image_url TEXT NOT NULL DEFAULT '',
		published BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS payment_settings (
		tenant_id UUID PRIMARY KEY,
		provider TEXT NOT NULL,
		secret_key TEXT NOT NULL DEFAULT '',
		publishable_key TEXT NOT NULL DEFAULT '',
		webhook_secret TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		course_id UUID NOT NULL,
		buyer_id UUID NOT NULL,
		provider TEXT NOT NULL,
		provider_ref TEXT NOT NULL DEFAULT '',
		amount_cents BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS purchases_provider_ref_uq
		ON purchases (provider, provider_ref) WHERE provider_ref <> ''`,
	`CREATE INDEX IF NOT EXISTS purchases_stuck_idx
		ON purchases (updated_at) WHERE status = 'INITIATED'`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		tenant_id UUID NOT NULL,
		user_id UUID NOT NULL,
		course_id UUID NOT NULL,
		granted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, user_id, course_id)
	)`,
}

// Health reports pool statistics for the health endpoint.
func Health(ctx context.Context, db *sql.DB) map[string]string {
	stats := make(map[string]string)

	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}

	dbStats := db.Stats()
	stats["status"] = "up"
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	return stats
}

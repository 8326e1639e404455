package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/vaidashi/bakery-production/internal/config"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New creates a new database connection
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect("postgres", cfg.GetDBConnString())

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", "host", cfg.DB.Host, "database", cfg.DB.Name)

	return &Database{
		DB:     db,
		logger: logger,
	}, nil
}

// Wrap builds a Database around an existing handle
func Wrap(db *sqlx.DB, logger logger.Logger) *Database {
	return &Database{DB: db, logger: logger}
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

// Schema creates every table the service needs. It is idempotent.
const Schema = `
	CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(50) PRIMARY KEY,
		batch_label VARCHAR(100) NOT NULL,
		flavor VARCHAR(20) NOT NULL,
		shape VARCHAR(20) NOT NULL,
		size_cm INT NOT NULL CHECK (size_cm > 0),
		requested_quantity INT NOT NULL CHECK (requested_quantity >= 1),
		produced_quantity INT CHECK (produced_quantity >= 0),
		is_priority BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		assigned_mixer INT,
		assigned_oven INT,
		estimated_minutes INT NOT NULL,
		print_count INT NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		started_at TIMESTAMP,
		bake_started_at TIMESTAMP,
		completed_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_status_mixer ON orders(status, assigned_mixer);

	CREATE SEQUENCE IF NOT EXISTS custom_label_seq START 1;

	CREATE TABLE IF NOT EXISTS daily_production (
		day DATE PRIMARY KEY,
		completed INT NOT NULL DEFAULT 0
	);

	-- Outbox table for message publishing
	CREATE TABLE IF NOT EXISTS outbox_messages (
		id SERIAL PRIMARY KEY,
		aggregate_type VARCHAR(50) NOT NULL,
		aggregate_id VARCHAR(50) NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMP,
		processing_attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		status VARCHAR(20) NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status);
	CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id);
`

// BackfillMixers gives mixing rows written before assigned_mixer existed the
// mixer their label names, or mixer #1, the same rule the board applies
// when it counts occupancy.
const BackfillMixers = `
	UPDATE orders
	SET assigned_mixer = COALESCE(substring(batch_label from '\(Mixer #([12])\)\s*$')::int, 1)
	WHERE status = 'mixing' AND assigned_mixer IS NULL
`

// RunMigrations runs database migrations
func (d *Database) RunMigrations() error {
	_, err := d.DB.Exec(Schema)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	result, err := d.DB.Exec(BackfillMixers)

	if err != nil {
		return fmt.Errorf("failed to backfill mixer assignments: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		d.logger.Info("Backfilled mixer assignments", "orders", n)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}

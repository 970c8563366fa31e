package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id CHAR(36) NOT NULL PRIMARY KEY,
		artist VARCHAR(255) NOT NULL,
		album VARCHAR(255) NOT NULL,
		price DECIMAL(12,2) NOT NULL,
		qty INT NOT NULL,
		format VARCHAR(32) NOT NULL,
		category VARCHAR(32) NOT NULL,
		external_id VARCHAR(64) NULL,
		tracks JSON NULL,
		tracks_synced_at DATETIME(6) NULL,
		sync_status VARCHAR(16) NOT NULL DEFAULT 'UNSET',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		CONSTRAINT chk_records_qty CHECK (qty >= 0),
		UNIQUE KEY uq_records_artist_album_format (artist, album, format),
		KEY idx_records_category_format (category, format),
		KEY idx_records_external_id (external_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id CHAR(36) NOT NULL PRIMARY KEY,
		status VARCHAR(16) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		KEY idx_orders_status (status)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id CHAR(36) NOT NULL,
		position INT NOT NULL,
		record_id CHAR(36) NOT NULL,
		quantity INT NOT NULL,
		price DECIMAL(12,2) NOT NULL,
		PRIMARY KEY (order_id, position),
		KEY idx_order_items_record (record_id),
		CONSTRAINT fk_order_items_order FOREIGN KEY (order_id) REFERENCES orders (id)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		artist TEXT NOT NULL,
		album TEXT NOT NULL,
		price NUMERIC(12,2) NOT NULL,
		qty INTEGER NOT NULL CHECK (qty >= 0),
		format TEXT NOT NULL,
		category TEXT NOT NULL,
		external_id TEXT,
		tracks TEXT,
		tracks_synced_at TIMESTAMPTZ,
		sync_status TEXT NOT NULL DEFAULT 'UNSET',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (artist, album, format)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_external_id ON records (external_id)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL REFERENCES orders (id),
		position INTEGER NOT NULL,
		record_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		price NUMERIC(12,2) NOT NULL,
		PRIMARY KEY (order_id, position)
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		artist TEXT NOT NULL,
		album TEXT NOT NULL,
		price NUMERIC NOT NULL,
		qty INTEGER NOT NULL CHECK (qty >= 0),
		format TEXT NOT NULL,
		category TEXT NOT NULL,
		external_id TEXT,
		tracks TEXT,
		tracks_synced_at DATETIME,
		sync_status TEXT NOT NULL DEFAULT 'UNSET',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (artist, album, format)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL REFERENCES orders (id),
		position INTEGER NOT NULL,
		record_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		price NUMERIC NOT NULL,
		PRIMARY KEY (order_id, position)
	)`,
}

// Migrate creates the tables for the connected driver. It is safe to run on every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	var stmts []string
	switch db.DriverName() {
	case DriverMySQL:
		stmts = mysqlSchema
	case DriverPostgres:
		stmts = postgresSchema
	case DriverSQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("migrate: unsupported driver %q", db.DriverName())
	}

	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
)

var schemas = map[Dialect][]string{
	MySQL: {
		`CREATE TABLE IF NOT EXISTS tickets (
			number           INT UNSIGNED NOT NULL PRIMARY KEY,
			status           ENUM('available','reserved','sold') NOT NULL DEFAULT 'available',
			holder_name      VARCHAR(255) NULL,
			holder_contact   VARCHAR(255) NULL,
			reservation_date DATETIME NULL,
			INDEX idx_tickets_status_date (status, reservation_date)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	SQLite: {
		`CREATE TABLE IF NOT EXISTS tickets (
			number           INTEGER PRIMARY KEY,
			status           TEXT NOT NULL DEFAULT 'available'
			                 CHECK (status IN ('available','reserved','sold')),
			holder_name      TEXT,
			holder_contact   TEXT,
			reservation_date DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_status_date ON tickets (status, reservation_date)`,
	},
}

// Migrate creates the tickets table and its index when they do not exist.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts, ok := schemas[d]
	if !ok {
		return fmt.Errorf("no schema for dialect %q", d)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

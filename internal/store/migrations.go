package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "cells: one boolean value per write/read key pair",
		SQL: `
CREATE TABLE cells (
    id                 INTEGER PRIMARY KEY,
    write_key          TEXT NOT NULL UNIQUE,
    read_key           TEXT NOT NULL UNIQUE,
    bit                INTEGER NOT NULL DEFAULT 0,
    last_written_at    INTEGER NOT NULL,

    -- Gravity timer: expires_at is set iff enabled = 1
    gravity_enabled    INTEGER NOT NULL DEFAULT 0,
    gravity_expires_at INTEGER,

    CHECK (gravity_enabled IN (0, 1)),
    CHECK ((gravity_enabled = 1) = (gravity_expires_at IS NOT NULL))
);

CREATE INDEX idx_cells_last_written ON cells(last_written_at);
-- Partial index: the gravity sweep only ever scans armed cells
CREATE INDEX idx_cells_gravity ON cells(gravity_expires_at) WHERE gravity_enabled = 1;
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

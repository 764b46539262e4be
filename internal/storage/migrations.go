package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application expects.
const ExpectedSchemaVersion = 3

// Migration is one schema step, tracked in PRAGMA user_version.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Subjects and assignments",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS subjects (
					id TEXT PRIMARY KEY,
					organization_id TEXT NOT NULL,
					date DATETIME,
					description TEXT NOT NULL DEFAULT '',
					merchant_name TEXT NOT NULL DEFAULT '',
					merchant_code TEXT NOT NULL DEFAULT '',
					amount REAL,
					currency TEXT NOT NULL DEFAULT '',
					unit TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_subjects_org_date ON subjects(organization_id, date)`,

				`CREATE TABLE IF NOT EXISTS assignments (
					subject_id TEXT PRIMARY KEY,
					category TEXT NOT NULL,
					scope INTEGER NOT NULL,
					confidence REAL NOT NULL,
					tier TEXT NOT NULL,
					rationale TEXT NOT NULL DEFAULT '',
					classified_by TEXT NOT NULL DEFAULT '',
					needs_review INTEGER NOT NULL DEFAULT 0,
					pinned INTEGER NOT NULL DEFAULT 0,
					factor_id TEXT,
					quantity REAL,
					emission_kg_co2e REAL,
					classified_at DATETIME NOT NULL,
					FOREIGN KEY (subject_id) REFERENCES subjects(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_assignments_category ON assignments(category)`,
				`CREATE INDEX idx_assignments_review ON assignments(needs_review)`,

				`CREATE TABLE IF NOT EXISTS assignment_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					subject_id TEXT NOT NULL,
					category TEXT NOT NULL,
					confidence REAL NOT NULL,
					tier TEXT NOT NULL,
					classified_by TEXT NOT NULL DEFAULT '',
					classified_at DATETIME NOT NULL,
					replaced_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_assignment_history_subject ON assignment_history(subject_id)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Learned rules",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS learned_rules (
					id TEXT PRIMARY KEY,
					organization_id TEXT NOT NULL,
					merchant_key TEXT NOT NULL,
					category TEXT NOT NULL,
					confidence REAL NOT NULL,
					source TEXT NOT NULL DEFAULT 'manual',
					created_by TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					UNIQUE (organization_id, merchant_key)
				)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Emission factor catalog",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS emission_factors (
					id TEXT PRIMARY KEY,
					code TEXT NOT NULL DEFAULT '',
					name TEXT NOT NULL,
					names TEXT NOT NULL DEFAULT '{}',
					description TEXT NOT NULL DEFAULT '',
					aliases TEXT NOT NULL DEFAULT '[]',
					category TEXT NOT NULL DEFAULT '',
					scope INTEGER NOT NULL DEFAULT 0,
					country TEXT NOT NULL DEFAULT '',
					region TEXT NOT NULL DEFAULT '',
					unit TEXT NOT NULL,
					kg_co2e_per_unit REAL NOT NULL,
					uncertainty REAL NOT NULL DEFAULT 0,
					source TEXT NOT NULL DEFAULT '',
					methodology TEXT NOT NULL DEFAULT '',
					valid_from DATETIME,
					valid_until DATETIME,
					active INTEGER NOT NULL DEFAULT 1,
					search_text TEXT NOT NULL DEFAULT '',
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_factors_scope_unit ON emission_factors(scope, unit)`,
				`CREATE INDEX idx_factors_category ON emission_factors(category)`,
			})
		},
	},
}

// SchemaVersion returns the applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}

// Migrate applies pending migrations, each in its own transaction.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}
	return nil
}

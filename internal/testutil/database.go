// Package testutil provides database helpers shared by integration tests.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
	"github.com/Veraticus/the-carbon-must-flow/internal/storage"
	"github.com/Veraticus/the-carbon-must-flow/internal/testutil/fixtures"
)

// TestDB is a migrated in-memory database bound to one test.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a migrated in-memory database seeded with the
// standard factor catalog. It is closed when the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Factors: fixtures.StandardCatalog()})
}

// TestDBOptions configures SetupTestDBWithOptions.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Factors        []model.EmissionFactor
	Subjects       []model.Subject
	SkipMigrations bool
}

// SetupTestDBWithOptions creates an in-memory database with custom seed data.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	db := &TestDB{Storage: store, t: t}
	if len(opts.Factors) > 0 {
		db.MustSaveFactors(opts.Factors...)
	}
	if len(opts.Subjects) > 0 {
		db.MustSaveSubjects(opts.Subjects...)
	}
	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}
	return db
}

// MustSaveSubjects stores subjects or fails the test.
func (db *TestDB) MustSaveSubjects(subjects ...model.Subject) {
	db.t.Helper()
	if _, err := db.Storage.SaveSubjects(context.Background(), subjects); err != nil {
		db.t.Fatalf("failed to seed subjects: %v", err)
	}
}

// MustSaveFactors stores catalog entries or fails the test.
func (db *TestDB) MustSaveFactors(list ...model.EmissionFactor) {
	db.t.Helper()
	if _, err := db.Storage.SaveFactors(context.Background(), list); err != nil {
		db.t.Fatalf("failed to seed factors: %v", err)
	}
}

// MustGetAssignment returns the stored assignment of a subject or fails the test.
func (db *TestDB) MustGetAssignment(subjectID string) model.Assignment {
	db.t.Helper()
	a, err := db.Storage.GetAssignment(context.Background(), subjectID)
	if err != nil {
		db.t.Fatalf("assignment for %s: %v", subjectID, err)
	}
	return a
}

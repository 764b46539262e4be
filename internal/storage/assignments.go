package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

const assignmentColumns = `a.subject_id, a.category, a.scope, a.confidence, a.tier, a.rationale,
	a.classified_by, a.needs_review, a.pinned, a.factor_id, a.quantity, a.emission_kg_co2e, a.classified_at`

// SaveAssignment writes the assignment for a subject, keeping the previous
// one in assignment_history. An automatic assignment never replaces a
// pinned one; that write is skipped and reported as common.ErrPinned.
func (s *SQLiteStorage) SaveAssignment(ctx context.Context, a model.Assignment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAssignment(a); err != nil {
		return &common.RetryableError{Err: err, Retryable: false}
	}
	if a.ClassifiedAt.IsZero() {
		a.ClassifiedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := scanAssignment(tx.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments a WHERE a.subject_id = ?`, a.SubjectID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	case prev.Pinned && !a.Pinned:
		slog.Debug("Keeping pinned assignment", "subject_id", a.SubjectID, "category", prev.Category)
		return common.ErrPinned
	default:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO assignment_history (subject_id, category, confidence, tier, classified_by, classified_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			prev.SubjectID, prev.Category, prev.Confidence, prev.Tier, prev.ClassifiedBy, formatTime(prev.ClassifiedAt)); err != nil {
			return fmt.Errorf("failed to record assignment history: %w", err)
		}
	}

	var factorID any
	if a.FactorID != "" {
		factorID = a.FactorID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignments
			(subject_id, category, scope, confidence, tier, rationale, classified_by,
			 needs_review, pinned, factor_id, quantity, emission_kg_co2e, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			category = excluded.category,
			scope = excluded.scope,
			confidence = excluded.confidence,
			tier = excluded.tier,
			rationale = excluded.rationale,
			classified_by = excluded.classified_by,
			needs_review = excluded.needs_review,
			pinned = excluded.pinned,
			factor_id = excluded.factor_id,
			quantity = excluded.quantity,
			emission_kg_co2e = excluded.emission_kg_co2e,
			classified_at = excluded.classified_at`,
		a.SubjectID, a.Category, int(a.Scope), a.Confidence, a.Tier, a.Rationale, a.ClassifiedBy,
		a.NeedsReview, a.Pinned, factorID, nullFloat(a.Quantity), nullFloat(a.EmissionKgCO2e),
		formatTime(a.ClassifiedAt))
	if err != nil {
		return fmt.Errorf("failed to save assignment for %s: %w", a.SubjectID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignment: %w", err)
	}
	return nil
}

// GetAssignment returns the current assignment of a subject.
func (s *SQLiteStorage) GetAssignment(ctx context.Context, subjectID string) (model.Assignment, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments a WHERE a.subject_id = ?`, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, fmt.Errorf("assignment for %s: %w", subjectID, common.ErrNotFound)
	}
	return a, err
}

// AssignmentHistory returns the replaced assignments of a subject, oldest first.
func (s *SQLiteStorage) AssignmentHistory(ctx context.Context, subjectID string) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, category, confidence, tier, classified_by, classified_at
		FROM assignment_history WHERE subject_id = ? ORDER BY id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		var at sql.NullString
		if err := rows.Scan(&a.SubjectID, &a.Category, &a.Confidence, &a.Tier, &a.ClassifiedBy, &at); err != nil {
			return nil, fmt.Errorf("failed to scan assignment history: %w", err)
		}
		a.Scope = a.Category.Scope()
		a.ClassifiedAt = parseTime(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAssignments returns the organization's assignments for subjects dated
// within [from, to].
func (s *SQLiteStorage) ListAssignments(ctx context.Context, org string, from, to time.Time) ([]model.Assignment, error) {
	query, args := periodQuery(`
		SELECT `+assignmentColumns+`
		FROM assignments a JOIN subjects s ON s.id = a.subject_id
		WHERE s.organization_id = ?`, org, from, to)
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY s.date, s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// QualityRecords returns the quantified records of the organization for
// the period, ready for the anomaly checks. The record unit is the declared
// subject unit, falling back to the currency for spend-based records.
func (s *SQLiteStorage) QualityRecords(ctx context.Context, org string, from, to time.Time) ([]model.Record, error) {
	query, args := periodQuery(`
		SELECT s.id, s.date, COALESCE(NULLIF(s.description, ''), s.merchant_name),
			COALESCE(NULLIF(s.unit, ''), s.currency), COALESCE(a.factor_id, ''),
			a.category, a.quantity, a.emission_kg_co2e
		FROM assignments a JOIN subjects s ON s.id = a.subject_id
		WHERE s.organization_id = ? AND a.emission_kg_co2e IS NOT NULL`, org, from, to)
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY s.date, s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Record
	for rows.Next() {
		var r model.Record
		var date sql.NullString
		var qty sql.NullFloat64
		if err := rows.Scan(&r.ID, &date, &r.Description, &r.Unit, &r.FactorID, &r.Category, &qty, &r.EmissionKgCO2e); err != nil {
			return nil, fmt.Errorf("failed to scan quality record: %w", err)
		}
		r.Date = parseTime(date)
		r.Quantity = qty.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanAssignment(sc scanner) (model.Assignment, error) {
	var a model.Assignment
	var scope int
	var factorID, at sql.NullString
	var qty, emission sql.NullFloat64
	err := sc.Scan(&a.SubjectID, &a.Category, &scope, &a.Confidence, &a.Tier, &a.Rationale,
		&a.ClassifiedBy, &a.NeedsReview, &a.Pinned, &factorID, &qty, &emission, &at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan assignment: %w", err)
	}
	a.Scope = model.Scope(scope)
	a.FactorID = factorID.String
	a.Quantity = floatPtr(qty)
	a.EmissionKgCO2e = floatPtr(emission)
	a.ClassifiedAt = parseTime(at)
	return a, nil
}

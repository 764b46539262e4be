package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

const subjectColumns = `s.id, s.organization_id, s.date, s.description, s.merchant_name,
	s.merchant_code, s.amount, s.currency, s.unit, s.source`

// SaveSubjects inserts subjects, ignoring ids already stored, and returns
// how many were new.
func (s *SQLiteStorage) SaveSubjects(ctx context.Context, subjects []model.Subject) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO subjects
			(id, organization_id, date, description, merchant_name, merchant_code, amount, currency, unit, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for i, subj := range subjects {
		if err := validateString(subj.ID, "id"); err != nil {
			return 0, fmt.Errorf("subject at index %d: %w", i, err)
		}
		if err := validateString(subj.OrganizationID, "organization_id"); err != nil {
			return 0, fmt.Errorf("subject %s: %w", subj.ID, err)
		}
		res, err := stmt.ExecContext(ctx,
			subj.ID, subj.OrganizationID, formatTime(subj.Date),
			subj.Description, subj.MerchantName, strings.TrimSpace(subj.MerchantCode),
			nullFloat(subj.Amount), subj.Currency, subj.Unit, subj.Source)
		if err != nil {
			return 0, fmt.Errorf("failed to insert subject %s: %w", subj.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit subjects: %w", err)
	}
	return inserted, nil
}

// GetSubject returns one subject.
func (s *SQLiteStorage) GetSubject(ctx context.Context, id string) (model.Subject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subjectColumns+` FROM subjects s WHERE s.id = ?`, id)
	subj, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subject{}, fmt.Errorf("subject %s: %w", id, common.ErrNotFound)
	}
	return subj, err
}

// ListUnassigned returns the organization's subjects that have no
// assignment yet, oldest first.
func (s *SQLiteStorage) ListUnassigned(ctx context.Context, org string) ([]model.Subject, error) {
	return s.querySubjects(ctx, `
		SELECT `+subjectColumns+`
		FROM subjects s
		LEFT JOIN assignments a ON a.subject_id = s.id
		WHERE s.organization_id = ? AND a.subject_id IS NULL
		ORDER BY s.date, s.id`, org)
}

// ListUnclassified returns the subjects a new learned rule may claim:
// those without an assignment and those whose automatic assignment still
// needs review. Pinned assignments are never returned.
func (s *SQLiteStorage) ListUnclassified(ctx context.Context, org string) ([]model.Subject, error) {
	return s.querySubjects(ctx, `
		SELECT `+subjectColumns+`
		FROM subjects s
		LEFT JOIN assignments a ON a.subject_id = s.id
		WHERE s.organization_id = ?
		  AND (a.subject_id IS NULL OR (a.needs_review = 1 AND a.pinned = 0))
		ORDER BY s.date, s.id`, org)
}

// ListSubjects returns the organization's subjects dated within [from, to].
// Zero times leave that side open.
func (s *SQLiteStorage) ListSubjects(ctx context.Context, org string, from, to time.Time) ([]model.Subject, error) {
	query, args := periodQuery(`SELECT `+subjectColumns+` FROM subjects s WHERE s.organization_id = ?`, org, from, to)
	return s.querySubjects(ctx, query+` ORDER BY s.date, s.id`, args...)
}

func periodQuery(base, org string, from, to time.Time) (string, []any) {
	args := []any{org}
	if !from.IsZero() {
		base += ` AND s.date >= ?`
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		base += ` AND s.date <= ?`
		args = append(args, formatTime(to))
	}
	return base, args
}

func (s *SQLiteStorage) querySubjects(ctx context.Context, query string, args ...any) ([]model.Subject, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Subject
	for rows.Next() {
		subj, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, subj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subjects: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubject(sc scanner) (model.Subject, error) {
	var subj model.Subject
	var date sql.NullString
	var amount sql.NullFloat64
	err := sc.Scan(&subj.ID, &subj.OrganizationID, &date, &subj.Description, &subj.MerchantName,
		&subj.MerchantCode, &amount, &subj.Currency, &subj.Unit, &subj.Source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return subj, err
		}
		return subj, fmt.Errorf("failed to scan subject: %w", err)
	}
	subj.Date = parseTime(date)
	subj.Amount = floatPtr(amount)
	return subj, nil
}

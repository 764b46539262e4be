package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

const ruleColumns = `id, organization_id, merchant_key, category, confidence, source, created_by, created_at, updated_at`

// UpsertRule inserts the rule or overwrites the one stored for the same
// organization and key. The stored id and creation time are kept on overwrite.
func (s *SQLiteStorage) UpsertRule(ctx context.Context, rule model.LearnedRule) (model.LearnedRule, error) {
	if err := validateContext(ctx); err != nil {
		return model.LearnedRule{}, err
	}
	if err := validateRule(rule); err != nil {
		return model.LearnedRule{}, err
	}
	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}
	if rule.Source == "" {
		rule.Source = model.RuleSourceManual
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization_id, merchant_key) DO UPDATE SET
			category = excluded.category,
			confidence = excluded.confidence,
			source = excluded.source,
			created_by = excluded.created_by,
			updated_at = excluded.updated_at`,
		rule.ID, rule.OrganizationID, rule.MerchantKey, rule.Category, rule.Confidence,
		rule.Source, rule.CreatedBy, formatTime(rule.CreatedAt), formatTime(rule.UpdatedAt))
	if err != nil {
		return model.LearnedRule{}, fmt.Errorf("failed to upsert rule: %w", err)
	}

	rules, err := s.queryRules(ctx, `SELECT `+ruleColumns+` FROM learned_rules
		WHERE organization_id = ? AND merchant_key = ?`, rule.OrganizationID, rule.MerchantKey)
	if err != nil {
		return model.LearnedRule{}, err
	}
	if len(rules) == 0 {
		return model.LearnedRule{}, fmt.Errorf("rule %q vanished after upsert: %w", rule.MerchantKey, common.ErrNotFound)
	}
	return rules[0], nil
}

// DeleteRule removes the rule for (organization, key).
func (s *SQLiteStorage) DeleteRule(ctx context.Context, org, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM learned_rules WHERE organization_id = ? AND merchant_key = ?`, org, key)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %q: %w", key, common.ErrNotFound)
	}
	return nil
}

// ListRules returns every rule of the organization.
func (s *SQLiteStorage) ListRules(ctx context.Context, org string) ([]model.LearnedRule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM learned_rules
		WHERE organization_id = ? ORDER BY merchant_key`, org)
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.LearnedRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.LearnedRule
	for rows.Next() {
		var r model.LearnedRule
		var created, updated sql.NullString
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.MerchantKey, &r.Category, &r.Confidence,
			&r.Source, &r.CreatedBy, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

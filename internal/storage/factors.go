package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/factors"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

var _ factors.Catalog = (*SQLiteStorage)(nil)

const factorColumns = `id, code, name, names, description, aliases, category, scope, country, region,
	unit, kg_co2e_per_unit, uncertainty, source, methodology, valid_from, valid_until, active`

// searchText is the folded text keyword search matches against.
func searchText(f model.EmissionFactor) string {
	parts := []string{f.Name, f.Description}
	for _, lang := range slices.Sorted(maps.Keys(f.Names)) {
		parts = append(parts, f.Names[lang])
	}
	parts = append(parts, f.Aliases...)
	return common.FoldText(strings.Join(parts, " | "))
}

// SaveFactors inserts or replaces catalog entries by id.
func (s *SQLiteStorage) SaveFactors(ctx context.Context, list []model.EmissionFactor) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO emission_factors (`+factorColumns+`, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code, name = excluded.name, names = excluded.names,
			description = excluded.description, aliases = excluded.aliases,
			category = excluded.category, scope = excluded.scope, country = excluded.country,
			region = excluded.region, unit = excluded.unit, kg_co2e_per_unit = excluded.kg_co2e_per_unit,
			uncertainty = excluded.uncertainty, source = excluded.source, methodology = excluded.methodology,
			valid_from = excluded.valid_from, valid_until = excluded.valid_until, active = excluded.active,
			search_text = excluded.search_text, updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range list {
		if err := validateFactor(f); err != nil {
			return 0, err
		}
		names, err := json.Marshal(f.Names)
		if err != nil {
			return 0, fmt.Errorf("failed to encode names of %s: %w", f.ID, err)
		}
		aliases, err := json.Marshal(f.Aliases)
		if err != nil {
			return 0, fmt.Errorf("failed to encode aliases of %s: %w", f.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			f.ID, f.Code, f.Name, string(names), f.Description, string(aliases), f.Category, int(f.Scope),
			strings.ToUpper(f.Country), f.Region, f.Unit, f.KgCO2ePerUnit, f.Uncertainty, f.Source,
			f.Methodology, formatTimePtr(f.ValidFrom), formatTimePtr(f.ValidUntil), f.Active,
			searchText(f)); err != nil {
			return 0, fmt.Errorf("failed to save factor %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit factors: %w", err)
	}
	return len(list), nil
}

// GetFactor returns one factor, active or not.
func (s *SQLiteStorage) GetFactor(ctx context.Context, id string) (model.EmissionFactor, error) {
	found, err := s.queryFactors(ctx, `SELECT `+factorColumns+` FROM emission_factors WHERE id = ?`, id)
	if err != nil {
		return model.EmissionFactor{}, err
	}
	if len(found) == 0 {
		return model.EmissionFactor{}, fmt.Errorf("factor %s: %w", id, common.ErrNotFound)
	}
	return found[0], nil
}

// GetFactorsByIDs returns the factors among ids that exist, in no
// particular order.
func (s *SQLiteStorage) GetFactorsByIDs(ctx context.Context, ids []string) ([]model.EmissionFactor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return s.queryFactors(ctx, `SELECT `+factorColumns+` FROM emission_factors WHERE id IN (`+placeholders+`)`, args...)
}

// KeywordSearch returns active factors where every keyword appears in the
// name, a localized name, the description or an alias.
func (s *SQLiteStorage) KeywordSearch(ctx context.Context, q factors.KeywordQuery) ([]model.EmissionFactor, error) {
	var where []string
	var args []any
	where = append(where, "active = 1")

	for _, kw := range q.Keywords {
		kw = common.FoldText(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		where = append(where, "search_text LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(kw)+"%")
	}
	fw, fargs := filterClauses(q.Filters)
	where = append(where, fw...)
	args = append(args, fargs...)

	order := "name ASC"
	switch q.Order {
	case factors.OrderByFactorAsc:
		order = "kg_co2e_per_unit ASC, name ASC"
	case factors.OrderByFactorDesc:
		order = "kg_co2e_per_unit DESC, name ASC"
	}

	query := `SELECT ` + factorColumns + ` FROM emission_factors WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ` + order
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	return s.queryFactors(ctx, query, args...)
}

// SimilarByAttributes returns active factors with the same scope and the
// same unit or category as ref, closest factor value first.
func (s *SQLiteStorage) SimilarByAttributes(ctx context.Context, ref model.EmissionFactor, limit int) ([]model.EmissionFactor, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryFactors(ctx, `
		SELECT `+factorColumns+` FROM emission_factors
		WHERE active = 1 AND id != ? AND scope = ?
		  AND (LOWER(unit) = LOWER(?) OR (category != '' AND category = ?))
		ORDER BY ABS(kg_co2e_per_unit - ?), name
		LIMIT ?`,
		ref.ID, int(ref.Scope), ref.Unit, ref.Category, ref.KgCO2ePerUnit, limit)
}

// ListActiveFactors returns every active factor ordered by name.
func (s *SQLiteStorage) ListActiveFactors(ctx context.Context) ([]model.EmissionFactor, error) {
	return s.queryFactors(ctx, `SELECT `+factorColumns+` FROM emission_factors WHERE active = 1 ORDER BY name`)
}

// CountFactors returns the number of active factors.
func (s *SQLiteStorage) CountFactors(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emission_factors WHERE active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count factors: %w", err)
	}
	return n, nil
}

func filterClauses(f model.FactorFilters) ([]string, []any) {
	var where []string
	var args []any
	if f.Scope != model.ScopeNone {
		where = append(where, "scope = ?")
		args = append(args, int(f.Scope))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if u := strings.TrimSpace(f.Unit); u != "" {
		where = append(where, "LOWER(unit) = LOWER(?)")
		args = append(args, u)
	}
	if c := strings.TrimSpace(f.Country); c != "" {
		where = append(where, "country = ?")
		args = append(args, strings.ToUpper(c))
	}
	if src := strings.TrimSpace(f.Source); src != "" {
		where = append(where, "LOWER(source) = LOWER(?)")
		args = append(args, src)
	}
	return where, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *SQLiteStorage) queryFactors(ctx context.Context, query string, args ...any) ([]model.EmissionFactor, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query factors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.EmissionFactor
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate factors: %w", err)
	}
	return out, nil
}

func scanFactor(sc scanner) (model.EmissionFactor, error) {
	var f model.EmissionFactor
	var names, aliases string
	var scope int
	var from, until sql.NullString
	err := sc.Scan(&f.ID, &f.Code, &f.Name, &names, &f.Description, &aliases, &f.Category, &scope,
		&f.Country, &f.Region, &f.Unit, &f.KgCO2ePerUnit, &f.Uncertainty, &f.Source, &f.Methodology,
		&from, &until, &f.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return f, err
		}
		return f, fmt.Errorf("failed to scan factor: %w", err)
	}
	f.Scope = model.Scope(scope)
	f.ValidFrom = parseTimePtr(from)
	f.ValidUntil = parseTimePtr(until)
	if names != "" && names != "null" {
		if err := json.Unmarshal([]byte(names), &f.Names); err != nil {
			return f, fmt.Errorf("failed to decode names of %s: %w", f.ID, err)
		}
	}
	if aliases != "" && aliases != "null" {
		if err := json.Unmarshal([]byte(aliases), &f.Aliases); err != nil {
			return f, fmt.Errorf("failed to decode aliases of %s: %w", f.ID, err)
		}
	}
	return f, nil
}

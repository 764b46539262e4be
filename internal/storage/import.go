package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// ErrBadCatalog is returned for malformed catalog files.
var ErrBadCatalog = errors.New("malformed factor catalog")

// ImportFactorsCSV loads a catalog file with a header row. Recognized
// columns: id, code, name, name_<lang>, description, category, scope,
// country, region, unit, kg_co2e_per_unit, uncertainty, source,
// methodology, aliases (";" separated), valid_from, valid_until, active.
// Rows without an id get a generated one. Nothing is written when any row
// is invalid.
func (s *SQLiteStorage) ImportFactorsCSV(ctx context.Context, r io.Reader) (int, error) {
	list, err := ParseFactorsCSV(r)
	if err != nil {
		return 0, err
	}
	return s.SaveFactors(ctx, list)
}

// ParseFactorsCSV decodes a catalog file without storing it.
func ParseFactorsCSV(r io.Reader) ([]model.EmissionFactor, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header: %w", ErrBadCatalog, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"name", "unit", "kg_co2e_per_unit"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrBadCatalog, required)
		}
	}

	var out []model.EmissionFactor
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrBadCatalog, line, err)
		}
		f, err := factorFromRow(cols, rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrBadCatalog, line, err)
		}
		if err := validateFactor(f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func factorFromRow(cols map[string]int, rec []string) (model.EmissionFactor, error) {
	get := func(name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	f := model.EmissionFactor{
		ID:          get("id"),
		Code:        get("code"),
		Name:        get("name"),
		Description: get("description"),
		Country:     strings.ToUpper(get("country")),
		Region:      get("region"),
		Unit:        get("unit"),
		Source:      get("source"),
		Methodology: get("methodology"),
		Active:      true,
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}

	for name, i := range cols {
		lang, ok := strings.CutPrefix(name, "name_")
		if !ok || i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
			continue
		}
		if f.Names == nil {
			f.Names = make(map[string]string)
		}
		f.Names[lang] = strings.TrimSpace(rec[i])
	}
	for _, a := range strings.Split(get("aliases"), ";") {
		if a = strings.TrimSpace(a); a != "" {
			f.Aliases = append(f.Aliases, a)
		}
	}

	var err error
	if v := get("kg_co2e_per_unit"); v != "" {
		if f.KgCO2ePerUnit, err = parseDecimal(v); err != nil {
			return f, fmt.Errorf("kg_co2e_per_unit: %w", err)
		}
	} else {
		return f, fmt.Errorf("kg_co2e_per_unit is empty")
	}
	if v := get("uncertainty"); v != "" {
		if f.Uncertainty, err = parseDecimal(v); err != nil {
			return f, fmt.Errorf("uncertainty: %w", err)
		}
	}
	if v := get("category"); v != "" {
		if f.Category, err = model.ParseCategory(v); err != nil {
			return f, err
		}
		f.Scope = f.Category.Scope()
	}
	if v := get("scope"); v != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(v), "scope "))
		if err != nil || n < 0 || n > 3 {
			return f, fmt.Errorf("scope %q is not 0-3", v)
		}
		f.Scope = model.Scope(n)
	}
	if v := get("active"); v != "" {
		if f.Active, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("active: %w", err)
		}
	}
	if f.ValidFrom, err = parseDate(get("valid_from")); err != nil {
		return f, fmt.Errorf("valid_from: %w", err)
	}
	if f.ValidUntil, err = parseDate(get("valid_until")); err != nil {
		return f, fmt.Errorf("valid_until: %w", err)
	}
	return f, nil
}

// parseDecimal accepts both "0.052" and the European "0,052".
func parseDecimal(v string) (float64, error) {
	if !strings.Contains(v, ".") {
		v = strings.Replace(v, ",", ".", 1)
	}
	return strconv.ParseFloat(v, 64)
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/factors"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(d int) time.Time {
	return time.Date(2025, 1, d, 12, 0, 0, 0, time.UTC)
}

func TestMigrate_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "carbon.db")
	s, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, v)
	assert.Equal(t, dbPath, s.Path())
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage(" ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestSubjects_SaveAndList(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	subjects := []model.Subject{
		{ID: "a", OrganizationID: "org1", Date: day(2), Description: "SNCF", Amount: model.Float(-40), Currency: "EUR"},
		{ID: "b", OrganizationID: "org1", Date: day(1), Description: "EDF", MerchantCode: " 4900 "},
		{ID: "c", OrganizationID: "org2", Date: day(1), Description: "Other org"},
	}
	n, err := s.SaveSubjects(ctx, subjects)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.SaveSubjects(ctx, subjects[:1])
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.GetSubject(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.Amount)
	assert.InDelta(t, -40, *got.Amount, 1e-9)
	assert.True(t, got.Date.Equal(day(2)))

	b, err := s.GetSubject(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, b.Amount)
	assert.Equal(t, "4900", b.MerchantCode)

	_, err = s.GetSubject(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	list, err := s.ListSubjects(ctx, "org1", day(2), time.Time{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)

	_, err = s.SaveSubjects(ctx, []model.Subject{{ID: "x"}})
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestAssignments_PinnedAndHistory(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	_, err := s.SaveSubjects(ctx, []model.Subject{
		{ID: "a", OrganizationID: "org1", Date: day(1), Description: "ACME"},
		{ID: "b", OrganizationID: "org1", Date: day(2), Description: "ACME 2"},
		{ID: "c", OrganizationID: "org1", Date: day(3), Description: "Pinned"},
	})
	require.NoError(t, err)

	unassigned, err := s.ListUnassigned(ctx, "org1")
	require.NoError(t, err)
	assert.Len(t, unassigned, 3)

	first := model.NewAssignment("a", model.CategoryPurchasedGoods, model.TierDefault, 0.3, "default")
	first.NeedsReview = true
	require.NoError(t, s.SaveAssignment(ctx, first))

	sure := model.NewAssignment("b", model.CategoryFuel, model.TierPattern, 0.8, "pattern")
	sure.FactorID = "diesel"
	sure.Quantity = model.Float(10)
	sure.EmissionKgCO2e = model.Float(31.6)
	require.NoError(t, s.SaveAssignment(ctx, sure))

	pinned := model.NewAssignment("c", model.CategoryWaste, model.TierManual, 1, "user")
	pinned.Pinned = true
	pinned.NeedsReview = true
	require.NoError(t, s.SaveAssignment(ctx, pinned))

	unassigned, err = s.ListUnassigned(ctx, "org1")
	require.NoError(t, err)
	assert.Empty(t, unassigned)

	open, err := s.ListUnclassified(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a", open[0].ID)

	// automatic write over a pinned assignment is ignored
	err = s.SaveAssignment(ctx, model.NewAssignment("c", model.CategoryFuel, model.TierLearnedRule, 0.95, "rule"))
	require.ErrorIs(t, err, common.ErrPinned)
	got, err := s.GetAssignment(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryWaste, got.Category)
	assert.True(t, got.Pinned)

	require.NoError(t, s.SaveAssignment(ctx, model.NewAssignment("a", model.CategoryUpstreamTransport, model.TierLearnedRule, 0.95, "rule")))
	got, err = s.GetAssignment(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryUpstreamTransport, got.Category)
	assert.Equal(t, model.Scope3, got.Scope)
	assert.False(t, got.NeedsReview)

	history, err := s.AssignmentHistory(ctx, "a")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.CategoryPurchasedGoods, history[0].Category)
	assert.Equal(t, model.TierDefault, history[0].Tier)

	b, err := s.GetAssignment(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "diesel", b.FactorID)
	require.NotNil(t, b.EmissionKgCO2e)
	assert.InDelta(t, 31.6, *b.EmissionKgCO2e, 1e-9)

	all, err := s.ListAssignments(ctx, "org1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.GetAssignment(ctx, "zzz")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveAssignment_InvalidIsNotRetryable(t *testing.T) {
	s := newTestStorage(t)
	err := s.SaveAssignment(context.Background(), model.Assignment{SubjectID: "a", Category: "bogus"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAssignment)
	assert.False(t, common.IsRetryable(err))
}

func TestQualityRecords(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	_, err := s.SaveSubjects(ctx, []model.Subject{
		{ID: "a", OrganizationID: "org1", Date: day(1), Description: "Diesel", Unit: "L", Currency: "EUR"},
		{ID: "b", OrganizationID: "org1", Date: day(2), MerchantName: "SNCF", Currency: "EUR"},
		{ID: "c", OrganizationID: "org1", Date: day(3), Description: "not quantified"},
	})
	require.NoError(t, err)

	for _, a := range []model.Assignment{
		{SubjectID: "a", Category: model.CategoryFuel, Tier: model.TierPattern, Confidence: 0.8, FactorID: "diesel", Quantity: model.Float(10), EmissionKgCO2e: model.Float(31.6)},
		{SubjectID: "b", Category: model.CategoryBusinessTravel, Tier: model.TierPattern, Confidence: 0.8, FactorID: "rail", Quantity: model.Float(120), EmissionKgCO2e: model.Float(2.4)},
		{SubjectID: "c", Category: model.CategoryWaste, Tier: model.TierDefault, Confidence: 0.3},
	} {
		require.NoError(t, s.SaveAssignment(ctx, a))
	}

	records, err := s.QualityRecords(ctx, "org1", time.Time{}, day(2))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "L", records[0].Unit)
	assert.Equal(t, "EUR", records[1].Unit)
	assert.Equal(t, "SNCF", records[1].Description)
	assert.InDelta(t, 120, records[1].Quantity, 1e-9)
	assert.Equal(t, model.CategoryBusinessTravel, records[1].Category)
}

func TestRules_UpsertDeleteList(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	r1, err := s.UpsertRule(ctx, model.LearnedRule{ID: "id-1", OrganizationID: "org1", MerchantKey: "garage dupont", Category: model.CategoryUpstreamTransport, Confidence: 0.95, CreatedBy: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", r1.ID)
	assert.Equal(t, model.RuleSourceManual, r1.Source)

	r2, err := s.UpsertRule(ctx, model.LearnedRule{ID: "id-2", OrganizationID: "org1", MerchantKey: "garage dupont", Category: model.CategoryFuel, Confidence: 0.9, CreatedBy: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", r2.ID, "overwrite keeps the stored id")
	assert.Equal(t, model.CategoryFuel, r2.Category)
	assert.Equal(t, "bob", r2.CreatedBy)

	_, err = s.UpsertRule(ctx, model.LearnedRule{ID: "id-3", OrganizationID: "org2", MerchantKey: "garage dupont", Category: model.CategoryWaste, Confidence: 0.9})
	require.NoError(t, err)

	rules, err := s.ListRules(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.False(t, rules[0].UpdatedAt.IsZero())

	require.NoError(t, s.DeleteRule(ctx, "org1", "garage dupont"))
	assert.ErrorIs(t, s.DeleteRule(ctx, "org1", "garage dupont"), common.ErrNotFound)

	_, err = s.UpsertRule(ctx, model.LearnedRule{OrganizationID: "org1", MerchantKey: "x", Category: "nope"})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func seedFactors(t *testing.T, s *SQLiteStorage) {
	t.Helper()
	_, err := s.SaveFactors(context.Background(), []model.EmissionFactor{
		{ID: "elec-fr", Name: "Électricité réseau France", Names: map[string]string{"en": "Grid electricity France"}, Unit: "kWh", KgCO2ePerUnit: 0.052, Category: model.CategoryElectricity, Scope: model.Scope2, Country: "fr", Source: "ADEME", Active: true},
		{ID: "elec-de", Name: "Strom Netz Deutschland", Names: map[string]string{"en": "Grid electricity Germany"}, Unit: "kWh", KgCO2ePerUnit: 0.38, Category: model.CategoryElectricity, Scope: model.Scope2, Country: "DE", Source: "UBA", Active: true},
		{ID: "elec-green", Name: "Green electricity contract", Unit: "kWh", KgCO2ePerUnit: 0.01, Category: model.CategoryElectricity, Scope: model.Scope2, Country: "FR", Source: "ADEME", Active: true, Aliases: []string{"renewable power"}},
		{ID: "elec-old", Name: "Electricity 2010 mix", Unit: "kWh", KgCO2ePerUnit: 0.09, Category: model.CategoryElectricity, Scope: model.Scope2, Active: false},
		{ID: "diesel", Name: "Gazole routier", Description: "diesel fuel 100%", Unit: "L", KgCO2ePerUnit: 3.16, Category: model.CategoryFuel, Scope: model.Scope1, Active: true},
	})
	require.NoError(t, err)
}

func TestKeywordSearch(t *testing.T) {
	s := newTestStorage(t)
	seedFactors(t, s)
	ctx := context.Background()

	ids := func(fs []model.EmissionFactor) []string {
		out := make([]string, len(fs))
		for i, f := range fs {
			out[i] = f.ID
		}
		return out
	}

	tests := []struct {
		name  string
		query factors.KeywordQuery
		want  []string
	}{
		{
			name:  "folded accents and localized names",
			query: factors.KeywordQuery{Keywords: []string{"electricite"}, Order: factors.OrderByName},
			want:  []string{"elec-fr"},
		},
		{
			name:  "english name via names map, ascending factor",
			query: factors.KeywordQuery{Keywords: []string{"grid", "electricity"}, Order: factors.OrderByFactorAsc},
			want:  []string{"elec-fr", "elec-de"},
		},
		{
			name:  "all keywords must match",
			query: factors.KeywordQuery{Keywords: []string{"electricity", "germany"}},
			want:  []string{"elec-de"},
		},
		{
			name:  "alias match",
			query: factors.KeywordQuery{Keywords: []string{"renewable"}},
			want:  []string{"elec-green"},
		},
		{
			name:  "filters and descending",
			query: factors.KeywordQuery{Keywords: []string{"electricity"}, Filters: model.FactorFilters{Country: "fr", Scope: model.Scope2}, Order: factors.OrderByFactorDesc},
			want:  []string{"elec-fr", "elec-green"},
		},
		{
			name:  "like wildcards are literal",
			query: factors.KeywordQuery{Keywords: []string{"100%"}},
			want:  []string{"diesel"},
		},
		{
			name:  "limit",
			query: factors.KeywordQuery{Filters: model.FactorFilters{Category: model.CategoryElectricity}, Order: factors.OrderByFactorAsc, Limit: 1},
			want:  []string{"elec-green"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.KeywordSearch(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCatalogLookups(t *testing.T) {
	s := newTestStorage(t)
	seedFactors(t, s)
	ctx := context.Background()

	f, err := s.GetFactor(ctx, "elec-fr")
	require.NoError(t, err)
	assert.Equal(t, "FR", f.Country)
	assert.Equal(t, "Grid electricity France", f.Names["en"])
	assert.Equal(t, model.Scope2, f.Scope)

	_, err = s.GetFactor(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)

	byIDs, err := s.GetFactorsByIDs(ctx, []string{"diesel", "missing", "elec-de"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)

	similar, err := s.SimilarByAttributes(ctx, f, 5)
	require.NoError(t, err)
	got := make([]string, len(similar))
	for i, sf := range similar {
		got[i] = sf.ID
	}
	assert.Equal(t, []string{"elec-green", "elec-de"}, got)

	active, err := s.ListActiveFactors(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 4)

	n, err := s.CountFactors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestImportFactorsCSV(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	csvData := "\ufeffid,name,name_en,unit,kg_co2e_per_unit,category,country,source,aliases,valid_from\n" +
		"tgv,TGV,High speed train,passenger.km,\"0,0029\",business_travel,fr,ADEME,train;rail,2024-01-01\n" +
		",Papier A4,A4 paper,kg,0.919,3.1,FR,ADEME,,\n"

	n, err := s.ImportFactorsCSV(ctx, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tgv, err := s.GetFactor(ctx, "tgv")
	require.NoError(t, err)
	assert.InDelta(t, 0.0029, tgv.KgCO2ePerUnit, 1e-12)
	assert.Equal(t, model.CategoryBusinessTravel, tgv.Category)
	assert.Equal(t, model.Scope3, tgv.Scope)
	assert.Equal(t, []string{"train", "rail"}, tgv.Aliases)
	assert.Equal(t, "High speed train", tgv.Names["en"])
	require.NotNil(t, tgv.ValidFrom)
	assert.Equal(t, 2024, tgv.ValidFrom.Year())

	paper, err := s.KeywordSearch(ctx, factors.KeywordQuery{Keywords: []string{"paper"}})
	require.NoError(t, err)
	require.Len(t, paper, 1)
	assert.NotEmpty(t, paper[0].ID)
	assert.Equal(t, model.CategoryPurchasedGoods, paper[0].Category)
}

func TestImportFactorsCSV_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "missing column", data: "name,unit\nA,kg\n"},
		{name: "bad number", data: "name,unit,kg_co2e_per_unit\nA,kg,lots\n"},
		{name: "bad category", data: "name,unit,kg_co2e_per_unit,category\nA,kg,1,rockets\n"},
		{name: "bad scope", data: "name,unit,kg_co2e_per_unit,scope\nA,kg,1,7\n"},
		{name: "missing unit", data: "name,unit,kg_co2e_per_unit\nA,,1\n"},
		{name: "empty", data: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStorage(t)
			_, err := s.ImportFactorsCSV(context.Background(), strings.NewReader(tt.data))
			require.Error(t, err)
			n, cerr := s.CountFactors(context.Background())
			require.NoError(t, cerr)
			assert.Zero(t, n)
		})
	}
}

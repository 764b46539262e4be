package factors

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-carbon-must-flow/internal/cache"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
	"github.com/Veraticus/the-carbon-must-flow/internal/semantic"
)

type fakeCatalog struct {
	factors      []model.EmissionFactor
	lastQuery    KeywordQuery
	keywordCalls int
	byIDCalls    int
	mu           sync.Mutex
}

func (c *fakeCatalog) GetFactor(_ context.Context, id string) (model.EmissionFactor, error) {
	for _, f := range c.factors {
		if f.ID == id {
			return f, nil
		}
	}
	return model.EmissionFactor{}, common.ErrNotFound
}

func (c *fakeCatalog) GetFactorsByIDs(_ context.Context, ids []string) ([]model.EmissionFactor, error) {
	c.mu.Lock()
	c.byIDCalls++
	c.mu.Unlock()
	var out []model.EmissionFactor
	for _, f := range c.factors {
		for _, id := range ids {
			if f.ID == id {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (c *fakeCatalog) KeywordSearch(_ context.Context, q KeywordQuery) ([]model.EmissionFactor, error) {
	c.mu.Lock()
	c.keywordCalls++
	c.lastQuery = q
	c.mu.Unlock()

	var out []model.EmissionFactor
	for _, f := range c.factors {
		if !f.Active {
			continue
		}
		if q.Filters.Category != "" && f.Category != q.Filters.Category {
			continue
		}
		if q.Filters.Scope != model.ScopeNone && f.Scope != q.Filters.Scope {
			continue
		}
		text := strings.ToLower(f.Name + " " + f.Description)
		ok := true
		for _, k := range q.Keywords {
			if !strings.Contains(text, k) {
				ok = false
			}
		}
		if ok {
			out = append(out, f)
		}
	}
	switch q.Order {
	case OrderByFactorAsc:
		sort.Slice(out, func(i, j int) bool { return out[i].KgCO2ePerUnit < out[j].KgCO2ePerUnit })
	case OrderByFactorDesc:
		sort.Slice(out, func(i, j int) bool { return out[i].KgCO2ePerUnit > out[j].KgCO2ePerUnit })
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (c *fakeCatalog) SimilarByAttributes(_ context.Context, ref model.EmissionFactor, limit int) ([]model.EmissionFactor, error) {
	var out []model.EmissionFactor
	for _, f := range c.factors {
		if f.ID == ref.ID || !f.Active || f.Scope != ref.Scope {
			continue
		}
		if f.Unit == ref.Unit || f.Category == ref.Category {
			out = append(out, f)
		}
	}
	abs := func(v float64) float64 {
		if v < 0 {
			return -v
		}
		return v
	}
	sort.Slice(out, func(i, j int) bool {
		return abs(out[i].KgCO2ePerUnit-ref.KgCO2ePerUnit) < abs(out[j].KgCO2ePerUnit-ref.KgCO2ePerUnit)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *fakeCatalog) ListActiveFactors(_ context.Context) ([]model.EmissionFactor, error) {
	var out []model.EmissionFactor
	for _, f := range c.factors {
		if f.Active {
			out = append(out, f)
		}
	}
	return out, nil
}

func (c *fakeCatalog) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keywordCalls
}

type fakeIndex struct {
	err         error
	hits        []semantic.Hit
	indexed     []semantic.Item
	searchCalls int
	mu          sync.Mutex
}

func (i *fakeIndex) Search(_ context.Context, _ string, _ map[string]any, _ int) ([]semantic.Hit, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.searchCalls++
	return i.hits, i.err
}

func (i *fakeIndex) Similar(_ context.Context, _ string, _ int) ([]semantic.Hit, error) {
	return i.hits, i.err
}

func (i *fakeIndex) IndexBatch(_ context.Context, items []semantic.Item) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.indexed = append(i.indexed, items...)
	return nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{factors: []model.EmissionFactor{
		{ID: "f-diesel", Name: "Diesel B7", Description: "gazole routier", Unit: "L", KgCO2ePerUnit: 3.16, Scope: model.Scope1, Category: model.CategoryFuel, Active: true},
		{ID: "f-petrol", Name: "Petrol E10", Description: "essence sans plomb", Unit: "L", KgCO2ePerUnit: 2.7, Scope: model.Scope1, Category: model.CategoryFuel, Active: true},
		{ID: "f-lpg", Name: "LPG", Description: "gaz de petrole liquefie station", Unit: "L", KgCO2ePerUnit: 1.86, Scope: model.Scope1, Category: model.CategoryFuel, Active: true},
		{ID: "f-old", Name: "Diesel 2010", Description: "gazole", Unit: "L", KgCO2ePerUnit: 3.2, Scope: model.Scope1, Category: model.CategoryFuel, Active: false},
		{ID: "f-elec-fr", Name: "Electricity France", Description: "mix moyen", Unit: "kWh", KgCO2ePerUnit: 0.052, Scope: model.Scope2, Category: model.CategoryElectricity, Country: "FR", Active: true},
		{ID: "f-elec-de", Name: "Electricity Germany", Description: "mix moyen", Unit: "kWh", KgCO2ePerUnit: 0.38, Scope: model.Scope2, Category: model.CategoryElectricity, Country: "DE", Active: true},
	}}
}

func TestEngine_SearchCachesResults(t *testing.T) {
	catalog := testCatalog()
	idx := &fakeIndex{}
	e := NewEngine(catalog, Config{}, WithSemanticIndex(idx), WithCache(cache.NewMemory[[]Ref](0)))
	ctx := context.Background()

	first, err := e.Search(ctx, "diesel", model.FactorFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := e.Search(ctx, "  DIESEL ", model.FactorFilters{})
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.calls(), "keyword backend should be hit once")
	assert.Equal(t, 1, idx.searchCalls, "semantic backend should be hit once")
	assert.Equal(t, first, second)
}

func TestEngine_CloseReleasesDefaultCache(t *testing.T) {
	e := NewEngine(testCatalog(), Config{})
	require.NotNil(t, e.owned)
	e.Close()
	e.Close()
	select {
	case <-e.owned.Done():
	default:
		t.Fatal("default cache still running after Close")
	}

	injected := cache.NewMemory[[]Ref](0)
	defer injected.Close()
	e = NewEngine(testCatalog(), Config{}, WithCache(injected))
	assert.Nil(t, e.owned)
	e.Close()
	select {
	case <-injected.Done():
		t.Fatal("injected cache closed by engine")
	default:
	}
}

func TestEngine_SemanticFirst(t *testing.T) {
	catalog := testCatalog()
	idx := &fakeIndex{hits: []semantic.Hit{
		{ID: "EmissionFactor:f-petrol", Score: 0.91},
		{ID: "f-diesel", Score: 0.85},
		{ID: "f-missing", Score: 0.8},
	}}
	e := NewEngine(catalog, Config{}, WithSemanticIndex(idx))

	got, err := e.Search(context.Background(), "car fuel", model.FactorFilters{Category: model.CategoryFuel})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "f-petrol", got[0].Factor.ID)
	assert.InDelta(t, 0.91, got[0].Score, 1e-9)
	assert.Equal(t, "f-diesel", got[1].Factor.ID)
	assert.Equal(t, 0, catalog.calls())
}

func TestEngine_SemanticFailureFallsBack(t *testing.T) {
	catalog := testCatalog()
	idx := &fakeIndex{err: semantic.ErrUnavailable}
	e := NewEngine(catalog, Config{}, WithSemanticIndex(idx))

	got, err := e.Search(context.Background(), "diesel", model.FactorFilters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "f-diesel", got[0].Factor.ID)
	assert.Equal(t, 1, catalog.calls())
}

func TestEngine_KeywordIntents(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		filters   model.FactorFilters
		wantOrder Order
		wantLimit int
		wantIDs   []string
	}{
		{
			name:      "default alphabetical",
			query:     "electricity",
			wantOrder: OrderByName,
			wantLimit: 10,
			wantIDs:   []string{"f-elec-fr", "f-elec-de"},
		},
		{
			name:      "cheapest ascending",
			query:     "cheapest electricity",
			wantOrder: OrderByFactorAsc,
			wantLimit: 10,
			wantIDs:   []string{"f-elec-fr", "f-elec-de"},
		},
		{
			name:      "specific narrowed",
			query:     "exact electricity",
			wantOrder: OrderByName,
			wantLimit: 3,
			wantIDs:   []string{"f-elec-fr", "f-elec-de"},
		},
		{
			name:      "approximate widened",
			query:     "average electricity",
			wantOrder: OrderByName,
			wantLimit: 20,
			wantIDs:   []string{"f-elec-fr", "f-elec-de"},
		},
		{
			name:      "comparison widened and descending",
			query:     "compare",
			filters:   model.FactorFilters{Category: model.CategoryFuel},
			wantOrder: OrderByFactorDesc,
			wantLimit: 20,
			wantIDs:   []string{"f-diesel", "f-petrol", "f-lpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := testCatalog()
			e := NewEngine(catalog, Config{})

			got, err := e.Search(context.Background(), tt.query, tt.filters)
			require.NoError(t, err)

			assert.Equal(t, tt.wantOrder, catalog.lastQuery.Order)
			assert.Equal(t, tt.wantLimit, catalog.lastQuery.Limit)
			ids := make([]string, len(got))
			for i, r := range got {
				ids[i] = r.Factor.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
			for i := 1; i < len(got); i++ {
				assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
			}
		})
	}
}

func TestEngine_ReindexInvalidatesCache(t *testing.T) {
	catalog := testCatalog()
	idx := &fakeIndex{}
	e := NewEngine(catalog, Config{}, WithSemanticIndex(idx))
	ctx := context.Background()

	_, err := e.Search(ctx, "diesel", model.FactorFilters{})
	require.NoError(t, err)
	require.NoError(t, e.Reindex(ctx))
	_, err = e.Search(ctx, "diesel", model.FactorFilters{})
	require.NoError(t, err)

	assert.Equal(t, 2, catalog.calls())
	assert.Len(t, idx.indexed, 5, "only active factors are indexed")
}

func TestEngine_FindSimilar(t *testing.T) {
	t.Run("attribute fallback", func(t *testing.T) {
		e := NewEngine(testCatalog(), Config{})

		got, err := e.FindSimilar(context.Background(), "f-diesel", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "f-petrol", got[0].Factor.ID)
		assert.Equal(t, "f-lpg", got[1].Factor.ID)
		assert.Greater(t, got[0].Score, got[1].Score)
	})

	t.Run("semantic excludes self", func(t *testing.T) {
		idx := &fakeIndex{hits: []semantic.Hit{
			{ID: "f-diesel", Score: 1},
			{ID: "f-lpg", Score: 0.7},
		}}
		e := NewEngine(testCatalog(), Config{}, WithSemanticIndex(idx))

		got, err := e.FindSimilar(context.Background(), "f-diesel", 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "f-lpg", got[0].Factor.ID)
	})

	t.Run("unknown factor", func(t *testing.T) {
		e := NewEngine(testCatalog(), Config{})
		_, err := e.FindSimilar(context.Background(), "nope", 5)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

type fakeInference struct {
	out map[string]any
	ok  bool
}

func (f fakeInference) JSON(context.Context, string, string, string) (map[string]any, bool) {
	return f.out, f.ok
}

func TestEngine_SearchNatural(t *testing.T) {
	catalog := testCatalog()
	e := NewEngine(catalog, Config{}, WithInference(fakeInference{ok: true, out: map[string]any{
		"keywords": []any{"electricity"},
		"scope":    float64(2),
		"unit":     "kWh",
	}}))

	got, err := e.SearchNatural(context.Background(), "how much CO2 does office power produce")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.Scope2, catalog.lastQuery.Filters.Scope)
	assert.Equal(t, "kWh", catalog.lastQuery.Filters.Unit)

	e = NewEngine(testCatalog(), Config{}, WithInference(fakeInference{ok: false}))
	got, err = e.SearchNatural(context.Background(), "diesel")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestEngine_Autocomplete(t *testing.T) {
	e := NewEngine(testCatalog(), Config{})

	got, err := e.Autocomplete(context.Background(), "d", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.Autocomplete(context.Background(), "Elec", 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestEngine_CatalogErrorPropagates(t *testing.T) {
	e := NewEngine(errCatalog{fakeCatalog: testCatalog()}, Config{})
	_, err := e.Search(context.Background(), "diesel", model.FactorFilters{})
	assert.Error(t, err)
}

type errCatalog struct {
	*fakeCatalog
}

func (errCatalog) KeywordSearch(context.Context, KeywordQuery) ([]model.EmissionFactor, error) {
	return nil, errors.New("database is locked")
}

// Package factors ranks emission factor candidates for a query, using a
// semantic index when one is reachable and the catalog's keyword search
// otherwise.
package factors

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/the-carbon-must-flow/internal/cache"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
	"github.com/Veraticus/the-carbon-must-flow/internal/semantic"
)

const cachePrefix = "factor_search:"

// Ref is a cached search result: a factor id and its score.
type Ref struct {
	ID    string
	Score float64
}

// Config tunes the engine.
type Config struct {
	CacheTTL        time.Duration
	MaxResults      int
	ComparisonLimit int
}

// Engine is the factor retrieval engine.
type Engine struct {
	catalog Catalog
	index   SemanticIndex
	ai      JSONInference
	cache   cache.Cache[[]Ref]
	owned   *cache.Memory[[]Ref] // default cache, released by Close
	logger  *slog.Logger
	cfg     Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithSemanticIndex enables the semantic search path.
func WithSemanticIndex(idx SemanticIndex) Option {
	return func(e *Engine) { e.index = idx }
}

// WithCache replaces the default in-memory result cache. The caller keeps
// ownership of c.
func WithCache(c cache.Cache[[]Ref]) Option {
	return func(e *Engine) {
		e.cache = c
		e.owned = nil
	}
}

// WithInference enables natural-language query parsing in SearchNatural.
func WithInference(ai JSONInference) Option {
	return func(e *Engine) { e.ai = ai }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine over catalog.
func NewEngine(catalog Catalog, cfg Config, opts ...Option) *Engine {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if cfg.ComparisonLimit <= 0 {
		cfg.ComparisonLimit = 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	mem := cache.NewMemory[[]Ref](10 * time.Minute)
	e := &Engine{
		catalog: catalog,
		cfg:     cfg,
		cache:   mem,
		owned:   mem,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.owned == nil {
		mem.Close()
	}
	return e
}

// Close releases the default result cache. Injected caches are left alone.
func (e *Engine) Close() {
	if e.owned != nil {
		e.owned.Close()
	}
}

// CacheKey builds the result cache key for a query and filters.
func CacheKey(query string, filters model.FactorFilters) string {
	return cachePrefix + NormalizeQuery(query) + ":" + filters.Fingerprint()
}

// Search returns ranked candidates for query. Semantic failures are logged
// and fall through to keyword search; only catalog errors are returned.
func (e *Engine) Search(ctx context.Context, query string, filters model.FactorFilters) ([]model.ScoredFactor, error) {
	key := CacheKey(query, filters)
	if refs, ok := e.cache.Get(key); ok {
		return e.hydrate(ctx, refs)
	}

	results := e.semanticSearch(ctx, query, filters)
	if len(results) == 0 {
		var err error
		results, err = e.keywordSearch(ctx, ExtractKeywords(query), DetectIntent(query), filters)
		if err != nil {
			return nil, err
		}
	}

	e.cache.Set(key, toRefs(results), e.cfg.CacheTTL)
	return results, nil
}

func (e *Engine) semanticSearch(ctx context.Context, query string, filters model.FactorFilters) []model.ScoredFactor {
	if e.index == nil || strings.TrimSpace(query) == "" {
		return nil
	}

	hits, err := e.index.Search(ctx, query, semanticFilters(filters), e.cfg.MaxResults)
	if err != nil {
		e.logger.Warn("Semantic search failed, falling back to keyword search",
			"query", query,
			"error", err)
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	refs := make([]Ref, 0, len(hits))
	for _, h := range hits {
		refs = append(refs, Ref{ID: factorIDFromHit(h), Score: h.Score})
	}
	results, err := e.hydrate(ctx, refs)
	if err != nil {
		e.logger.Warn("Failed to load semantic results", "query", query, "error", err)
		return nil
	}
	return applyFilters(results, filters)
}

func (e *Engine) keywordSearch(ctx context.Context, keywords []string, intent Intent, filters model.FactorFilters) ([]model.ScoredFactor, error) {
	q := KeywordQuery{
		Keywords: keywords,
		Filters:  filters,
		Limit:    e.cfg.MaxResults,
	}
	switch intent {
	case IntentCheapest:
		q.Order = OrderByFactorAsc
	case IntentComparison:
		q.Order = OrderByFactorDesc
		q.Limit = e.cfg.ComparisonLimit
	case IntentSpecific:
		q.Order = OrderByName
		q.Limit = min(q.Limit, specificLimit)
	case IntentApproximate:
		// generic and averaged factors sit alongside precise ones, so look wider
		q.Order = OrderByName
		q.Limit = e.cfg.ComparisonLimit
	default:
		q.Order = OrderByName
	}

	found, err := e.catalog.KeywordSearch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	return rankScored(found), nil
}

// FindSimilar returns factors similar to the factor with id, excluding it.
func (e *Engine) FindSimilar(ctx context.Context, id string, limit int) ([]model.ScoredFactor, error) {
	if limit <= 0 {
		limit = 5
	}

	if e.index != nil {
		hits, err := e.index.Similar(ctx, id, limit+1)
		if err != nil {
			e.logger.Warn("Semantic similarity failed, falling back to attributes", "factor_id", id, "error", err)
		} else {
			refs := make([]Ref, 0, len(hits))
			for _, h := range hits {
				hid := factorIDFromHit(h)
				if hid == id {
					continue
				}
				refs = append(refs, Ref{ID: hid, Score: h.Score})
			}
			if len(refs) > limit {
				refs = refs[:limit]
			}
			if len(refs) > 0 {
				if results, err := e.hydrate(ctx, refs); err == nil && len(results) > 0 {
					return results, nil
				}
			}
		}
	}

	ref, err := e.catalog.GetFactor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load factor %s: %w", id, err)
	}
	similar, err := e.catalog.SimilarByAttributes(ctx, ref, limit)
	if err != nil {
		return nil, fmt.Errorf("attribute similarity failed: %w", err)
	}

	out := make([]model.ScoredFactor, 0, len(similar))
	for _, f := range similar {
		if f.ID == id {
			continue
		}
		out = append(out, model.ScoredFactor{
			Factor: f,
			Score:  1 / (1 + math.Abs(f.KgCO2ePerUnit-ref.KgCO2ePerUnit)),
		})
	}
	return out, nil
}

// Reindex drops every cached search result and, when the semantic index
// accepts pushes, sends it the active catalog. Call after a catalog import.
func (e *Engine) Reindex(ctx context.Context) error {
	n := e.cache.DeletePrefix(cachePrefix)
	e.logger.Info("Factor search cache invalidated", "entries", n)

	indexer, ok := e.index.(Indexer)
	if !ok {
		return nil
	}
	active, err := e.catalog.ListActiveFactors(ctx)
	if err != nil {
		return fmt.Errorf("failed to list factors for indexing: %w", err)
	}

	const batchSize = 200
	for start := 0; start < len(active); start += batchSize {
		end := min(start+batchSize, len(active))
		items := make([]semantic.Item, 0, end-start)
		for _, f := range active[start:end] {
			items = append(items, indexItem(f))
		}
		if err := indexer.IndexBatch(ctx, items); err != nil {
			e.logger.Warn("Semantic indexing failed", "batch_start", start, "error", err)
			return nil
		}
	}
	e.logger.Info("Semantic index updated", "factors", len(active))
	return nil
}

// Autocomplete suggests factors for a partial query of at least two characters.
func (e *Engine) Autocomplete(ctx context.Context, partial string, limit int) ([]model.ScoredFactor, error) {
	partial = strings.TrimSpace(partial)
	if len([]rune(partial)) < 2 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	if e.index != nil {
		hits, err := e.index.Search(ctx, partial, nil, limit)
		if err == nil && len(hits) > 0 {
			refs := make([]Ref, 0, len(hits))
			for _, h := range hits {
				refs = append(refs, Ref{ID: factorIDFromHit(h), Score: h.Score})
			}
			if results, err := e.hydrate(ctx, refs); err == nil && len(results) > 0 {
				return results, nil
			}
		} else if err != nil {
			e.logger.Debug("Semantic autocomplete failed", "error", err)
		}
	}

	found, err := e.catalog.KeywordSearch(ctx, KeywordQuery{
		Keywords: []string{NormalizeQuery(partial)},
		Order:    OrderByName,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("autocomplete failed: %w", err)
	}
	return rankScored(found), nil
}

const naturalSearchPrompt = `Analyze this emission factor search query:
%q

Return JSON with these fields:
{"keywords": ["word1", "word2"], "scope": 1|2|3|null, "unit": "kWh|L|kg|km|null", "source_type": "ADEME|UBA|GHG|null", "confidence": 0.0-1.0}

Scope 1: direct combustion (gas, heating oil, vehicle fuel).
Scope 2: purchased electricity and heat.
Scope 3: purchases, transport, waste, travel.`

// SearchNatural asks the inference gateway to turn a free-form question
// into keywords and filters. Without inference it behaves like Search.
func (e *Engine) SearchNatural(ctx context.Context, query string) ([]model.ScoredFactor, error) {
	if e.ai == nil {
		return e.Search(ctx, query, model.FactorFilters{})
	}
	parsed, ok := e.ai.JSON(ctx, fmt.Sprintf(naturalSearchPrompt, query), "", "")
	if !ok {
		return e.Search(ctx, query, model.FactorFilters{})
	}

	var filters model.FactorFilters
	if scope, ok := parsed["scope"].(float64); ok && scope >= 1 && scope <= 3 {
		filters.Scope = model.Scope(int(scope))
	}
	if unit, ok := parsed["unit"].(string); ok && unit != "" && unit != "null" {
		filters.Unit = unit
	}
	if source, ok := parsed["source_type"].(string); ok && source != "" && source != "null" {
		filters.Source = source
	}

	var keywords []string
	if raw, ok := parsed["keywords"].([]any); ok {
		for _, k := range raw {
			if s, ok := k.(string); ok {
				keywords = append(keywords, ExtractKeywords(s)...)
			}
		}
	}
	if len(keywords) == 0 {
		keywords = ExtractKeywords(query)
	}

	return e.keywordSearch(ctx, keywords, DetectIntent(query), filters)
}

func (e *Engine) hydrate(ctx context.Context, refs []Ref) ([]model.ScoredFactor, error) {
	if len(refs) == 0 {
		return []model.ScoredFactor{}, nil
	}
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	found, err := e.catalog.GetFactorsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load factors: %w", err)
	}
	byID := make(map[string]model.EmissionFactor, len(found))
	for _, f := range found {
		byID[f.ID] = f
	}

	out := make([]model.ScoredFactor, 0, len(refs))
	for _, r := range refs {
		if f, ok := byID[r.ID]; ok {
			out = append(out, model.ScoredFactor{Factor: f, Score: r.Score})
		}
	}
	return out, nil
}

func toRefs(results []model.ScoredFactor) []Ref {
	refs := make([]Ref, len(results))
	for i, r := range results {
		refs[i] = Ref{ID: r.Factor.ID, Score: r.Score}
	}
	return refs
}

// rankScored assigns decreasing scores to keyword results by rank.
func rankScored(found []model.EmissionFactor) []model.ScoredFactor {
	out := make([]model.ScoredFactor, len(found))
	for i, f := range found {
		out[i] = model.ScoredFactor{Factor: f, Score: math.Max(1-float64(i)*0.05, 0.05)}
	}
	return out
}

func semanticFilters(f model.FactorFilters) map[string]any {
	out := make(map[string]any)
	if f.Scope != model.ScopeNone {
		out["scope"] = int(f.Scope)
	}
	if f.Source != "" {
		out["source"] = f.Source
	}
	if f.Country != "" {
		out["country"] = strings.ToUpper(f.Country)
	}
	if f.Unit != "" {
		out["unit"] = f.Unit
	}
	if f.Category != "" {
		out["category"] = string(f.Category)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// applyFilters drops semantic results that the index failed to filter and
// inactive factors.
func applyFilters(results []model.ScoredFactor, f model.FactorFilters) []model.ScoredFactor {
	out := results[:0]
	for _, r := range results {
		fac := r.Factor
		switch {
		case !fac.Active:
			continue
		case f.Scope != model.ScopeNone && fac.Scope != f.Scope:
			continue
		case f.Category != "" && fac.Category != f.Category:
			continue
		case f.Country != "" && !strings.EqualFold(fac.Country, f.Country):
			continue
		case f.Unit != "" && !strings.Contains(strings.ToLower(fac.Unit), strings.ToLower(f.Unit)):
			continue
		case f.Source != "" && !strings.Contains(strings.ToLower(fac.Source), strings.ToLower(f.Source)):
			continue
		}
		out = append(out, r)
	}
	return out
}

// factorIDFromHit accepts both bare ids and "Type:id" item ids.
func factorIDFromHit(h semantic.Hit) string {
	if id, ok := h.Metadata["factor_id"].(string); ok && id != "" {
		return id
	}
	if i := strings.LastIndex(h.ID, ":"); i >= 0 {
		return h.ID[i+1:]
	}
	return h.ID
}

func indexItem(f model.EmissionFactor) semantic.Item {
	content := f.Name
	for _, lang := range []string{"en", "de"} {
		if n := f.Names[lang]; n != "" && n != f.Name {
			content += " | " + n
		}
	}
	if f.Description != "" {
		content += " | " + f.Description
	}
	return semantic.Item{
		ID:      f.ID,
		Content: content,
		Metadata: map[string]any{
			"factor_id": f.ID,
			"scope":     int(f.Scope),
			"unit":      f.Unit,
			"source":    f.Source,
			"country":   f.Country,
			"category":  string(f.Category),
			"value":     strconv.FormatFloat(f.KgCO2ePerUnit, 'g', -1, 64),
		},
	}
}

package factors

import (
	"context"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
	"github.com/Veraticus/the-carbon-must-flow/internal/semantic"
)

// Order is the sort order of a keyword search.
type Order int

// Keyword search orders.
const (
	OrderByName Order = iota
	OrderByFactorAsc
	OrderByFactorDesc
)

// KeywordQuery is a structured catalog search. Every keyword must match at
// least one of the name, localized name, description or alias fields.
type KeywordQuery struct {
	Keywords []string
	Filters  model.FactorFilters
	Order    Order
	Limit    int
}

// Catalog is the read side of the emission factor catalog.
type Catalog interface {
	GetFactor(ctx context.Context, id string) (model.EmissionFactor, error)
	GetFactorsByIDs(ctx context.Context, ids []string) ([]model.EmissionFactor, error)
	KeywordSearch(ctx context.Context, q KeywordQuery) ([]model.EmissionFactor, error)
	// SimilarByAttributes returns active factors with the same scope and the
	// same unit or category as ref, closest factor value first.
	SimilarByAttributes(ctx context.Context, ref model.EmissionFactor, limit int) ([]model.EmissionFactor, error)
	ListActiveFactors(ctx context.Context) ([]model.EmissionFactor, error)
}

// SemanticIndex is a vector similarity index over the catalog.
type SemanticIndex interface {
	Search(ctx context.Context, query string, filters map[string]any, topK int) ([]semantic.Hit, error)
	Similar(ctx context.Context, itemID string, topK int) ([]semantic.Hit, error)
}

// Indexer is implemented by semantic indexes that accept document pushes.
type Indexer interface {
	IndexBatch(ctx context.Context, items []semantic.Item) error
}

// JSONInference extracts structured search parameters from natural language.
type JSONInference interface {
	JSON(ctx context.Context, prompt, system, model string) (map[string]any, bool)
}

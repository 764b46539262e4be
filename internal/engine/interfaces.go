package engine

import (
	"context"

	"github.com/Veraticus/the-carbon-must-flow/internal/classification"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// RuleStore finds and records learned rules.
type RuleStore interface {
	Find(ctx context.Context, org, text string) (model.LearnedRule, bool, error)
	Upsert(ctx context.Context, org, merchantText string, category model.Category, confidence float64, createdBy string) (model.LearnedRule, error)
}

// CodeTable maps merchant category codes to categories.
type CodeTable interface {
	Lookup(code string) (model.Category, bool)
}

// PatternMatcher matches free text against the ordered pattern table.
type PatternMatcher interface {
	Match(text string) (classification.Match, bool)
}

// FactorSearcher retrieves ranked emission factor candidates.
type FactorSearcher interface {
	Search(ctx context.Context, query string, filters model.FactorFilters) ([]model.ScoredFactor, error)
}

// Inference is the slice of the AI gateway used for classification and
// factor disambiguation. JSON returns false on any failure.
type Inference interface {
	Available() bool
	JSON(ctx context.Context, prompt, system, model string) (map[string]any, bool)
}

// SubjectSource lists subjects awaiting classification.
type SubjectSource interface {
	ListUnclassified(ctx context.Context, org string) ([]model.Subject, error)
}

// AssignmentWriter persists category assignments.
type AssignmentWriter interface {
	SaveAssignment(ctx context.Context, a model.Assignment) error
}

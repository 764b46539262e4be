package model

import "time"

// Tier identifies which resolution tier produced an assignment.
type Tier string

// Resolution tiers, in evaluation order.
const (
	TierLearnedRule Tier = "learned-rule"
	TierCodeLookup  Tier = "code-lookup"
	TierPattern     Tier = "pattern"
	TierAI          Tier = "ai-inference"
	TierDefault     Tier = "default"
	TierManual      Tier = "manual"
)

// Assignment is the category decision for one subject.
type Assignment struct {
	ClassifiedAt   time.Time
	FactorID       string
	EmissionKgCO2e *float64
	Quantity       *float64 // activity quantity the emission was computed from
	SubjectID      string
	Category       Category
	Tier           Tier
	Rationale      string
	ClassifiedBy   string
	Confidence     float64
	Scope          Scope
	NeedsReview    bool
	Pinned         bool
}

// NewAssignment builds an assignment with the scope derived from the category.
func NewAssignment(subjectID string, category Category, tier Tier, confidence float64, rationale string) Assignment {
	return Assignment{
		SubjectID:    subjectID,
		Category:     category,
		Scope:        category.Scope(),
		Tier:         tier,
		Confidence:   clamp01(confidence),
		Rationale:    rationale,
		ClassifiedAt: time.Now(),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

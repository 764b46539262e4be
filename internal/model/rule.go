package model

import "time"

// RuleSource indicates how a learned rule was created.
type RuleSource string

const (
	// RuleSourceManual indicates a rule added through the CLI.
	RuleSourceManual RuleSource = "manual"
	// RuleSourceCorrection indicates a rule learned from a user correction.
	RuleSourceCorrection RuleSource = "correction"
)

// DefaultRuleConfidence is the confidence stored when none is given.
const DefaultRuleConfidence = 0.95

// LearnedRule maps a normalized merchant key to a category for one organization.
type LearnedRule struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ID             string
	OrganizationID string
	MerchantKey    string
	Category       Category
	CreatedBy      string
	Source         RuleSource
	Confidence     float64
}

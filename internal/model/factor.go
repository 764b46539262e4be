package model

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EmissionFactor is one entry of the emission factor catalog.
type EmissionFactor struct {
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	Names         map[string]string // localized names keyed by language
	ID            string
	Code          string // identifier in the originating database
	Name          string
	Description   string
	Category      Category
	Country       string
	Region        string
	Unit          string
	Source        string
	Methodology   string
	Aliases       []string
	KgCO2ePerUnit float64
	Uncertainty   float64
	Scope         Scope
	Active        bool
}

// FactorFilters narrows a factor search. Zero values mean "any".
type FactorFilters struct {
	Unit     string   `json:"unit,omitempty"`
	Country  string   `json:"country,omitempty"`
	Source   string   `json:"source,omitempty"`
	Category Category `json:"category,omitempty"`
	Scope    Scope    `json:"scope,omitempty"`
}

// IsZero reports whether no filter is set.
func (f FactorFilters) IsZero() bool {
	return f == FactorFilters{}
}

// Fingerprint returns a short stable digest of the filters, used in cache keys.
func (f FactorFilters) Fingerprint() string {
	norm := FactorFilters{
		Unit:     strings.ToLower(strings.TrimSpace(f.Unit)),
		Country:  strings.ToUpper(strings.TrimSpace(f.Country)),
		Source:   strings.ToLower(strings.TrimSpace(f.Source)),
		Category: f.Category,
		Scope:    f.Scope,
	}
	data, _ := json.Marshal(norm)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}

// ScoredFactor is a factor candidate with its relevance score in [0,1].
type ScoredFactor struct {
	Factor EmissionFactor
	Score  float64
}

// FactorMatch is the ranked list of candidate factors for a subject.
type FactorMatch struct {
	SubjectID  string
	Rationale  string
	Candidates []ScoredFactor
}

// Selected returns the top-ranked candidate.
func (m FactorMatch) Selected() (EmissionFactor, bool) {
	if len(m.Candidates) == 0 {
		return EmissionFactor{}, false
	}
	return m.Candidates[0].Factor, true
}
